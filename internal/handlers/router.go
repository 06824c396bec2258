package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erp-saas/pdv/internal/platform/httpx"
)

// RouteRegistrar registers a group of routes on r.
type RouteRegistrar func(r chi.Router)

const (
	apiPrefix          = "/api/v1"
	requestTimeout     = 60 * time.Second
	defaultMetricsPath = "/metrics"
	errorNotFoundCode  = "route_not_found"
)

type routerConfig struct {
	middlewares    []func(http.Handler) http.Handler
	health         *HealthHandlers
	groups         map[string]RouteRegistrar
	metricsPath    string
	metricsHandler http.Handler
}

// Option customises NewRouter.
type Option func(*routerConfig)

// apiGroups lists the route groups mounted under /api/v1, in mount order.
var apiGroups = []string{"catalog", "checkouts"}

// NewRouter builds the register API. Probes and metrics sit at the root; everything else
// lives under /api/v1. API responses are never cacheable because checkout state moves.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{groups: make(map[string]RouteRegistrar, len(apiGroups))}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.CleanPath, middleware.Timeout(requestTimeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, cfg.metricsPath, cfg.metricsHandler)
	}

	r.Route(apiPrefix, func(api chi.Router) {
		api.Use(middleware.NoCache)
		for _, name := range apiGroups {
			registrar := cfg.groups[name]
			api.Route("/"+name, func(group chi.Router) {
				if registrar == nil {
					registerNotImplemented(group, name)
					return
				}
				registrar(group)
			})
		}
	})
	return r
}

// WithMiddlewares appends global middleware, run after the request id and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers sets the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithCheckoutRoutes mounts reg at /api/v1/checkouts.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups["checkouts"] = reg }
}

// WithCatalogRoutes mounts reg at /api/v1/catalog.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.groups["catalog"] = reg }
}

// WithMetricsHandler exposes a scrape endpoint at path, outside the API prefix.
func WithMetricsHandler(path string, handler http.Handler) Option {
	return func(cfg *routerConfig) {
		path = strings.TrimSpace(path)
		if path == "" {
			path = defaultMetricsPath
		}
		cfg.metricsPath = "/" + strings.TrimPrefix(path, "/")
		cfg.metricsHandler = handler
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes are not enabled", http.StatusNotImplemented))
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}
