package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp-saas/pdv/internal/catalog"
	"github.com/erp-saas/pdv/internal/metrics"
	"github.com/erp-saas/pdv/internal/payments"
	"github.com/erp-saas/pdv/internal/platform/config"
	"github.com/erp-saas/pdv/internal/platform/idempotency"
	"github.com/erp-saas/pdv/internal/platform/observability"
	"github.com/erp-saas/pdv/internal/receipt"
	"github.com/erp-saas/pdv/internal/services"
)

const (
	terminalProvider = "terminal"
	drawerProvider   = "drawer"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout services.CheckoutService
}

// Infrastructure holds the supporting components shared by handlers and background loops.
type Infrastructure struct {
	Catalog     *catalog.Catalog
	Receipts    *receipt.Renderer
	Payments    *payments.Manager
	Breakers    map[string]*payments.BreakerProcessor
	Metrics     *metrics.Registry
	Idempotency *idempotency.MemoryStore
}

// Container wires the register's services and infrastructure for runtime use.
type Container struct {
	Config         config.Config
	Infrastructure Infrastructure
	Services       Services
}

// Option customises container construction, primarily for tests.
type Option func(*buildOptions)

type buildOptions struct {
	clock     func() time.Time
	providers map[string]payments.Processor
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *buildOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPaymentProvider replaces the simulated provider registered under name.
func WithPaymentProvider(name string, processor payments.Processor) Option {
	return func(o *buildOptions) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || processor == nil {
			return
		}
		if o.providers == nil {
			o.providers = make(map[string]payments.Processor)
		}
		o.providers[name] = processor
	}
}

// NewContainer constructs the runtime dependencies from cfg.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := buildOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	infra, err := buildInfrastructure(ctx, cfg, logger, options)
	if err != nil {
		return nil, err
	}
	svc, err := buildServices(cfg, infra, logger, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:         cfg,
		Infrastructure: infra,
		Services:       svc,
	}, nil
}

func buildInfrastructure(_ context.Context, cfg config.Config, logger *zap.Logger, opts buildOptions) (Infrastructure, error) {
	var infra Infrastructure

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return Infrastructure{}, fmt.Errorf("build catalog: %w", err)
	}
	infra.Catalog = cat

	renderer, err := receipt.NewRenderer(receipt.Config{
		MerchantName:     cfg.Merchant.Name,
		MerchantDocument: cfg.Merchant.Document,
		Website:          cfg.Merchant.Website,
		FooterMarkdown:   cfg.Merchant.Footer,
		Location:         cfg.Merchant.Location(),
		Currency:         cfg.Merchant.Currency.String(),
	})
	if err != nil {
		return Infrastructure{}, fmt.Errorf("build receipt renderer: %w", err)
	}
	infra.Receipts = renderer

	infra.Metrics = metrics.NewRegistry()

	paymentsLogger := logger.Named("payments")
	providers := map[string]payments.Processor{
		terminalProvider: payments.NewSimulatedProvider(payments.WithDelay(cfg.Checkout.ProcessingDelay), payments.WithClock(opts.clock)),
		drawerProvider:   payments.NewSimulatedProvider(payments.WithDelay(cfg.Checkout.ProcessingDelay), payments.WithClock(opts.clock)),
	}
	for name, p := range opts.providers {
		providers[name] = p
	}

	infra.Breakers = make(map[string]*payments.BreakerProcessor, len(providers))
	guarded := make(map[string]payments.Processor, len(providers))
	for name, provider := range providers {
		breaker, err := payments.NewBreakerProcessor(provider, payments.BreakerSettings{
			Name:        name,
			MaxFailures: cfg.Payments.BreakerFailures,
			OpenTimeout: cfg.Payments.BreakerTimeout,
			OnStateChange: func(name, from, to string) {
				paymentsLogger.Warn("payment breaker state changed",
					zap.String("provider", name),
					zap.String("from", from),
					zap.String("to", to),
				)
				infra.Metrics.BreakerChanged(name, from, to)
			},
		})
		if err != nil {
			return Infrastructure{}, fmt.Errorf("build breaker %s: %w", name, err)
		}
		infra.Breakers[name] = breaker
		guarded[name] = breaker
	}

	manager, err := payments.NewManager(guarded,
		payments.WithDefaultProvider(cfg.Payments.DefaultProvider),
		payments.WithMethodRoutes(cfg.Payments.MethodRoutes),
	)
	if err != nil {
		return Infrastructure{}, fmt.Errorf("build payments manager: %w", err)
	}
	infra.Payments = manager

	infra.Idempotency = idempotency.NewMemoryStore()
	return infra, nil
}

func buildServices(cfg config.Config, infra Infrastructure, logger *zap.Logger, opts buildOptions) (Services, error) {
	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Catalog:           infra.Catalog,
		Processor:         infra.Payments,
		Receipts:          infra.Receipts,
		Observer:          infra.Metrics,
		Currency:          cfg.Merchant.Currency.String(),
		ProcessingTimeout: cfg.Checkout.ProcessingTimeout,
		Retention:         cfg.Checkout.Retention,
		Clock:             opts.clock,
		Logger:            observability.EventLogger(logger.Named("checkout"), "checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	return Services{Checkout: checkoutSvc}, nil
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Catalog, error) {
	if path := strings.TrimSpace(cfg.File); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default()
}

// CatalogReady reports whether the catalog has products to sell.
func (c *Container) CatalogReady(context.Context) error {
	if c == nil || c.Infrastructure.Catalog.Len() == 0 {
		return errors.New("catalog is empty")
	}
	return nil
}

// PaymentsReady fails while every payment provider breaker is open.
func (c *Container) PaymentsReady(context.Context) error {
	if c == nil || len(c.Infrastructure.Breakers) == 0 {
		return errors.New("no payment providers")
	}
	var open []string
	for name, breaker := range c.Infrastructure.Breakers {
		if breaker.State() == "open" {
			open = append(open, name)
		}
	}
	if len(open) == len(c.Infrastructure.Breakers) {
		return fmt.Errorf("payment breakers open: %s", strings.Join(open, ", "))
	}
	return nil
}

// PruneCheckouts drops idle checkouts and records how many were removed.
func (c *Container) PruneCheckouts(ctx context.Context, now time.Time) int {
	if c == nil || c.Services.Checkout == nil {
		return 0
	}
	removed := c.Services.Checkout.Prune(ctx, now)
	if removed > 0 && c.Infrastructure.Metrics != nil {
		c.Infrastructure.Metrics.CheckoutsPruned.Add(float64(removed))
	}
	return removed
}

// CleanupIdempotency sweeps expired idempotency records.
func (c *Container) CleanupIdempotency(ctx context.Context, now time.Time) (int, error) {
	if c == nil || c.Infrastructure.Idempotency == nil {
		return 0, nil
	}
	removed, err := c.Infrastructure.Idempotency.CleanupExpired(ctx, now, c.Config.Idempotency.CleanupBatchSize)
	if err != nil {
		return 0, err
	}
	if removed > 0 && c.Infrastructure.Metrics != nil {
		c.Infrastructure.Metrics.IdempotencySwept.Add(float64(removed))
	}
	return removed, nil
}
