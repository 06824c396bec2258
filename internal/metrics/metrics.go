package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erp-saas/pdv/internal/domain"
)

// Registry holds the checkout metrics and implements services.FinalizeObserver.
type Registry struct {
	reg *prometheus.Registry

	Rejected         *prometheus.CounterVec
	Started          *prometheus.CounterVec
	Failed           *prometheus.CounterVec
	Completed        *prometheus.CounterVec
	Amount           *prometheus.CounterVec
	ProcessingSec    prometheus.Histogram
	InFlight         prometheus.Gauge
	BreakerState     *prometheus.GaugeVec
	IdempotencySwept prometheus.Counter
	CheckoutsPruned  prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewRegistry registers the pdv collectors plus the Go and process collectors on a private
// registry.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_finalize_rejected_total",
		Help: "Finalize requests blocked by a validation guard.",
	}, []string{"reason"})
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_processing_started_total",
	}, []string{"method"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_processing_failed_total",
	}, []string{"method"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_sales_completed_total",
	}, []string{"method"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_sales_amount_minor_total",
		Help: "Sum of completed sale totals in minor currency units.",
	}, []string{"currency"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdv_processing_seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
	})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pdv_processing_in_flight"})
	breaker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pdv_payment_breaker_open",
		Help: "1 while the provider circuit breaker is open or half-open.",
	}, []string{"provider"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{Name: "pdv_idempotency_swept_total"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{Name: "pdv_checkouts_pruned_total"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_http_requests_total",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pdv_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(
		rejected, started, failed, completed, amount, latency, inFlight, breaker, swept, pruned, requests, duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:              r,
		Rejected:         rejected,
		Started:          started,
		Failed:           failed,
		Completed:        completed,
		Amount:           amount,
		ProcessingSec:    latency,
		InFlight:         inFlight,
		BreakerState:     breaker,
		IdempotencySwept: swept,
		CheckoutsPruned:  pruned,
		HTTPRequests:     requests,
		HTTPDuration:     duration,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// FinalizeRejected counts guard failures by reason.
func (r *Registry) FinalizeRejected(reason string) {
	r.Rejected.WithLabelValues(reason).Inc()
}

// ProcessingStarted counts a payment handed to a provider.
func (r *Registry) ProcessingStarted(method domain.PaymentMethod) {
	r.Started.WithLabelValues(string(method)).Inc()
	r.InFlight.Inc()
}

// SaleCompleted records the sale and how long its payment took.
func (r *Registry) SaleCompleted(sale domain.Sale, elapsed time.Duration) {
	r.Completed.WithLabelValues(string(sale.PaymentMethod)).Inc()
	r.Amount.WithLabelValues(sale.Currency).Add(float64(sale.Total))
	r.ProcessingSec.Observe(elapsed.Seconds())
	r.InFlight.Dec()
}

// ProcessingFailed records a payment that did not settle.
func (r *Registry) ProcessingFailed(method domain.PaymentMethod, elapsed time.Duration) {
	r.Failed.WithLabelValues(string(method)).Inc()
	r.ProcessingSec.Observe(elapsed.Seconds())
	r.InFlight.Dec()
}

// BreakerChanged tracks breaker transitions reported by payments.BreakerProcessor.
func (r *Registry) BreakerChanged(provider, _, to string) {
	value := 0.0
	if to != "closed" {
		value = 1
	}
	r.BreakerState.WithLabelValues(provider).Set(value)
}

// Middleware counts and times requests by method, chi route pattern and status code.
func (r *Registry) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			route := "unmatched"
			if rctx := chi.RouteContext(req.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			r.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			r.HTTPDuration.WithLabelValues(req.Method, route).Observe(time.Since(started).Seconds())
		})
	}
}
