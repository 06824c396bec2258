package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	defaultReadinessTimeout = 2 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	timeout time.Duration
	checks  map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Without checks, readiness mirrors liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
		checks:  make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the version metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		name = strings.TrimSpace(name)
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// WithReadinessTimeout bounds each readiness probe.
func WithReadinessTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type readinessCheckPayload struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status    string                           `json:"status"`
	Checks    map[string]readinessCheckPayload `json:"checks,omitempty"`
	Details   []string                         `json:"details,omitempty"`
	Timestamp string                           `json:"timestamp"`
}

// Healthz reports liveness with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      healthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz runs the registered checks and answers 503 when any of them fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readinessResponse{Status: healthStatusOK}
	if len(names) > 0 {
		resp.Checks = make(map[string]readinessCheckPayload, len(names))
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		started := h.clock()
		err := h.checks[name](ctx)
		cancel()

		check := readinessCheckPayload{
			Status:    healthStatusOK,
			LatencyMS: h.clock().Sub(started).Milliseconds(),
		}
		if err != nil {
			check.Status = healthStatusDegraded
			check.Error = err.Error()
			resp.Status = healthStatusDegraded
			resp.Details = append(resp.Details, name+": "+err.Error())
		}
		resp.Checks[name] = check
	}
	resp.Timestamp = h.clock().UTC().Format(time.RFC3339)

	status := http.StatusOK
	if resp.Status != healthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
