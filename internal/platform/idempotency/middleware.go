package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erp-saas/pdv/internal/platform/httpx"
	"github.com/erp-saas/pdv/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	// ReplayHeader marks a response served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength       = 128
	maxFingerprintBody = 64 << 10
)

// Logger is the Printf-style sink for store failures.
type Logger interface {
	Printf(format string, args ...any)
}

type settings struct {
	header   string
	ttl      time.Duration
	optional bool
	clock    func() time.Time
	logger   Logger
}

// Option customises the middleware.
type Option func(*settings)

// WithHeader sets the request header carrying the key.
func WithHeader(name string) Option {
	return func(s *settings) {
		if name = strings.TrimSpace(name); name != "" {
			s.header = name
		}
	}
}

// WithTTL sets how long a completed response is replayed.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOptionalKey lets requests without a key through unguarded.
func WithOptionalKey() Option {
	return func(s *settings) { s.optional = true }
}

// WithLogger sets the sink for store failures.
func WithLogger(logger Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Middleware makes unsafe requests carrying an idempotency key run at most once per register.
// A repeated key with the same request replays the stored response; with a different request
// it is rejected. Server errors are not stored, so the register can retry with the same key.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	s := settings{header: defaultHeaderName, ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(s.header))
			switch {
			case key == "" && s.optional:
				next.ServeHTTP(w, r)
				return
			case key == "":
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", s.header+" header is required", http.StatusBadRequest))
				return
			case len(key) > maxKeyLength:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", s.header+" is too long", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
				return
			}

			terminal := requestctx.Terminal(ctx)
			scoped := scopeKey(terminal, key)
			fingerprint := fingerprintRequest(r, terminal, body)

			claim, err := store.Claim(ctx, scoped, fingerprint, s.clock(), s.ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			case errors.Is(err, ErrStoreFull):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_full", "too many requests in flight", http.StatusServiceUnavailable))
				return
			case err != nil:
				s.logf("idempotency: claim %s: %v", scoped, err)
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch claim.Phase {
			case PhaseDone:
				replay(w, claim.Replay)
				return
			case PhaseInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
				return
			}

			capture := newCapture()
			next.ServeHTTP(capture, r)

			if capture.status >= http.StatusInternalServerError {
				if err := store.Abandon(ctx, scoped); err != nil {
					s.logf("idempotency: abandon %s: %v", scoped, err)
				}
				capture.flush(w)
				return
			}
			if err := store.Complete(ctx, scoped, fingerprint, capture.replay(), s.clock(), s.ttl); err != nil {
				s.logf("idempotency: complete %s: %v", scoped, err)
				if err := store.Abandon(ctx, scoped); err != nil {
					s.logf("idempotency: abandon %s: %v", scoped, err)
				}
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
				return
			}
			capture.flush(w)
		})
	}
}

func (s settings) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFingerprintBody {
		return nil, errors.New("idempotency: body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func scopeKey(terminal, key string) string {
	if terminal == "" {
		terminal = "anonymous"
	}
	return "terminal:" + terminal + "|" + key
}

// fingerprintRequest identifies what was asked: a key replayed against another checkout or
// with another body is a different request.
func fingerprintRequest(r *http.Request, terminal string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, terminal} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, stored Replay) {
	for name, values := range stored.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := stored.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(stored.Body)
}

// capture buffers a response until it has been stored.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCapture() *capture {
	return &capture{header: make(http.Header)}
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func (c *capture) replay() Replay {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return Replay{Status: status, Header: c.header, Body: c.body.Bytes()}
}

func (c *capture) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		w.Header()[name] = values
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(c.body.Bytes())
}
