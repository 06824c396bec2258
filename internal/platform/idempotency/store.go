package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a completed key keeps replaying its response.
const DefaultTTL = 24 * time.Hour

// Phase is where a key stands in its lifecycle.
type Phase uint8

const (
	// PhaseNew means the caller now owns the key and must Complete or Abandon it.
	PhaseNew Phase = iota
	// PhaseInFlight means another request holds the key.
	PhaseInFlight
	// PhaseDone means a response was stored and should be replayed.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseInFlight:
		return "in_flight"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Replay is a stored HTTP response.
type Replay struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Replay) clone() Replay {
	out := Replay{Status: r.Status, Header: r.Header.Clone()}
	if len(r.Body) > 0 {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Claim is the outcome of Store.Claim. Replay is only set in PhaseDone.
type Claim struct {
	Phase  Phase
	Replay Replay
}

// Store keeps idempotency keys. Keys arrive already scoped to the calling register.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, replay Replay, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	// ErrKeyReused is returned when a key comes back with a different request.
	ErrKeyReused = errors.New("idempotency: key reused for a different request")
	// ErrStoreFull is returned when every slot holds an in-flight key.
	ErrStoreFull = errors.New("idempotency: store full")
)

// replayHeader reports whether a response header is stored for replay. Hop-by-hop and
// per-response headers are regenerated on every reply.
func replayHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Connection", "Content-Length", "Date", "Keep-Alive", "Traceparent",
		"Transfer-Encoding", "Upgrade", "Trailer", ReplayHeader:
		return false
	}
	return true
}

func storedHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if replayHeader(name) {
			out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	return out
}
