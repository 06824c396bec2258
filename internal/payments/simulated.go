package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultSimulatedDelay mirrors the fixed latency of the register's payment terminal.
	DefaultSimulatedDelay = 2 * time.Second
	simulatedRefPrefix    = "sim_"
)

// SimulatedProvider settles every payment after a fixed delay. It stands in for the card
// terminal and cash drawer; no external system is contacted.
type SimulatedProvider struct {
	delay time.Duration
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	failErr error
	calls   int
}

// SimulatedOption customises a SimulatedProvider.
type SimulatedOption func(*SimulatedProvider)

// WithDelay overrides the processing delay. Zero settles immediately.
func WithDelay(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// WithClock overrides the clock used for ProcessedAt.
func WithClock(now func() time.Time) SimulatedOption {
	return func(p *SimulatedProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTimer overrides the timer source, letting tests release the delay manually.
func WithTimer(after func(time.Duration) <-chan time.Time) SimulatedOption {
	return func(p *SimulatedProvider) {
		if after != nil {
			p.after = after
		}
	}
}

// NewSimulatedProvider constructs a provider with the default delay.
func NewSimulatedProvider(opts ...SimulatedOption) *SimulatedProvider {
	p := &SimulatedProvider{
		delay: DefaultSimulatedDelay,
		now:   time.Now,
		after: time.After,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// FailWith makes subsequent calls return err. Passing nil restores success.
func (p *SimulatedProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Calls reports how many requests reached the provider.
func (p *SimulatedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Process implements Processor.
func (p *SimulatedProvider) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	if req.Amount < 0 {
		return ProcessResult{}, errors.New("payments: amount must not be negative")
	}

	p.mu.Lock()
	p.calls++
	failErr := p.failErr
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return ProcessResult{}, ctx.Err()
		case <-p.after(p.delay):
		}
	} else if err := ctx.Err(); err != nil {
		return ProcessResult{}, err
	}

	if failErr != nil {
		return ProcessResult{}, failErr
	}
	return ProcessResult{
		Reference:   simulatedRefPrefix + ulid.Make().String(),
		Status:      StatusSucceeded,
		ProcessedAt: p.now().UTC(),
	}, nil
}
