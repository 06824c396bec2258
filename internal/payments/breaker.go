package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// BreakerSettings tunes a BreakerProcessor.
type BreakerSettings struct {
	Name string
	// MaxFailures consecutive failures trip the breaker open.
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout   time.Duration
	OnStateChange func(name, from, to string)
}

// BreakerProcessor guards a Processor with a circuit breaker so a failing terminal is not
// hammered by every register.
type BreakerProcessor struct {
	name string
	next Processor
	cb   *gobreaker.CircuitBreaker[ProcessResult]
}

// NewBreakerProcessor wraps next.
func NewBreakerProcessor(next Processor, settings BreakerSettings) (*BreakerProcessor, error) {
	if next == nil {
		return nil, errors.New("payments: breaker requires a processor")
	}
	failures := settings.MaxFailures
	if failures <= 0 {
		failures = defaultBreakerFailures
	}
	timeout := settings.OpenTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	name := settings.Name
	if name == "" {
		name = "payments"
	}

	cbSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// Caller cancellations say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if settings.OnStateChange != nil {
		notify := settings.OnStateChange
		cbSettings.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(name, from.String(), to.String())
		}
	}

	return &BreakerProcessor{
		name: name,
		next: next,
		cb:   gobreaker.NewCircuitBreaker[ProcessResult](cbSettings),
	}, nil
}

// Process implements Processor.
func (b *BreakerProcessor) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	result, err := b.cb.Execute(func() (ProcessResult, error) {
		return b.next.Process(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ProcessResult{}, fmt.Errorf("%w: %s", ErrProcessorUnavailable, b.name)
	}
	return result, err
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerProcessor) State() string {
	return b.cb.State().String()
}
