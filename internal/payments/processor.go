package payments

import (
	"context"
	"errors"
	"time"
)

// Status is the provider-neutral outcome of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the provider declined; the sale must not complete.
	StatusFailed    Status = "failed"
)

var (
	ErrUnsupportedProvider  = errors.New("payments: unsupported provider")
	ErrProcessorUnavailable = errors.New("payments: processor unavailable")
)

// ProcessRequest is one settlement attempt for a checkout. AmountTendered is set for cash only.
// Provider, when set, names the provider to use ahead of any method route.
type ProcessRequest struct {
	Provider       string
	CheckoutID     string
	Method         string
	Amount         int64
	Currency       string
	AmountTendered *int64
	IdempotencyKey string
	Metadata       map[string]string
}

// ProcessResult is what a provider reports back. Provider is filled in by the Manager.
type ProcessResult struct {
	Provider    string
	Reference   string
	Status      Status
	ProcessedAt time.Time
}

// Processor settles payments. Implementations must return promptly once ctx is done.
type Processor interface {
	Process(ctx context.Context, req ProcessRequest) (ProcessResult, error)
}
