package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp-saas/pdv/internal/domain"
	"github.com/erp-saas/pdv/internal/format"
	"github.com/erp-saas/pdv/internal/payments"
)

const defaultProcessingTimeout = 30 * time.Second

var (
	// ErrCartEmpty blocks finalization of a cart without lines.
	ErrCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutBusy indicates the checkout is processing and its cart is detached.
	ErrCheckoutBusy = errors.New("checkout: processing in progress")
	// ErrCheckoutClosed indicates the checkout already completed.
	ErrCheckoutClosed = errors.New("checkout: already completed")
	// ErrCheckoutPaymentFailed indicates the processor did not settle the payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCustomerInvalid indicates customer data failed validation.
	ErrCustomerInvalid = errors.New("checkout: invalid customer")
)

var tracer = otel.Tracer("github.com/erp-saas/pdv/internal/services")

// CheckoutState enumerates the finalizer states.
type CheckoutState string

const (
	StateReviewing  CheckoutState = "reviewing"
	StateProcessing CheckoutState = "processing"
	StateCompleted  CheckoutState = "completed"
)

// PaymentProcessor settles a sale asynchronously. payments.Manager implements it.
type PaymentProcessor interface {
	Process(ctx context.Context, req payments.ProcessRequest) (payments.ProcessResult, error)
}

// FinalizeObserver receives finalizer lifecycle notifications, e.g. for metrics.
type FinalizeObserver interface {
	FinalizeRejected(reason string)
	ProcessingStarted(method domain.PaymentMethod)
	SaleCompleted(sale domain.Sale, elapsed time.Duration)
	ProcessingFailed(method domain.PaymentMethod, elapsed time.Duration)
}

// SaleFinalizerDeps wires one checkout instance.
type SaleFinalizerDeps struct {
	CheckoutID        string
	Currency          string
	Processor         PaymentProcessor
	Observer          FinalizeObserver
	ProcessingTimeout time.Duration
	NewSaleID         func() string
	Clock             func() time.Time
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

// FinalizeResult reports what a Finalize call did. Accepted is true only for the call that
// started processing.
type FinalizeResult struct {
	Accepted bool
	State    CheckoutState
	Sale     *domain.Sale
}

// CheckoutSnapshot is a detached view of a checkout.
type CheckoutSnapshot struct {
	ID        string
	State     CheckoutState
	Cart      domain.Cart
	Totals    domain.CartTotals
	Payment   domain.PaymentSelection
	Change    int64
	Customer  *domain.Customer
	Sale      *domain.Sale
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SaleFinalizer owns one cart and drives it from reviewing through processing to completed.
// Completed is terminal; a new sale needs a new finalizer.
type SaleFinalizer struct {
	id        string
	currency  string
	processor PaymentProcessor
	observer  FinalizeObserver
	timeout   time.Duration
	newSaleID func() string
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)

	mu        sync.Mutex
	state     CheckoutState
	cart      domain.Cart
	payment   domain.PaymentSelection
	customer  *domain.Customer
	sale      *domain.Sale
	lastErr   error
	discarded bool
	done      chan struct{}
	createdAt time.Time
	updatedAt time.Time
}

// pendingSale is the snapshot taken when processing starts.
type pendingSale struct {
	cart     domain.Cart
	totals   domain.CartTotals
	payment  domain.PaymentSelection
	customer *domain.Customer
}

// NewSaleFinalizer constructs a finalizer in the reviewing state with an empty cart.
func NewSaleFinalizer(deps SaleFinalizerDeps) (*SaleFinalizer, error) {
	if deps.Processor == nil {
		return nil, errors.New("sale finalizer: payment processor is required")
	}
	id := strings.TrimSpace(deps.CheckoutID)
	if id == "" {
		return nil, errors.New("sale finalizer: checkout id is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newSaleID := deps.NewSaleID
	if newSaleID == nil {
		newSaleID = func() string { return domain.SaleIDPrefix + ulid.Make().String() }
	}
	timeout := deps.ProcessingTimeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "BRL"
	}

	f := &SaleFinalizer{
		id:        id,
		currency:  currency,
		processor: deps.Processor,
		observer:  deps.Observer,
		timeout:   timeout,
		newSaleID: newSaleID,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		state:  StateReviewing,
	}
	f.createdAt = f.now()
	f.updatedAt = f.createdAt
	return f, nil
}

// ID returns the checkout id.
func (f *SaleFinalizer) ID() string {
	return f.id
}

// AddProduct adds quantity units of product to the cart.
func (f *SaleFinalizer) AddProduct(product domain.Product, quantity int) error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return AddLine(cart, product, quantity)
	})
}

// Increment adds one unit to a line.
func (f *SaleFinalizer) Increment(lineID string) error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return IncrementQuantity(cart, lineID)
	})
}

// Decrement removes one unit from a line, stopping at one.
func (f *SaleFinalizer) Decrement(lineID string) error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return DecrementQuantity(cart, lineID)
	})
}

// Remove deletes a line.
func (f *SaleFinalizer) Remove(lineID string) error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return RemoveLine(cart, lineID)
	})
}

// Clear empties the cart.
func (f *SaleFinalizer) Clear() error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return ClearCart(cart), nil
	})
}

// SetDiscount replaces the discount percentage.
func (f *SaleFinalizer) SetDiscount(percent float64) error {
	return f.mutateCart(func(cart domain.Cart) (domain.Cart, error) {
		return SetDiscount(cart, percent)
	})
}

// SelectPayment records the payment selection. Completeness is checked at Finalize.
func (f *SaleFinalizer) SelectPayment(selection domain.PaymentSelection) error {
	if selection.Method != domain.PaymentMethodNone && !selection.Method.Valid() {
		return fmt.Errorf("%w: %s", ErrPaymentUnsupportedMethod, selection.Method)
	}
	if selection.AmountTendered != nil && *selection.AmountTendered < 0 {
		return ErrPaymentInvalidAmount
	}
	selection = selection.Clone()
	return f.mutate(func() error {
		f.payment = selection
		return nil
	})
}

// SetCustomer attaches a customer to the sale.
func (f *SaleFinalizer) SetCustomer(customer domain.Customer) error {
	normalized, err := normalizeCustomer(customer)
	if err != nil {
		return err
	}
	return f.mutate(func() error {
		f.customer = &normalized
		return nil
	})
}

// ClearCustomer detaches the customer.
func (f *SaleFinalizer) ClearCustomer() error {
	return f.mutate(func() error {
		f.customer = nil
		return nil
	})
}

// Finalize requests the reviewing to processing transition. Guard failures leave the
// checkout in reviewing. While processing, further calls are no-ops; once completed they
// return the existing sale.
func (f *SaleFinalizer) Finalize(ctx context.Context) (FinalizeResult, error) {
	f.mu.Lock()
	if f.discarded {
		f.mu.Unlock()
		return FinalizeResult{}, ErrCheckoutNotFound
	}
	switch f.state {
	case StateCompleted:
		sale := f.sale.Clone()
		f.mu.Unlock()
		return FinalizeResult{State: StateCompleted, Sale: &sale}, nil
	case StateProcessing:
		f.mu.Unlock()
		return FinalizeResult{State: StateProcessing}, nil
	}

	if f.cart.Empty() {
		f.mu.Unlock()
		f.reject(ctx, "cart_empty", ErrCartEmpty)
		return FinalizeResult{State: StateReviewing}, ErrCartEmpty
	}
	totals := ComputeTotals(f.cart)
	if err := ValidatePayment(f.payment, totals.Total); err != nil {
		f.mu.Unlock()
		f.reject(ctx, rejectReason(err), err)
		return FinalizeResult{State: StateReviewing}, err
	}

	pending := pendingSale{
		cart:     f.cart.Clone(),
		totals:   totals,
		payment:  f.payment.Clone(),
		customer: cloneCustomer(f.customer),
	}
	done := make(chan struct{})
	f.state = StateProcessing
	f.lastErr = nil
	f.done = done
	f.updatedAt = f.now()
	f.mu.Unlock()

	f.logger(ctx, "checkout.processing_started", map[string]any{
		"checkoutID": f.id,
		"method":     string(pending.payment.Method),
		"total":      pending.totals.Total,
		"lines":      len(pending.cart.Lines),
	})
	if f.observer != nil {
		f.observer.ProcessingStarted(pending.payment.Method)
	}

	go f.process(context.WithoutCancel(ctx), pending, done)

	return FinalizeResult{Accepted: true, State: StateProcessing}, nil
}

func (f *SaleFinalizer) process(ctx context.Context, pending pendingSale, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "checkout.finalize", trace.WithAttributes(
		attribute.String("checkout.id", f.id),
		attribute.String("payment.method", string(pending.payment.Method)),
		attribute.Int64("checkout.total", pending.totals.Total),
	))
	defer span.End()

	started := f.now()
	result, err := f.processor.Process(ctx, payments.ProcessRequest{
		CheckoutID:     f.id,
		Method:         string(pending.payment.Method),
		Amount:         pending.totals.Total,
		Currency:       f.currency,
		AmountTendered: pending.payment.Clone().AmountTendered,
		IdempotencyKey: f.id,
		Metadata: map[string]string{
			"display_total": format.Currency(pending.totals.Total, f.currency),
		},
	})
	if err == nil && result.Status == payments.StatusFailed {
		err = fmt.Errorf("%w: declined by %s", ErrCheckoutPaymentFailed, result.Provider)
	}
	elapsed := f.now().Sub(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		f.mu.Lock()
		f.state = StateReviewing
		f.lastErr = err
		f.done = nil
		f.updatedAt = f.now()
		f.mu.Unlock()

		f.logger(ctx, "checkout.processing_failed", map[string]any{
			"checkoutID": f.id,
			"method":     string(pending.payment.Method),
			"error":      err.Error(),
		})
		if f.observer != nil {
			f.observer.ProcessingFailed(pending.payment.Method, elapsed)
		}
		return
	}

	sale := f.buildSale(pending, result)
	span.SetAttributes(attribute.String("sale.id", sale.ID))

	f.mu.Lock()
	f.sale = &sale
	f.state = StateCompleted
	f.cart = domain.Cart{}
	f.payment = domain.PaymentSelection{}
	f.done = nil
	f.updatedAt = sale.CompletedAt
	f.mu.Unlock()

	f.logger(ctx, "checkout.sale_completed", map[string]any{
		"checkoutID": f.id,
		"saleID":     sale.ID,
		"total":      sale.Total,
		"provider":   sale.Provider,
	})
	if f.observer != nil {
		f.observer.SaleCompleted(sale.Clone(), elapsed)
	}
}

func (f *SaleFinalizer) buildSale(pending pendingSale, result payments.ProcessResult) domain.Sale {
	sale := domain.Sale{
		ID:                 f.newSaleID(),
		CheckoutID:         f.id,
		Lines:              pending.cart.Clone().Lines,
		DiscountPercent:    clampPercent(pending.cart.DiscountPercent),
		Subtotal:           pending.totals.Subtotal,
		DiscountAmount:     pending.totals.DiscountAmount,
		Total:              pending.totals.Total,
		Currency:           f.currency,
		PaymentMethod:      pending.payment.Method,
		Customer:           cloneCustomer(pending.customer),
		Provider:           result.Provider,
		ProcessorReference: result.Reference,
		CompletedAt:        f.now(),
	}
	if pending.payment.Method == domain.PaymentMethodCash && pending.payment.AmountTendered != nil {
		tendered := *pending.payment.AmountTendered
		sale.AmountTendered = &tendered
		sale.Change = ComputeChange(sale.Total, tendered)
	}
	return sale
}

// Wait blocks until in-flight processing settles or ctx ends.
func (f *SaleFinalizer) Wait(ctx context.Context) (CheckoutSnapshot, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return f.Snapshot(), ctx.Err()
		}
	}
	return f.Snapshot(), nil
}

// Snapshot returns a detached copy of the checkout.
func (f *SaleFinalizer) Snapshot() CheckoutSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := CheckoutSnapshot{
		ID:        f.id,
		State:     f.state,
		Cart:      f.cart.Clone(),
		Totals:    ComputeTotals(f.cart),
		Payment:   f.payment.Clone(),
		Customer:  cloneCustomer(f.customer),
		CreatedAt: f.createdAt,
		UpdatedAt: f.updatedAt,
	}
	if f.payment.Method == domain.PaymentMethodCash && f.payment.AmountTendered != nil {
		snap.Change = ComputeChange(snap.Totals.Total, *f.payment.AmountTendered)
	}
	if f.sale != nil {
		sale := f.sale.Clone()
		snap.Sale = &sale
	}
	if f.lastErr != nil {
		snap.LastError = f.lastErr.Error()
	}
	return snap
}

// Sale returns the completed sale, if any.
func (f *SaleFinalizer) Sale() (domain.Sale, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sale == nil {
		return domain.Sale{}, false
	}
	return f.sale.Clone(), true
}

// LastError returns the error of the most recent failed processing run.
func (f *SaleFinalizer) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// State returns the current state.
func (f *SaleFinalizer) State() CheckoutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *SaleFinalizer) mutateCart(fn func(domain.Cart) (domain.Cart, error)) error {
	return f.mutate(func() error {
		cart, err := fn(f.cart)
		if err != nil {
			return err
		}
		f.cart = cart
		return nil
	})
}

// mutate runs fn under the lock when the checkout is still reviewing.
func (f *SaleFinalizer) mutate(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.discarded {
		return ErrCheckoutNotFound
	}
	switch f.state {
	case StateProcessing:
		return ErrCheckoutBusy
	case StateCompleted:
		return ErrCheckoutClosed
	}
	if err := fn(); err != nil {
		return err
	}
	f.updatedAt = f.now()
	return nil
}

// discard retires the finalizer unless a payment is in flight. Once discarded, Finalize and
// every mutator report ErrCheckoutNotFound.
func (f *SaleFinalizer) discard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateProcessing {
		return ErrCheckoutBusy
	}
	f.discarded = true
	return nil
}

func (f *SaleFinalizer) reject(ctx context.Context, reason string, err error) {
	f.logger(ctx, "checkout.finalize_rejected", map[string]any{
		"checkoutID": f.id,
		"reason":     reason,
		"error":      err.Error(),
	})
	if f.observer != nil {
		f.observer.FinalizeRejected(reason)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrNoMethodSelected):
		return "no_method_selected"
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrPaymentUnsupportedMethod):
		return "unsupported_method"
	default:
		return "invalid"
	}
}

func normalizeCustomer(customer domain.Customer) (domain.Customer, error) {
	out := domain.Customer{
		Name:     strings.TrimSpace(customer.Name),
		Document: format.Digits(customer.Document),
		Phone:    format.Digits(customer.Phone),
	}
	if out.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", ErrCustomerInvalid)
	}

	kind := domain.DocumentKind(strings.ToLower(strings.TrimSpace(string(customer.DocumentKind))))
	if out.Document != "" {
		if kind == "" {
			switch len(out.Document) {
			case 11:
				kind = domain.DocumentKindCPF
			case 14:
				kind = domain.DocumentKindCNPJ
			}
		}
		switch {
		case kind == domain.DocumentKindCPF && len(out.Document) == 11:
		case kind == domain.DocumentKindCNPJ && len(out.Document) == 14:
		default:
			return domain.Customer{}, fmt.Errorf("%w: document must be a CPF or CNPJ", ErrCustomerInvalid)
		}
		out.DocumentKind = kind
	}
	if n := len(out.Phone); n != 0 && n != 10 && n != 11 {
		return domain.Customer{}, fmt.Errorf("%w: phone must have 10 or 11 digits", ErrCustomerInvalid)
	}
	return out, nil
}

func cloneCustomer(customer *domain.Customer) *domain.Customer {
	if customer == nil {
		return nil
	}
	out := *customer
	return &out
}
