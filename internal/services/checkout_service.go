package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/erp-saas/pdv/internal/catalog"
	"github.com/erp-saas/pdv/internal/domain"
)

const defaultCheckoutRetention = 24 * time.Hour

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutNotFound indicates the checkout id is unknown or was pruned.
	ErrCheckoutNotFound = errors.New("checkout: not found")
	// ErrCheckoutNotCompleted indicates a receipt was requested before the sale exists.
	ErrCheckoutNotCompleted = errors.New("checkout: not completed")
	// ErrProductNotFound indicates the product id is not in the catalog.
	ErrProductNotFound = errors.New("checkout: product not found")
)

// demoCart reproduces the register's sample cart.
var demoCart = []struct {
	productID string
	quantity  int
}{
	{productID: "iphone-14-pro-256", quantity: 1},
	{productID: "capinha-iphone-14-pro", quantity: 2},
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Catalog           ProductCatalog
	Processor         PaymentProcessor
	Receipts          ReceiptRenderer
	Observer          FinalizeObserver
	Currency          string
	ProcessingTimeout time.Duration
	Retention         time.Duration
	NewID             func() string
	NewSaleID         func() string
	Clock             func() time.Time
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	catalog   ProductCatalog
	processor PaymentProcessor
	receipts  ReceiptRenderer
	observer  FinalizeObserver
	currency  string
	timeout   time.Duration
	retention time.Duration
	newID     func() string
	newSaleID func() string
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)

	mu        sync.RWMutex
	checkouts map[string]*SaleFinalizer
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: product catalog is required")
	}
	if deps.Processor == nil {
		return nil, errors.New("checkout service: payment processor is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("checkout service: receipt renderer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	retention := deps.Retention
	if retention <= 0 {
		retention = defaultCheckoutRetention
	}

	return &checkoutService{
		catalog:   deps.Catalog,
		processor: deps.Processor,
		receipts:  deps.Receipts,
		observer:  deps.Observer,
		currency:  deps.Currency,
		timeout:   deps.ProcessingTimeout,
		retention: retention,
		newID:     newID,
		newSaleID: deps.NewSaleID,
		clock:     clock,
		logger:    logger,
		checkouts: make(map[string]*SaleFinalizer),
	}, nil
}

func (s *checkoutService) Open(ctx context.Context, cmd OpenCheckoutCommand) (CheckoutSnapshot, error) {
	if s == nil || s.checkouts == nil {
		return CheckoutSnapshot{}, ErrCheckoutUnavailable
	}

	finalizer, err := NewSaleFinalizer(SaleFinalizerDeps{
		CheckoutID:        s.newID(),
		Currency:          s.currency,
		Processor:         s.processor,
		Observer:          s.observer,
		ProcessingTimeout: s.timeout,
		NewSaleID:         s.newSaleID,
		Clock:             s.clock,
		Logger:            s.logger,
	})
	if err != nil {
		return CheckoutSnapshot{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	if cmd.SeedDemoCart {
		for _, seed := range demoCart {
			product, err := s.product(ctx, seed.productID)
			if err != nil {
				return CheckoutSnapshot{}, err
			}
			if err := finalizer.AddProduct(product, seed.quantity); err != nil {
				return CheckoutSnapshot{}, err
			}
		}
	}

	s.mu.Lock()
	s.checkouts[finalizer.ID()] = finalizer
	s.mu.Unlock()

	s.logger(ctx, "checkout.opened", map[string]any{
		"checkoutID": finalizer.ID(),
		"seeded":     cmd.SeedDemoCart,
	})
	return finalizer.Snapshot(), nil
}

func (s *checkoutService) Get(_ context.Context, checkoutID string) (CheckoutSnapshot, error) {
	finalizer, err := s.lookup(checkoutID)
	if err != nil {
		return CheckoutSnapshot{}, err
	}
	return finalizer.Snapshot(), nil
}

func (s *checkoutService) AddProduct(ctx context.Context, cmd AddProductCommand) (CheckoutSnapshot, error) {
	finalizer, err := s.lookup(cmd.CheckoutID)
	if err != nil {
		return CheckoutSnapshot{}, err
	}
	if cmd.Quantity < 0 {
		return CheckoutSnapshot{}, fmt.Errorf("%w: quantity must be positive", ErrCheckoutInvalidInput)
	}
	product, err := s.product(ctx, cmd.ProductID)
	if err != nil {
		return CheckoutSnapshot{}, err
	}
	if err := finalizer.AddProduct(product, cmd.Quantity); err != nil {
		return CheckoutSnapshot{}, err
	}
	return finalizer.Snapshot(), nil
}

func (s *checkoutService) IncrementLine(_ context.Context, checkoutID, lineID string) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.Increment(lineID) })
}

func (s *checkoutService) DecrementLine(_ context.Context, checkoutID, lineID string) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.Decrement(lineID) })
}

func (s *checkoutService) RemoveLine(_ context.Context, checkoutID, lineID string) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.Remove(lineID) })
}

func (s *checkoutService) ClearCart(_ context.Context, checkoutID string) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.Clear() })
}

func (s *checkoutService) SetDiscount(_ context.Context, checkoutID string, percent float64) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.SetDiscount(percent) })
}

func (s *checkoutService) SelectPayment(_ context.Context, cmd SelectPaymentCommand) (CheckoutSnapshot, error) {
	selection := domain.PaymentSelection{
		Method:         domain.ParsePaymentMethod(cmd.Method),
		AmountTendered: cmd.AmountTendered,
	}
	return s.apply(cmd.CheckoutID, func(f *SaleFinalizer) error { return f.SelectPayment(selection) })
}

func (s *checkoutService) SetCustomer(_ context.Context, cmd SetCustomerCommand) (CheckoutSnapshot, error) {
	customer := domain.Customer{
		Name:         cmd.Name,
		Document:     cmd.Document,
		DocumentKind: domain.DocumentKind(cmd.DocumentKind),
		Phone:        cmd.Phone,
	}
	return s.apply(cmd.CheckoutID, func(f *SaleFinalizer) error { return f.SetCustomer(customer) })
}

func (s *checkoutService) ClearCustomer(_ context.Context, checkoutID string) (CheckoutSnapshot, error) {
	return s.apply(checkoutID, func(f *SaleFinalizer) error { return f.ClearCustomer() })
}

func (s *checkoutService) Finalize(ctx context.Context, cmd FinalizeCommand) (FinalizeOutcome, error) {
	finalizer, err := s.lookup(cmd.CheckoutID)
	if err != nil {
		return FinalizeOutcome{}, err
	}

	result, err := finalizer.Finalize(ctx)
	if err != nil {
		return FinalizeOutcome{Checkout: finalizer.Snapshot()}, err
	}
	outcome := FinalizeOutcome{Accepted: result.Accepted}
	if !cmd.Wait || result.State == StateCompleted {
		outcome.Checkout = finalizer.Snapshot()
		return outcome, nil
	}

	snap, err := finalizer.Wait(ctx)
	outcome.Checkout = snap
	if err != nil {
		return outcome, err
	}
	if snap.State == StateReviewing {
		if lastErr := finalizer.LastError(); lastErr != nil {
			if errors.Is(lastErr, ErrCheckoutPaymentFailed) {
				return outcome, lastErr
			}
			return outcome, fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, lastErr)
		}
	}
	return outcome, nil
}

func (s *checkoutService) Receipt(_ context.Context, checkoutID string, format ReceiptFormat) (Receipt, error) {
	finalizer, err := s.lookup(checkoutID)
	if err != nil {
		return Receipt{}, err
	}
	sale, ok := finalizer.Sale()
	if !ok {
		return Receipt{}, ErrCheckoutNotCompleted
	}

	switch ReceiptFormat(strings.ToLower(strings.TrimSpace(string(format)))) {
	case "", ReceiptFormatText:
		return Receipt{
			SaleID:      sale.ID,
			ContentType: "text/plain; charset=utf-8",
			Body:        s.receipts.Text(sale),
		}, nil
	case ReceiptFormatHTML:
		body, err := s.receipts.HTML(sale)
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: render receipt: %v", ErrCheckoutUnavailable, err)
		}
		return Receipt{
			SaleID:      sale.ID,
			ContentType: "text/html; charset=utf-8",
			Body:        body,
		}, nil
	default:
		return Receipt{}, fmt.Errorf("%w: unsupported receipt format %q", ErrCheckoutInvalidInput, format)
	}
}

func (s *checkoutService) Discard(ctx context.Context, checkoutID string) error {
	finalizer, err := s.lookup(checkoutID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = finalizer.discard()
	if err == nil {
		delete(s.checkouts, finalizer.ID())
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger(ctx, "checkout.discarded", map[string]any{"checkoutID": finalizer.ID()})
	return nil
}

func (s *checkoutService) PopularProducts(ctx context.Context) ([]Product, error) {
	if s == nil || s.catalog == nil {
		return nil, ErrCheckoutUnavailable
	}
	products, err := s.catalog.Popular(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return products, nil
}

// Prune drops checkouts that have been idle longer than the retention window. Processing
// checkouts are always kept.
func (s *checkoutService) Prune(ctx context.Context, now time.Time) int {
	if s == nil {
		return 0
	}
	cutoff := now.UTC().Add(-s.retention)

	s.mu.Lock()
	removed := 0
	for id, finalizer := range s.checkouts {
		snap := finalizer.Snapshot()
		if snap.State == StateProcessing || !snap.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.checkouts, id)
		removed++
	}
	remaining := len(s.checkouts)
	s.mu.Unlock()

	if removed > 0 {
		s.logger(ctx, "checkout.pruned", map[string]any{
			"removed":   removed,
			"remaining": remaining,
		})
	}
	return removed
}

func (s *checkoutService) apply(checkoutID string, fn func(*SaleFinalizer) error) (CheckoutSnapshot, error) {
	finalizer, err := s.lookup(checkoutID)
	if err != nil {
		return CheckoutSnapshot{}, err
	}
	if err := fn(finalizer); err != nil {
		return CheckoutSnapshot{}, err
	}
	return finalizer.Snapshot(), nil
}

func (s *checkoutService) lookup(checkoutID string) (*SaleFinalizer, error) {
	if s == nil || s.checkouts == nil {
		return nil, ErrCheckoutUnavailable
	}
	id := strings.TrimSpace(checkoutID)
	if id == "" {
		return nil, ErrCheckoutInvalidInput
	}
	s.mu.RLock()
	finalizer, ok := s.checkouts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	return finalizer, nil
}

func (s *checkoutService) product(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCheckoutInvalidInput)
	}
	product, err := s.catalog.Product(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return domain.Product{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return product, nil
}
