package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp-saas/pdv/internal/catalog"
	"github.com/erp-saas/pdv/internal/domain"
	"github.com/erp-saas/pdv/internal/payments"
)

type stubReceipts struct {
	htmlErr error
}

func (s stubReceipts) Text(sale domain.Sale) string {
	return "RECIBO " + sale.ID
}

func (s stubReceipts) HTML(sale domain.Sale) (string, error) {
	if s.htmlErr != nil {
		return "", s.htmlErr
	}
	return "<p>" + sale.ID + "</p>", nil
}

type failingCatalog struct{}

func (failingCatalog) Product(context.Context, string) (domain.Product, error) {
	return domain.Product{}, errors.New("catalog offline")
}

func (failingCatalog) Popular(context.Context) ([]domain.Product, error) {
	return nil, errors.New("catalog offline")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type serviceFixture struct {
	svc       CheckoutService
	processor *stubProcessor
	clock     *fakeClock
	events    *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func newServiceFixture(t *testing.T, receipts ReceiptRenderer) serviceFixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if receipts == nil {
		receipts = stubReceipts{}
	}
	var mu sync.Mutex
	seq := 0
	fx := serviceFixture{
		processor: &stubProcessor{},
		clock:     &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		events:    &eventLog{},
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:   cat,
		Processor: fx.processor,
		Receipts:  receipts,
		Currency:  "BRL",
		Retention: time.Hour,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("chk_%d", seq)
		},
		Clock:  fx.clock.Now,
		Logger: fx.events.record,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	fx.svc = svc
	return fx
}

func TestNewCheckoutServiceRequiresDeps(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	cases := map[string]CheckoutServiceDeps{
		"catalog":   {Processor: &stubProcessor{}, Receipts: stubReceipts{}},
		"processor": {Catalog: cat, Receipts: stubReceipts{}},
		"receipts":  {Catalog: cat, Processor: &stubProcessor{}},
	}
	for name, deps := range cases {
		if _, err := NewCheckoutService(deps); err == nil {
			t.Fatalf("expected error without %s", name)
		}
	}
}

func TestOpenSeedsDemoCart(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if snap.ID != "chk_1" || snap.State != StateReviewing {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Cart.Lines) != 2 || snap.Cart.ItemCount() != 3 {
		t.Fatalf("expected demo cart with 3 items, got %+v", snap.Cart.Lines)
	}
	if snap.Cart.Lines[0].ProductID != "iphone-14-pro-256" || snap.Cart.Lines[1].Quantity != 2 {
		t.Fatalf("unexpected demo lines %+v", snap.Cart.Lines)
	}
	if !fx.events.has("checkout.opened") {
		t.Fatalf("expected checkout.opened event")
	}

	empty, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if empty.ID == snap.ID || !empty.Cart.Empty() {
		t.Fatalf("expected an independent empty checkout, got %+v", empty)
	}
}

func TestCheckoutFlowToReceipt(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := snap.ID

	if _, err := fx.svc.AddProduct(ctx, AddProductCommand{CheckoutID: id, ProductID: "iphone-14-pro-256"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := fx.svc.AddProduct(ctx, AddProductCommand{CheckoutID: id, ProductID: "capinha-iphone-14-pro", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := fx.svc.IncrementLine(ctx, id, "capinha-iphone-14-pro"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	snap, err = fx.svc.SetDiscount(ctx, id, 10)
	if err != nil {
		t.Fatalf("discount: %v", err)
	}
	if snap.Totals.Total != 465930 {
		t.Fatalf("unexpected total %d", snap.Totals.Total)
	}

	if _, err := fx.svc.Receipt(ctx, id, ReceiptFormatText); !errors.Is(err, ErrCheckoutNotCompleted) {
		t.Fatalf("expected ErrCheckoutNotCompleted, got %v", err)
	}

	if _, err := fx.svc.SelectPayment(ctx, SelectPaymentCommand{CheckoutID: id, Method: "dinheiro", AmountTendered: amount(400000)}); err != nil {
		t.Fatalf("select payment: %v", err)
	}
	if _, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: id, Wait: true}); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}

	snap, err = fx.svc.SelectPayment(ctx, SelectPaymentCommand{CheckoutID: id, Method: "cash", AmountTendered: amount(500000)})
	if err != nil {
		t.Fatalf("select payment: %v", err)
	}
	if snap.Change != 34070 {
		t.Fatalf("expected change 34070, got %d", snap.Change)
	}
	if _, err := fx.svc.SetCustomer(ctx, SetCustomerCommand{CheckoutID: id, Name: "João Silva", Document: "12345678901"}); err != nil {
		t.Fatalf("customer: %v", err)
	}

	outcome, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: id, Wait: true})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !outcome.Accepted || outcome.Checkout.State != StateCompleted || outcome.Checkout.Sale == nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	sale := outcome.Checkout.Sale
	if !strings.HasPrefix(sale.ID, domain.SaleIDPrefix) || sale.Change != 34070 {
		t.Fatalf("unexpected sale %+v", sale)
	}

	again, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: id, Wait: true})
	if err != nil || again.Accepted || again.Checkout.Sale.ID != sale.ID {
		t.Fatalf("expected repeated finalize to return the same sale, got %+v err=%v", again, err)
	}

	text, err := fx.svc.Receipt(ctx, id, "")
	if err != nil {
		t.Fatalf("text receipt: %v", err)
	}
	if text.ContentType != "text/plain; charset=utf-8" || text.Body != "RECIBO "+sale.ID || text.SaleID != sale.ID {
		t.Fatalf("unexpected text receipt %+v", text)
	}
	html, err := fx.svc.Receipt(ctx, id, "HTML")
	if err != nil {
		t.Fatalf("html receipt: %v", err)
	}
	if html.ContentType != "text/html; charset=utf-8" || !strings.Contains(html.Body, sale.ID) {
		t.Fatalf("unexpected html receipt %+v", html)
	}
	if _, err := fx.svc.Receipt(ctx, id, "pdf"); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}

	if _, err := fx.svc.AddProduct(ctx, AddProductCommand{CheckoutID: id, ProductID: "iphone-14-pro-256"}); !errors.Is(err, ErrCheckoutClosed) {
		t.Fatalf("expected ErrCheckoutClosed, got %v", err)
	}
}

func TestFinalizeWaitReportsPaymentFailure(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()
	fx.processor.process = func(context.Context, payments.ProcessRequest) (payments.ProcessResult, error) {
		return payments.ProcessResult{}, payments.ErrProcessorUnavailable
	}

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.svc.SelectPayment(ctx, SelectPaymentCommand{CheckoutID: snap.ID, Method: "pix"}); err != nil {
		t.Fatalf("select payment: %v", err)
	}
	outcome, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: snap.ID, Wait: true})
	if !errors.Is(err, ErrCheckoutPaymentFailed) || !errors.Is(err, payments.ErrProcessorUnavailable) {
		t.Fatalf("expected wrapped payment failure, got %v", err)
	}
	if outcome.Checkout.State != StateReviewing || len(outcome.Checkout.Cart.Lines) != 2 {
		t.Fatalf("expected cart kept in reviewing, got %+v", outcome.Checkout)
	}
}

func TestFinalizeWithoutWaitReturnsProcessing(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()
	fx.processor.release = make(chan struct{})

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.svc.SelectPayment(ctx, SelectPaymentCommand{CheckoutID: snap.ID, Method: "credit_card"}); err != nil {
		t.Fatalf("select payment: %v", err)
	}
	outcome, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: snap.ID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !outcome.Accepted || outcome.Checkout.State != StateProcessing {
		t.Fatalf("expected processing, got %+v", outcome)
	}
	if err := fx.svc.Discard(ctx, snap.ID); !errors.Is(err, ErrCheckoutBusy) {
		t.Fatalf("expected ErrCheckoutBusy, got %v", err)
	}
	if removed := fx.svc.Prune(ctx, fx.clock.Now().Add(48*time.Hour)); removed != 0 {
		t.Fatalf("processing checkouts must survive pruning, removed %d", removed)
	}

	close(fx.processor.release)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done, err := fx.svc.Finalize(waitCtx, FinalizeCommand{CheckoutID: snap.ID, Wait: true})
	if err != nil {
		t.Fatalf("finalize wait: %v", err)
	}
	if done.Checkout.State != StateCompleted {
		t.Fatalf("expected completed, got %s", done.Checkout.State)
	}
}

func TestCheckoutLookupErrors(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.svc.Get(ctx, "missing"); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound, got %v", err)
	}
	if _, err := fx.svc.Get(ctx, " "); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.svc.AddProduct(ctx, AddProductCommand{CheckoutID: snap.ID, ProductID: "nope"}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if _, err := fx.svc.AddProduct(ctx, AddProductCommand{CheckoutID: snap.ID, ProductID: "iphone-14-pro-256", Quantity: -1}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
	if _, err := fx.svc.RemoveLine(ctx, snap.ID, "iphone-14-pro-256"); !errors.Is(err, ErrCartLineNotFound) {
		t.Fatalf("expected ErrCartLineNotFound, got %v", err)
	}
	if _, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: snap.ID, Wait: true}); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestCatalogFailureIsUnavailable(t *testing.T) {
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:   failingCatalog{},
		Processor: &stubProcessor{},
		Receipts:  stubReceipts{},
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true}); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
	if _, err := svc.PopularProducts(ctx); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
}

func TestHTMLRenderFailure(t *testing.T) {
	fx := newServiceFixture(t, stubReceipts{htmlErr: errors.New("template broke")})
	ctx := context.Background()
	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.svc.SelectPayment(ctx, SelectPaymentCommand{CheckoutID: snap.ID, Method: "pix"}); err != nil {
		t.Fatalf("select payment: %v", err)
	}
	if _, err := fx.svc.Finalize(ctx, FinalizeCommand{CheckoutID: snap.ID, Wait: true}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := fx.svc.Receipt(ctx, snap.ID, ReceiptFormatHTML); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
}

func TestDiscardAndPrune(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	first, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stale, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := fx.svc.Discard(ctx, first.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := fx.svc.Get(ctx, first.ID); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected discarded checkout to be gone, got %v", err)
	}
	if !fx.events.has("checkout.discarded") {
		t.Fatalf("expected checkout.discarded event")
	}

	fx.clock.Advance(90 * time.Minute)
	fresh, err := fx.svc.Open(ctx, OpenCheckoutCommand{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if removed := fx.svc.Prune(ctx, fx.clock.Now()); removed != 1 {
		t.Fatalf("expected one pruned checkout, got %d", removed)
	}
	if _, err := fx.svc.Get(ctx, stale.ID); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected stale checkout pruned, got %v", err)
	}
	if _, err := fx.svc.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("expected fresh checkout kept, got %v", err)
	}
	if !fx.events.has("checkout.pruned") {
		t.Fatalf("expected checkout.pruned event")
	}
}

func TestDiscardRetiresHeldFinalizer(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	snap, err := fx.svc.Open(ctx, OpenCheckoutCommand{SeedDemoCart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	finalizer, err := fx.svc.(*checkoutService).lookup(snap.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if err := fx.svc.Discard(ctx, snap.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := finalizer.Finalize(ctx); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected finalize on a discarded checkout to fail, got %v", err)
	}
	if err := finalizer.Clear(); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected mutation on a discarded checkout to fail, got %v", err)
	}
	if fx.processor.calls.Load() != 0 {
		t.Fatalf("expected no payment for a discarded checkout")
	}
}

func TestPopularProducts(t *testing.T) {
	fx := newServiceFixture(t, nil)
	products, err := fx.svc.PopularProducts(context.Background())
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if len(products) != 6 {
		t.Fatalf("expected 6 popular products, got %d", len(products))
	}
	for _, p := range products {
		if p.ID == "capinha-iphone-14-pro" {
			t.Fatalf("capinha should not be listed as popular")
		}
	}
}
