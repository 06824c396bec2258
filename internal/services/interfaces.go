package services

import (
	"context"
	"time"

	"github.com/erp-saas/pdv/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product          = domain.Product
	Cart             = domain.Cart
	CartLine         = domain.CartLine
	CartTotals       = domain.CartTotals
	PaymentMethod    = domain.PaymentMethod
	PaymentSelection = domain.PaymentSelection
	Customer         = domain.Customer
	Sale             = domain.Sale
)

// CheckoutService manages the open checkouts of a register. Each checkout is an independent
// SaleFinalizer; nothing is shared between them.
type CheckoutService interface {
	Open(ctx context.Context, cmd OpenCheckoutCommand) (CheckoutSnapshot, error)
	Get(ctx context.Context, checkoutID string) (CheckoutSnapshot, error)
	AddProduct(ctx context.Context, cmd AddProductCommand) (CheckoutSnapshot, error)
	IncrementLine(ctx context.Context, checkoutID, lineID string) (CheckoutSnapshot, error)
	DecrementLine(ctx context.Context, checkoutID, lineID string) (CheckoutSnapshot, error)
	RemoveLine(ctx context.Context, checkoutID, lineID string) (CheckoutSnapshot, error)
	ClearCart(ctx context.Context, checkoutID string) (CheckoutSnapshot, error)
	SetDiscount(ctx context.Context, checkoutID string, percent float64) (CheckoutSnapshot, error)
	SelectPayment(ctx context.Context, cmd SelectPaymentCommand) (CheckoutSnapshot, error)
	SetCustomer(ctx context.Context, cmd SetCustomerCommand) (CheckoutSnapshot, error)
	ClearCustomer(ctx context.Context, checkoutID string) (CheckoutSnapshot, error)
	Finalize(ctx context.Context, cmd FinalizeCommand) (FinalizeOutcome, error)
	Receipt(ctx context.Context, checkoutID string, format ReceiptFormat) (Receipt, error)
	Discard(ctx context.Context, checkoutID string) error
	PopularProducts(ctx context.Context) ([]Product, error)
	Prune(ctx context.Context, now time.Time) int
}

// ProductCatalog resolves products by id. catalog.Catalog implements it.
type ProductCatalog interface {
	Product(ctx context.Context, id string) (domain.Product, error)
	Popular(ctx context.Context) ([]domain.Product, error)
}

// ReceiptRenderer produces printable receipts from a completed sale.
type ReceiptRenderer interface {
	Text(sale domain.Sale) string
	HTML(sale domain.Sale) (string, error)
}

// OpenCheckoutCommand starts a new checkout.
type OpenCheckoutCommand struct {
	SeedDemoCart bool
}

// AddProductCommand adds a catalog product to a checkout.
type AddProductCommand struct {
	CheckoutID string
	ProductID  string
	Quantity   int
}

// SelectPaymentCommand records the payment method and, for cash, the amount tendered.
type SelectPaymentCommand struct {
	CheckoutID     string
	Method         string
	AmountTendered *int64
}

// SetCustomerCommand attaches a customer to a checkout.
type SetCustomerCommand struct {
	CheckoutID   string
	Name         string
	Document     string
	DocumentKind string
	Phone        string
}

// FinalizeCommand requests finalization. Wait blocks until processing settles.
type FinalizeCommand struct {
	CheckoutID string
	Wait       bool
}

// FinalizeOutcome pairs the finalize result with the checkout state after the call.
type FinalizeOutcome struct {
	Accepted bool
	Checkout CheckoutSnapshot
}

// ReceiptFormat selects the receipt rendering.
type ReceiptFormat string

const (
	ReceiptFormatText ReceiptFormat = "text"
	ReceiptFormatHTML ReceiptFormat = "html"
)

// Receipt is a rendered receipt document.
type Receipt struct {
	SaleID      string
	ContentType string
	Body        string
}
