package domain

import (
	"math"
	"strings"
	"time"
)

// SaleIDPrefix prefixes every sale identifier shown on receipts.
const SaleIDPrefix = "VEN-"

// Product is a catalog entry that can be added to a cart.
type Product struct {
	ID        string
	SKU       string
	Name      string
	UnitPrice int64
	Popular   bool
}

// CartLine stores one product line of an active sale. ID equals the product id.
type CartLine struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	UnitPrice int64
	Quantity  int
}

// LineTotal is always derived from UnitPrice and Quantity. It saturates at math.MaxInt64.
func (l CartLine) LineTotal() int64 {
	if l.Quantity <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	quantity := int64(l.Quantity)
	if l.UnitPrice > math.MaxInt64/quantity {
		return math.MaxInt64
	}
	return l.UnitPrice * quantity
}

// Cart is an ordered sequence of lines plus a discount applied to the subtotal.
type Cart struct {
	Lines           []CartLine
	DiscountPercent float64
}

// Clone returns a deep copy so callers never alias the line slice.
func (c Cart) Clone() Cart {
	out := Cart{DiscountPercent: c.DiscountPercent}
	if len(c.Lines) > 0 {
		out.Lines = append([]CartLine(nil), c.Lines...)
	}
	return out
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// ItemCount sums the quantities of every line.
func (c Cart) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}
	return count
}

// CartTotals holds the derived amounts of a cart in minor units.
type CartTotals struct {
	Subtotal       int64
	DiscountAmount int64
	Total          int64
}

// PaymentMethod enumerates the settlement methods accepted at the register.
type PaymentMethod string

const (
	// PaymentMethodNone means no method has been selected yet.
	PaymentMethodNone       PaymentMethod = ""
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodCreditCard PaymentMethod = "credit-card"
	PaymentMethodDebitCard  PaymentMethod = "debit-card"
	PaymentMethodPix        PaymentMethod = "pix"
)

// PaymentMethods lists the supported methods in display order.
var PaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCreditCard,
	PaymentMethodDebitCard,
	PaymentMethodPix,
}

// ParsePaymentMethod normalises user input. Unknown values are returned as-is so validation
// can reject them explicitly.
func ParsePaymentMethod(value string) PaymentMethod {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "credit", "credito", "crédito":
		return PaymentMethodCreditCard
	case "debit", "debito", "débito":
		return PaymentMethodDebitCard
	case "dinheiro":
		return PaymentMethodCash
	}
	return PaymentMethod(normalized)
}

// Valid reports whether the method belongs to the supported set.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPix:
		return true
	default:
		return false
	}
}

// Label returns the pt-BR label printed on receipts.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentMethodCash:
		return "Dinheiro"
	case PaymentMethodCreditCard:
		return "Cartão de Crédito"
	case PaymentMethodDebitCard:
		return "Cartão de Débito"
	case PaymentMethodPix:
		return "Pix"
	default:
		return string(m)
	}
}

// PaymentSelection is the chosen settlement method. AmountTendered only matters for cash.
type PaymentSelection struct {
	Method         PaymentMethod
	AmountTendered *int64
}

// Clone copies the tendered amount pointer target.
func (p PaymentSelection) Clone() PaymentSelection {
	out := PaymentSelection{Method: p.Method}
	if p.AmountTendered != nil {
		amount := *p.AmountTendered
		out.AmountTendered = &amount
	}
	return out
}

// DocumentKind distinguishes individual (CPF) from company (CNPJ) documents.
type DocumentKind string

const (
	DocumentKindCPF  DocumentKind = "cpf"
	DocumentKindCNPJ DocumentKind = "cnpj"
)

// Customer is the optional buyer attached to a sale. Document and Phone hold digits only.
type Customer struct {
	Name         string
	Document     string
	DocumentKind DocumentKind
	Phone        string
}

// Sale is the immutable record produced when checkout completes.
type Sale struct {
	ID                 string
	CheckoutID         string
	Lines              []CartLine
	DiscountPercent    float64
	Subtotal           int64
	DiscountAmount     int64
	Total              int64
	Currency           string
	PaymentMethod      PaymentMethod
	AmountTendered     *int64
	Change             int64
	Customer           *Customer
	Provider           string
	ProcessorReference string
	CompletedAt        time.Time
}

// Clone deep-copies the lines, tendered amount and customer.
func (s Sale) Clone() Sale {
	out := s
	out.Lines = append([]CartLine(nil), s.Lines...)
	if s.AmountTendered != nil {
		amount := *s.AmountTendered
		out.AmountTendered = &amount
	}
	if s.Customer != nil {
		customer := *s.Customer
		out.Customer = &customer
	}
	return out
}
