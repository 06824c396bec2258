package handlers

import (
	"strings"
	"time"

	"github.com/erp-saas/pdv/internal/domain"
	"github.com/erp-saas/pdv/internal/format"
	"github.com/erp-saas/pdv/internal/services"
)

type moneyPayload struct {
	Amount  int64  `json:"amount"`
	Display string `json:"display"`
}

type productPayload struct {
	ID        string       `json:"id"`
	SKU       string       `json:"sku,omitempty"`
	Name      string       `json:"name"`
	UnitPrice moneyPayload `json:"unitPrice"`
}

type productsResponse struct {
	Items []productPayload `json:"items"`
}

type linePayload struct {
	ID        string       `json:"id"`
	ProductID string       `json:"productId"`
	SKU       string       `json:"sku,omitempty"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice moneyPayload `json:"unitPrice"`
	Total     moneyPayload `json:"total"`
}

type paymentPayload struct {
	Method         string        `json:"method,omitempty"`
	Label          string        `json:"label,omitempty"`
	AmountTendered *moneyPayload `json:"amountTendered,omitempty"`
	Change         *moneyPayload `json:"change,omitempty"`
}

type customerPayload struct {
	Name            string `json:"name"`
	Document        string `json:"document,omitempty"`
	DocumentDisplay string `json:"documentDisplay,omitempty"`
	DocumentKind    string `json:"documentKind,omitempty"`
	Phone           string `json:"phone,omitempty"`
	PhoneDisplay    string `json:"phoneDisplay,omitempty"`
}

type salePayload struct {
	ID                 string           `json:"id"`
	Lines              []linePayload    `json:"lines"`
	DiscountPercent    float64          `json:"discountPercent"`
	Subtotal           moneyPayload     `json:"subtotal"`
	Discount           moneyPayload     `json:"discount"`
	Total              moneyPayload     `json:"total"`
	Currency           string           `json:"currency"`
	Payment            paymentPayload   `json:"payment"`
	Customer           *customerPayload `json:"customer,omitempty"`
	Provider           string           `json:"provider,omitempty"`
	ProcessorReference string           `json:"processorReference,omitempty"`
	CompletedAt        string           `json:"completedAt"`
}

type checkoutPayload struct {
	ID              string           `json:"id"`
	State           string           `json:"state"`
	Lines           []linePayload    `json:"lines"`
	ItemCount       int              `json:"itemCount"`
	DiscountPercent float64          `json:"discountPercent"`
	DiscountLabel   string           `json:"discountLabel"`
	Subtotal        moneyPayload     `json:"subtotal"`
	Discount        moneyPayload     `json:"discount"`
	Total           moneyPayload     `json:"total"`
	Currency        string           `json:"currency"`
	Payment         paymentPayload   `json:"payment"`
	Customer        *customerPayload `json:"customer,omitempty"`
	Sale            *salePayload     `json:"sale,omitempty"`
	LastError       string           `json:"lastError,omitempty"`
	CreatedAt       string           `json:"createdAt"`
	UpdatedAt       string           `json:"updatedAt"`
}

type checkoutResponse struct {
	Checkout checkoutPayload `json:"checkout"`
}

type finalizeResponse struct {
	Accepted bool            `json:"accepted"`
	Checkout checkoutPayload `json:"checkout"`
}

func money(amount int64, currency string) moneyPayload {
	return moneyPayload{Amount: amount, Display: format.Currency(amount, currency)}
}

func buildProductPayloads(products []services.Product, currency string) []productPayload {
	items := make([]productPayload, 0, len(products))
	for _, p := range products {
		items = append(items, productPayload{
			ID:        p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			UnitPrice: money(p.UnitPrice, currency),
		})
	}
	return items
}

func buildLinePayloads(lines []services.CartLine, currency string) []linePayload {
	items := make([]linePayload, 0, len(lines))
	for _, line := range lines {
		items = append(items, linePayload{
			ID:        line.ID,
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: money(line.UnitPrice, currency),
			Total:     money(line.LineTotal(), currency),
		})
	}
	return items
}

func buildPaymentPayload(method domain.PaymentMethod, tendered *int64, change int64, currency string) paymentPayload {
	payload := paymentPayload{}
	if method == domain.PaymentMethodNone {
		return payload
	}
	payload.Method = string(method)
	payload.Label = method.Label()
	if method == domain.PaymentMethodCash && tendered != nil {
		t := money(*tendered, currency)
		c := money(change, currency)
		payload.AmountTendered = &t
		payload.Change = &c
	}
	return payload
}

func buildCustomerPayload(customer *services.Customer) *customerPayload {
	if customer == nil {
		return nil
	}
	payload := &customerPayload{
		Name:         customer.Name,
		Document:     customer.Document,
		DocumentKind: string(customer.DocumentKind),
		Phone:        customer.Phone,
	}
	if customer.Document != "" {
		payload.DocumentDisplay = format.Document(customer.DocumentKind, customer.Document)
	}
	if customer.Phone != "" {
		payload.PhoneDisplay = format.Phone(customer.Phone)
	}
	return payload
}

func buildSalePayload(sale services.Sale) salePayload {
	return salePayload{
		ID:                 sale.ID,
		Lines:              buildLinePayloads(sale.Lines, sale.Currency),
		DiscountPercent:    sale.DiscountPercent,
		Subtotal:           money(sale.Subtotal, sale.Currency),
		Discount:           money(sale.DiscountAmount, sale.Currency),
		Total:              money(sale.Total, sale.Currency),
		Currency:           sale.Currency,
		Payment:            buildPaymentPayload(sale.PaymentMethod, sale.AmountTendered, sale.Change, sale.Currency),
		Customer:           buildCustomerPayload(sale.Customer),
		Provider:           sale.Provider,
		ProcessorReference: sale.ProcessorReference,
		CompletedAt:        formatTime(sale.CompletedAt),
	}
}

func buildCheckoutPayload(snap services.CheckoutSnapshot, currency string) checkoutPayload {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	payload := checkoutPayload{
		ID:              snap.ID,
		State:           string(snap.State),
		Lines:           buildLinePayloads(snap.Cart.Lines, currency),
		ItemCount:       snap.Cart.ItemCount(),
		DiscountPercent: snap.Cart.DiscountPercent,
		DiscountLabel:   format.Percent(snap.Cart.DiscountPercent),
		Subtotal:        money(snap.Totals.Subtotal, currency),
		Discount:        money(snap.Totals.DiscountAmount, currency),
		Total:           money(snap.Totals.Total, currency),
		Currency:        currency,
		Payment:         buildPaymentPayload(snap.Payment.Method, snap.Payment.AmountTendered, snap.Change, currency),
		Customer:        buildCustomerPayload(snap.Customer),
		LastError:       snap.LastError,
		CreatedAt:       formatTime(snap.CreatedAt),
		UpdatedAt:       formatTime(snap.UpdatedAt),
	}
	if snap.Sale != nil {
		sale := buildSalePayload(*snap.Sale)
		payload.Sale = &sale
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
