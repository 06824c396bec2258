// Package receipt renders completed sales as printable documents.
package receipt

import (
	"bytes"
	"errors"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/erp-saas/pdv/internal/domain"
	"github.com/erp-saas/pdv/internal/format"
)

const dateLayout = "02/01/2006 15:04:05"

// Config holds the merchant identity printed on every receipt.
type Config struct {
	MerchantName     string
	MerchantDocument string
	Website          string
	// FooterMarkdown is rendered below the totals. Raw HTML is stripped.
	FooterMarkdown string
	Location       *time.Location
	Currency       string
}

// Document is the render-ready model of one receipt. Every amount is already formatted.
type Document struct {
	MerchantName     string
	MerchantDocument string
	SaleID           string
	Date             string
	Customer         *CustomerBlock
	Payment          string
	Lines            []Line
	Subtotal         string
	Discount         *DiscountBlock
	Total            string
	Cash             *CashBlock
	Footer           string
	Website          string
}

// CustomerBlock is the optional buyer section.
type CustomerBlock struct {
	Name          string
	DocumentLabel string
	Document      string
	Phone         string
}

// Line is one itemised row.
type Line struct {
	Name          string
	QuantityPrice string
	Total         string
}

// DiscountBlock is only present when the sale had a discount.
type DiscountBlock struct {
	Label  string
	Amount string
}

// CashBlock shows tendered amount and change for cash sales.
type CashBlock struct {
	Tendered string
	Change   string
}

// Renderer builds receipts. It holds no mutable state, so rendering the same sale twice
// yields identical output.
type Renderer struct {
	cfg        Config
	footerHTML template.HTML
	footerText string
	page       *template.Template
}

// NewRenderer validates cfg and pre-renders the footer.
func NewRenderer(cfg Config) (*Renderer, error) {
	cfg.MerchantName = strings.TrimSpace(cfg.MerchantName)
	if cfg.MerchantName == "" {
		return nil, errors.New("receipt: merchant name is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}

	footerHTML, footerText, err := renderFooter(cfg.FooterMarkdown)
	if err != nil {
		return nil, err
	}
	page, err := template.New("receipt").Parse(htmlTemplate)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		cfg:        cfg,
		footerHTML: footerHTML,
		footerText: footerText,
		page:       page,
	}, nil
}

func renderFooter(markdown string) (template.HTML, string, error) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", "", err
	}
	sanitized := bluemonday.UGCPolicy().SanitizeBytes(buf.Bytes())
	text := strings.TrimSpace(html.UnescapeString(string(bluemonday.StrictPolicy().SanitizeBytes(sanitized))))
	return template.HTML(strings.TrimSpace(string(sanitized))), text, nil
}

// Build assembles the document for a completed sale.
func (r *Renderer) Build(sale domain.Sale) Document {
	currency := sale.Currency
	if currency == "" {
		currency = r.cfg.Currency
	}
	money := func(amount int64) string { return format.Currency(amount, currency) }

	doc := Document{
		MerchantName: r.cfg.MerchantName,
		SaleID:       sale.ID,
		Date:         sale.CompletedAt.In(r.cfg.Location).Format(dateLayout),
		Payment:      sale.PaymentMethod.Label(),
		Subtotal:     money(sale.Subtotal),
		Total:        money(sale.Total),
		Footer:       r.footerText,
		Website:      strings.TrimSpace(r.cfg.Website),
	}
	if document := format.Digits(r.cfg.MerchantDocument); document != "" {
		doc.MerchantDocument = "CNPJ: " + format.CNPJ(document)
	}

	if c := sale.Customer; c != nil {
		block := &CustomerBlock{Name: c.Name}
		if c.Document != "" {
			block.DocumentLabel = strings.ToUpper(string(c.DocumentKind))
			block.Document = format.Document(c.DocumentKind, c.Document)
		}
		if c.Phone != "" {
			block.Phone = format.Phone(c.Phone)
		}
		doc.Customer = block
	}

	doc.Lines = make([]Line, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		doc.Lines = append(doc.Lines, Line{
			Name:          line.Name,
			QuantityPrice: strconv.Itoa(line.Quantity) + "x " + money(line.UnitPrice),
			Total:         money(line.LineTotal()),
		})
	}

	if sale.DiscountPercent > 0 {
		doc.Discount = &DiscountBlock{
			Label:  "Desconto (" + format.Percent(sale.DiscountPercent) + ")",
			Amount: money(-sale.DiscountAmount),
		}
	}
	if sale.PaymentMethod == domain.PaymentMethodCash && sale.AmountTendered != nil {
		doc.Cash = &CashBlock{
			Tendered: money(*sale.AmountTendered),
			Change:   money(sale.Change),
		}
	}
	return doc
}
