package receipt

import (
	"strings"
	"unicode/utf8"

	"github.com/erp-saas/pdv/internal/domain"
)

// TextWidth is the column count of thermal printer receipts.
const TextWidth = 40

// Text renders a fixed-width plain text receipt.
func (r *Renderer) Text(sale domain.Sale) string {
	doc := r.Build(sale)
	separator := strings.Repeat("-", TextWidth)

	var b strings.Builder
	writeCentered(&b, doc.MerchantName)
	if doc.MerchantDocument != "" {
		writeCentered(&b, doc.MerchantDocument)
	}
	writeLine(&b, separator)

	writePair(&b, "Pedido:", doc.SaleID)
	writePair(&b, "Data:", doc.Date)
	if c := doc.Customer; c != nil {
		writePair(&b, "Cliente:", c.Name)
		if c.Document != "" {
			writePair(&b, c.DocumentLabel+":", c.Document)
		}
		if c.Phone != "" {
			writePair(&b, "Telefone:", c.Phone)
		}
	}
	writePair(&b, "Pagamento:", doc.Payment)
	writeLine(&b, separator)

	writeLine(&b, "ITENS")
	for _, line := range doc.Lines {
		writeLine(&b, truncateRunes(line.Name, TextWidth))
		writePair(&b, "  "+line.QuantityPrice, line.Total)
	}
	writeLine(&b, separator)

	writePair(&b, "Subtotal:", doc.Subtotal)
	if d := doc.Discount; d != nil {
		writePair(&b, d.Label+":", d.Amount)
	}
	writePair(&b, "TOTAL:", doc.Total)
	if cash := doc.Cash; cash != nil {
		writePair(&b, "Valor recebido:", cash.Tendered)
		writePair(&b, "Troco:", cash.Change)
	}
	writeLine(&b, separator)

	for _, line := range strings.Split(doc.Footer, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			writeCentered(&b, line)
		}
	}
	if doc.Website != "" {
		writeCentered(&b, doc.Website)
	}
	return b.String()
}

func writeLine(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func writeCentered(b *strings.Builder, s string) {
	width := utf8.RuneCountInString(s)
	if width < TextWidth {
		b.WriteString(strings.Repeat(" ", (TextWidth-width)/2))
	}
	writeLine(b, s)
}

// writePair left-aligns label and right-aligns value. A pair that does not fit wraps the
// value onto its own line.
func writePair(b *strings.Builder, label, value string) {
	labelWidth := utf8.RuneCountInString(label)
	valueWidth := utf8.RuneCountInString(value)
	if labelWidth+1+valueWidth > TextWidth {
		writeLine(b, label)
		if valueWidth < TextWidth {
			b.WriteString(strings.Repeat(" ", TextWidth-valueWidth))
		}
		writeLine(b, value)
		return
	}
	b.WriteString(label)
	b.WriteString(strings.Repeat(" ", TextWidth-labelWidth-valueWidth))
	writeLine(b, value)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
