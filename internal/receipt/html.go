package receipt

import (
	"bytes"
	"html/template"

	"github.com/erp-saas/pdv/internal/domain"
)

type htmlView struct {
	Document
	FooterHTML template.HTML
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>Recibo {{.SaleID}}</title>
<style>
body{font-family:monospace;max-width:22rem;margin:0 auto}
header,footer{text-align:center}
table{width:100%;border-collapse:collapse}
td.total,dd{text-align:right}
dl{display:grid;grid-template-columns:auto 1fr;margin:0}
@media print{button{display:none}}
</style>
</head>
<body>
<article class="receipt" data-sale-id="{{.SaleID}}">
<header>
<h1 class="merchant">{{.MerchantName}}</h1>
{{- if .MerchantDocument}}
<p class="merchant-document">{{.MerchantDocument}}</p>
{{- end}}
</header>
<dl class="meta">
<dt>Pedido</dt><dd class="sale-id">{{.SaleID}}</dd>
<dt>Data</dt><dd class="date">{{.Date}}</dd>
{{- with .Customer}}
<dt>Cliente</dt><dd class="customer-name">{{.Name}}</dd>
{{- if .Document}}
<dt>{{.DocumentLabel}}</dt><dd class="customer-document">{{.Document}}</dd>
{{- end}}
{{- if .Phone}}
<dt>Telefone</dt><dd class="customer-phone">{{.Phone}}</dd>
{{- end}}
{{- end}}
<dt>Pagamento</dt><dd class="payment">{{.Payment}}</dd>
</dl>
<h2>ITENS</h2>
<table class="items">
<tbody>
{{- range .Lines}}
<tr class="item"><td class="name">{{.Name}}</td><td class="qty">{{.QuantityPrice}}</td><td class="total">{{.Total}}</td></tr>
{{- end}}
</tbody>
</table>
<dl class="totals">
<dt>Subtotal</dt><dd class="subtotal">{{.Subtotal}}</dd>
{{- with .Discount}}
<dt class="discount-label">{{.Label}}</dt><dd class="discount">{{.Amount}}</dd>
{{- end}}
<dt>TOTAL</dt><dd class="grand-total">{{.Total}}</dd>
{{- with .Cash}}
<dt>Valor recebido</dt><dd class="tendered">{{.Tendered}}</dd>
<dt>Troco</dt><dd class="change">{{.Change}}</dd>
{{- end}}
</dl>
<footer>
{{- if .FooterHTML}}
<div class="footer-note">{{.FooterHTML}}</div>
{{- end}}
{{- if .Website}}
<p class="website">{{.Website}}</p>
{{- end}}
</footer>
</article>
<button type="button" onclick="window.print()">Imprimir</button>
</body>
</html>
`

// HTML renders a printable HTML receipt.
func (r *Renderer) HTML(sale domain.Sale) (string, error) {
	view := htmlView{
		Document:   r.Build(sale),
		FooterHTML: r.footerHTML,
	}
	var buf bytes.Buffer
	if err := r.page.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
