// Package render produces the printable HTML view of an invoice. The same
// markup is printed to PDF by the automation package.
package render

import (
	"bytes"
	"html/template"
	"io"

	"github.com/shopspring/decimal"

	"backoffice/config"
	"backoffice/model"
	"backoffice/money"
)

type invoiceView struct {
	Company config.Company
	Invoice *model.Invoice
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal, code string) string { return money.Format(d, code) },
	"qty":   func(d decimal.Decimal) string { return d.String() },
	"pct":   func(d decimal.Decimal) string { return d.String() + "%" },
}

var invoiceTmpl = template.Must(template.New("invoice").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Invoice {{.Invoice.Number}}</title>
<style>
  body { font-family: sans-serif; font-size: 12px; color: #222; margin: 32px; }
  h1 { font-size: 22px; margin: 0 0 4px; }
  .meta, .parties { display: flex; justify-content: space-between; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; }
  th, td { border-bottom: 1px solid #ddd; padding: 6px 4px; }
  th { text-align: left; background: #f4f4f4; }
  .right { text-align: right; }
  .totals td { border: none; }
  .status { text-transform: uppercase; font-weight: bold; }
</style>
</head>
<body>
<div class="meta">
  <div>
    <h1>Invoice {{.Invoice.Number}}</h1>
    <div class="status">{{.Invoice.Status}}</div>
  </div>
  <div class="right">
    <div>Issued: {{.Invoice.IssueDate}}</div>
    <div>Due: {{.Invoice.DueDate}}</div>
    {{with .Invoice.PaidDate}}<div>Paid: {{.}}</div>{{end}}
  </div>
</div>
<div class="parties">
  <div>
    <strong>{{.Company.Name}}</strong>
    {{with .Company.Address}}<div>{{.}}</div>{{end}}
    {{with .Company.Email}}<div>{{.}}</div>{{end}}
    {{with .Company.Phone}}<div>{{.}}</div>{{end}}
    {{with .Company.TaxID}}<div>Tax ID: {{.}}</div>{{end}}
  </div>
  <div class="right">
    <div>Bill to:</div>
    <strong>{{.Invoice.CustomerName}}</strong>
  </div>
</div>
<table>
  <thead>
    <tr><th>#</th><th>Description</th><th class="right">Qty</th><th class="right">Unit price</th><th class="right">Tax</th><th class="right">Amount</th></tr>
  </thead>
  <tbody>
  {{- $cur := .Invoice.Currency}}
  {{- range .Invoice.Items}}
    <tr>
      <td>{{.Position}}</td>
      <td>{{.Description}}</td>
      <td class="right">{{qty .Quantity}}</td>
      <td class="right">{{money .UnitPrice $cur}}</td>
      <td class="right">{{pct .TaxRate}}</td>
      <td class="right">{{money .LineTotal $cur}}</td>
    </tr>
  {{- else}}
    <tr><td colspan="6">No items.</td></tr>
  {{- end}}
  </tbody>
</table>
<table class="totals">
  <tr><td class="right">Subtotal</td><td class="right">{{money .Invoice.Subtotal $cur}}</td></tr>
  <tr><td class="right">Tax</td><td class="right">{{money .Invoice.TaxTotal $cur}}</td></tr>
  <tr><td class="right"><strong>Total</strong></td><td class="right"><strong>{{money .Invoice.Total $cur}}</strong></td></tr>
  <tr><td class="right">Paid</td><td class="right">{{money .Invoice.AmountPaid $cur}}</td></tr>
  <tr><td class="right"><strong>Balance due</strong></td><td class="right"><strong>{{money .Invoice.BalanceDue $cur}}</strong></td></tr>
</table>
{{with .Invoice.Notes}}<p>{{.}}</p>{{end}}
</body>
</html>
`))

// RenderInvoiceHTML writes the printable invoice page. All values are escaped.
func RenderInvoiceHTML(w io.Writer, inv *model.Invoice, company config.Company) error {
	return invoiceTmpl.Execute(w, invoiceView{Company: company, Invoice: inv})
}

// InvoiceHTML is RenderInvoiceHTML into a byte slice.
func InvoiceHTML(inv *model.Invoice, company config.Company) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderInvoiceHTML(&buf, inv, company); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
