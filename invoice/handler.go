package invoice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/config"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/logging"
	"backoffice/model"
	"backoffice/money"
	"backoffice/realtime"
	"backoffice/render"
	"backoffice/validate"
)

const table = "invoices"

// Printer turns rendered HTML into a PDF document.
type Printer interface {
	Print(ctx context.Context, html []byte) ([]byte, error)
}

func parseFilters(r *http.Request) (model.InvoiceFilters, error) {
	q := r.URL.Query()
	f := model.InvoiceFilters{Status: q.Get("status"), From: q.Get("from"), To: q.Get("to")}
	if f.Status != "" && !model.InvoiceStatus(f.Status).Valid() {
		return f, apperr.Invalid("unknown invoice status: " + f.Status)
	}
	if err := validate.First(validate.Date("from", f.From), validate.Date("to", f.To)); err != nil {
		return f, err
	}
	var err error
	f.CustomerID, err = httpx.QueryInt64(r, "customer_id")
	return f, err
}

// ListInvoicesHandler handles GET /api/invoices?status=&customer_id=&from=&to=
func ListInvoicesHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilters(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		invoices, err := database.ListInvoices(r.Context(), db, f)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, invoices)
	}
}

func GetInvoiceHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, inv)
	}
}

func CreateInvoiceHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.Create(r.Context(), in)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Info("invoice created",
			zap.String("number", inv.Number), zap.String("total", inv.Total.StringFixed(2)))
		realtime.Changed(pub, table, model.ActionInsert, inv.ID, inv)
		httpx.WriteJSON(w, http.StatusCreated, inv)
	}
}

func UpdateInvoiceHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in Input
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.Update(r.Context(), id, in)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, inv.ID, inv)
		httpx.WriteJSON(w, http.StatusOK, inv)
	}
}

// UpdateInvoiceStatusHandler handles PUT /api/invoices/{id}/status with {"status": ...}.
func UpdateInvoiceStatusHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var body struct {
			Status model.InvoiceStatus `json:"status"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.SetStatus(r.Context(), id, body.Status)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, inv.ID, inv)
		httpx.WriteJSON(w, http.StatusOK, inv)
	}
}

// AddPaymentHandler handles POST /api/invoices/{id}/payments.
func AddPaymentHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in PaymentInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, p, err := s.AddPayment(r.Context(), id, in)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Info("payment recorded",
			zap.String("number", inv.Number),
			zap.String("amount", p.Amount.StringFixed(2)),
			zap.String("status", string(inv.Status)))
		realtime.Changed(pub, "invoice_payments", model.ActionInsert, p.ID, p)
		realtime.Changed(pub, table, model.ActionUpdate, inv.ID, inv)
		httpx.WriteJSON(w, http.StatusCreated, inv)
	}
}

// MarkOverdueHandler handles POST /api/invoices/mark-overdue[?asOf=YYYY-MM-DD].
func MarkOverdueHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asOf := s.now()
		if raw := r.URL.Query().Get("asOf"); raw != "" {
			t, err := time.Parse(validate.DateLayout, raw)
			if err != nil {
				httpx.WriteError(w, r, apperr.Invalid("asOf must be a date in YYYY-MM-DD format"))
				return
			}
			asOf = t
		}
		ids, err := s.MarkOverdue(r.Context(), asOf)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		for _, id := range ids {
			realtime.Changed(pub, table, model.ActionUpdate, id, nil)
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("%d invoice(s) marked overdue", len(ids)),
			"ids":     ids,
		})
	}
}

func DeleteInvoiceHandler(s *Service, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := s.Delete(r.Context(), id); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "invoice deleted")
	}
}

// InvoiceHTMLHandler handles GET /api/invoices/{id}/html.
func InvoiceHTMLHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		out, err := render.InvoiceHTML(inv, config.Get().Company)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(out)
	}
}

// InvoicePDFHandler handles GET /api/invoices/{id}/pdf. A nil printer means
// PDF output is disabled.
func InvoicePDFHandler(s *Service, printer Printer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if printer == nil {
			httpx.WriteError(w, r, apperr.New(http.StatusNotImplemented, "not_implemented", "pdf output is disabled"))
			return
		}
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		inv, err := s.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		page, err := render.InvoiceHTML(inv, config.Get().Company)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		pdf, err := printer.Print(r.Context(), page)
		if err != nil {
			httpx.WriteError(w, r, apperr.Internal("failed to print invoice", err))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, inv.Number))
		w.Write(pdf)
	}
}

// ExportInvoicesCSVHandler handles GET /api/invoices/export.csv with the list filters.
func ExportInvoicesCSVHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilters(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		invoices, err := database.ListInvoices(r.Context(), db, f)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		header := []string{"Number", "Customer", "Issue date", "Due date", "Status", "Currency", "Subtotal", "Tax", "Total", "Paid", "Balance due", "Paid date"}
		rows := make([][]string, 0, len(invoices))
		for _, inv := range invoices {
			paidDate := ""
			if inv.PaidDate != nil {
				paidDate = *inv.PaidDate
			}
			scale := money.Scale(inv.Currency)
			rows = append(rows, []string{
				inv.Number,
				inv.CustomerName,
				inv.IssueDate,
				inv.DueDate,
				string(inv.Status),
				inv.Currency,
				inv.Subtotal.StringFixed(scale),
				inv.TaxTotal.StringFixed(scale),
				inv.Total.StringFixed(scale),
				inv.AmountPaid.StringFixed(scale),
				inv.BalanceDue().StringFixed(scale),
				paidDate,
			})
		}

		filename := fmt.Sprintf("invoices_%s.csv", time.Now().Format("20060102"))
		if err := httpx.WriteCSV(w, filename, header, rows); err != nil {
			logging.FromContext(r.Context()).Warn("invoice export write failed", zap.Error(err))
		}
	}
}
