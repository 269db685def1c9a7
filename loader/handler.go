package loader

import (
	"context"
	"io"
	"net/http"

	"github.com/jmoiron/sqlx"

	"backoffice/apperr"
	"backoffice/config"
	"backoffice/httpx"
	"backoffice/realtime"
)

const maxUploadBytes = 32 << 20

type importFunc func(ctx context.Context, r io.Reader, encoding string) (*ImportResult, error)

// uploadHandler reads the multipart "file" field (and an optional
// "encoding" field), runs fn and publishes one event per imported row.
func uploadHandler(table string, pub realtime.Publisher, fn importFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httpx.WriteError(w, r, apperr.Invalid("expected a multipart upload"))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.WriteError(w, r, apperr.Invalid("file is required"))
			return
		}
		defer file.Close()

		res, err := fn(r.Context(), file, r.FormValue("encoding"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		for _, c := range res.changes {
			realtime.Changed(pub, table, c.action, c.id, nil)
		}
		httpx.WriteJSON(w, http.StatusOK, res)
	}
}

// ImportCustomersHandler handles POST /api/customers/import.
func ImportCustomersHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return uploadHandler("customers", pub, func(ctx context.Context, r io.Reader, encoding string) (*ImportResult, error) {
		return ImportCustomers(ctx, db, r, encoding, config.Get().Company.Currency)
	})
}

// ImportLeadsHandler handles POST /api/leads/import.
func ImportLeadsHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return uploadHandler("leads", pub, func(ctx context.Context, r io.Reader, encoding string) (*ImportResult, error) {
		return ImportLeads(ctx, db, r, encoding)
	})
}
