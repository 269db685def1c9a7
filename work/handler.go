package work

import (
	"errors"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/model"
	"backoffice/realtime"
)

const table = "works"

var now = time.Now

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("work")
	}
	return err
}

// ListWorksHandler handles GET /api/works?status=&customer_id=&staff_id=
func ListWorksHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := model.WorkFilters{Status: r.URL.Query().Get("status")}
		if f.Status != "" && !model.WorkStatus(f.Status).Valid() {
			httpx.WriteError(w, r, apperr.Invalid("unknown work status: "+f.Status))
			return
		}
		var err error
		if f.CustomerID, err = httpx.QueryInt64(r, "customer_id"); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if f.StaffID, err = httpx.QueryInt64(r, "staff_id"); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		works, err := database.ListWorks(r.Context(), db, f)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, works)
	}
}

func GetWorkHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		wk, err := database.GetWork(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, wk)
	}
}

func decodeInput(r *http.Request, db *sqlx.DB) (*Input, error) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := in.checkReferences(r.Context(), db); err != nil {
		return nil, err
	}
	return &in, nil
}

func CreateWorkHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := decodeInput(r, db)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var wk model.Work
		in.apply(&wk, now())
		if err := database.CreateWork(r.Context(), db, &wk); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		// reload for customer_name
		created, err := database.GetWork(r.Context(), db, wk.ID)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionInsert, created.ID, created)
		httpx.WriteJSON(w, http.StatusCreated, created)
	}
}

func UpdateWorkHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		in, err := decodeInput(r, db)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		wk, err := database.GetWork(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		in.apply(wk, now())
		if err := database.UpdateWork(r.Context(), db, wk); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		updated, err := database.GetWork(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, id, updated)
		httpx.WriteJSON(w, http.StatusOK, updated)
	}
}

// DeleteWorkHandler refuses while invoices are linked to the work.
func DeleteWorkHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		n, err := database.CountInvoicesForWork(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if n > 0 {
			httpx.WriteError(w, r, apperr.Conflict("work is invoiced").WithDetails("invoices", n))
			return
		}
		if err := database.DeleteWork(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "work deleted")
	}
}
