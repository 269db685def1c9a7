package lead

import (
	"errors"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/config"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/logging"
	"backoffice/model"
	"backoffice/realtime"
)

const table = "leads"

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("lead")
	}
	return err
}

// ListLeadsHandler handles GET /api/leads?status=&source=&q=
func ListLeadsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := model.LeadFilters{Status: q.Get("status"), Source: q.Get("source"), Query: q.Get("q")}
		if f.Status != "" && !model.LeadStatus(f.Status).Valid() {
			httpx.WriteError(w, r, apperr.Invalid("unknown lead status: "+f.Status))
			return
		}
		leads, err := database.ListLeads(r.Context(), db, f)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, leads)
	}
}

func GetLeadHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		l, err := database.GetLead(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, l)
	}
}

func CreateLeadHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := in.Normalize(); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := ownerExists(r.Context(), db, in.OwnerID); err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		var l model.Lead
		in.Apply(&l)
		if err := database.CreateLead(r.Context(), db, &l); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionInsert, l.ID, l)
		httpx.WriteJSON(w, http.StatusCreated, l)
	}
}

func UpdateLeadHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
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
		if err := in.Normalize(); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := ownerExists(r.Context(), db, in.OwnerID); err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		l, err := database.GetLead(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		if l.CustomerID != nil && in.Status != model.LeadWon {
			httpx.WriteError(w, r, apperr.Conflict("a converted lead must stay won"))
			return
		}
		in.Apply(l)
		if err := database.UpdateLead(r.Context(), db, l); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, l.ID, l)
		httpx.WriteJSON(w, http.StatusOK, l)
	}
}

func DeleteLeadHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := database.DeleteLead(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "lead deleted")
	}
}

// ConvertLeadHandler handles POST /api/leads/{id}/convert.
func ConvertLeadHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		conv, err := Convert(r.Context(), db, id, config.Get().Company.Currency)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Info("lead converted",
			zap.Int64("lead_id", id), zap.Int64("customer_id", conv.Customer.ID))
		realtime.Changed(pub, "customers", model.ActionInsert, conv.Customer.ID, conv.Customer)
		realtime.Changed(pub, table, model.ActionUpdate, id, conv.Lead)
		httpx.WriteJSON(w, http.StatusOK, conv)
	}
}
