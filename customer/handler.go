package customer

import (
	"context"
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

const table = "customers"

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("customer")
	}
	return err
}

func decodeInput(r *http.Request) (*Input, error) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return nil, err
	}
	if err := in.Normalize(config.Get().Company.Currency); err != nil {
		return nil, err
	}
	return &in, nil
}

func ensureUniqueName(ctx context.Context, q sqlx.ExtContext, name string, excludeID int64) error {
	exists, err := database.CustomerNameExists(ctx, q, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("a customer named " + name + " already exists")
	}
	return nil
}

// ListCustomersHandler handles GET /api/customers?q=
func ListCustomersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customers, err := database.ListCustomers(r.Context(), db, r.URL.Query().Get("q"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, customers)
	}
}

func GetCustomerHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		c, err := database.GetCustomer(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, c)
	}
}

// GetCustomerSummaryHandler handles GET /api/customers/{id}/summary.
func GetCustomerSummaryHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		s, err := database.GetCustomerSummary(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, s)
	}
}

func CreateCustomerHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := decodeInput(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		var c model.Customer
		in.Apply(&c)
		err = database.InTx(r.Context(), db, func(tx *sqlx.Tx) error {
			if err := ensureUniqueName(r.Context(), tx, c.Name, 0); err != nil {
				return err
			}
			return database.CreateCustomerInTx(r.Context(), tx, &c)
		})
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionInsert, c.ID, c)
		httpx.WriteJSON(w, http.StatusCreated, c)
	}
}

func UpdateCustomerHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		in, err := decodeInput(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		c, err := database.GetCustomer(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		if err := ensureUniqueName(r.Context(), db, in.Name, id); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		in.Apply(c)
		if err := database.UpdateCustomer(r.Context(), db, c); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, c.ID, c)
		httpx.WriteJSON(w, http.StatusOK, c)
	}
}

// DeleteCustomerHandler refuses while invoices or works still reference the customer.
func DeleteCustomerHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		err = database.InTx(r.Context(), db, func(tx *sqlx.Tx) error {
			invoices, works, err := database.CountCustomerReferences(r.Context(), tx, id)
			if err != nil {
				return err
			}
			if invoices > 0 || works > 0 {
				return apperr.Conflict("customer is still referenced").
					WithDetails("invoices", invoices).
					WithDetails("works", works)
			}
			return notFound(database.DeleteCustomerInTx(r.Context(), tx, id))
		})
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Info("customer deleted", zap.Int64("customer_id", id))
		realtime.Changed(pub, table, model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "customer deleted")
	}
}
