// Package accounting is the double-entry bookkeeping core: the chart of
// accounts, balanced vouchers, account ledgers and the trial balance.
package accounting

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/model"
	"backoffice/realtime"
	"backoffice/validate"
)

// AccountView is an account with its derived normal balance side.
type AccountView struct {
	model.Account
	NormalBalance string `json:"normalBalance"`
}

func viewOf(a model.Account) AccountView {
	return AccountView{Account: a, NormalBalance: a.NormalBalance()}
}

type AccountInput struct {
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	Type        model.AccountType `json:"type"`
	ParentID    *int64            `json:"parentId"`
	Description string            `json:"description"`
}

func (in *AccountInput) normalize() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.First(
		validate.Required("code", in.Code),
		validate.Required("name", in.Name),
	); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return apperr.Invalid("unknown account type: " + string(in.Type))
	}
	return nil
}

// check enforces a unique code and a parent of the same type. id is 0 for
// new accounts.
func (in *AccountInput) check(ctx context.Context, q sqlx.ExtContext, id int64) error {
	existing, err := database.GetAccountByCode(ctx, q, in.Code)
	switch {
	case err == nil && existing.ID != id:
		return apperr.Conflict("account code " + in.Code + " is already used")
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return err
	}

	if in.ParentID == nil {
		return nil
	}
	if *in.ParentID == id {
		return apperr.Invalid("an account cannot be its own parent")
	}
	parent, err := database.GetAccount(ctx, q, *in.ParentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.Invalid("parent account does not exist")
		}
		return err
	}
	if parent.Type != in.Type {
		return apperr.Invalid("parent account must have the same type").
			WithDetails("parentType", parent.Type)
	}
	if id == 0 {
		return nil
	}
	// Walk up from the new parent; reaching id means the move closes a loop.
	seen := map[int64]bool{}
	for a := parent; a.ParentID != nil; {
		if *a.ParentID == id {
			return apperr.Invalid("an account cannot be moved under its own descendant")
		}
		if seen[*a.ParentID] {
			break
		}
		seen[*a.ParentID] = true
		if a, err = database.GetAccount(ctx, q, *a.ParentID); err != nil {
			return err
		}
	}
	return nil
}

func accountNotFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("account")
	}
	return err
}

// ListAccountsHandler handles GET /api/accounts?type=
func ListAccountsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := r.URL.Query().Get("type")
		if t != "" && !model.AccountType(t).Valid() {
			httpx.WriteError(w, r, apperr.Invalid("unknown account type: "+t))
			return
		}
		accounts, err := database.ListAccounts(r.Context(), db, t)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		views := make([]AccountView, len(accounts))
		for i, a := range accounts {
			views[i] = viewOf(a)
		}
		httpx.WriteJSON(w, http.StatusOK, views)
	}
}

func GetAccountHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		a, err := database.GetAccount(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, accountNotFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, viewOf(*a))
	}
}

func CreateAccountHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in AccountInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := in.normalize(); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := in.check(r.Context(), db, 0); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		a := model.Account{Code: in.Code, Name: in.Name, Type: in.Type, ParentID: in.ParentID, Description: in.Description}
		if err := database.CreateAccount(r.Context(), db, &a); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, "accounts", model.ActionInsert, a.ID, viewOf(a))
		httpx.WriteJSON(w, http.StatusCreated, viewOf(a))
	}
}

// UpdateAccountHandler refuses a type change while child accounts exist,
// since children must share their parent's type.
func UpdateAccountHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in AccountInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := in.normalize(); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		a, err := database.GetAccount(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, accountNotFound(err))
			return
		}
		if err := in.check(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if in.Type != a.Type {
			_, children, err := database.CountAccountReferences(r.Context(), db, id)
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}
			if children > 0 {
				httpx.WriteError(w, r, apperr.Conflict("cannot change the type of an account with child accounts"))
				return
			}
		}

		a.Code, a.Name, a.Type, a.ParentID, a.Description = in.Code, in.Name, in.Type, in.ParentID, in.Description
		if err := database.UpdateAccount(r.Context(), db, a); err != nil {
			httpx.WriteError(w, r, accountNotFound(err))
			return
		}
		realtime.Changed(pub, "accounts", model.ActionUpdate, a.ID, viewOf(*a))
		httpx.WriteJSON(w, http.StatusOK, viewOf(*a))
	}
}

// DeleteAccountHandler refuses while voucher entries or child accounts reference the account.
func DeleteAccountHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		entries, children, err := database.CountAccountReferences(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if entries > 0 || children > 0 {
			httpx.WriteError(w, r, apperr.Conflict("account is still referenced").
				WithDetails("entries", entries).
				WithDetails("children", children))
			return
		}
		if err := database.DeleteAccount(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, accountNotFound(err))
			return
		}
		realtime.Changed(pub, "accounts", model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "account deleted")
	}
}
