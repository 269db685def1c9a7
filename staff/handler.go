// Package staff serves the staff directory.
package staff

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/model"
	"backoffice/realtime"
	"backoffice/validate"
)

const table = "staff"

type Input struct {
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Position   string            `json:"position"`
	Department string            `json:"department"`
	HireDate   string            `json:"hireDate"`
	Salary     decimal.Decimal   `json:"salary"`
	Status     model.StaffStatus `json:"status"`
	UserID     *int64            `json:"userId"`
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.HireDate = strings.TrimSpace(in.HireDate)
	if in.Status == "" {
		in.Status = model.StaffActive
	}
	if err := validate.First(
		validate.Required("name", in.Name),
		validate.Email("email", in.Email),
		validate.Date("hireDate", in.HireDate),
	); err != nil {
		return err
	}
	if !in.Status.Valid() {
		return apperr.Invalid("unknown staff status: " + string(in.Status))
	}
	if in.Salary.IsNegative() {
		return apperr.Invalid("salary must not be negative")
	}
	in.Salary = in.Salary.Round(2)
	return nil
}

func (in *Input) apply(s *model.Staff) {
	s.Name = in.Name
	s.Email = in.Email
	s.Phone = strings.TrimSpace(in.Phone)
	s.Position = strings.TrimSpace(in.Position)
	s.Department = strings.TrimSpace(in.Department)
	s.HireDate = in.HireDate
	s.Salary = in.Salary
	s.Status = in.Status
	s.UserID = in.UserID
}

func (in *Input) check(ctx context.Context, q sqlx.ExtContext, excludeID int64) error {
	if in.Email != "" {
		exists, err := database.StaffEmailExists(ctx, q, in.Email, excludeID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("a staff member with email " + in.Email + " already exists")
		}
	}
	if in.UserID != nil {
		if _, err := database.GetUserByID(ctx, q, *in.UserID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.Invalid("user does not exist")
			}
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("staff member")
	}
	return err
}

// ListStaffHandler handles GET /api/staff?status=
func ListStaffHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && !model.StaffStatus(status).Valid() {
			httpx.WriteError(w, r, apperr.Invalid("unknown staff status: "+status))
			return
		}
		staff, err := database.ListStaff(r.Context(), db, status)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, staff)
	}
}

func GetStaffHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		s, err := database.GetStaff(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, s)
	}
}

func CreateStaffHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
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
		var s model.Staff
		in.apply(&s)
		if err := database.CreateStaff(r.Context(), db, &s); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, table, model.ActionInsert, s.ID, s)
		httpx.WriteJSON(w, http.StatusCreated, s)
	}
}

func UpdateStaffHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
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
		if err := in.normalize(); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		s, err := database.GetStaff(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		if err := in.check(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		in.apply(s)
		if err := database.UpdateStaff(r.Context(), db, s); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionUpdate, s.ID, s)
		httpx.WriteJSON(w, http.StatusOK, s)
	}
}

// DeleteStaffHandler refuses while works are assigned; deactivate instead.
func DeleteStaffHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		n, err := database.CountWorksForStaff(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if n > 0 {
			httpx.WriteError(w, r, apperr.Conflict("staff member has assigned works, deactivate instead").WithDetails("works", n))
			return
		}
		if err := database.DeleteStaff(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, notFound(err))
			return
		}
		realtime.Changed(pub, table, model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "staff member deleted")
	}
}
