// Package dashboard serves the aggregate counts shown on the home screen and
// by the stats command.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"backoffice/database"
	"backoffice/httpx"
	"backoffice/model"
)

var now = time.Now

// Stats computes the dashboard aggregates as of today.
func Stats(ctx context.Context, q sqlx.ExtContext) (*model.DashboardStats, error) {
	return database.GetDashboardStats(ctx, q, now())
}

// DashboardHandler handles GET /api/dashboard.
func DashboardHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := Stats(r.Context(), db)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, s)
	}
}
