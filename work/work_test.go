package work

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/dbtest"
	"backoffice/model"
	"backoffice/realtime"
)

func newRouter(db *sqlx.DB) *mux.Router {
	pub := realtime.Nop{}
	r := mux.NewRouter()
	r.HandleFunc("/api/works", ListWorksHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/works", CreateWorkHandler(db, pub)).Methods(http.MethodPost)
	r.HandleFunc("/api/works/{id}", GetWorkHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/works/{id}", UpdateWorkHandler(db, pub)).Methods(http.MethodPut)
	r.HandleFunc("/api/works/{id}", DeleteWorkHandler(db, pub)).Methods(http.MethodDelete)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func seed(t *testing.T, db *sqlx.DB) {
	t.Helper()
	dbtest.Exec(t, db, `INSERT INTO customers (code, name, currency, created_at, updated_at)
		VALUES ('CU00001', 'Acme', 'USD', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	dbtest.Exec(t, db, `INSERT INTO staff (name, status, created_at, updated_at)
		VALUES ('Sam', 'active', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
}

func TestApplyCompletedAt(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	var w model.Work

	in := Input{Title: "x", CustomerID: 1, Status: model.WorkCompleted}
	in.apply(&w, at)
	require.NotNil(t, w.CompletedAt)
	assert.Equal(t, at, *w.CompletedAt)

	in.apply(&w, at.Add(time.Hour))
	assert.Equal(t, at, *w.CompletedAt, "stays at the first completion")

	in.Status = model.WorkInProgress
	in.apply(&w, at)
	assert.Nil(t, w.CompletedAt)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]Input{
		"no title":      {CustomerID: 1},
		"no customer":   {Title: "x"},
		"bad status":    {Title: "x", CustomerID: 1, Status: "done"},
		"bad date":      {Title: "x", CustomerID: 1, StartDate: "03/04/2026"},
		"due too early": {Title: "x", CustomerID: 1, StartDate: "2026-03-04", DueDate: "2026-03-01"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, in.normalize())
		})
	}
}

func TestWorkCRUD(t *testing.T) {
	db := dbtest.Open(t)
	seed(t, db)
	h := newRouter(db)

	rec := do(t, h, http.MethodPost, "/api/works", map[string]any{"title": "Install", "customerId": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/works", map[string]any{"title": "Install", "customerId": 1, "staffId": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/works", map[string]any{
		"title": "Install", "customerId": 1, "staffId": 1, "startDate": "2026-03-01", "dueDate": "2026-03-10", "amount": "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wk model.Work
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wk))
	assert.Equal(t, "Acme", wk.CustomerName)
	assert.Equal(t, model.WorkPending, wk.Status)
	assert.Nil(t, wk.CompletedAt)

	rec = do(t, h, http.MethodPut, "/api/works/1", map[string]any{"title": "Install", "customerId": 1, "status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wk))
	assert.NotNil(t, wk.CompletedAt)
	assert.Nil(t, wk.StaffID)

	rec = do(t, h, http.MethodGet, "/api/works?status=completed&customer_id=1", nil)
	var list []model.Work
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/api/works?staff_id=1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	rec = do(t, h, http.MethodGet, "/api/works?customer_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	dbtest.Exec(t, db, `INSERT INTO invoices (number, customer_id, work_id, issue_date, due_date, currency, created_at, updated_at)
		VALUES ('INV-2026-00001', 1, 1, '2026-03-01', '2026-03-31', 'USD', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	rec = do(t, h, http.MethodDelete, "/api/works/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	dbtest.Exec(t, db, `DELETE FROM invoices`)
	rec = do(t, h, http.MethodDelete, "/api/works/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/works/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
