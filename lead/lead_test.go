package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/dbtest"
	"backoffice/model"
)

type recorder struct {
	events []model.ChangeEvent
}

func (r *recorder) Publish(ev model.ChangeEvent) { r.events = append(r.events, ev) }

func newRouter(db *sqlx.DB, pub *recorder) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/leads", ListLeadsHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/leads", CreateLeadHandler(db, pub)).Methods(http.MethodPost)
	r.HandleFunc("/api/leads/{id}", GetLeadHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id}", UpdateLeadHandler(db, pub)).Methods(http.MethodPut)
	r.HandleFunc("/api/leads/{id}", DeleteLeadHandler(db, pub)).Methods(http.MethodDelete)
	r.HandleFunc("/api/leads/{id}/convert", ConvertLeadHandler(db, pub)).Methods(http.MethodPost)
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

func TestNormalize(t *testing.T) {
	in := Input{Name: "  Ada  ", Email: " ADA@Example.com ", EstimatedValue: decimal.RequireFromString("10.005")}
	require.NoError(t, in.Normalize())
	assert.Equal(t, "Ada", in.Name)
	assert.Equal(t, "ada@example.com", in.Email)
	assert.Equal(t, model.LeadNew, in.Status)
	assert.Equal(t, "10.01", in.EstimatedValue.StringFixed(2))

	cases := map[string]Input{
		"missing name":   {Name: " "},
		"bad email":      {Name: "A", Email: "nope"},
		"bad status":     {Name: "A", Status: "maybe"},
		"negative value": {Name: "A", EstimatedValue: decimal.NewFromInt(-1)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			err := in.Normalize()
			e, ok := apperr.As(err)
			require.True(t, ok, "%v", err)
			assert.Equal(t, "invalid", e.Code)
		})
	}
}

func TestLeadCRUD(t *testing.T) {
	db := dbtest.Open(t)
	pub := &recorder{}
	h := newRouter(db, pub)

	rec := do(t, h, http.MethodPost, "/api/leads", map[string]any{
		"name": "Grace", "company": "Navy", "email": "grace@navy.mil", "source": "Referral", "estimatedValue": "1200.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created model.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.LeadNew, created.Status)

	rec = do(t, h, http.MethodPost, "/api/leads", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/leads?source=referral", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/api/leads?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/leads/1", map[string]any{"name": "Grace H", "status": "qualified"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.LeadQualified, updated.Status)
	assert.Equal(t, "Grace H", updated.Name)

	rec = do(t, h, http.MethodPut, "/api/leads/99", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/leads/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/leads/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Len(t, pub.events, 3)
	assert.Equal(t, model.ActionInsert, pub.events[0].Action)
	assert.Equal(t, model.ActionUpdate, pub.events[1].Action)
	assert.Equal(t, model.ActionDelete, pub.events[2].Action)
	assert.Equal(t, "leads", pub.events[2].Table)
}

func TestConvertLead(t *testing.T) {
	db := dbtest.Open(t)
	pub := &recorder{}
	h := newRouter(db, pub)
	ctx := context.Background()

	l := &model.Lead{Name: "Linus", Company: "Kernel Co", Email: "linus@example.com", Status: model.LeadProposal}
	require.NoError(t, database.CreateLead(ctx, db, l))

	rec := do(t, h, http.MethodPost, "/api/leads/1/convert", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conv Conversion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, model.LeadWon, conv.Lead.Status)
	require.NotNil(t, conv.Lead.CustomerID)
	assert.Equal(t, conv.Customer.ID, *conv.Lead.CustomerID)
	assert.Equal(t, "CU00001", conv.Customer.Code)
	assert.Equal(t, "Kernel Co", conv.Customer.Company)
	assert.Len(t, pub.events, 2)

	rec = do(t, h, http.MethodPost, "/api/leads/1/convert", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/leads/1", map[string]any{"name": "Linus", "status": "lost"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/leads/42/convert", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertLeadNameClash(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	require.NoError(t, database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		return database.CreateCustomerInTx(ctx, tx, &model.Customer{Name: "Acme", Currency: "USD"})
	}))
	l := &model.Lead{Name: "ACME", Status: model.LeadNew}
	require.NoError(t, database.CreateLead(ctx, db, l))

	_, err := Convert(ctx, db, l.ID, "USD")
	e, ok := apperr.As(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, "conflict", e.Code)

	got, err := database.GetLead(ctx, db, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CustomerID)
}
