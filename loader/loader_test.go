package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/dbtest"
	"backoffice/model"
)

type recorder struct {
	events []model.ChangeEvent
}

func (r *recorder) Publish(ev model.ChangeEvent) { r.events = append(r.events, ev) }

func fixNow(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })
}

func nextCode(t *testing.T, db *sqlx.DB, name, prefix string) string {
	t.Helper()
	var code string
	require.NoError(t, database.InTx(context.Background(), db, func(tx *sqlx.Tx) error {
		var err error
		code, err = database.NextSequenceInTx(context.Background(), tx, name, prefix, 5)
		return err
	}))
	return code
}

func TestInitDatabase(t *testing.T) {
	fixNow(t)
	db := dbtest.Open(t)
	ctx := context.Background()
	ts := "2026-01-01 00:00:00"
	dbtest.Exec(t, db, `INSERT INTO customers (code, name, currency, created_at, updated_at) VALUES ('CU00007', 'Acme', 'USD', ?, ?)`, ts, ts)
	dbtest.Exec(t, db, `INSERT INTO invoices (number, customer_id, issue_date, due_date, currency, created_at, updated_at)
		VALUES ('INV-2026-00004', 1, '2026-01-01', '2026-01-31', 'USD', ?, ?)`, ts, ts)

	require.NoError(t, InitDatabase(ctx, db))
	require.NoError(t, InitDatabase(ctx, db), "runs again without reseeding")

	accounts, err := database.ListAccounts(ctx, db, "")
	require.NoError(t, err)
	assert.Len(t, accounts, len(database.DefaultChart))

	assert.Equal(t, "CU00008", nextCode(t, db, database.CustomerSequence, database.CustomerSequence))
	assert.Equal(t, "INV-2026-00005", nextCode(t, db, "INV-2026", "INV-2026-"))
	assert.Equal(t, "JV-00001", nextCode(t, db, "JV", "JV-"))
}

const customersCSV = "code,name,email,currency\n" +
	",Acme,acme@example.com,\n" +
	"CU00005,Globex,,eur\n" +
	",Bad,not-an-email,\n" +
	",acme,,\n"

func TestImportCustomers(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	res, err := ImportCustomers(ctx, db, strings.NewReader(customersCSV), "", "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, 5, res.Errors[1].Line)
	assert.Contains(t, res.Errors[1].Message, "already exists")

	list, err := database.ListCustomers(ctx, db, "")
	require.NoError(t, err)
	byName := map[string]model.Customer{}
	for _, c := range list {
		byName[c.Name] = c
	}
	assert.Equal(t, "CU00005", byName["Globex"].Code)
	assert.Equal(t, "EUR", byName["Globex"].Currency)
	assert.Equal(t, "CU00006", byName["Acme"].Code, "generated codes follow imported ones")
	assert.Equal(t, "USD", byName["Acme"].Currency)

	res, err = ImportCustomers(ctx, db, strings.NewReader("code,name,city\ncu00005,Globex Corp,Springfield\n"), "utf-8", "USD")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	c, err := database.GetCustomer(ctx, db, byName["Globex"].ID)
	require.NoError(t, err)
	assert.Equal(t, "Globex Corp", c.Name)
	assert.Equal(t, "Springfield", c.City)
}

func TestImportCustomersNonNumericCode(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	csv := "code,name\nCU00002,Coded Two\nCUSTOM,Custom Co\n,New One\n,New Two\n"
	res, err := ImportCustomers(ctx, db, strings.NewReader(csv), "", "USD")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Empty(t, res.Errors)

	list, err := database.ListCustomers(ctx, db, "")
	require.NoError(t, err)
	codes := map[string]string{}
	for _, c := range list {
		codes[c.Name] = c.Code
	}
	assert.Equal(t, "CUSTOM", codes["Custom Co"])
	assert.Equal(t, "CU00003", codes["New One"])
	assert.Equal(t, "CU00004", codes["New Two"])
}

func TestImportRejectsBadInput(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	_, err := ImportCustomers(ctx, db, strings.NewReader("email\nx@example.com\n"), "", "USD")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "invalid", e.Code)

	_, err = ImportLeads(ctx, db, strings.NewReader("name\nA\n"), "ebcdic")
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "invalid", e.Code)
}

func TestImportLeadsShiftJIS(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	raw, err := japanese.ShiftJIS.NewEncoder().String(
		"name,company,status,estimated_value\n" +
			"山田太郎,山田商事,Contacted,1500\n" +
			"Bob,,bogus,10\n" +
			"Eve,,,-5\n")
	require.NoError(t, err)

	res, err := ImportLeads(ctx, db, strings.NewReader(raw), "shift_jis")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Skipped)

	leads, err := database.ListLeads(ctx, db, model.LeadFilters{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "山田太郎", leads[0].Name)
	assert.Equal(t, "山田商事", leads[0].Company)
	assert.Equal(t, model.LeadContacted, leads[0].Status)
	assert.Equal(t, "1500", leads[0].EstimatedValue.String())
}

func upload(t *testing.T, h http.Handler, path, content, encoding string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if content != "" {
		fw, err := mw.CreateFormFile("file", "import.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	if encoding != "" {
		require.NoError(t, mw.WriteField("encoding", encoding))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestImportHandlers(t *testing.T) {
	db := dbtest.Open(t)
	pub := &recorder{}

	rec := upload(t, ImportCustomersHandler(db, pub), "/api/customers/import", customersCSV, "utf-8")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Created)
	assert.Len(t, res.Errors, 2)
	require.Len(t, pub.events, 2)
	assert.Equal(t, "customers", pub.events[0].Table)
	assert.Equal(t, model.ActionInsert, pub.events[0].Action)

	rec = upload(t, ImportCustomersHandler(db, pub), "/api/customers/import", "code,name\nCU00005,Globex Inc\n", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.ActionUpdate, pub.events[2].Action)

	rec = upload(t, ImportLeadsHandler(db, pub), "/api/leads/import", "name,source\nAda,web\n", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "leads", pub.events[3].Table)

	rec = upload(t, ImportLeadsHandler(db, pub), "/api/leads/import", "", "utf-8")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file is required")
}
