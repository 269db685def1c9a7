package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"backoffice/realtime"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seededDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()
	require.NoError(t, database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := database.SeedDefaultChartInTx(ctx, tx)
		return err
	}))
	return db
}

func accountID(t *testing.T, db *sqlx.DB, code string) int64 {
	t.Helper()
	a, err := database.GetAccountByCode(context.Background(), db, code)
	require.NoError(t, err)
	return a.ID
}

func post(t *testing.T, db *sqlx.DB, typ model.VoucherType, date, debitCode, creditCode, amount string) *model.Voucher {
	t.Helper()
	v, err := CreateVoucher(context.Background(), db, VoucherInput{
		Type: typ,
		Date: date,
		Entries: []EntryInput{
			{AccountID: accountID(t, db, debitCode), Debit: dec(amount)},
			{AccountID: accountID(t, db, creditCode), Credit: dec(amount)},
		},
	}, nil)
	require.NoError(t, err)
	return v
}

func requireCode(t *testing.T, err error, code string) *apperr.Error {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, code, e.Code)
	return e
}

// bookSample posts an owner contribution, a credit sale, a receipt and a rent payment.
func bookSample(t *testing.T, db *sqlx.DB) {
	t.Helper()
	post(t, db, model.VoucherJournal, "2026-01-05", "1000", "3000", "1000")
	post(t, db, model.VoucherSales, "2026-02-10", "1200", "4000", "500")
	post(t, db, model.VoucherReceipt, "2026-02-20", "1000", "1200", "300")
	post(t, db, model.VoucherPayment, "2026-03-01", "6200", "1000", "200")
}

func TestVoucherNormalizeRejects(t *testing.T) {
	valid := func() VoucherInput {
		return VoucherInput{Date: "2026-01-01", Entries: []EntryInput{
			{AccountID: 1, Debit: dec("10")},
			{AccountID: 2, Credit: dec("10")},
		}}
	}
	in := valid()
	require.NoError(t, in.normalize())
	assert.Equal(t, model.VoucherJournal, in.Type)

	cases := map[string]func(in *VoucherInput){
		"one entry":    func(in *VoucherInput) { in.Entries = in.Entries[:1] },
		"no date":      func(in *VoucherInput) { in.Date = "" },
		"bad type":     func(in *VoucherInput) { in.Type = "memo" },
		"both sides":   func(in *VoucherInput) { in.Entries[0].Credit = dec("1") },
		"neither side": func(in *VoucherInput) { in.Entries[0].Debit = decimal.Zero },
		"negative":     func(in *VoucherInput) { in.Entries[1].Credit = dec("-10") },
		"no account":   func(in *VoucherInput) { in.Entries[1].AccountID = 0 },
		"unbalanced":   func(in *VoucherInput) { in.Entries[1].Credit = dec("9.99") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid()
			mutate(&in)
			requireCode(t, in.normalize(), "invalid")
		})
	}

	in = valid()
	in.Entries[1].Credit = dec("9")
	e := requireCode(t, in.normalize(), "invalid")
	assert.Equal(t, "voucher is not balanced", e.Message)
	assert.Equal(t, "10.00", e.Details["debit"])
}

func TestVoucherNumbering(t *testing.T) {
	db := seededDB(t)
	assert.Equal(t, "JV-00001", post(t, db, model.VoucherJournal, "2026-01-01", "1000", "3000", "1").Number)
	assert.Equal(t, "JV-00002", post(t, db, model.VoucherJournal, "2026-01-02", "1000", "3000", "1").Number)
	v := post(t, db, model.VoucherContra, "2026-01-03", "1100", "1000", "1")
	assert.Equal(t, "CV-00001", v.Number)
	require.Len(t, v.Entries, 2)
	assert.Equal(t, "1100", v.Entries[0].AccountCode)
	assert.Equal(t, "Cash", v.Entries[1].AccountName)
}

func TestCreateVoucherUnknownAccount(t *testing.T) {
	db := seededDB(t)
	_, err := CreateVoucher(context.Background(), db, VoucherInput{Date: "2026-01-01", Entries: []EntryInput{
		{AccountID: 1, Debit: dec("5")},
		{AccountID: 999, Credit: dec("5")},
	}}, nil)
	requireCode(t, err, "invalid")

	list, err := database.ListVouchers(context.Background(), db, model.VoucherFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateAndDeleteVoucher(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()
	v := post(t, db, model.VoucherSales, "2026-02-10", "1200", "4000", "500")

	updated, err := UpdateVoucher(ctx, db, v.ID, VoucherInput{
		Date:      "2026-02-11",
		Narration: "split with tax",
		Entries: []EntryInput{
			{AccountID: accountID(t, db, "1200"), Debit: dec("550")},
			{AccountID: accountID(t, db, "4000"), Credit: dec("500")},
			{AccountID: accountID(t, db, "2100"), Credit: dec("50")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, v.Number, updated.Number)
	assert.Equal(t, model.VoucherSales, updated.Type)
	assert.Len(t, updated.Entries, 3)

	_, err = UpdateVoucher(ctx, db, v.ID, VoucherInput{Type: model.VoucherJournal, Date: "2026-02-11", Entries: []EntryInput{
		{AccountID: 1, Debit: dec("1")}, {AccountID: 2, Credit: dec("1")},
	}})
	requireCode(t, err, "invalid")

	require.NoError(t, DeleteVoucher(ctx, db, v.ID))
	requireCode(t, DeleteVoucher(ctx, db, v.ID), "not_found")

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM voucher_entries`))
	assert.Zero(t, n)
}

func TestBuildLedger(t *testing.T) {
	db := seededDB(t)
	bookSample(t, db)
	ctx := context.Background()

	l, err := BuildLedger(ctx, db, accountID(t, db, "1000"), "2026-02-01", "2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "debit", l.Account.NormalBalance())
	assert.Equal(t, "1000.00", l.OpeningBalance.StringFixed(2))
	require.Len(t, l.Lines, 2)
	assert.Equal(t, "RV-00001", l.Lines[0].VoucherNumber)
	assert.Equal(t, "1300.00", l.Lines[0].Balance.StringFixed(2))
	assert.Equal(t, "1100.00", l.Lines[1].Balance.StringFixed(2))
	assert.Equal(t, "300.00", l.TotalDebit.StringFixed(2))
	assert.Equal(t, "200.00", l.TotalCredit.StringFixed(2))
	assert.Equal(t, "1100.00", l.ClosingBalance.StringFixed(2))

	eq, err := BuildLedger(ctx, db, accountID(t, db, "3000"), "", "")
	require.NoError(t, err)
	assert.True(t, eq.OpeningBalance.IsZero())
	require.Len(t, eq.Lines, 1)
	assert.Equal(t, "1000.00", eq.ClosingBalance.StringFixed(2), "credit-normal balance is positive")

	_, err = BuildLedger(ctx, db, 999, "", "")
	requireCode(t, err, "not_found")
	_, err = BuildLedger(ctx, db, 1, "2026-03-01", "2026-02-01")
	requireCode(t, err, "invalid")
}

func TestBuildTrialBalance(t *testing.T) {
	db := seededDB(t)
	bookSample(t, db)
	ctx := context.Background()

	tb, err := BuildTrialBalance(ctx, db, "")
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.Equal(t, "1500.00", tb.TotalDebit.StringFixed(2))
	assert.Equal(t, "1500.00", tb.TotalCredit.StringFixed(2))

	byCode := map[string]model.TrialBalanceRow{}
	for _, row := range tb.Rows {
		byCode[row.Code] = row
	}
	require.Len(t, byCode, 5)
	assert.Equal(t, "1100.00", byCode["1000"].DebitBalance.StringFixed(2))
	assert.Equal(t, "200.00", byCode["1200"].DebitBalance.StringFixed(2))
	assert.Equal(t, "1000.00", byCode["3000"].CreditBalance.StringFixed(2))
	assert.Equal(t, "500.00", byCode["4000"].CreditBalance.StringFixed(2))
	assert.True(t, byCode["4000"].DebitBalance.IsZero())
	assert.Equal(t, "200.00", byCode["6200"].DebitBalance.StringFixed(2))

	early, err := BuildTrialBalance(ctx, db, "2026-01-31")
	require.NoError(t, err)
	assert.Len(t, early.Rows, 2)
	assert.True(t, early.Balanced)

	_, err = BuildTrialBalance(ctx, db, "31/01/2026")
	requireCode(t, err, "invalid")
}

func newRouter(db *sqlx.DB) *mux.Router {
	pub := realtime.Nop{}
	r := mux.NewRouter()
	r.HandleFunc("/api/accounts", ListAccountsHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts", CreateAccountHandler(db, pub)).Methods(http.MethodPost)
	r.HandleFunc("/api/accounts/{id}", GetAccountHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts/{id}", UpdateAccountHandler(db, pub)).Methods(http.MethodPut)
	r.HandleFunc("/api/accounts/{id}", DeleteAccountHandler(db, pub)).Methods(http.MethodDelete)
	r.HandleFunc("/api/vouchers", ListVouchersHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/vouchers", CreateVoucherHandler(db, pub)).Methods(http.MethodPost)
	r.HandleFunc("/api/vouchers/{id}", GetVoucherHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/vouchers/{id}", UpdateVoucherHandler(db, pub)).Methods(http.MethodPut)
	r.HandleFunc("/api/vouchers/{id}", DeleteVoucherHandler(db, pub)).Methods(http.MethodDelete)
	r.HandleFunc("/api/ledger/{accountId}", LedgerHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/ledger/{accountId}/export.csv", ExportLedgerCSVHandler(db)).Methods(http.MethodGet)
	r.HandleFunc("/api/trial-balance", TrialBalanceHandler(db)).Methods(http.MethodGet)
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

func TestAccountHandlers(t *testing.T) {
	db := seededDB(t)
	h := newRouter(db)
	cash := accountID(t, db, "1000")

	rec := do(t, h, http.MethodGet, "/api/accounts?type=income", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "credit", views[0].NormalBalance)

	rec = do(t, h, http.MethodPost, "/api/accounts", map[string]any{"code": "1000", "name": "Dup", "type": "asset"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/accounts", map[string]any{"code": "1010", "name": "Petty cash", "type": "expense", "parentId": cash})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/accounts", map[string]any{"code": "1010", "name": "Petty cash", "type": "asset", "parentId": cash})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var petty AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &petty))
	assert.Equal(t, "debit", petty.NormalBalance)

	rec = do(t, h, http.MethodPut, "/api/accounts/1", map[string]any{"code": "1000", "name": "Cash", "type": "equity"})
	assert.Equal(t, http.StatusConflict, rec.Code, "has a child account")

	rec = do(t, h, http.MethodDelete, "/api/accounts/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/accounts/13", map[string]any{"code": "1010", "name": "Petty Cash", "type": "asset", "parentId": cash, "description": "drawer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/accounts/13", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountParentCycle(t *testing.T) {
	db := seededDB(t)
	h := newRouter(db)
	cash := accountID(t, db, "1000")

	rec := do(t, h, http.MethodPost, "/api/accounts", map[string]any{"code": "1010", "name": "Petty cash", "type": "asset", "parentId": cash})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	petty := accountID(t, db, "1010")
	rec = do(t, h, http.MethodPost, "/api/accounts", map[string]any{"code": "1011", "name": "Drawer", "type": "asset", "parentId": petty})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	drawer := accountID(t, db, "1011")

	for _, parent := range []int64{petty, drawer} {
		rec = do(t, h, http.MethodPut, fmt.Sprintf("/api/accounts/%d", cash),
			map[string]any{"code": "1000", "name": "Cash", "type": "asset", "parentId": parent})
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "descendant")
	}

	bank := accountID(t, db, "1100")
	rec = do(t, h, http.MethodPut, fmt.Sprintf("/api/accounts/%d", drawer),
		map[string]any{"code": "1011", "name": "Drawer", "type": "asset", "parentId": bank})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVoucherHandlers(t *testing.T) {
	db := seededDB(t)
	h := newRouter(db)
	cash, sales := accountID(t, db, "1000"), accountID(t, db, "4000")

	rec := do(t, h, http.MethodPost, "/api/vouchers", map[string]any{
		"type": "receipt", "date": "2026-04-01",
		"entries": []map[string]any{{"accountId": cash, "debit": "75"}, {"accountId": sales, "credit": "70"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "voucher is not balanced")

	rec = do(t, h, http.MethodPost, "/api/vouchers", map[string]any{
		"type": "receipt", "date": "2026-04-01", "narration": "cash sale",
		"entries": []map[string]any{{"accountId": cash, "debit": "75"}, {"accountId": sales, "credit": "75"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v model.Voucher
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "RV-00001", v.Number)

	rec = do(t, h, http.MethodGet, "/api/vouchers?type=receipt&from=2026-04-01", nil)
	var list []model.Voucher
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodDelete, "/api/accounts/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "cash has entries")

	rec = do(t, h, http.MethodGet, "/api/ledger/1?from=2026-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var l model.Ledger
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l))
	assert.Equal(t, "75.00", l.ClosingBalance.StringFixed(2))

	rec = do(t, h, http.MethodGet, "/api/ledger/1/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimPrefix(rec.Body.String(), "\xEF\xBB\xBF"), "\r\n")
	assert.Equal(t, "Date,Voucher,Narration,Memo,Debit,Credit,Balance", lines[0])
	assert.Equal(t, ",,Opening balance,,,,0.00", lines[1])
	assert.Equal(t, "2026-04-01,RV-00001,cash sale,,75.00,0.00,75.00", lines[2])

	rec = do(t, h, http.MethodGet, "/api/trial-balance?asOf=2026-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tb model.TrialBalance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tb))
	assert.True(t, tb.Balanced)

	rec = do(t, h, http.MethodDelete, "/api/vouchers/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/vouchers/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
