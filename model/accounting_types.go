package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountIncome    AccountType = "income"
	AccountExpense   AccountType = "expense"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountIncome, AccountExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountAsset || t == AccountExpense
}

type Account struct {
	ID          int64       `db:"id" json:"id"`
	Code        string      `db:"code" json:"code"`
	Name        string      `db:"name" json:"name"`
	Type        AccountType `db:"type" json:"type"`
	ParentID    *int64      `db:"parent_id" json:"parentId"`
	Description string      `db:"description" json:"description"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// NormalBalance is "debit" or "credit".
func (a Account) NormalBalance() string {
	if a.Type.DebitNormal() {
		return "debit"
	}
	return "credit"
}

type VoucherType string

const (
	VoucherJournal  VoucherType = "journal"
	VoucherPayment  VoucherType = "payment"
	VoucherReceipt  VoucherType = "receipt"
	VoucherSales    VoucherType = "sales"
	VoucherPurchase VoucherType = "purchase"
	VoucherContra   VoucherType = "contra"
)

// VoucherTypes lists every voucher type in display order.
var VoucherTypes = []VoucherType{VoucherJournal, VoucherPayment, VoucherReceipt, VoucherSales, VoucherPurchase, VoucherContra}

var voucherPrefixes = map[VoucherType]string{
	VoucherJournal:  "JV-",
	VoucherPayment:  "PV-",
	VoucherReceipt:  "RV-",
	VoucherSales:    "SV-",
	VoucherPurchase: "PU-",
	VoucherContra:   "CV-",
}

func (t VoucherType) Valid() bool {
	_, ok := voucherPrefixes[t]
	return ok
}

// NumberPrefix is the prefix used when numbering vouchers of this type.
func (t VoucherType) NumberPrefix() string {
	return voucherPrefixes[t]
}

type Voucher struct {
	ID        int64          `db:"id" json:"id"`
	Number    string         `db:"number" json:"number"`
	Type      VoucherType    `db:"type" json:"type"`
	Date      string         `db:"date" json:"date"`
	Narration string         `db:"narration" json:"narration"`
	Reference string         `db:"reference" json:"reference"`
	CreatedBy *int64         `db:"created_by" json:"createdBy"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
	Entries   []VoucherEntry `db:"-" json:"entries,omitempty"`
}

type VoucherEntry struct {
	ID          int64           `db:"id" json:"id"`
	VoucherID   int64           `db:"voucher_id" json:"voucherId"`
	AccountID   int64           `db:"account_id" json:"accountId"`
	AccountCode string          `db:"account_code" json:"accountCode"`
	AccountName string          `db:"account_name" json:"accountName"`
	Debit       decimal.Decimal `db:"debit" json:"debit"`
	Credit      decimal.Decimal `db:"credit" json:"credit"`
	Memo        string          `db:"memo" json:"memo"`
	Position    int             `db:"position" json:"position"`
}

type VoucherFilters struct {
	Type string
	From string
	To   string
}

// LedgerLine is one voucher entry as seen from an account's ledger.
type LedgerLine struct {
	VoucherID     int64           `db:"voucher_id" json:"voucherId"`
	VoucherNumber string          `db:"voucher_number" json:"voucherNumber"`
	Date          string          `db:"date" json:"date"`
	Narration     string          `db:"narration" json:"narration"`
	Memo          string          `db:"memo" json:"memo"`
	Debit         decimal.Decimal `db:"debit" json:"debit"`
	Credit        decimal.Decimal `db:"credit" json:"credit"`
	Balance       decimal.Decimal `db:"-" json:"balance"`
}

type Ledger struct {
	Account        Account         `json:"account"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	Lines          []LedgerLine    `json:"lines"`
	TotalDebit     decimal.Decimal `json:"totalDebit"`
	TotalCredit    decimal.Decimal `json:"totalCredit"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
}

// AccountTotals holds raw debit/credit sums for one account.
type AccountTotals struct {
	AccountID int64           `db:"account_id"`
	Code      string          `db:"code"`
	Name      string          `db:"name"`
	Type      AccountType     `db:"type"`
	Debit     decimal.Decimal `db:"debit"`
	Credit    decimal.Decimal `db:"credit"`
}

type TrialBalanceRow struct {
	AccountID     int64           `json:"accountId"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	DebitTotal    decimal.Decimal `json:"debitTotal"`
	CreditTotal   decimal.Decimal `json:"creditTotal"`
	DebitBalance  decimal.Decimal `json:"debitBalance"`
	CreditBalance decimal.Decimal `json:"creditBalance"`
}

type TrialBalance struct {
	AsOf        string            `json:"asOf"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"totalDebit"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	Balanced    bool              `json:"balanced"`
}
