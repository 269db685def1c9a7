package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

type InvoiceStatusTotal struct {
	Status string          `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
	Total  decimal.Decimal `db:"total" json:"total"`
}

type MonthlyRevenue struct {
	Month   string          `db:"month" json:"month"`
	Revenue decimal.Decimal `db:"revenue" json:"revenue"`
}

type DashboardStats struct {
	LeadsTotal       int                  `json:"leadsTotal"`
	LeadsByStatus    []StatusCount        `json:"leadsByStatus"`
	CustomersTotal   int                  `json:"customersTotal"`
	WorksTotal       int                  `json:"worksTotal"`
	WorksByStatus    []StatusCount        `json:"worksByStatus"`
	InvoicesByStatus []InvoiceStatusTotal `json:"invoicesByStatus"`
	Outstanding      decimal.Decimal      `json:"outstanding"`
	PaidThisMonth    decimal.Decimal      `json:"paidThisMonth"`
	ActiveStaff      int                  `json:"activeStaff"`
	Revenue          []MonthlyRevenue     `json:"revenue"`
}

// ChangeEvent is broadcast to realtime subscribers after a committed mutation.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Action string    `json:"action"`
	ID     int64     `json:"id"`
	Record any       `json:"record,omitempty"`
	At     time.Time `json:"at"`
}

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)
