package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadProposal  LeadStatus = "proposal"
	LeadWon       LeadStatus = "won"
	LeadLost      LeadStatus = "lost"
)

var LeadStatuses = []LeadStatus{LeadNew, LeadContacted, LeadQualified, LeadProposal, LeadWon, LeadLost}

func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Lead struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Company        string          `db:"company" json:"company"`
	Email          string          `db:"email" json:"email"`
	Phone          string          `db:"phone" json:"phone"`
	Source         string          `db:"source" json:"source"`
	Status         LeadStatus      `db:"status" json:"status"`
	EstimatedValue decimal.Decimal `db:"estimated_value" json:"estimatedValue"`
	Notes          string          `db:"notes" json:"notes"`
	CustomerID     *int64          `db:"customer_id" json:"customerId"`
	OwnerID        *int64          `db:"owner_id" json:"ownerId"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

type LeadFilters struct {
	Status string
	Source string
	Query  string
}

type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Company   string    `db:"company" json:"company"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Address   string    `db:"address" json:"address"`
	City      string    `db:"city" json:"city"`
	Country   string    `db:"country" json:"country"`
	Currency  string    `db:"currency" json:"currency"`
	TaxID     string    `db:"tax_id" json:"taxId"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CustomerSummary is a customer with its invoicing totals.
type CustomerSummary struct {
	Customer
	WorkCount     int             `db:"work_count" json:"workCount"`
	InvoicedTotal decimal.Decimal `db:"invoiced_total" json:"invoicedTotal"`
	PaidTotal     decimal.Decimal `db:"paid_total" json:"paidTotal"`
	Outstanding   decimal.Decimal `db:"outstanding" json:"outstanding"`
}

type StaffStatus string

const (
	StaffActive   StaffStatus = "active"
	StaffInactive StaffStatus = "inactive"
)

func (s StaffStatus) Valid() bool {
	return s == StaffActive || s == StaffInactive
}

type Staff struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Email      string          `db:"email" json:"email"`
	Phone      string          `db:"phone" json:"phone"`
	Position   string          `db:"position" json:"position"`
	Department string          `db:"department" json:"department"`
	HireDate   string          `db:"hire_date" json:"hireDate"`
	Salary     decimal.Decimal `db:"salary" json:"salary"`
	Status     StaffStatus     `db:"status" json:"status"`
	UserID     *int64          `db:"user_id" json:"userId"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

type WorkStatus string

const (
	WorkPending    WorkStatus = "pending"
	WorkInProgress WorkStatus = "in_progress"
	WorkOnHold     WorkStatus = "on_hold"
	WorkCompleted  WorkStatus = "completed"
	WorkCancelled  WorkStatus = "cancelled"
)

var WorkStatuses = []WorkStatus{WorkPending, WorkInProgress, WorkOnHold, WorkCompleted, WorkCancelled}

func (s WorkStatus) Valid() bool {
	for _, v := range WorkStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Work struct {
	ID           int64           `db:"id" json:"id"`
	Title        string          `db:"title" json:"title"`
	Description  string          `db:"description" json:"description"`
	CustomerID   int64           `db:"customer_id" json:"customerId"`
	CustomerName string          `db:"customer_name" json:"customerName"`
	StaffID      *int64          `db:"staff_id" json:"staffId"`
	Status       WorkStatus      `db:"status" json:"status"`
	StartDate    string          `db:"start_date" json:"startDate"`
	DueDate      string          `db:"due_date" json:"dueDate"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completedAt"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

type WorkFilters struct {
	Status     string
	CustomerID int64
	StaffID    int64
}
