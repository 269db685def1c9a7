package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"backoffice/accounting"
	"backoffice/auth"
	"backoffice/config"
	"backoffice/customer"
	"backoffice/dashboard"
	"backoffice/invoice"
	"backoffice/lead"
	"backoffice/loader"
	"backoffice/metrics"
	"backoffice/middleware"
	"backoffice/realtime"
	"backoffice/staff"
	"backoffice/work"
)

// App holds the long-lived dependencies shared by the handlers.
type App struct {
	DB       *sqlx.DB
	Log      *zap.Logger
	Sessions *auth.Service
	Hub      *realtime.Hub
	Invoices *invoice.Service
	// Printer is nil when PDF rendering is disabled.
	Printer invoice.Printer
	Config  config.Config
}

// guarded registers routes that need a permission on one resource.
type guarded struct {
	r        *mux.Router
	resource auth.Resource
}

func (g guarded) handle(method, path string, action auth.Action, h http.HandlerFunc) {
	g.r.Handle(path, auth.Guard(g.resource, action, h)).Methods(method)
}

// NewRouter builds the full HTTP handler: API routes, metrics, the realtime
// socket and the single-page app.
func NewRouter(app *App) http.Handler {
	db := app.DB
	pub := app.Hub
	cfg := app.Config

	r := mux.NewRouter()
	r.Use(metrics.Instrument)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	limiter := middleware.NewRateLimiter(cfg.Auth.LoginRatePerMinute)
	api.Handle("/auth/signup", limiter.Wrap(auth.SignUpHandler(app.Sessions))).Methods(http.MethodPost)
	api.Handle("/auth/login", limiter.Wrap(auth.LoginHandler(app.Sessions))).Methods(http.MethodPost)
	api.HandleFunc("/realtime", realtime.ServeWSHandler(app.Hub, app.Sessions, cfg.Server.AllowedOrigins)).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(app.Sessions.Authenticate)

	protected.HandleFunc("/auth/session", auth.SessionHandler()).Methods(http.MethodGet)
	protected.HandleFunc("/auth/logout", auth.LogoutHandler(app.Sessions)).Methods(http.MethodPost)
	protected.HandleFunc("/auth/permissions", auth.PermissionsHandler()).Methods(http.MethodGet)

	users := guarded{protected, auth.ResourceUsers}
	users.handle(http.MethodGet, "/users", auth.ActionView, ListUsersHandler(app.Sessions))
	users.handle(http.MethodPut, "/users/{id}/role", auth.ActionEdit, SetUserRoleHandler(app.Sessions, pub))
	users.handle(http.MethodPut, "/users/{id}/active", auth.ActionEdit, SetUserActiveHandler(app.Sessions, pub))

	settings := guarded{protected, auth.ResourceSettings}
	settings.handle(http.MethodGet, "/config", auth.ActionView, GetConfigHandler())
	settings.handle(http.MethodPost, "/config", auth.ActionEdit, SaveConfigHandler())

	leads := guarded{protected, auth.ResourceLeads}
	leads.handle(http.MethodGet, "/leads", auth.ActionView, lead.ListLeadsHandler(db))
	leads.handle(http.MethodPost, "/leads", auth.ActionCreate, lead.CreateLeadHandler(db, pub))
	leads.handle(http.MethodPost, "/leads/import", auth.ActionCreate, loader.ImportLeadsHandler(db, pub))
	leads.handle(http.MethodGet, "/leads/{id}", auth.ActionView, lead.GetLeadHandler(db))
	leads.handle(http.MethodPut, "/leads/{id}", auth.ActionEdit, lead.UpdateLeadHandler(db, pub))
	leads.handle(http.MethodDelete, "/leads/{id}", auth.ActionDelete, lead.DeleteLeadHandler(db, pub))
	// Conversion creates a customer, so it needs both permissions.
	protected.Handle("/leads/{id}/convert", auth.Require(auth.ResourceCustomers, auth.ActionCreate)(
		auth.Guard(auth.ResourceLeads, auth.ActionEdit, lead.ConvertLeadHandler(db, pub)))).Methods(http.MethodPost)

	customers := guarded{protected, auth.ResourceCustomers}
	customers.handle(http.MethodGet, "/customers", auth.ActionView, customer.ListCustomersHandler(db))
	customers.handle(http.MethodPost, "/customers", auth.ActionCreate, customer.CreateCustomerHandler(db, pub))
	customers.handle(http.MethodPost, "/customers/import", auth.ActionCreate, loader.ImportCustomersHandler(db, pub))
	customers.handle(http.MethodGet, "/customers/{id}", auth.ActionView, customer.GetCustomerHandler(db))
	customers.handle(http.MethodGet, "/customers/{id}/summary", auth.ActionView, customer.GetCustomerSummaryHandler(db))
	customers.handle(http.MethodPut, "/customers/{id}", auth.ActionEdit, customer.UpdateCustomerHandler(db, pub))
	customers.handle(http.MethodDelete, "/customers/{id}", auth.ActionDelete, customer.DeleteCustomerHandler(db, pub))

	works := guarded{protected, auth.ResourceWorks}
	works.handle(http.MethodGet, "/works", auth.ActionView, work.ListWorksHandler(db))
	works.handle(http.MethodPost, "/works", auth.ActionCreate, work.CreateWorkHandler(db, pub))
	works.handle(http.MethodGet, "/works/{id}", auth.ActionView, work.GetWorkHandler(db))
	works.handle(http.MethodPut, "/works/{id}", auth.ActionEdit, work.UpdateWorkHandler(db, pub))
	works.handle(http.MethodDelete, "/works/{id}", auth.ActionDelete, work.DeleteWorkHandler(db, pub))

	staffRoutes := guarded{protected, auth.ResourceStaff}
	staffRoutes.handle(http.MethodGet, "/staff", auth.ActionView, staff.ListStaffHandler(db))
	staffRoutes.handle(http.MethodPost, "/staff", auth.ActionCreate, staff.CreateStaffHandler(db, pub))
	staffRoutes.handle(http.MethodGet, "/staff/{id}", auth.ActionView, staff.GetStaffHandler(db))
	staffRoutes.handle(http.MethodPut, "/staff/{id}", auth.ActionEdit, staff.UpdateStaffHandler(db, pub))
	staffRoutes.handle(http.MethodDelete, "/staff/{id}", auth.ActionDelete, staff.DeleteStaffHandler(db, pub))

	inv := app.Invoices
	invoices := guarded{protected, auth.ResourceInvoices}
	invoices.handle(http.MethodGet, "/invoices", auth.ActionView, invoice.ListInvoicesHandler(db))
	invoices.handle(http.MethodPost, "/invoices", auth.ActionCreate, invoice.CreateInvoiceHandler(inv, pub))
	invoices.handle(http.MethodGet, "/invoices/export.csv", auth.ActionView, invoice.ExportInvoicesCSVHandler(db))
	// Overdue sweeps are a bookkeeping action: admin and accountant only.
	guarded{protected, auth.ResourceAccounting}.handle(http.MethodPost, "/invoices/mark-overdue", auth.ActionEdit, invoice.MarkOverdueHandler(inv, pub))
	invoices.handle(http.MethodGet, "/invoices/{id}", auth.ActionView, invoice.GetInvoiceHandler(inv))
	invoices.handle(http.MethodPut, "/invoices/{id}", auth.ActionEdit, invoice.UpdateInvoiceHandler(inv, pub))
	invoices.handle(http.MethodPut, "/invoices/{id}/status", auth.ActionEdit, invoice.UpdateInvoiceStatusHandler(inv, pub))
	invoices.handle(http.MethodPost, "/invoices/{id}/payments", auth.ActionEdit, invoice.AddPaymentHandler(inv, pub))
	invoices.handle(http.MethodGet, "/invoices/{id}/html", auth.ActionView, invoice.InvoiceHTMLHandler(inv))
	invoices.handle(http.MethodGet, "/invoices/{id}/pdf", auth.ActionView, invoice.InvoicePDFHandler(inv, app.Printer))
	invoices.handle(http.MethodDelete, "/invoices/{id}", auth.ActionDelete, invoice.DeleteInvoiceHandler(inv, pub))

	acc := guarded{protected, auth.ResourceAccounting}
	acc.handle(http.MethodGet, "/accounts", auth.ActionView, accounting.ListAccountsHandler(db))
	acc.handle(http.MethodPost, "/accounts", auth.ActionCreate, accounting.CreateAccountHandler(db, pub))
	acc.handle(http.MethodGet, "/accounts/{id}", auth.ActionView, accounting.GetAccountHandler(db))
	acc.handle(http.MethodPut, "/accounts/{id}", auth.ActionEdit, accounting.UpdateAccountHandler(db, pub))
	acc.handle(http.MethodDelete, "/accounts/{id}", auth.ActionDelete, accounting.DeleteAccountHandler(db, pub))
	acc.handle(http.MethodGet, "/vouchers", auth.ActionView, accounting.ListVouchersHandler(db))
	acc.handle(http.MethodPost, "/vouchers", auth.ActionCreate, accounting.CreateVoucherHandler(db, pub))
	acc.handle(http.MethodGet, "/vouchers/{id}", auth.ActionView, accounting.GetVoucherHandler(db))
	acc.handle(http.MethodPut, "/vouchers/{id}", auth.ActionEdit, accounting.UpdateVoucherHandler(db, pub))
	acc.handle(http.MethodDelete, "/vouchers/{id}", auth.ActionDelete, accounting.DeleteVoucherHandler(db, pub))
	acc.handle(http.MethodGet, "/ledger/{accountId}", auth.ActionView, accounting.LedgerHandler(db))
	acc.handle(http.MethodGet, "/ledger/{accountId}/export.csv", auth.ActionView, accounting.ExportLedgerCSVHandler(db))
	acc.handle(http.MethodGet, "/trial-balance", auth.ActionView, accounting.TrialBalanceHandler(db))

	guarded{protected, auth.ResourceDashboard}.handle(http.MethodGet, "/dashboard", auth.ActionView, dashboard.DashboardHandler(db))

	if dir := cfg.Server.StaticDir; dir != "" {
		r.PathPrefix("/").Handler(spaHandler{dir: dir})
	}

	var h http.Handler = r
	h = middleware.CORS(cfg.Server.AllowedOrigins)(h)
	h = middleware.Recover(h)
	h = middleware.RequestLogger(app.Log)(h)
	return h
}

// spaHandler serves files from dir and falls back to index.html so client
// side routes survive a reload.
type spaHandler struct {
	dir string
}

func (s spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	p := filepath.Join(s.dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		http.ServeFile(w, r, p)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.dir, "index.html"))
}
