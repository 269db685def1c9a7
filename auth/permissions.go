package auth

type Resource string

const (
	ResourceLeads      Resource = "leads"
	ResourceCustomers  Resource = "customers"
	ResourceWorks      Resource = "works"
	ResourceInvoices   Resource = "invoices"
	ResourceStaff      Resource = "staff"
	ResourceAccounting Resource = "accounting"
	ResourceDashboard  Resource = "dashboard"
	ResourceUsers      Resource = "users"
	ResourceSettings   Resource = "settings"
)

var Resources = []Resource{
	ResourceLeads, ResourceCustomers, ResourceWorks, ResourceInvoices, ResourceStaff,
	ResourceAccounting, ResourceDashboard, ResourceUsers, ResourceSettings,
}

type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
)

var Roles = []string{RoleAdmin, RoleManager, RoleAccountant, RoleStaff, RoleViewer}

func ValidRole(role string) bool {
	_, ok := roleTable[role]
	return ok
}

// Permissions is the permission shape handed to the client:
// {"leads": {"view": true, "create": false, ...}, ...}.
type Permissions map[Resource]map[Action]bool

// Can reports whether the shape grants action on resource.
func (p Permissions) Can(resource Resource, action Action) bool {
	return p[resource][action]
}

type grant map[Resource][]Action

var (
	all      = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}
	viewOnly = []Action{ActionView}
	noDelete = []Action{ActionView, ActionCreate, ActionEdit}
)

var roleTable = map[string]grant{
	RoleAdmin: {
		ResourceLeads: all, ResourceCustomers: all, ResourceWorks: all, ResourceInvoices: all,
		ResourceStaff: all, ResourceAccounting: all, ResourceDashboard: all,
		ResourceUsers: all, ResourceSettings: all,
	},
	RoleManager: {
		ResourceLeads: all, ResourceCustomers: all, ResourceWorks: all, ResourceInvoices: all,
		ResourceStaff: all, ResourceAccounting: viewOnly, ResourceDashboard: all,
	},
	RoleAccountant: {
		ResourceAccounting: all, ResourceInvoices: all,
		ResourceCustomers: viewOnly, ResourceWorks: viewOnly, ResourceDashboard: viewOnly,
	},
	RoleStaff: {
		ResourceLeads: noDelete, ResourceCustomers: noDelete, ResourceWorks: noDelete,
		ResourceInvoices: viewOnly, ResourceDashboard: viewOnly,
	},
	RoleViewer: {
		ResourceLeads: viewOnly, ResourceCustomers: viewOnly, ResourceWorks: viewOnly,
		ResourceInvoices: viewOnly, ResourceStaff: viewOnly, ResourceDashboard: viewOnly,
	},
}

// PermissionsFor derives the full permission shape for role. Every resource
// and action is present; an unknown role gets all false.
func PermissionsFor(role string) Permissions {
	g := roleTable[role]
	p := make(Permissions, len(Resources))
	for _, res := range Resources {
		actions := make(map[Action]bool, len(Actions))
		for _, a := range Actions {
			actions[a] = false
		}
		for _, a := range g[res] {
			actions[a] = true
		}
		p[res] = actions
	}
	return p
}
