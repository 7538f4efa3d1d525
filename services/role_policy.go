package services

import (
	"refund-review-api/models"
	"refund-review-api/store"
)

// Capabilities are derived from a role and never stored.
type Capabilities struct {
	CanViewAnalytics    bool            `json:"canViewAnalytics"`
	CanEditTransactions bool            `json:"canEditTransactions"`
	CanEscalate         bool            `json:"canEscalate"`
	CanOverride         bool            `json:"canOverride"`
	Scope               store.ScopeKind `json:"scope"`
}

var roleCapabilities = map[models.Role]Capabilities{
	models.RoleWarehouseManager: {
		CanEditTransactions: true,
		Scope:               store.ScopeWarehouse,
	},
	models.RoleRegionalManager: {
		CanViewAnalytics:    true,
		CanEditTransactions: true,
		CanEscalate:         true,
		Scope:               store.ScopeRegion,
	},
	models.RoleOperationsManager: {
		CanViewAnalytics:    true,
		CanEditTransactions: true,
		CanEscalate:         true,
		CanOverride:         true,
		Scope:               store.ScopeAll,
	},
	models.RoleExecutive: {
		CanViewAnalytics: true,
		Scope:            store.ScopeAll,
	},
}

// CapabilitiesFor returns the capabilities of role. Unknown roles get nothing.
func CapabilitiesFor(role models.Role) Capabilities {
	if caps, ok := roleCapabilities[role]; ok {
		return caps
	}
	return Capabilities{Scope: store.ScopeNone}
}

// Capability names used by the HTTP enforcer and the service checks.
const (
	ActionView     = "view"
	ActionEdit     = "edit"
	ActionEscalate = "escalate"
	ActionOverride = "override"
)

// Allows reports whether caps grants action.
func (c Capabilities) Allows(action string) bool {
	switch action {
	case ActionView:
		return c.Scope != store.ScopeNone
	case ActionEdit:
		return c.CanEditTransactions
	case ActionEscalate:
		return c.CanEscalate
	case ActionOverride:
		return c.CanOverride
	}
	return false
}
