package services

import (
	"strings"

	"refund-review-api/models"
	"refund-review-api/store"
)

// ResolveScope turns a principal into the read predicate used for both transactions
// and notifications. Missing assignments fail closed.
func ResolveScope(p models.Principal) store.Predicate {
	switch CapabilitiesFor(p.Role).Scope {
	case store.ScopeAll:
		return store.MatchAll()
	case store.ScopeWarehouse:
		if id := assigned(p.AssignedWarehouseID); id != "" {
			return store.WarehouseEquals(id)
		}
	case store.ScopeRegion:
		if id := assigned(p.AssignedRegionID); id != "" {
			return store.RegionEquals(id)
		}
	}
	return store.MatchNone()
}

func assigned(id *string) string {
	if id == nil {
		return ""
	}
	return strings.TrimSpace(*id)
}
