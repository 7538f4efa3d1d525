package models

import "time"

// Role is one of the four fixed reviewer roles.
type Role string

const (
	RoleWarehouseManager  Role = "warehouse-manager"
	RoleRegionalManager   Role = "regional-manager"
	RoleOperationsManager Role = "operations-manager"
	RoleExecutive         Role = "executive"
)

// Roles lists every role in display order.
var Roles = []Role{
	RoleWarehouseManager,
	RoleRegionalManager,
	RoleOperationsManager,
	RoleExecutive,
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Reviewer is an authenticated principal allowed to review refunds.
// Role and assignment are changed out-of-band by an administrator (reviewctl).
type Reviewer struct {
	ID                  string    `gorm:"primaryKey;column:id;size:64" json:"id"`
	Email               string    `gorm:"column:email;uniqueIndex;size:191" json:"email"`
	DisplayName         string    `gorm:"column:display_name" json:"displayName"`
	Role                Role      `gorm:"column:role;size:32" json:"role"`
	AssignedWarehouseID *string   `gorm:"column:assigned_warehouse_id;size:64" json:"assignedWarehouseId,omitempty"`
	AssignedRegionID    *string   `gorm:"column:assigned_region_id;size:64" json:"assignedRegionId,omitempty"`
	PasswordHash        string    `gorm:"column:password_hash" json:"-"`
	CreatedAt           time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Reviewer) TableName() string { return "reviewers" }

// Principal is the acting identity passed explicitly into every core operation.
type Principal struct {
	ID                  string  `json:"id"`
	Email               string  `json:"email"`
	DisplayName         string  `json:"displayName"`
	Role                Role    `json:"role"`
	AssignedWarehouseID *string `json:"assignedWarehouseId,omitempty"`
	AssignedRegionID    *string `json:"assignedRegionId,omitempty"`
}

// Principal returns the acting identity for r.
func (r Reviewer) Principal() Principal {
	return Principal{
		ID:                  r.ID,
		Email:               r.Email,
		DisplayName:         r.DisplayName,
		Role:                r.Role,
		AssignedWarehouseID: r.AssignedWarehouseID,
		AssignedRegionID:    r.AssignedRegionID,
	}
}
