package services

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"refund-review-api/models"
)

// ResourceTransaction is the casbin object guarded by the review capabilities.
const ResourceTransaction = "transaction"

const capabilityModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// CapabilityEnforcer evaluates role capabilities through casbin for the HTTP boundary.
// Policies are generated from the role table so the two can never disagree.
type CapabilityEnforcer struct {
	enforcer *casbin.Enforcer
}

func NewCapabilityEnforcer() (*CapabilityEnforcer, error) {
	m, err := casbinmodel.NewModelFromString(capabilityModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load capability model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capability enforcer: %w", err)
	}
	for _, role := range models.Roles {
		caps := CapabilitiesFor(role)
		for _, action := range []string{ActionView, ActionEdit, ActionEscalate, ActionOverride} {
			if !caps.Allows(action) {
				continue
			}
			if _, err := e.AddPolicy(string(role), ResourceTransaction, action); err != nil {
				return nil, fmt.Errorf("failed to add policy %s/%s: %w", role, action, err)
			}
		}
	}
	return &CapabilityEnforcer{enforcer: e}, nil
}

// Allowed reports whether role may perform action on resource.
func (c *CapabilityEnforcer) Allowed(role models.Role, resource, action string) (bool, error) {
	allowed, err := c.enforcer.Enforce(string(role), resource, action)
	if err != nil {
		return false, fmt.Errorf("capability check failed: %w", err)
	}
	return allowed, nil
}
