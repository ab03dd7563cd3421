package auth

import (
	"errors"
	"slices"
)

// Role is an authorisation tier granted by the identity service.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ValidRoles lists the roles this service understands.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Principal is a verified caller.
type Principal struct {
	Subject string `json:"subject"`
	Roles   []Role `json:"roles"`
}

// HasRole reports whether the principal holds r.
func (p *Principal) HasRole(r Role) bool {
	return p != nil && slices.Contains(p.Roles, r)
}

// Can reports whether any of the principal's roles grants perm.
func (p *Principal) Can(perm Permission) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if HasPermission(r, perm) {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenMissing = errors.New("auth: token required")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)
