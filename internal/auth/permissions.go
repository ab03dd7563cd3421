package auth

import "slices"

// Permission is a named capability.
type Permission string

const (
	PermEventRead    Permission = "event:read"
	PermEventWrite   Permission = "event:write"
	PermEventRespond Permission = "event:respond"
	PermDeviceRead   Permission = "device:read"
	PermDeviceManage Permission = "device:manage"
	PermZoneRead     Permission = "zone:read"
	PermZoneManage   Permission = "zone:manage"
	PermAuditRead    Permission = "audit:read"
	PermObserve      Permission = "broadcast:observe"
)

var viewerPermissions = []Permission{
	PermEventRead,
	PermDeviceRead,
	PermZoneRead,
	PermObserve,
}

var operatorPermissions = append(slices.Clone(viewerPermissions),
	PermEventWrite,
	PermEventRespond,
)

// rolePermissions is the single source of truth for authorisation.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   viewerPermissions,
	RoleOperator: operatorPermissions,
	RoleAdmin: append(slices.Clone(operatorPermissions),
		PermDeviceManage,
		PermZoneManage,
		PermAuditRead,
	),
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
