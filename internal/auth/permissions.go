package auth

import "slices"

// Permission is a named capability checked by the HTTP layer.
type Permission string

const (
	PermProfileSelf     Permission = "profile:self"
	PermClassroomRead   Permission = "classroom:read"
	PermClassroomManage Permission = "classroom:manage"
	PermUserManage      Permission = "user:manage"
	PermAuditRead       Permission = "audit:read"
	PermEventsSubscribe Permission = "events:subscribe"
)

// rolePermissions is the single source of truth for what each role may do.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermProfileSelf,
		PermClassroomRead,
		PermClassroomManage,
		PermUserManage,
		PermAuditRead,
		PermEventsSubscribe,
	},
	RoleTeacher: {
		PermProfileSelf,
		PermClassroomRead,
	},
	RoleStudent: {
		PermProfileSelf,
		PermClassroomRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the role's permissions, or nil for
// unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}

// RolesWith returns the roles granted perm, in ValidRoles order. The result
// feeds Guard.Authorize.
func RolesWith(perm Permission) []Role {
	var roles []Role
	for _, r := range ValidRoles {
		if HasPermission(r, perm) {
			roles = append(roles, r)
		}
	}
	return roles
}
