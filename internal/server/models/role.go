package models

// Role names created by the seeding routine.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

// Role is a named bundle of permissions. Exactly one role is the default
// given to newly registered users.
type Role struct {
	ID          int64
	Name        string
	Permissions Permission
	Default     bool
}

// HasPermission reports whether the role grants every flag in perm.
func (r *Role) HasPermission(perm Permission) bool {
	return r.Permissions.Has(perm)
}

func (r *Role) AddPermission(perm Permission) {
	r.Permissions |= perm
}

func (r *Role) RemovePermission(perm Permission) {
	r.Permissions &^= perm
}

func (r *Role) ResetPermissions() {
	r.Permissions = 0
}

// RoleSeed is one row of the role table kept in sync by the seeding routine.
type RoleSeed struct {
	Name        string
	Permissions Permission
	Default     bool
}

// DefaultRoles is the canonical role table.
var DefaultRoles = []RoleSeed{
	{Name: RoleUser, Permissions: PermissionFollow | PermissionComment | PermissionWrite, Default: true},
	{Name: RoleModerator, Permissions: PermissionFollow | PermissionComment | PermissionWrite | PermissionModerate},
	{Name: RoleAdministrator, Permissions: PermissionAll},
}
