// Package models defines the Flasky account records: permissions, roles
// and users, together with the rules evaluated directly on them.
package models

import "strings"

// Permission is a bit set of capabilities. A role grants the union of its
// flags.
type Permission int64

const (
	PermissionFollow Permission = 1 << iota
	PermissionComment
	PermissionWrite
	PermissionModerate
	PermissionAdmin
)

// PermissionAll is the union of every known permission.
const PermissionAll = PermissionFollow | PermissionComment | PermissionWrite | PermissionModerate | PermissionAdmin

var permissionNames = []struct {
	p    Permission
	name string
}{
	{PermissionFollow, "FOLLOW"},
	{PermissionComment, "COMMENT"},
	{PermissionWrite, "WRITE"},
	{PermissionModerate, "MODERATE"},
	{PermissionAdmin, "ADMIN"},
}

// Has reports whether every flag of p is set.
func (ps Permission) Has(p Permission) bool {
	return ps&p == p
}

// String renders the set as "FOLLOW|COMMENT|WRITE".
func (ps Permission) String() string {
	if ps == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range permissionNames {
		if ps&n.p != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}
