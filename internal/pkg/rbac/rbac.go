// Package rbac maps roles to the permissions they hold.
package rbac

import (
	"fmt"

	xerrors "saas-billing/internal/pkg/errors"
)

type Role string

// Role names are untyped so they also serve as the stored string.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

type Permission string

const (
	ManageUsers         Permission = "manage_users"
	ManageSubscriptions Permission = "manage_subscriptions"
	ViewAnalytics       Permission = "view_analytics"
	ManageBilling       Permission = "manage_billing"
)

// AllPermissions lists every permission the system defines.
var AllPermissions = []Permission{
	ManageUsers,
	ManageSubscriptions,
	ViewAnalytics,
	ManageBilling,
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleUser:  {},
}

// PermissionError is returned when a role lacks a permission.
type PermissionError struct {
	Role       Role
	Permission Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}

func (e *PermissionError) Unwrap() error {
	return xerrors.ErrForbidden
}

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	_, ok := rolePermissions[Role(r)]
	return ok
}

// Permissions returns a copy of the permission set of role.
func Permissions(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// RequirePermission returns a *PermissionError when role lacks permission.
func RequirePermission(role Role, permission Permission) error {
	if !HasPermission(role, permission) {
		return &PermissionError{Role: role, Permission: permission}
	}
	return nil
}
