package rbac

import (
	"context"

	"church-messaging/internal/auth"
)

// Role names as carried in the token's role claim.
const (
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// CanAccessChurch reports whether the caller in ctx may act on churchID.
// Super admins may act on any church; everyone else only on their own.
func CanAccessChurch(ctx context.Context, churchID string) bool {
	if churchID == "" {
		return false
	}
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return false
	}
	return IsSuperAdmin(id.Role) || id.ChurchID == churchID
}
