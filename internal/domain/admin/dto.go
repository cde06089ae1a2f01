// internal/domain/admin/dto.go
package admin

import "saas-billing/internal/domain/auth"

type UserFilters struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
	Role   string `form:"role"`
}

// InviteUserRequest creates an account on behalf of someone. SendInvite
// defaults to true when omitted.
type InviteUserRequest struct {
	Name       string `json:"name" binding:"required,min=1"`
	Email      string `json:"email" binding:"required,email"`
	Role       string `json:"role" binding:"required,oneof=USER ADMIN"`
	SendInvite *bool  `json:"sendInvite"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

func (r InviteUserRequest) ShouldSendInvite() bool {
	return r.SendInvite == nil || *r.SendInvite
}

type InviteUserResponse struct {
	User              *auth.User `json:"user"`
	TemporaryPassword string     `json:"temporaryPassword,omitempty"`
}

type UpdateRoleRequest struct {
	Role      string `json:"role" binding:"required,oneof=USER ADMIN"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}
