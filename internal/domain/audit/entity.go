// internal/domain/audit/entity.go
package audit

import (
	"context"
	"time"
)

const (
	ActionSubscriptionCreated   = "SUBSCRIPTION_CREATED"
	ActionSubscriptionUpdated   = "SUBSCRIPTION_UPDATED"
	ActionSubscriptionPaused    = "SUBSCRIPTION_PAUSED"
	ActionSubscriptionResumed   = "SUBSCRIPTION_RESUMED"
	ActionSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
	ActionRefundRequested       = "REFUND_REQUESTED"
	ActionRefundApproved        = "REFUND_APPROVED"
	ActionRefundRejected        = "REFUND_REJECTED"
	ActionUserInvited           = "USER_INVITED"
	ActionUserRoleChanged       = "USER_ROLE_CHANGED"
	ActionTierCreated           = "TIER_CREATED"
	ActionTierUpdated           = "TIER_UPDATED"
)

// Entry is an append-only audit record.
type Entry struct {
	ID        string                 `json:"id"`
	Action    string                 `json:"action"`
	Entity    string                 `json:"entity"`
	EntityID  string                 `json:"entityId"`
	UserID    *string                `json:"userId,omitempty"`
	OldValues map[string]interface{} `json:"oldValues,omitempty"`
	NewValues map[string]interface{} `json:"newValues,omitempty"`
	IPAddress string                 `json:"ipAddress"`
	UserAgent string                 `json:"userAgent"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
}

// Source identifies where an audited request came from.
type Source struct {
	IPAddress string
	UserAgent string
}
