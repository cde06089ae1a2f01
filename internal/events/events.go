// Package events carries billing state changes to live subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	SubscriptionCreated   = "subscription.created"
	SubscriptionUpdated   = "subscription.updated"
	SubscriptionPaused    = "subscription.paused"
	SubscriptionResumed   = "subscription.resumed"
	SubscriptionCancelled = "subscription.cancelled"
	SubscriptionExpired   = "subscription.expired"
	InvoicePaid           = "invoice.paid"
	InvoiceFailed         = "invoice.failed"
	RefundRequested       = "refund.requested"
	RefundRefunded        = "refund.refunded"
	RefundRejected        = "refund.rejected"
)

// PublishTimeout bounds a single best-effort publish.
const PublishTimeout = 2 * time.Second

type Event struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"userId"`
	EntityID   string                 `json:"entityId"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

func New(eventType, userID, entityID string, data map[string]interface{}) Event {
	return Event{
		Type:       eventType,
		UserID:     userID,
		EntityID:   entityID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes e without failing the caller.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("failed to publish billing event",
			zap.String("type", e.Type),
			zap.String("user_id", e.UserID),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}
