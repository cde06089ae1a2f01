// internal/websocket/handler/subscription.go
package handler

import (
	"context"
	"errors"
	"fmt"

	"saas-billing/internal/domain/subscription"
	wstypes "saas-billing/internal/domain/websocket"
	xerrors "saas-billing/internal/pkg/errors"
	ws "saas-billing/internal/websocket"
)

// SubscriptionReader loads the caller's current subscription.
type SubscriptionReader interface {
	GetCurrent(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// SubscriptionHandler answers subscription.status requests so a client can
// resync after reconnecting.
type SubscriptionHandler struct {
	subscriptions SubscriptionReader
}

func NewSubscriptionHandler(subscriptions SubscriptionReader) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

func (h *SubscriptionHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeSubscriptionStatus}
}

func (h *SubscriptionHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	if msg.Type != wstypes.EventTypeSubscriptionStatus {
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}

	sub, err := h.subscriptions.GetCurrent(ctx, client.UserID())
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			client.SendMessage(wstypes.NewMessage(wstypes.EventTypeSubscriptionStatus, map[string]interface{}{
				"subscription": nil,
			}))
			return nil
		}
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeSubscriptionStatus, map[string]interface{}{
		"subscription": sub,
	}))
	return nil
}
