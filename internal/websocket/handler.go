// internal/websocket/handler.go
package websocket

import (
	"context"
	"sync"

	wstypes "saas-billing/internal/domain/websocket"
)

// MessageHandler answers client-initiated messages of the types it lists.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// HandlerRegistry routes inbound messages by type. Registration may race
// with client read pumps, so lookups take the read lock.
type HandlerRegistry struct {
	mu     sync.RWMutex
	routes map[wstypes.EventType]MessageHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{routes: make(map[wstypes.EventType]MessageHandler)}
}

// Register claims every type the handler lists. The last registration for
// a type wins.
func (r *HandlerRegistry) Register(handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range handler.SupportedEvents() {
		r.routes[t] = handler
	}
}

// Dispatch reports whether a handler claimed msg, and its error.
func (r *HandlerRegistry) Dispatch(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	r.mu.RLock()
	handler, ok := r.routes[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}
