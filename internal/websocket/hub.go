// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "saas-billing/internal/domain/websocket"
	"saas-billing/internal/events"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/metrics"

	"go.uber.org/zap"
)

// TokenValidator checks a session token, including revocation.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// Hub owns every live connection. Clients are keyed by user id; a user
// may hold several connections.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
	done       chan struct{}

	handlerRegistry *HandlerRegistry
	tokens          TokenValidator
	logger          *zap.Logger
}

type broadcastMessage struct {
	userID  string
	message *wstypes.WSMessage
}

var _ events.Publisher = (*Hub)(nil)

func NewHub(tokens TokenValidator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *broadcastMessage, 256),
		done:            make(chan struct{}),
		handlerRegistry: NewHandlerRegistry(),
		tokens:          tokens,
		logger:          logger,
	}
}

// AuthenticateClient validates token and returns the identity to attach to
// a new connection.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims, err := h.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &ClientAuth{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.ID,
	}, nil
}

func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage runs the registered handler for msg, if any.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	return h.handlerRegistry.Dispatch(ctx, client, msg)
}

// Register hands a new client to the hub loop. It reports false once the
// hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Publish queues a billing event for the owning user and for admins
// watching the admin channel. It never blocks past ctx.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	msg := &broadcastMessage{
		userID:  e.UserID,
		message: wstypes.NewMessage(wstypes.EventTypeBilling, e),
	}
	select {
	case h.broadcast <- msg:
		metrics.EventsPublished.WithLabelValues("websocket", "success").Inc()
		return nil
	case <-ctx.Done():
		metrics.EventsPublished.WithLabelValues("websocket", "error").Inc()
		return ErrHubBusy
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"userId":   client.userID,
		"role":     client.role,
		"channels": client.Channels(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)
}

// deliver sends msg once to each client that is either the event owner
// on the billing channel or an admin on the admin channel.
func (h *Hub) deliver(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]bool)
	for client := range h.clients[msg.userID] {
		if client.IsSubscribed(wstypes.ChannelBilling) {
			client.SendMessage(msg.message)
			sent[client] = true
		}
	}
	for _, clients := range h.clients {
		for client := range clients {
			if sent[client] || !client.IsSubscribed(wstypes.ChannelAdmin) {
				continue
			}
			client.SendMessage(msg.message)
		}
	}
}

// drop removes a client whose send buffer is full. It runs outside the hub
// loop so a caller holding the read lock cannot deadlock.
func (h *Hub) drop(client *Client) {
	go func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()
}

func (h *Hub) ConnectedClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, userID)
	}
}
