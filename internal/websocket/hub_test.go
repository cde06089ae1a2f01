package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	wstypes "saas-billing/internal/domain/websocket"
	"saas-billing/internal/events"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/rbac"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTokens map[string]*jwt.Claims

func (s stubTokens) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(stubTokens{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub
}

func connect(t *testing.T, hub *Hub, userID, role string) *Client {
	t.Helper()
	c := NewClient(hub, nil, &ClientAuth{UserID: userID, Role: role, SessionID: "s-" + userID})
	require.True(t, hub.Register(c))
	msg := recv(t, c)
	require.Equal(t, wstypes.EventTypeConnected, msg.Type)
	return c
}

func recv(t *testing.T, c *Client) *wstypes.WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		msg, err := wstypes.ParseMessage(data)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewClientChannels(t *testing.T) {
	hub := NewHub(stubTokens{}, zap.NewNop())

	user := NewClient(hub, nil, &ClientAuth{UserID: "u1", Role: rbac.RoleUser})
	assert.Equal(t, []wstypes.ChannelType{wstypes.ChannelBilling}, user.Channels())
	assert.False(t, user.Subscribe(wstypes.ChannelAdmin))
	assert.False(t, user.Subscribe("orders"))

	admin := NewClient(hub, nil, &ClientAuth{UserID: "a1", Role: rbac.RoleAdmin})
	assert.Equal(t, []wstypes.ChannelType{wstypes.ChannelBilling, wstypes.ChannelAdmin}, admin.Channels())
}

func TestPublishRouting(t *testing.T) {
	hub := startHub(t)
	owner := connect(t, hub, "u1", rbac.RoleUser)
	ownerTab := connect(t, hub, "u1", rbac.RoleUser)
	other := connect(t, hub, "u2", rbac.RoleUser)
	admin := connect(t, hub, "a1", rbac.RoleAdmin)

	require.Equal(t, 2, hub.ConnectedClients("u1"))
	require.Equal(t, 4, hub.TotalClients())

	ev := events.New(events.InvoicePaid, "u1", "inv-1", map[string]interface{}{"amount": 19.99})
	require.NoError(t, hub.Publish(context.Background(), ev))

	for _, c := range []*Client{owner, ownerTab, admin} {
		msg := recv(t, c)
		assert.Equal(t, wstypes.EventTypeBilling, msg.Type)

		raw, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		var got events.Event
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, events.InvoicePaid, got.Type)
		assert.Equal(t, "inv-1", got.EntityID)
	}
	assertSilent(t, other)
	assertSilent(t, admin)
}

func TestAdminOwnEventDeliveredOnce(t *testing.T) {
	hub := startHub(t)
	admin := connect(t, hub, "a1", rbac.RoleAdmin)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.RefundRequested, "a1", "r-1", nil)))
	recv(t, admin)
	assertSilent(t, admin)
}

func TestUnsubscribedOwnerSkipped(t *testing.T) {
	hub := startHub(t)
	owner := connect(t, hub, "u1", rbac.RoleUser)
	owner.Unsubscribe(wstypes.ChannelBilling)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.InvoiceFailed, "u1", "inv-2", nil)))
	assertSilent(t, owner)
}

func TestPublishBusy(t *testing.T) {
	hub := NewHub(stubTokens{}, zap.NewNop())
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), events.New(events.InvoicePaid, "u1", "x", nil)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := hub.Publish(ctx, events.New(events.InvoicePaid, "u1", "x", nil))
	assert.ErrorIs(t, err, ErrHubBusy)
}

func TestRegisterAfterStop(t *testing.T) {
	hub := NewHub(stubTokens{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := NewClient(hub, nil, &ClientAuth{UserID: "u1"})
	require.True(t, hub.Register(c))
	cancel()
	<-stopped

	assert.False(t, hub.Register(NewClient(hub, nil, &ClientAuth{UserID: "u2"})))
	assert.Zero(t, hub.TotalClients())

	// Connected frame, then closed.
	<-c.send
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestUnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "u1", rbac.RoleUser)

	hub.unregister <- c
	_, ok := <-c.send
	assert.False(t, ok)
	assert.Zero(t, hub.ConnectedClients("u1"))

	c.Close()
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypePong, nil))
}

func TestAuthenticateClient(t *testing.T) {
	hub := NewHub(stubTokens{"good": {UserID: "u1", Email: "u1@example.com", Role: rbac.RoleUser}}, zap.NewNop())

	_, err := hub.AuthenticateClient(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = hub.AuthenticateClient(context.Background(), "bad")
	assert.Error(t, err)

	auth, err := hub.AuthenticateClient(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", auth.UserID)
	assert.Equal(t, "u1@example.com", auth.Email)
}

func TestHandleMessage(t *testing.T) {
	hub := NewHub(stubTokens{}, zap.NewNop())
	c := NewClient(hub, nil, &ClientAuth{UserID: "u1", Role: rbac.RoleUser})

	c.handleMessage([]byte(`{"type":"ping"}`))
	assert.Equal(t, wstypes.EventTypePong, recv(t, c).Type)

	c.handleMessage([]byte(`{"type":"subscribe","data":{"channels":["admin","billing"]}}`))
	msg := recv(t, c)
	assert.Equal(t, wstypes.EventTypeSubscribe, msg.Type)
	assert.Equal(t, []interface{}{"billing"}, msg.Data.(map[string]interface{})["channels"])

	c.handleMessage([]byte(`{"type":"nonsense"}`))
	msg = recv(t, c)
	assert.Equal(t, wstypes.EventTypeError, msg.Type)
	assert.Equal(t, "unknown_event", msg.Data.(map[string]interface{})["code"])

	c.handleMessage([]byte(`not json`))
	assert.Equal(t, wstypes.EventTypeError, recv(t, c).Type)
}
