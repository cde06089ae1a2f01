package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"saas-billing/internal/domain/subscription"
	wstypes "saas-billing/internal/domain/websocket"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/rbac"
	ws "saas-billing/internal/websocket"
	"saas-billing/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
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

type stubSubscriptions map[string]*subscription.Subscription

func (s stubSubscriptions) GetCurrent(ctx context.Context, userID string) (*subscription.Subscription, error) {
	if sub, ok := s[userID]; ok {
		return sub, nil
	}
	return nil, xerrors.ErrNotFound
}

func newServer(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(stubTokens{
		"user-token": {UserID: "u1", Email: "u1@example.com", Role: rbac.RoleUser},
	}, zap.NewNop())
	hub.RegisterHandler(handler.NewSubscriptionHandler(stubSubscriptions{
		"u1": {ID: "sub-1", UserID: "u1", Status: subscription.StatusActive},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	h := NewWebSocketHandler(hub, []string{"http://app.example.com"}, zap.NewNop())
	r.GET("/ws", h.HandleConnection)
	r.GET("/ws/stats", h.GetStats)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func read(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wstypes.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestHandleConnectionRejectsAnonymous(t *testing.T) {
	srv, _ := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "?token=bogus"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleConnectionRejectsForeignOrigin(t *testing.T) {
	srv, _ := newServer(t)

	header := http.Header{"Origin": {"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=user-token"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleConnectionEndToEnd(t *testing.T) {
	srv, hub := newServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=user-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	connected := read(t, conn)
	require.Equal(t, wstypes.EventTypeConnected, connected.Type)
	assert.Equal(t, "u1", connected.Data.(map[string]interface{})["userId"])

	require.NoError(t, hub.Publish(context.Background(), events.New(events.InvoicePaid, "u1", "inv-1", nil)))
	billing := read(t, conn)
	assert.Equal(t, wstypes.EventTypeBilling, billing.Type)
	assert.Equal(t, events.InvoicePaid, billing.Data.(map[string]interface{})["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": string(wstypes.EventTypeSubscriptionStatus)}))
	status := read(t, conn)
	assert.Equal(t, wstypes.EventTypeSubscriptionStatus, status.Type)
	sub := status.Data.(map[string]interface{})["subscription"].(map[string]interface{})
	assert.Equal(t, "sub-1", sub["id"])
}

func TestCookieToken(t *testing.T) {
	srv, hub := newServer(t)

	header := http.Header{"Cookie": {"auth-token=user-token"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	read(t, conn)
	assert.Eventually(t, func() bool { return hub.ConnectedClients("u1") == 1 }, time.Second, 10*time.Millisecond)
}
