package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockReceiver struct{ mock.Mock }

func (m *mockReceiver) Handle(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

func newRouter(svc *mockReceiver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/stripe", NewWebhookHandler(svc, zap.NewNop()).Stripe)
	return r
}

func post(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	svc := new(mockReceiver)
	svc.On("Handle", mock.Anything, payload, "t=1,v1=abc").Return(nil)

	w := post(newRouter(svc), payload, "t=1,v1=abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	svc := new(mockReceiver)
	w := post(newRouter(svc), []byte(`{}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing signature")
	svc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhookFailure(t *testing.T) {
	svc := new(mockReceiver)
	svc.On("Handle", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("signature mismatch"))

	w := post(newRouter(svc), []byte(`{}`), "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Webhook processing failed")
	assert.NotContains(t, w.Body.String(), "signature mismatch")
}

func TestStripeWebhookBodyLimit(t *testing.T) {
	svc := new(mockReceiver)
	big := []byte(strings.Repeat("a", MaxBodyBytes+1))

	w := post(newRouter(svc), big, "t=1,v1=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
}
