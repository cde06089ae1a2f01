// internal/handlers/webhook/webhook_handler.go
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBodyBytes caps a webhook payload.
const MaxBodyBytes = 64 << 10

const signatureHeader = "Stripe-Signature"

type Receiver interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	receiver Receiver
	logger   *zap.Logger
}

func NewWebhookHandler(receiver Receiver, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver: receiver,
		logger:   logger,
	}
}

// Stripe verifies and applies one provider event. Any failure answers 400
// so the provider retries.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	signature := c.GetHeader(signatureHeader)
	if signature == "" {
		response.Error(c, http.StatusBadRequest, "Missing signature")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook payload too large", zap.Int64("limit", tooLarge.Limit))
		} else {
			h.logger.Warn("failed to read webhook payload", zap.Error(err))
		}
		response.Error(c, http.StatusBadRequest, "Webhook processing failed")
		return
	}

	if err := h.receiver.Handle(c.Request.Context(), payload, signature); err != nil {
		h.logger.Warn("webhook processing failed", zap.Error(err))
		response.Error(c, http.StatusBadRequest, "Webhook processing failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
