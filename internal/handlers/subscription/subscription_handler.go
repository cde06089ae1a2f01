// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"context"
	"net/http"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/paymentmethod"
	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/middleware"
	"saas-billing/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Billing is the subscription service as seen by the HTTP layer.
type Billing interface {
	Checkout(ctx context.Context, userID string, req *subscription.CheckoutRequest) (*subscription.CheckoutResponse, error)
	GetCurrent(ctx context.Context, userID string) (*subscription.Subscription, error)
	ChangePlan(ctx context.Context, userID string, req *subscription.ChangePlanRequest) (*subscription.Subscription, error)
	Pause(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error)
	Resume(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error)
	Cancel(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error)

	ListInvoices(ctx context.Context, userID string) ([]*invoice.Invoice, error)
	GetInvoice(ctx context.Context, userID, id string) (*invoice.Invoice, error)

	ListPaymentMethods(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, userID, providerPaymentMethodID string) (*paymentmethod.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, userID, id string) error
	DetachPaymentMethod(ctx context.Context, userID, id string) error
}

type SubscriptionHandler struct {
	billing Billing
	logger  *zap.Logger
}

func NewSubscriptionHandler(billing Billing, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		billing: billing,
		logger:  logger,
	}
}

// ========== Checkout ==========

// Subscribe runs checkout. Field checks happen in the service so their
// order and messages stay fixed.
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req subscription.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	result, err := h.billing.Checkout(c.Request.Context(), userID, &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to create subscription")
		return
	}

	response.Success(c, http.StatusCreated, result.Message, result)
}

// ========== Lifecycle ==========

func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	sub, err := h.billing.GetCurrent(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load subscription")
		return
	}
	response.Success(c, http.StatusOK, "Subscription retrieved", sub)
}

func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	var req subscription.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}
	src := middleware.Source(c)
	req.IPAddress, req.UserAgent = src.IPAddress, src.UserAgent

	sub, err := h.billing.ChangePlan(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to change plan")
		return
	}
	response.Success(c, http.StatusOK, "Subscription plan updated", sub)
}

type transition func(ctx context.Context, userID string, src audit.Source) (*subscription.Subscription, error)

func (h *SubscriptionHandler) runTransition(c *gin.Context, fn transition, ok, failed string) {
	sub, err := fn(c.Request.Context(), middleware.MustGetUserID(c), middleware.Source(c))
	if err != nil {
		response.HandleError(c, h.logger, err, failed)
		return
	}
	response.Success(c, http.StatusOK, ok, sub)
}

func (h *SubscriptionHandler) Pause(c *gin.Context) {
	h.runTransition(c, h.billing.Pause, "Subscription paused", "Failed to pause subscription")
}

func (h *SubscriptionHandler) Resume(c *gin.Context) {
	h.runTransition(c, h.billing.Resume, "Subscription resumed", "Failed to resume subscription")
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	h.runTransition(c, h.billing.Cancel, "Subscription cancelled", "Failed to cancel subscription")
}

// ========== Invoices ==========

func (h *SubscriptionHandler) ListInvoices(c *gin.Context) {
	invoices, err := h.billing.ListInvoices(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load invoices")
		return
	}
	if invoices == nil {
		invoices = []*invoice.Invoice{}
	}
	response.Success(c, http.StatusOK, "Invoices retrieved", invoices)
}

func (h *SubscriptionHandler) GetInvoice(c *gin.Context) {
	inv, err := h.billing.GetInvoice(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id"))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load invoice")
		return
	}
	response.Success(c, http.StatusOK, "Invoice retrieved", inv)
}

// ========== Payment methods ==========

func (h *SubscriptionHandler) ListPaymentMethods(c *gin.Context) {
	methods, err := h.billing.ListPaymentMethods(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to load payment methods")
		return
	}
	if methods == nil {
		methods = []*paymentmethod.PaymentMethod{}
	}
	response.Success(c, http.StatusOK, "Payment methods retrieved", methods)
}

func (h *SubscriptionHandler) AttachPaymentMethod(c *gin.Context) {
	var req paymentmethod.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid input data")
		return
	}

	pm, err := h.billing.AttachPaymentMethod(c.Request.Context(), middleware.MustGetUserID(c), req.PaymentMethodID)
	if err != nil {
		response.HandleError(c, h.logger, err, "Failed to add payment method")
		return
	}
	response.Success(c, http.StatusCreated, "Payment method added", pm)
}

func (h *SubscriptionHandler) SetDefaultPaymentMethod(c *gin.Context) {
	if err := h.billing.SetDefaultPaymentMethod(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id")); err != nil {
		response.HandleError(c, h.logger, err, "Failed to update payment method")
		return
	}
	response.Success(c, http.StatusOK, "Default payment method updated", nil)
}

func (h *SubscriptionHandler) DetachPaymentMethod(c *gin.Context) {
	if err := h.billing.DetachPaymentMethod(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id")); err != nil {
		response.HandleError(c, h.logger, err, "Failed to remove payment method")
		return
	}
	response.Success(c, http.StatusOK, "Payment method removed", nil)
}
