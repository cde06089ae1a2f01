// internal/service/refund/refund.go
package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/metrics"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/rbac"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/service/email"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	maxPendingList  = 50
	decisionLockTTL = 2 * time.Minute
)

var (
	errRefundNotFound   = xerrors.New(xerrors.ErrNotFound, "Refund request not found")
	errRefundNotPending = xerrors.New(xerrors.ErrBadRequest, "Refund request is not pending")
	errRefundInProgress = xerrors.New(xerrors.ErrBadRequest, "Refund request is already being processed")
)

// refundFailed carries no cause so the provider error is not mapped to the
// generic payment message. Callers log the cause.
func refundFailed() error {
	return xerrors.New(xerrors.ErrBadRequest, "Failed to process refund")
}

type RefundService struct {
	refunds  refund.Repository
	invoices invoice.Repository
	gateway  payment.Gateway
	locker   *session.Locker
	audit    audit.Logger
	notifier *email.Notifier
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewRefundService(
	refunds refund.Repository,
	invoices invoice.Repository,
	gateway payment.Gateway,
	locker *session.Locker,
	auditLog audit.Logger,
	notifier *email.Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *RefundService {
	return &RefundService{
		refunds:  refunds,
		invoices: invoices,
		gateway:  gateway,
		locker:   locker,
		audit:    auditLog,
		notifier: notifier,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
	}
}

// Create opens a refund request for the full total of a paid invoice.
func (s *RefundService) Create(ctx context.Context, userID string, req *refund.CreateRequest) (*refund.Request, error) {
	if strings.TrimSpace(req.InvoiceID) == "" {
		return nil, xerrors.New(xerrors.ErrBadRequest, "Invoice is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, xerrors.New(xerrors.ErrBadRequest, "Reason is required")
	}

	inv, err := s.invoices.FindForUser(ctx, req.InvoiceID, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "Invoice not found")
		}
		return nil, err
	}
	if inv.Status != invoice.StatusPaid {
		return nil, xerrors.New(xerrors.ErrBadRequest, "Only paid invoices can be refunded")
	}

	open, err := s.refunds.HasOpenForInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, xerrors.New(xerrors.ErrBadRequest, "A refund request for this invoice is already pending")
	}

	r := &refund.Request{
		ID:        ulid.Make().String(),
		UserID:    userID,
		InvoiceID: inv.ID,
		Amount:    inv.Total,
		Reason:    reason,
		Status:    refund.StatusPending,
	}
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create refund request: %w", err)
	}

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionRefundRequested,
		Entity:    "RefundRequest",
		EntityID:  r.ID,
		UserID:    &userID,
		NewValues: map[string]interface{}{"invoiceId": inv.ID, "amount": r.Amount, "reason": reason},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	events.Emit(ctx, s.events, s.logger, events.New(events.RefundRequested, userID, r.ID, map[string]interface{}{
		"amount": r.Amount,
	}))

	s.logger.Info("refund requested",
		zap.String("user_id", userID),
		zap.String("refund_id", r.ID),
		zap.Float64("amount", r.Amount),
	)
	return r, nil
}

func (s *RefundService) ListMine(ctx context.Context, userID string) ([]*refund.Request, error) {
	return s.refunds.ListByUser(ctx, userID)
}

// ListPending lists open requests oldest first.
func (s *RefundService) ListPending(ctx context.Context, limit int) ([]*refund.Request, error) {
	return s.List(ctx, refund.StatusPending, limit)
}

// List filters by status; an empty status lists every request.
func (s *RefundService) List(ctx context.Context, status refund.Status, limit int) ([]*refund.Request, error) {
	if limit <= 0 || limit > maxPendingList {
		limit = maxPendingList
	}
	return s.refunds.ListByStatus(ctx, status, limit)
}

func authorize(admin *jwt.Claims) error {
	if admin == nil {
		return xerrors.New(xerrors.ErrUnauthorized, "Authentication required")
	}
	if err := rbac.RequirePermission(rbac.Role(admin.Role), rbac.ManageBilling); err != nil {
		return xerrors.New(xerrors.ErrForbidden, "Insufficient permissions").WithCause(err)
	}
	return nil
}

// lockDecision serialises approve and reject on one request. The open-status
// check must run after it succeeds.
func (s *RefundService) lockDecision(ctx context.Context, id string) (func(context.Context), error) {
	release, err := s.locker.Acquire(ctx, session.RefundLockKey(id), decisionLockTTL)
	if err != nil {
		if errors.Is(err, session.ErrLockHeld) {
			return nil, errRefundInProgress
		}
		return nil, err
	}
	return release, nil
}

func (s *RefundService) loadOpen(ctx context.Context, id string) (*refund.Request, error) {
	r, err := s.refunds.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, errRefundNotFound
		}
		return nil, err
	}
	if !r.Status.Open() {
		return nil, errRefundNotPending
	}
	return r, nil
}

// Approve refunds the request through the provider. A provider failure
// leaves the request untouched.
func (s *RefundService) Approve(ctx context.Context, admin *jwt.Claims, req *refund.DecisionRequest) (result *refund.Request, err error) {
	if err := authorize(admin); err != nil {
		return nil, err
	}
	defer func() {
		metrics.RefundsTotal.WithLabelValues("approve_" + metrics.Outcome(err)).Inc()
	}()

	release, err := s.lockDecision(ctx, req.RefundID)
	if err != nil {
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	r, err := s.loadOpen(ctx, req.RefundID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("refund_id", r.ID), zap.String("admin_id", admin.UserID))

	inv, err := s.invoices.FindByID(ctx, r.InvoiceID)
	if err != nil {
		log.Error("refund invoice lookup failed", zap.Error(err))
		return nil, refundFailed()
	}
	if inv.StripeInvoiceID == nil || *inv.StripeInvoiceID == "" {
		log.Error("refund invoice has no provider invoice")
		return nil, refundFailed()
	}

	chargeID, err := s.gateway.GetInvoiceCharge(ctx, *inv.StripeInvoiceID)
	if err != nil {
		log.Error("refund charge lookup failed", zap.Error(err))
		return nil, refundFailed()
	}

	stripeRefundID, err := s.gateway.CreateRefund(ctx, payment.RefundRequest{
		ChargeID:        chargeID,
		AmountCents:     payment.ToCents(r.Amount),
		RefundRequestID: r.ID,
	})
	if err != nil {
		log.Error("provider refund failed", zap.Error(err))
		return nil, refundFailed()
	}

	at := s.now()
	if err := s.refunds.MarkRefunded(ctx, r.ID, stripeRefundID, &admin.UserID, at); err != nil {
		return nil, fmt.Errorf("failed to update refund request: %w", err)
	}
	old := r.Status
	r.Status = refund.StatusRefunded
	r.StripeRefundID = &stripeRefundID
	r.ProcessedBy = &admin.UserID
	r.ProcessedAt = &at

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionRefundApproved,
		Entity:    "RefundRequest",
		EntityID:  r.ID,
		UserID:    &admin.UserID,
		OldValues: map[string]interface{}{"status": string(old)},
		NewValues: map[string]interface{}{"status": string(r.Status), "stripeRefundId": stripeRefundID},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	if r.User != nil {
		s.notifier.RefundApproved(ctx, r.User.Email, r.Amount)
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.RefundRefunded, r.UserID, r.ID, map[string]interface{}{
		"amount": r.Amount,
	}))

	log.Info("refund approved", zap.String("stripe_refund_id", stripeRefundID))
	return r, nil
}

func (s *RefundService) Reject(ctx context.Context, admin *jwt.Claims, req *refund.DecisionRequest) (result *refund.Request, err error) {
	if err := authorize(admin); err != nil {
		return nil, err
	}
	defer func() {
		metrics.RefundsTotal.WithLabelValues("reject_" + metrics.Outcome(err)).Inc()
	}()

	release, err := s.lockDecision(ctx, req.RefundID)
	if err != nil {
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	r, err := s.loadOpen(ctx, req.RefundID)
	if err != nil {
		return nil, err
	}

	note := strings.TrimSpace(req.Note)
	at := s.now()
	if err := s.refunds.MarkRejected(ctx, r.ID, note, admin.UserID, at); err != nil {
		return nil, fmt.Errorf("failed to update refund request: %w", err)
	}
	old := r.Status
	r.Status = refund.StatusRejected
	r.AdminNote = &note
	r.ProcessedBy = &admin.UserID
	r.ProcessedAt = &at

	s.record(ctx, &audit.Entry{
		Action:    audit.ActionRefundRejected,
		Entity:    "RefundRequest",
		EntityID:  r.ID,
		UserID:    &admin.UserID,
		OldValues: map[string]interface{}{"status": string(old)},
		NewValues: map[string]interface{}{"status": string(r.Status), "note": note},
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	if r.User != nil {
		s.notifier.RefundRejected(ctx, r.User.Email, r.Amount, note)
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.RefundRejected, r.UserID, r.ID, nil))
	return r, nil
}

func (s *RefundService) record(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.Error("failed to write audit entry",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}
