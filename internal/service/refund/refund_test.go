package refund

import (
	"context"
	"testing"
	"time"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/refund"
	"saas-billing/internal/events"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/payment"
	"saas-billing/internal/pkg/session"
	"saas-billing/internal/service/email"
	"saas-billing/internal/testutil/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc      *RefundService
	refunds  *mocks.RefundRepo
	invoices *mocks.InvoiceRepo
	gateway  *mocks.Gateway
	audit    *mocks.AuditLog
	mailer   *mocks.Mailer
	events   *mocks.Publisher
	redis    *redis.Client
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		refunds:  &mocks.RefundRepo{},
		invoices: &mocks.InvoiceRepo{},
		gateway:  &mocks.Gateway{},
		audit:    &mocks.AuditLog{},
		mailer:   &mocks.Mailer{},
		events:   &mocks.Publisher{},
		redis:    client,
		now:      time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	f.svc = NewRefundService(f.refunds, f.invoices, f.gateway, session.NewLocker(client), f.audit,
		email.NewNotifier(f.mailer, logger, "https://app.example.com"), f.events, logger)
	f.svc.now = func() time.Time { return f.now }
	return f
}

var (
	admin = &jwt.Claims{UserID: "01HADMIN", Email: "admin@example.com", Role: "ADMIN"}
	user  = &jwt.Claims{UserID: "01HUSER", Email: "jane@example.com", Role: "USER"}
)

func paidInvoice() *invoice.Invoice {
	stripeID := "in_1"
	return &invoice.Invoice{ID: "01HINV", UserID: "01HUSER", Status: invoice.StatusPaid, Total: 29, StripeInvoiceID: &stripeID}
}

func pendingRequest() *refund.Request {
	return &refund.Request{
		ID:        "01HREF",
		UserID:    "01HUSER",
		InvoiceID: "01HINV",
		Amount:    29,
		Status:    refund.StatusPending,
		User:      &refund.Requester{ID: "01HUSER", Email: "jane@example.com", Name: "Jane"},
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		req     refund.CreateRequest
		kind    error
		message string
	}{
		{
			name:    "missing invoice",
			req:     refund.CreateRequest{Reason: "x"},
			kind:    xerrors.ErrBadRequest,
			message: "Invoice is required",
		},
		{
			name:    "blank reason",
			req:     refund.CreateRequest{InvoiceID: "01HINV", Reason: "   "},
			kind:    xerrors.ErrBadRequest,
			message: "Reason is required",
		},
		{
			name: "someone else's invoice",
			setup: func(f *fixture) {
				f.invoices.On("FindForUser", mock.Anything, "01HINV", "01HUSER").Return(nil, xerrors.ErrNotFound)
			},
			req:     refund.CreateRequest{InvoiceID: "01HINV", Reason: "duplicate charge"},
			kind:    xerrors.ErrNotFound,
			message: "Invoice not found",
		},
		{
			name: "unpaid invoice",
			setup: func(f *fixture) {
				inv := paidInvoice()
				inv.Status = invoice.StatusPending
				f.invoices.On("FindForUser", mock.Anything, "01HINV", "01HUSER").Return(inv, nil)
			},
			req:     refund.CreateRequest{InvoiceID: "01HINV", Reason: "duplicate charge"},
			kind:    xerrors.ErrBadRequest,
			message: "Only paid invoices can be refunded",
		},
		{
			name: "already open",
			setup: func(f *fixture) {
				f.invoices.On("FindForUser", mock.Anything, "01HINV", "01HUSER").Return(paidInvoice(), nil)
				f.refunds.On("HasOpenForInvoice", mock.Anything, "01HINV").Return(true, nil)
			},
			req:     refund.CreateRequest{InvoiceID: "01HINV", Reason: "duplicate charge"},
			kind:    xerrors.ErrBadRequest,
			message: "A refund request for this invoice is already pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.svc.Create(context.Background(), "01HUSER", &tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.message, xerrors.MessageOrDefault(err, ""))
			f.refunds.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	f.invoices.On("FindForUser", mock.Anything, "01HINV", "01HUSER").Return(paidInvoice(), nil)
	f.refunds.On("HasOpenForInvoice", mock.Anything, "01HINV").Return(false, nil)
	f.refunds.On("Create", mock.Anything, mock.MatchedBy(func(r *refund.Request) bool {
		return r.Amount == 29 && r.Status == refund.StatusPending && r.Reason == "duplicate charge" && r.ID != ""
	})).Return(nil).Once()

	r, err := f.svc.Create(context.Background(), "01HUSER", &refund.CreateRequest{InvoiceID: "01HINV", Reason: "  duplicate charge "})
	require.NoError(t, err)
	assert.Equal(t, "01HINV", r.InvoiceID)
	assert.Equal(t, []string{audit.ActionRefundRequested}, f.audit.Actions())
	assert.Equal(t, []string{events.RefundRequested}, f.events.Types())
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(pendingRequest(), nil)
	f.invoices.On("FindByID", mock.Anything, "01HINV").Return(paidInvoice(), nil)
	f.gateway.On("GetInvoiceCharge", mock.Anything, "in_1").Return("ch_1", nil)
	f.gateway.On("CreateRefund", mock.Anything, payment.RefundRequest{
		ChargeID: "ch_1", AmountCents: 2900, RefundRequestID: "01HREF",
	}).Return("re_1", nil).Once()
	adminID := "01HADMIN"
	f.refunds.On("MarkRefunded", mock.Anything, "01HREF", "re_1", &adminID, f.now).Return(nil).Once()

	r, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	require.NoError(t, err)

	assert.Equal(t, refund.StatusRefunded, r.Status)
	assert.Equal(t, "re_1", *r.StripeRefundID)
	f.refunds.AssertExpectations(t)
	assert.Equal(t, []string{audit.ActionRefundApproved}, f.audit.Actions())
	assert.Equal(t, []string{"Refund Approved"}, f.mailer.Subjects())
	assert.Contains(t, f.mailer.Sent[0].Body, "$29.00")
	assert.Equal(t, []string{events.RefundRefunded}, f.events.Types())
}

func TestDecision_LockHeldByAnotherAdmin(t *testing.T) {
	decide := map[string]func(f *fixture) (*refund.Request, error){
		"approve": func(f *fixture) (*refund.Request, error) {
			return f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
		},
		"reject": func(f *fixture) (*refund.Request, error) {
			return f.svc.Reject(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF", Note: "no"})
		},
	}
	for name, run := range decide {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.redis.Set(context.Background(), session.RefundLockKey("01HREF"), "other", time.Minute).Err())

			_, err := run(f)
			assert.ErrorIs(t, err, xerrors.ErrBadRequest)
			assert.Equal(t, "Refund request is already being processed", xerrors.MessageOrDefault(err, ""))
			f.refunds.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
			assert.Empty(t, f.gateway.Calls)
		})
	}
}

func TestApprove_SecondApprovalSeesRefundedRequest(t *testing.T) {
	f := newFixture(t)
	refunded := pendingRequest()
	refunded.Status = refund.StatusRefunded
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(pendingRequest(), nil).Once()
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(refunded, nil)
	f.invoices.On("FindByID", mock.Anything, "01HINV").Return(paidInvoice(), nil)
	f.gateway.On("GetInvoiceCharge", mock.Anything, "in_1").Return("ch_1", nil)
	f.gateway.On("CreateRefund", mock.Anything, mock.Anything).Return("re_1", nil)
	f.refunds.On("MarkRefunded", mock.Anything, "01HREF", "re_1", mock.Anything, f.now).Return(nil)

	_, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	require.NoError(t, err)
	exists, err := f.redis.Exists(context.Background(), session.RefundLockKey("01HREF")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock released")

	_, err = f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	assert.Equal(t, "Refund request is not pending", xerrors.MessageOrDefault(err, ""))
	f.gateway.AssertNumberOfCalls(t, "CreateRefund", 1)
}

func TestApprove_RequiresManageBilling(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), user, &refund.DecisionRequest{RefundID: "01HREF"})
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
	assert.Equal(t, "Insufficient permissions", xerrors.MessageOrDefault(err, ""))
	f.refunds.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestApprove_NotPending(t *testing.T) {
	f := newFixture(t)
	r := pendingRequest()
	r.Status = refund.StatusRejected
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(r, nil)

	_, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	assert.Equal(t, "Refund request is not pending", xerrors.MessageOrDefault(err, ""))
}

func TestApprove_Missing(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("FindByID", mock.Anything, "01HNOPE").Return(nil, xerrors.ErrNotFound)

	_, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HNOPE"})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, "Refund request not found", xerrors.MessageOrDefault(err, ""))
}

func TestApprove_ProviderFailureLeavesRequestPending(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(pendingRequest(), nil)
	f.invoices.On("FindByID", mock.Anything, "01HINV").Return(paidInvoice(), nil)
	f.gateway.On("GetInvoiceCharge", mock.Anything, "in_1").Return("ch_1", nil)
	f.gateway.On("CreateRefund", mock.Anything, mock.Anything).
		Return("", xerrors.New(xerrors.ErrPaymentProvider, "payment provider request failed"))

	_, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrBadRequest)
	assert.NotErrorIs(t, err, xerrors.ErrPaymentProvider)
	assert.Equal(t, "Failed to process refund", xerrors.MessageOrDefault(err, ""))

	f.refunds.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.audit.Entries)
	assert.Empty(t, f.mailer.Sent)
}

func TestApprove_ChargeLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(pendingRequest(), nil)
	f.invoices.On("FindByID", mock.Anything, "01HINV").Return(paidInvoice(), nil)
	f.gateway.On("GetInvoiceCharge", mock.Anything, "in_1").Return("", assert.AnError)

	_, err := f.svc.Approve(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF"})
	assert.Equal(t, "Failed to process refund", xerrors.MessageOrDefault(err, ""))
	f.gateway.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("FindByID", mock.Anything, "01HREF").Return(pendingRequest(), nil)
	f.refunds.On("MarkRejected", mock.Anything, "01HREF", "outside refund window", "01HADMIN", f.now).Return(nil).Once()

	r, err := f.svc.Reject(context.Background(), admin, &refund.DecisionRequest{RefundID: "01HREF", Note: " outside refund window "})
	require.NoError(t, err)

	assert.Equal(t, refund.StatusRejected, r.Status)
	f.refunds.AssertExpectations(t)
	assert.Equal(t, []string{audit.ActionRefundRejected}, f.audit.Actions())
	require.Len(t, f.mailer.Sent, 1)
	assert.Contains(t, f.mailer.Sent[0].Body, "outside refund window")
	f.gateway.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
}

func TestList_CapsLimit(t *testing.T) {
	f := newFixture(t)
	f.refunds.On("ListByStatus", mock.Anything, refund.StatusPending, 50).Return([]*refund.Request{pendingRequest()}, nil).Twice()

	got, err := f.svc.ListPending(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.ListPending(context.Background(), 0)
	require.NoError(t, err)
	f.refunds.AssertExpectations(t)
}
