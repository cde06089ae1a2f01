package mocks

import (
	"context"
	"sync"

	"saas-billing/internal/domain/audit"
	"saas-billing/internal/events"
	"saas-billing/internal/pkg/payment"

	"github.com/stretchr/testify/mock"
)

type Gateway struct{ mock.Mock }

var _ payment.Gateway = (*Gateway)(nil)

func (m *Gateway) CreateCustomer(ctx context.Context, req payment.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Gateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return m.Called(ctx, customerID, paymentMethodID).Error(0)
}

func (m *Gateway) CreateSubscription(ctx context.Context, req payment.SubscriptionRequest) (*payment.SubscriptionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SubscriptionResult), args.Error(1)
}

func (m *Gateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*payment.SubscriptionResult, error) {
	args := m.Called(ctx, subscriptionID, priceID, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SubscriptionResult), args.Error(1)
}

func (m *Gateway) PauseSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *Gateway) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *Gateway) GetInvoiceCharge(ctx context.Context, invoiceID string) (string, error) {
	args := m.Called(ctx, invoiceID)
	return args.String(0), args.Error(1)
}

func (m *Gateway) CreateRefund(ctx context.Context, req payment.RefundRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Gateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*payment.Card, error) {
	args := m.Called(ctx, customerID, paymentMethodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Card), args.Error(1)
}

func (m *Gateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return m.Called(ctx, paymentMethodID).Error(0)
}

func (m *Gateway) ConstructEvent(payload []byte, signature string) (*payment.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Event), args.Error(1)
}

// AuditLog records entries in memory. Err, when set, fails every Log.
type AuditLog struct {
	mu      sync.Mutex
	Entries []*audit.Entry
	Err     error
}

func (a *AuditLog) Log(ctx context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Entries = append(a.Entries, e)
	return nil
}

func (a *AuditLog) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Events []events.Event
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, e)
	return nil
}

func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}

// Mail is one message captured by Mailer.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer captures sent mail. Err, when set, fails every Send.
type Mailer struct {
	mu   sync.Mutex
	Sent []Mail
	Err  error
}

func (m *Mailer) Send(ctx context.Context, to, subject, bodyHTML string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, Mail{To: to, Subject: subject, Body: bodyHTML})
	return nil
}

func (m *Mailer) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Sent))
	for _, s := range m.Sent {
		out = append(out, s.Subject)
	}
	return out
}
