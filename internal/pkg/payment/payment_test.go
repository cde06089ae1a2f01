package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"saas-billing/internal/domain/invoice"
	"saas-billing/internal/domain/subscription"
	xerrors "saas-billing/internal/pkg/errors"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

func TestMapSubscriptionStatus(t *testing.T) {
	tests := map[string]subscription.Status{
		"trialing":           subscription.StatusTrial,
		"active":             subscription.StatusActive,
		"past_due":           subscription.StatusPastDue,
		"unpaid":             subscription.StatusPastDue,
		"paused":             subscription.StatusPaused,
		"canceled":           subscription.StatusCancelled,
		"incomplete_expired": subscription.StatusExpired,
		"incomplete":         subscription.StatusActive,
		"":                   subscription.StatusActive,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapSubscriptionStatus(in), in)
	}
}

func TestMapInvoiceStatus(t *testing.T) {
	tests := map[string]invoice.Status{
		"draft":         invoice.StatusPending,
		"open":          invoice.StatusPending,
		"paid":          invoice.StatusPaid,
		"uncollectible": invoice.StatusFailed,
		"void":          invoice.StatusCancelled,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapInvoiceStatus(in), in)
	}
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(2900), ToCents(29))
	assert.Equal(t, int64(2999), ToCents(29.99))
	assert.Equal(t, int64(30), ToCents(0.1+0.2))
	assert.Equal(t, 29.99, FromCents(2999))
}

type stubGateway struct {
	Gateway
	err   error
	calls int
}

func (s *stubGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "cus_123", nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubGateway{err: errors.New("connection reset")}
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-open"
	b := NewBreakerGateway(stub, cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.CreateCustomer(context.Background(), CustomerRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.CreateCustomer(context.Background(), CustomerRequest{})
	assert.True(t, errors.Is(err, xerrors.ErrPaymentProvider))
	assert.Equal(t, 5, stub.calls, "open breaker must not reach the provider")
}

func TestBreakerIgnoresCardErrors(t *testing.T) {
	stub := &stubGateway{err: xerrors.New(xerrors.ErrPaymentProvider, "declined").
		WithCause(&stripe.Error{Type: stripe.ErrorTypeCard, Msg: "card declined"})}
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-card"
	b := NewBreakerGateway(stub, cfg, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := b.CreateCustomer(context.Background(), CustomerRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 10, stub.calls)
}

func TestBreakerPassesResults(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Name = "test-ok"
	b := NewBreakerGateway(&stubGateway{}, cfg, zap.NewNop())

	id, err := b.CreateCustomer(context.Background(), CustomerRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", id)
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestConstructEvent(t *testing.T) {
	const secret = "whsec_test"
	g := NewStripeGateway("sk_test", secret, zap.NewNop())
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1","object":"invoice"}}}`)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := g.ConstructEvent(payload, signPayload(payload, secret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, "invoice.payment_succeeded", ev.Type)
		assert.Contains(t, string(ev.Raw), `"in_1"`)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := g.ConstructEvent(payload, signPayload(payload, "whsec_other", time.Now()))
		assert.True(t, errors.Is(err, xerrors.ErrBadRequest))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := g.ConstructEvent(payload, signPayload(payload, secret, time.Now().Add(-time.Hour)))
		assert.Error(t, err)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := NewStripeGateway("sk_test", "", zap.NewNop()).ConstructEvent(payload, "t=1,v1=x")
		assert.True(t, errors.Is(err, xerrors.ErrConfiguration))
	})
}
