package payment

import (
	"context"
	"errors"
	"time"

	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/metrics"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around provider calls.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig opens after 5 consecutive failures for 30s and lets a
// single probe through while half-open.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "stripe",
		FailureThreshold: 5,
		MaxRequests:      1,
		Timeout:          30 * time.Second,
	}
}

// BreakerGateway guards another Gateway with a circuit breaker and records
// call latency.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerGateway(next Gateway, cfg BreakerConfig, logger *zap.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return &BreakerGateway{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}
}

// countsAsSuccess keeps client-side rejections (declined cards, bad params,
// missing resources) from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
			return true
		}
	}
	return false
}

func call[T any](b *BreakerGateway, op string, fn func() (T, error)) (T, error) {
	start := time.Now()

	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	metrics.PaymentProviderCalls.WithLabelValues(op, metrics.Outcome(err)).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, xerrors.New(xerrors.ErrPaymentProvider, "payment provider unavailable").WithCause(err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func exec(b *BreakerGateway, op string, fn func() error) error {
	_, err := call(b, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// State exposes the breaker state.
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	return call(b, "create_customer", func() (string, error) {
		return b.next.CreateCustomer(ctx, req)
	})
}

func (b *BreakerGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return exec(b, "set_default_payment_method", func() error {
		return b.next.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
	})
}

func (b *BreakerGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	return call(b, "create_subscription", func() (*SubscriptionResult, error) {
		return b.next.CreateSubscription(ctx, req)
	})
}

func (b *BreakerGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*SubscriptionResult, error) {
	return call(b, "update_subscription", func() (*SubscriptionResult, error) {
		return b.next.UpdateSubscriptionPrice(ctx, subscriptionID, priceID, metadata)
	})
}

func (b *BreakerGateway) PauseSubscription(ctx context.Context, subscriptionID string) error {
	return exec(b, "pause_subscription", func() error {
		return b.next.PauseSubscription(ctx, subscriptionID)
	})
}

func (b *BreakerGateway) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	return exec(b, "resume_subscription", func() error {
		return b.next.ResumeSubscription(ctx, subscriptionID)
	})
}

func (b *BreakerGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return exec(b, "cancel_subscription", func() error {
		return b.next.CancelSubscription(ctx, subscriptionID)
	})
}

func (b *BreakerGateway) GetInvoiceCharge(ctx context.Context, invoiceID string) (string, error) {
	return call(b, "get_invoice_charge", func() (string, error) {
		return b.next.GetInvoiceCharge(ctx, invoiceID)
	})
}

func (b *BreakerGateway) CreateRefund(ctx context.Context, req RefundRequest) (string, error) {
	return call(b, "create_refund", func() (string, error) {
		return b.next.CreateRefund(ctx, req)
	})
}

func (b *BreakerGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Card, error) {
	return call(b, "attach_payment_method", func() (*Card, error) {
		return b.next.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	})
}

func (b *BreakerGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	return exec(b, "detach_payment_method", func() error {
		return b.next.DetachPaymentMethod(ctx, paymentMethodID)
	})
}

// ConstructEvent is local signature verification and bypasses the breaker.
func (b *BreakerGateway) ConstructEvent(payload []byte, signature string) (*Event, error) {
	return b.next.ConstructEvent(payload, signature)
}
