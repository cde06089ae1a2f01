// internal/pkg/payment/stripe.go
package payment

import (
	"context"
	"errors"
	"fmt"

	xerrors "saas-billing/internal/pkg/errors"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

const metadataUserIDKey = "userId"

// StripeGateway talks to the Stripe API. The SDK is not context aware, so
// every call carries ctx through params.Context.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	logger        *zap.Logger
}

func NewStripeGateway(apiKey, webhookSecret string, logger *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{
		client:        sc,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	if req.Address.Country != "" {
		params.Address = addressParams(req.Address)
	}
	if req.Shipping != nil {
		params.Shipping = &stripe.CustomerShippingParams{
			Name:    stripe.String(req.Name),
			Address: addressParams(*req.Shipping),
		}
	}
	params.AddMetadata(metadataUserIDKey, req.UserID)
	params.Context = ctx

	cus, err := g.client.Customers.New(params)
	if err != nil {
		return "", g.fail("CreateCustomer", err)
	}

	g.logger.Info("stripe customer created",
		zap.String("stripe_customer_id", cus.ID),
		zap.String("user_id", req.UserID),
	)
	return cus.ID, nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := g.client.Customers.Update(customerID, params); err != nil {
		return g.fail("SetDefaultPaymentMethod", err)
	}
	return nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		Description:     stripe.String(req.Description),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.Context = ctx

	sub, err := g.client.Subscriptions.New(params)
	if err != nil {
		return nil, g.fail("CreateSubscription", err)
	}

	g.logger.Info("stripe subscription created",
		zap.String("stripe_subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
	)
	return subscriptionResult(sub), nil
}

func (g *StripeGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) (*SubscriptionResult, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	current, err := g.client.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return nil, g.fail("GetSubscription", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, xerrors.New(xerrors.ErrPaymentProvider, "subscription has no items")
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sub, err := g.client.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, g.fail("UpdateSubscriptionPrice", err)
	}
	return subscriptionResult(sub), nil
}

func (g *StripeGateway) PauseSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("mark_uncollectible"),
		},
	}
	params.Context = ctx

	if _, err := g.client.Subscriptions.Update(subscriptionID, params); err != nil {
		return g.fail("PauseSubscription", err)
	}
	return nil
}

func (g *StripeGateway) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	// An empty value unsets pause_collection.
	params.AddExtra("pause_collection", "")
	params.Context = ctx

	if _, err := g.client.Subscriptions.Update(subscriptionID, params); err != nil {
		return g.fail("ResumeSubscription", err)
	}
	return nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := g.client.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			g.logger.Warn("stripe subscription already gone",
				zap.String("stripe_subscription_id", subscriptionID),
			)
			return nil
		}
		return g.fail("CancelSubscription", err)
	}
	return nil
}

func (g *StripeGateway) GetInvoiceCharge(ctx context.Context, invoiceID string) (string, error) {
	params := &stripe.InvoiceParams{}
	params.AddExpand("charge")
	params.Context = ctx

	inv, err := g.client.Invoices.Get(invoiceID, params)
	if err != nil {
		return "", g.fail("GetInvoice", err)
	}
	if inv.Charge == nil || inv.Charge.ID == "" {
		return "", xerrors.Newf(xerrors.ErrPaymentProvider, "invoice %s has no charge", invoiceID)
	}
	return inv.Charge.ID, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(req.ChargeID),
		Amount: stripe.Int64(req.AmountCents),
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata("refundRequestId", req.RefundRequestID)
	params.Context = ctx

	ref, err := g.client.Refunds.New(params)
	if err != nil {
		return "", g.fail("CreateRefund", err)
	}

	g.logger.Info("stripe refund created",
		zap.String("stripe_refund_id", ref.ID),
		zap.String("refund_request_id", req.RefundRequestID),
	)
	return ref.ID, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Card, error) {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	pm, err := g.client.PaymentMethods.Attach(paymentMethodID, params)
	if err != nil {
		return nil, g.fail("AttachPaymentMethod", err)
	}

	card := &Card{ID: pm.ID}
	if pm.Card != nil {
		card.Brand = string(pm.Card.Brand)
		card.Last4 = pm.Card.Last4
		card.ExpMonth = int(pm.Card.ExpMonth)
		card.ExpYear = int(pm.Card.ExpYear)
	}
	return card, nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx

	if _, err := g.client.PaymentMethods.Detach(paymentMethodID, params); err != nil {
		return g.fail("DetachPaymentMethod", err)
	}
	return nil
}

// ConstructEvent verifies the Stripe-Signature header against the webhook
// secret and returns the event.
func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, xerrors.New(xerrors.ErrConfiguration, "webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrBadRequest, "invalid webhook signature").WithCause(err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		out.Raw = event.Data.Raw
	}
	return out, nil
}

func (g *StripeGateway) fail(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		g.logger.Error("stripe api error",
			zap.String("operation", op),
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.String("param", stripeErr.Param),
			zap.String("request_id", stripeErr.RequestID),
			zap.Int("status_code", stripeErr.HTTPStatusCode),
		)
	} else {
		g.logger.Error("stripe call failed", zap.String("operation", op), zap.Error(err))
	}
	return xerrors.New(xerrors.ErrPaymentProvider, "payment provider request failed").
		WithCause(fmt.Errorf("stripe %s: %w", op, err))
}

func addressParams(a Address) *stripe.AddressParams {
	p := &stripe.AddressParams{
		Line1:      stripe.String(a.Line1),
		City:       stripe.String(a.City),
		State:      stripe.String(a.State),
		PostalCode: stripe.String(a.PostalCode),
		Country:    stripe.String(a.Country),
	}
	if a.Line2 != "" {
		p.Line2 = stripe.String(a.Line2)
	}
	return p
}

func subscriptionResult(sub *stripe.Subscription) *SubscriptionResult {
	res := &SubscriptionResult{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		TrialEnd:         sub.TrialEnd,
	}
	if sub.LatestInvoice != nil {
		res.LatestInvoiceID = sub.LatestInvoice.ID
		res.HostedInvoiceURL = sub.LatestInvoice.HostedInvoiceURL
	}
	return res
}
