package subscription

import (
	"context"
	"errors"
	"fmt"

	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/paymentmethod"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/payment"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var errPaymentMethodNotFound = xerrors.New(xerrors.ErrNotFound, "Payment method not found")

func (s *SubscriptionService) ListPaymentMethods(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	return s.paymentMethods.ListByUser(ctx, userID)
}

// AttachPaymentMethod links a provider payment method to the caller. The
// first method becomes the default on both sides.
func (s *SubscriptionService) AttachPaymentMethod(ctx context.Context, userID, providerPaymentMethodID string) (*paymentmethod.PaymentMethod, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "User not found")
		}
		return nil, err
	}

	customerID, err := s.customerFor(ctx, user)
	if err != nil {
		return nil, err
	}

	card, err := s.gateway.AttachPaymentMethod(ctx, customerID, providerPaymentMethodID)
	if err != nil {
		return nil, err
	}

	count, err := s.paymentMethods.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count payment methods: %w", err)
	}

	pm := &paymentmethod.PaymentMethod{
		ID:                    ulid.Make().String(),
		UserID:                userID,
		StripePaymentMethodID: card.ID,
		Brand:                 card.Brand,
		Last4:                 card.Last4,
		ExpMonth:              card.ExpMonth,
		ExpYear:               card.ExpYear,
		IsDefault:             count == 0,
	}
	if err := s.paymentMethods.Create(ctx, pm); err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}

	if pm.IsDefault {
		if err := s.gateway.SetDefaultPaymentMethod(ctx, customerID, card.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("payment method attached",
		zap.String("user_id", userID),
		zap.String("payment_method_id", pm.ID),
		zap.Bool("default", pm.IsDefault),
	)
	return pm, nil
}

func (s *SubscriptionService) SetDefaultPaymentMethod(ctx context.Context, userID, id string) error {
	pm, err := s.findPaymentMethod(ctx, userID, id)
	if err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.StripeCustomerID != nil {
		if err := s.gateway.SetDefaultPaymentMethod(ctx, *user.StripeCustomerID, pm.StripePaymentMethodID); err != nil {
			return err
		}
	}
	return s.paymentMethods.SetDefault(ctx, pm.ID, userID)
}

func (s *SubscriptionService) DetachPaymentMethod(ctx context.Context, userID, id string) error {
	pm, err := s.findPaymentMethod(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.gateway.DetachPaymentMethod(ctx, pm.StripePaymentMethodID); err != nil {
		return err
	}
	return s.paymentMethods.Delete(ctx, pm.ID, userID)
}

func (s *SubscriptionService) findPaymentMethod(ctx context.Context, userID, id string) (*paymentmethod.PaymentMethod, error) {
	pm, err := s.paymentMethods.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, errPaymentMethodNotFound
		}
		return nil, err
	}
	return pm, nil
}

// customerFor returns the user's provider customer, creating a bare one
// for users who have not checked out yet.
func (s *SubscriptionService) customerFor(ctx context.Context, user *auth.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, payment.CustomerRequest{
		Email:  user.Email,
		Name:   user.Name,
		UserID: user.ID,
	})
	if err != nil {
		return "", err
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to save customer id: %w", err)
	}
	user.StripeCustomerID = &customerID
	return customerID, nil
}
