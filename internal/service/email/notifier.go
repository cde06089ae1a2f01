// internal/service/email/notifier.go
package email

import (
	"context"
	"fmt"
	"html"

	"saas-billing/internal/pkg/metrics"

	"go.uber.org/zap"
)

// Notifier renders billing emails and sends them best-effort: failures are
// logged and counted, never returned.
type Notifier struct {
	sender  Sender
	logger  *zap.Logger
	baseURL string
}

func NewNotifier(sender Sender, logger *zap.Logger, baseURL string) *Notifier {
	return &Notifier{sender: sender, logger: logger, baseURL: baseURL}
}

func (n *Notifier) send(ctx context.Context, template, to, subject, body string) {
	err := n.sender.Send(ctx, to, subject, body)
	metrics.EmailsTotal.WithLabelValues(template, metrics.Outcome(err)).Inc()
	if err != nil {
		n.logger.Error("failed to send "+template+" email",
			zap.String("to", to),
			zap.Error(err),
		)
	}
}

func money(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func (n *Notifier) SubscriptionConfirmed(ctx context.Context, to, name, tierName, cycle string, amount float64) {
	body := fmt.Sprintf(`
		<h2>Subscription Confirmed</h2>
		<p>Hello %s,</p>
		<p>You are now subscribed to the <strong>%s</strong> plan (%s).</p>
		<p>Amount: <strong>%s</strong></p>
		<p><a class="button" href="%s/dashboard">Open your dashboard</a></p>
	`, html.EscapeString(name), html.EscapeString(tierName), html.EscapeString(cycle), money(amount), n.baseURL)

	n.send(ctx, "subscription_confirmed", to, "Subscription Confirmed", body)
}

func (n *Notifier) PaymentReceived(ctx context.Context, to string, amount float64) {
	body := fmt.Sprintf(`
		<h2>Payment Received</h2>
		<p>Your payment of %s has been received.</p>
	`, money(amount))

	n.send(ctx, "payment_received", to, "Payment Received", body)
}

func (n *Notifier) PaymentFailed(ctx context.Context, to string, amount float64) {
	body := fmt.Sprintf(`
		<h2>Payment Failed</h2>
		<p>Your payment of %s failed. Please update your payment method.</p>
		<p><a class="button" href="%s/billing">Update payment method</a></p>
	`, money(amount), n.baseURL)

	n.send(ctx, "payment_failed", to, "Payment Failed", body)
}

func (n *Notifier) RefundApproved(ctx context.Context, to string, amount float64) {
	body := fmt.Sprintf(`
		<h2>Refund Approved</h2>
		<p>Your refund of %s has been approved and will be processed within 5-7 business days.</p>
	`, money(amount))

	n.send(ctx, "refund_approved", to, "Refund Approved", body)
}

func (n *Notifier) RefundRejected(ctx context.Context, to string, amount float64, note string) {
	body := fmt.Sprintf(`
		<h2>Refund Request Update</h2>
		<p>Your refund request of %s was not approved.</p>
	`, money(amount))
	if note != "" {
		body += fmt.Sprintf("<p>Note from our team: %s</p>", html.EscapeString(note))
	}

	n.send(ctx, "refund_rejected", to, "Refund Request Update", body)
}

// Invitation carries the temporary password, so it is only sent when the
// admin asked for it.
func (n *Notifier) Invitation(ctx context.Context, to, name, temporaryPassword string) {
	loginURL := n.baseURL + "/login"
	body := fmt.Sprintf(`
		<h2>Welcome, %s!</h2>
		<p>An account has been created for you.</p>
		<p><strong>Email:</strong> %s<br/>
		<strong>Temporary password:</strong> %s</p>
		<p>Please sign in and change your password.</p>
		<p><a class="button" href="%s">Sign in</a></p>
		<p>Or copy this link: %s</p>
	`, html.EscapeString(name), html.EscapeString(to), html.EscapeString(temporaryPassword), loginURL, loginURL)

	n.send(ctx, "invitation", to, "Welcome to Our Platform - Your Account is Ready", body)
}
