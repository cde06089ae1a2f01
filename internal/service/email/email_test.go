package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	failures int
	calls    int
	sent     []sentMail
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func fastRetry(next Sender) *RetryingSender {
	r := NewRetryingSender(next)
	r.initial = time.Millisecond
	return r
}

func TestRetryingSenderRecovers(t *testing.T) {
	f := &fakeSender{failures: 2}
	require.NoError(t, fastRetry(f).Send(context.Background(), "a@b.com", "s", "b"))
	assert.Equal(t, 3, f.calls)
	assert.Len(t, f.sent, 1)
}

func TestRetryingSenderGivesUpAfterThreeTries(t *testing.T) {
	f := &fakeSender{failures: 10}
	err := fastRetry(f).Send(context.Background(), "a@b.com", "s", "b")
	assert.Error(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestRetryingSenderStopsOnCancel(t *testing.T) {
	f := &fakeSender{failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetry(f).Send(ctx, "a@b.com", "s", "b")
	assert.Error(t, err)
	assert.LessOrEqual(t, f.calls, 1)
}

func TestNotifierTemplates(t *testing.T) {
	f := &fakeSender{}
	n := NewNotifier(f, zap.NewNop(), "https://app.example.com")
	ctx := context.Background()

	n.PaymentReceived(ctx, "u@example.com", 29)
	n.PaymentFailed(ctx, "u@example.com", 29.5)
	n.RefundApproved(ctx, "u@example.com", 290)
	n.Invitation(ctx, "new@example.com", "New User", "Tmp12345abcdA1!")

	require.Len(t, f.sent, 4)
	assert.Equal(t, "Payment Received", f.sent[0].subject)
	assert.Contains(t, f.sent[0].body, "Your payment of $29.00 has been received.")
	assert.Equal(t, "Payment Failed", f.sent[1].subject)
	assert.Contains(t, f.sent[1].body, "Your payment of $29.50 failed. Please update your payment method.")
	assert.Contains(t, f.sent[2].body, "Your refund of $290.00 has been approved and will be processed within 5-7 business days.")
	assert.Equal(t, "Welcome to Our Platform - Your Account is Ready", f.sent[3].subject)
	assert.Contains(t, f.sent[3].body, "Tmp12345abcdA1!")
	assert.Contains(t, f.sent[3].body, "https://app.example.com/login")
}

func TestNotifierSwallowsErrors(t *testing.T) {
	f := &fakeSender{failures: 1}
	n := NewNotifier(f, zap.NewNop(), "")
	assert.NotPanics(t, func() {
		n.PaymentReceived(context.Background(), "u@example.com", 1)
	})
	assert.Empty(t, f.sent)
}

type fakeSES struct {
	input *ses.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	return &ses.SendEmailOutput{}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	client := &fakeSES{}
	s := NewSESSenderWithClient(client, "billing@example.com")

	require.NoError(t, s.Send(context.Background(), "u@example.com", "Hello", "<p>hi</p>"))
	require.NotNil(t, client.input)
	assert.Equal(t, "billing@example.com", *client.input.Source)
	assert.Equal(t, []string{"u@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Hello", *client.input.Message.Subject.Data)
	assert.Contains(t, *client.input.Message.Body.Html.Data, "<p>hi</p>")
}
