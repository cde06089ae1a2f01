package email

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingSender retries a Sender with exponential backoff, bounded by both
// attempt count and total elapsed time.
type RetryingSender struct {
	next        Sender
	maxAttempts uint64
	maxElapsed  time.Duration
	initial     time.Duration
}

func NewRetryingSender(next Sender) *RetryingSender {
	return &RetryingSender{
		next:        next,
		maxAttempts: 3,
		maxElapsed:  10 * time.Second,
		initial:     500 * time.Millisecond,
	}
}

func (r *RetryingSender) Send(ctx context.Context, to, subject, bodyHTML string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxElapsedTime = r.maxElapsed
	bo.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, r.maxAttempts-1), ctx)

	return backoff.Retry(func() error {
		return r.next.Send(ctx, to, subject, bodyHTML)
	}, policy)
}
