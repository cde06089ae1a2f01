package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"saas-billing/internal/domain/subscription"
	"saas-billing/internal/events"
	"saas-billing/internal/pkg/metrics"
	"saas-billing/internal/testutil/mocks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newExpire(subs *mocks.SubscriptionRepo, pub *mocks.Publisher) *ExpireLapsed {
	j := NewExpireLapsed(subs, pub, zap.NewNop())
	j.now = func() time.Time { return fixedNow }
	return j
}

func TestExpireLapsed(t *testing.T) {
	subs := new(mocks.SubscriptionRepo)
	pub := &mocks.Publisher{}
	subs.On("ExpireLapsed", context.Background(), fixedNow.Add(-24*time.Hour)).Return([]*subscription.Subscription{
		{ID: "s1", UserID: "u1", TierID: "pro", Status: subscription.StatusExpired},
		{ID: "s2", UserID: "u2", TierID: "pro", Status: subscription.StatusExpired},
	}, nil)

	require.NoError(t, newExpire(subs, pub).Run(context.Background()))

	assert.Equal(t, []string{events.SubscriptionExpired, events.SubscriptionExpired}, pub.Types())
	assert.Equal(t, "u2", pub.Events[1].UserID)
	assert.Equal(t, "s2", pub.Events[1].EntityID)
	subs.AssertExpectations(t)
}

func TestExpireLapsedNothingToDo(t *testing.T) {
	subs := new(mocks.SubscriptionRepo)
	pub := &mocks.Publisher{}
	subs.On("ExpireLapsed", context.Background(), fixedNow.Add(-24*time.Hour)).Return(nil, nil)

	require.NoError(t, newExpire(subs, pub).Run(context.Background()))
	assert.Empty(t, pub.Events)
}

type fakeJob struct {
	name string
	err  error
	runs int
}

func (f *fakeJob) Name() string { return f.name }

func (f *fakeJob) Run(ctx context.Context) error {
	f.runs++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return f.err
}

func TestRunNowRecordsOutcome(t *testing.T) {
	s := NewScheduler(zap.NewNop())

	ok := &fakeJob{name: "test_ok"}
	before := testutil.ToFloat64(metrics.JobRuns.WithLabelValues("test_ok", "success"))
	require.NoError(t, s.RunNow(context.Background(), ok))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.JobRuns.WithLabelValues("test_ok", "success")))

	bad := &fakeJob{name: "test_bad", err: errors.New("db down")}
	before = testutil.ToFloat64(metrics.JobRuns.WithLabelValues("test_bad", "error"))
	assert.Error(t, s.RunNow(context.Background(), bad))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.JobRuns.WithLabelValues("test_bad", "error")))
}

func TestAddRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	assert.Error(t, s.Add("not a schedule", &fakeJob{name: "x"}))
	assert.NoError(t, s.Add("@hourly", &fakeJob{name: "x"}))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
