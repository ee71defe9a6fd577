package notification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/errors"
)

type fakeProvider struct {
	name     string
	enabled  bool
	invalid  bool
	fail     atomic.Bool
	block    bool
	calls    atomic.Int32
	lastPrio atomic.Value
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, enabled: true}
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) IsEnabled() bool { return f.enabled }

func (f *fakeProvider) ValidateConfig() error {
	if f.invalid {
		return errors.NewStd("bad config")
	}
	return nil
}

func (f *fakeProvider) Send(ctx context.Context, n *Notification) error {
	f.calls.Add(1)
	f.lastPrio.Store(n.Priority)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fail.Load() {
		return errors.NewStd("provider down")
	}
	return nil
}

func testNotification() *Notification {
	return NewNotification(TypeBlacklist, PriorityCritical, "Blacklisted plate", "AB123C seen at gate").WithPlate("AB123C")
}

func TestNewNotification(t *testing.T) {
	t.Parallel()

	a := testNotification().WithImage("2025-03-14/AB123C/090000_000000.jpg").WithMetadata("similarity", 91.7)
	b := testNotification()

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "AB123C", a.Plate)
	assert.InDelta(t, 91.7, a.Metadata["similarity"], 0)
	assert.False(t, a.Timestamp.IsZero())
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PriorityCritical, ParsePriority(" CRITICAL "))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityNormal, ParsePriority("urgent"))
}

func TestDispatcher_RegistersValidEnabledProviders(t *testing.T) {
	t.Parallel()

	disabled := newFakeProvider("disabled")
	disabled.enabled = false
	invalid := newFakeProvider("invalid")
	invalid.invalid = true
	good := newFakeProvider("good")

	d := NewDispatcher(DefaultDispatcherConfig(), nil, disabled, invalid, good, nil)
	assert.Equal(t, []string{"good"}, d.Providers())
	assert.Equal(t, 1, d.Len())

	require.NoError(t, d.Dispatch(context.Background(), testNotification()))
	assert.Equal(t, int32(1), good.calls.Load())
	assert.Equal(t, int32(0), disabled.calls.Load())
	assert.Equal(t, PriorityCritical, good.lastPrio.Load())
}

func TestDispatcher_FailureDoesNotStopOtherProviders(t *testing.T) {
	t.Parallel()

	broken := newFakeProvider("broken")
	broken.fail.Store(true)
	good := newFakeProvider("good")

	d := NewDispatcher(DefaultDispatcherConfig(), nil, broken, good)
	err := d.Dispatch(context.Background(), testNotification())

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
	assert.Equal(t, int32(1), good.calls.Load())
}

func TestDispatcher_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("flaky")
	p.fail.Store(true)
	cfg := DefaultDispatcherConfig()
	cfg.MaxFailures = 2
	cfg.BreakerTimeout = time.Hour
	cfg.Burst = 100
	d := NewDispatcher(cfg, nil, p)

	for range 2 {
		require.Error(t, d.Dispatch(context.Background(), testNotification()))
	}
	err := d.Dispatch(context.Background(), testNotification())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestDispatcher_RateLimit(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("limited")
	cfg := DefaultDispatcherConfig()
	cfg.RequestsPerMinute = 1
	cfg.Burst = 1
	d := NewDispatcher(cfg, nil, p)

	dwell := func() *Notification {
		return NewNotification(TypeSuspicious, PriorityHigh, "Suspicious plate", "AB123C").WithPlate("AB123C")
	}
	require.NoError(t, d.Dispatch(context.Background(), dwell()))
	err := d.Dispatch(context.Background(), dwell())
	require.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
	assert.Equal(t, int32(1), p.calls.Load())

	// the bucket is empty, blacklist alerts still go out
	require.NoError(t, d.Dispatch(context.Background(), testNotification()))
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestDispatcher_BlacklistAlertsBypassRateLimit(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("gate")
	cfg := DefaultDispatcherConfig()
	d := NewDispatcher(cfg, nil, p)

	total := cfg.Burst + 5
	for i := range total {
		require.NoError(t, d.Dispatch(context.Background(), testNotification()), "dispatch %d", i)
	}
	assert.Equal(t, int32(total), p.calls.Load()) //nolint:gosec // small test count
}

func TestDispatcher_SendTimeout(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("slow")
	p.block = true
	cfg := DefaultDispatcherConfig()
	cfg.Timeout = 20 * time.Millisecond
	d := NewDispatcher(cfg, nil, p)

	start := time.Now()
	err := d.Dispatch(context.Background(), testNotification())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_NilNotification(t *testing.T) {
	t.Parallel()

	p := newFakeProvider("p")
	d := NewDispatcher(DefaultDispatcherConfig(), nil, p)
	require.NoError(t, d.Dispatch(context.Background(), nil))
	assert.Equal(t, int32(0), p.calls.Load())
}
