package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/errors"
)

type countingLoader struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (l *countingLoader) load(context.Context) ([]string, error) {
	n := l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.fail.Load() {
		return nil, errors.NewStd("store unavailable")
	}
	return []string{"AB123C", string(rune('A' + n))}, nil
}

func TestTTL_ServesCachedCopyUntilInvalidated(t *testing.T) {
	t.Parallel()
	l := &countingLoader{}
	c := NewTTL("blacklist", time.Hour, l.load)

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), l.calls.Load())
	assert.False(t, c.LoadedAt().IsZero())

	c.Invalidate()
	third, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
	assert.NotEqual(t, first, third)
}

func TestTTL_RefreshesAfterExpiry(t *testing.T) {
	t.Parallel()
	l := &countingLoader{}
	c := NewTTL("blacklist", 20*time.Millisecond, l.load)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Get(context.Background())
		return err == nil && l.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestTTL_ConcurrentReadersShareOneRefresh(t *testing.T) {
	t.Parallel()
	l := &countingLoader{delay: 50 * time.Millisecond}
	c := NewTTL("blacklist", time.Hour, l.load)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), l.calls.Load())
}

func TestTTL_FailedRefresh(t *testing.T) {
	t.Parallel()

	t.Run("without previous value", func(t *testing.T) {
		t.Parallel()
		l := &countingLoader{}
		l.fail.Store(true)
		c := NewTTL("blacklist", time.Hour, l.load)

		_, err := c.Get(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryResource))
	})

	t.Run("serves previous value", func(t *testing.T) {
		t.Parallel()
		l := &countingLoader{}
		c := NewTTL("blacklist", time.Hour, l.load)

		good, err := c.Get(context.Background())
		require.NoError(t, err)

		l.fail.Store(true)
		c.Invalidate()
		got, err := c.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, good, got)

		// still expired, so the next read tries again
		_, _ = c.Get(context.Background())
		assert.Equal(t, int32(3), l.calls.Load())
	})
}
