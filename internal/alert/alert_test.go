package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/notification"
)

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type staticBlacklist struct {
	entries []datastore.BlacklistEntry
	err     error
}

func (s staticBlacklist) Get(context.Context) ([]datastore.BlacklistEntry, error) {
	return s.entries, s.err
}

func newEvaluator(entries ...datastore.BlacklistEntry) *Evaluator {
	return NewEvaluator(Config{SuspiciousDuration: 2 * time.Minute}, staticBlacklist{entries: entries}, NewThrottle(DefaultCooldown))
}

func kinds(res Result) []Kind {
	out := make([]Kind, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestThrottle(t *testing.T) {
	t.Parallel()
	th := NewThrottle(10 * time.Second)

	assert.True(t, th.Allow("AB123C", t0))
	assert.False(t, th.Allow("AB123C", t0.Add(time.Second)))
	assert.True(t, th.Allow("XYZ987", t0.Add(time.Second)))
	assert.True(t, th.Allow("AB123C", t0.Add(10*time.Second)))
	assert.Equal(t, 2, th.Len())

	th.Rename("AB123C", "AB1Z3C")
	assert.False(t, th.Allow("AB1Z3C", t0.Add(11*time.Second)))
	assert.True(t, th.Allow("AB123C", t0.Add(11*time.Second)))

	assert.Equal(t, 2, th.Prune(t0.Add(10500*time.Millisecond)))
	assert.Equal(t, 1, th.Len())
}

func TestEvaluate_BlacklistNeverThrottled(t *testing.T) {
	t.Parallel()
	e := newEvaluator(datastore.BlacklistEntry{Text: "AB123C", Reason: "stolen", DangerLevel: datastore.DangerHigh})

	for i := range 2 {
		ts := t0.Add(time.Duration(i) * time.Second)
		res, err := e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: ts, Timestamp: ts})
		require.NoError(t, err)
		require.Equal(t, []Kind{KindBlacklist}, kinds(res))

		a := res.Alerts[0]
		assert.Equal(t, notification.PriorityHigh, a.Priority)
		assert.InDelta(t, 100, a.Similarity, 0)
		assert.Equal(t, "stolen", a.Reason)
	}
}

func TestEvaluate_FuzzyBlacklistMatch(t *testing.T) {
	t.Parallel()
	e := newEvaluator(
		datastore.BlacklistEntry{Text: "AB123C", Reason: "stolen", DangerLevel: "CRITICAL"},
		datastore.BlacklistEntry{Text: "QQ999Q", Reason: "other"},
	)

	res, err := e.Evaluate(context.Background(), Subject{CanonicalText: "AB1Z3C", FirstSeen: t0, Timestamp: t0})
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "AB123C", res.Alerts[0].MatchedText)
	assert.InDelta(t, (1-0.5/6)*100, res.Alerts[0].Similarity, 1e-9)

	rec := res.Alerts[0].Record()
	require.NotNil(t, rec)
	assert.Equal(t, "AB1Z3C", rec.DetectedText)
	assert.Equal(t, "AB123C", rec.MatchedText)

	res, err = e.Evaluate(context.Background(), Subject{CanonicalText: "XY555Z", FirstSeen: t0, Timestamp: t0})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
}

func TestEvaluate_DwellThrottled(t *testing.T) {
	t.Parallel()
	e := newEvaluator()
	first := t0.Add(-5 * time.Minute)

	res, err := e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: first, Timestamp: t0})
	require.NoError(t, err)
	require.Equal(t, []Kind{KindSuspicious}, kinds(res))
	assert.True(t, res.MarkSuspicious)
	assert.Equal(t, notification.PriorityHigh, res.Alerts[0].Priority)
	assert.Equal(t, 5*time.Minute, res.Alerts[0].Dwell)

	res, err = e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: first, Timestamp: t0.Add(time.Second), IsSuspicious: true})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.True(t, res.Throttled)
	assert.False(t, res.MarkSuspicious)

	res, err = e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: first, Timestamp: t0.Add(11 * time.Second), IsSuspicious: true})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindSuspicious}, kinds(res))
	assert.False(t, res.MarkSuspicious)
}

func TestEvaluate_BelowDwellLimit(t *testing.T) {
	t.Parallel()
	e := newEvaluator()

	res, err := e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: t0, Timestamp: t0.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
	assert.False(t, res.MarkSuspicious)
	assert.Equal(t, 0, e.Throttle().Len())
}

func TestEvaluate_BlacklistLookupFailureKeepsDwellCheck(t *testing.T) {
	t.Parallel()
	e := NewEvaluator(Config{}, staticBlacklist{err: errors.NewStd("db locked")}, nil)

	res, err := e.Evaluate(context.Background(), Subject{CanonicalText: "AB123C", FirstSeen: t0.Add(-time.Hour), Timestamp: t0})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAlert))
	assert.Equal(t, []Kind{KindSuspicious}, kinds(res))
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	tests := map[string]notification.Priority{
		"CRITICAL": notification.PriorityCritical,
		"high":     notification.PriorityHigh,
		"MEDIUM":   notification.PriorityNormal,
		"LOW":      notification.PriorityLow,
		"":         notification.PriorityCritical,
		"UNKNOWN":  notification.PriorityCritical,
	}
	for level, want := range tests {
		assert.Equal(t, want, PriorityFor(level), level)
	}
}

func TestMatchBlacklist_TieBreak(t *testing.T) {
	t.Parallel()

	entries := []datastore.BlacklistEntry{{Text: "AB1234X"}, {Text: "AB1234D"}}
	entry, _, ok := MatchBlacklist("AB1234C", entries, 80)
	require.True(t, ok)
	assert.Equal(t, "AB1234D", entry.Text)
}

func TestMessages(t *testing.T) {
	t.Parallel()

	exact := FormatBlacklist(Alert{Plate: "AB123C", MatchedText: "AB123C", DangerLevel: "HIGH", Reason: "stolen", Similarity: 100, Timestamp: t0})
	assert.Contains(t, exact, "Detected: AB123C")
	assert.NotContains(t, exact, "Matched:")
	assert.Contains(t, exact, "Time: 2025-03-14 09:00:00")

	fuzzy := FormatBlacklist(Alert{Plate: "AB1Z3C", MatchedText: "AB123C", DangerLevel: "ODD", Similarity: 91.666, Timestamp: t0})
	assert.Contains(t, fuzzy, "Matched: AB123C")
	assert.Contains(t, fuzzy, "Similarity: 91.7%")
	assert.Contains(t, fuzzy, "⚪ ODD")

	dwell := FormatSuspicious(Alert{Plate: "AB123C", Dwell: 5*time.Minute + 30*time.Second, FirstSeen: t0.Add(-5 * time.Minute), Timestamp: t0})
	assert.Contains(t, dwell, "Duration: 5 minutes")
	assert.Contains(t, dwell, "First seen: 08:55:00")

	report := FormatDailyReport(datastore.DailyStatistics{Date: "2025-03-14", TotalDetections: 12, UniquePlates: 4, SuspiciousEvents: 1, BlacklistHits: 2})
	assert.Contains(t, report, "Date: 2025-03-14")
	assert.Contains(t, report, "Blacklist Hits: 2")
}

func TestAlertNotification(t *testing.T) {
	t.Parallel()

	n := Alert{Kind: KindBlacklist, Plate: "AB123C", MatchedText: "AB123C", Priority: notification.PriorityCritical, ImageRef: "x.jpg", Timestamp: t0}.Notification()
	assert.Equal(t, notification.TypeBlacklist, n.Type)
	assert.Equal(t, "AB123C", n.Plate)
	assert.Equal(t, "x.jpg", n.ImageRef)
	assert.Equal(t, t0, n.Timestamp)

	n = Alert{Kind: KindSuspicious, Plate: "AB123C", Priority: notification.PriorityHigh, Dwell: 3 * time.Minute}.Notification()
	assert.Equal(t, notification.TypeSuspicious, n.Type)
	assert.Equal(t, 3, n.Metadata["dwell_minutes"])
	assert.Nil(t, Alert{Kind: KindSuspicious}.Record())
}
