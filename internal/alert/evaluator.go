// Package alert decides which resolved detections raise blacklist or dwell
// alerts.
package alert

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/notification"
	"github.com/tphakala/platewatch/internal/plate"
)

// Defaults used when the configuration leaves a value unset.
const (
	DefaultSimilarityThreshold = 80.0
	DefaultSuspiciousDuration  = 2 * time.Minute
)

// Kind identifies the alert type.
type Kind string

const (
	KindBlacklist  Kind = "blacklist"
	KindSuspicious Kind = "suspicious"
)

// BlacklistSource returns the current blacklist. It is satisfied by the
// blacklist TTL cache.
type BlacklistSource interface {
	Get(ctx context.Context) ([]datastore.BlacklistEntry, error)
}

// Config holds the evaluator thresholds.
type Config struct {
	SimilarityThreshold float64
	SuspiciousDuration  time.Duration
}

// Subject is a resolved identity at the time of a reading.
type Subject struct {
	CanonicalText string
	FirstSeen     time.Time
	Timestamp     time.Time
	IsSuspicious  bool
	ImageRef      string
}

// Alert is one alert raised for a subject.
type Alert struct {
	Kind        Kind
	Plate       string
	MatchedText string
	Reason      string
	DangerLevel string
	Similarity  float64
	Priority    notification.Priority
	FirstSeen   time.Time
	Timestamp   time.Time
	Dwell       time.Duration
	ImageRef    string
}

// Result is the outcome of one evaluation.
type Result struct {
	Alerts []Alert
	// MarkSuspicious is set the first time a subject passes the dwell limit.
	MarkSuspicious bool
	// Throttled is set when a dwell alert was suppressed by the cooldown.
	Throttled bool
}

// Evaluator checks subjects against the blacklist and the dwell limit.
// Blacklist alerts are never throttled; dwell alerts are.
type Evaluator struct {
	cfg       Config
	blacklist BlacklistSource
	throttle  *Throttle
	log       logger.Logger
}

// NewEvaluator returns an evaluator. A nil throttle gets one with the
// default cooldown.
func NewEvaluator(cfg Config, blacklist BlacklistSource, throttle *Throttle) *Evaluator {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.SuspiciousDuration <= 0 {
		cfg.SuspiciousDuration = DefaultSuspiciousDuration
	}
	if throttle == nil {
		throttle = NewThrottle(DefaultCooldown)
	}
	return &Evaluator{
		cfg:       cfg,
		blacklist: blacklist,
		throttle:  throttle,
		log:       logger.Global().Module("alert"),
	}
}

// Throttle returns the dwell alert throttle.
func (e *Evaluator) Throttle() *Throttle { return e.throttle }

// Evaluate runs both checks. A blacklist lookup failure is returned, but the
// dwell check still runs and its result is kept.
func (e *Evaluator) Evaluate(ctx context.Context, s Subject) (Result, error) {
	var res Result
	var lookupErr error

	if s.CanonicalText == "" {
		return res, nil
	}

	entries, err := e.blacklist.Get(ctx)
	if err != nil {
		lookupErr = errors.New(err).
			Component("alert").
			Category(errors.CategoryAlert).
			Context("plate", s.CanonicalText).
			Context("operation", "blacklist_lookup").
			Build()
	} else if entry, similarity, ok := MatchBlacklist(s.CanonicalText, entries, e.cfg.SimilarityThreshold); ok {
		e.log.Warn("blacklist match",
			logger.String("plate", s.CanonicalText),
			logger.String("matched", entry.Text),
			logger.Float64("similarity", similarity))
		res.Alerts = append(res.Alerts, Alert{
			Kind:        KindBlacklist,
			Plate:       s.CanonicalText,
			MatchedText: entry.Text,
			Reason:      entry.Reason,
			DangerLevel: entry.DangerLevel,
			Similarity:  similarity,
			Priority:    PriorityFor(entry.DangerLevel),
			FirstSeen:   s.FirstSeen,
			Timestamp:   s.Timestamp,
			ImageRef:    s.ImageRef,
		})
	}

	dwell := s.Timestamp.Sub(s.FirstSeen)
	if dwell > e.cfg.SuspiciousDuration {
		if e.throttle.Allow(s.CanonicalText, s.Timestamp) {
			res.Alerts = append(res.Alerts, Alert{
				Kind:      KindSuspicious,
				Plate:     s.CanonicalText,
				Priority:  notification.PriorityHigh,
				FirstSeen: s.FirstSeen,
				Timestamp: s.Timestamp,
				Dwell:     dwell,
				ImageRef:  s.ImageRef,
			})
		} else {
			res.Throttled = true
		}
		res.MarkSuspicious = !s.IsSuspicious
	}

	return res, lookupErr
}

// MatchBlacklist returns the entry closest to text scoring at least
// threshold. Ties go to the lexicographically smallest entry text.
func MatchBlacklist(text string, entries []datastore.BlacklistEntry, threshold float64) (datastore.BlacklistEntry, float64, bool) {
	normalized := plate.Normalize(text)
	if normalized == "" || len(entries) == 0 {
		return datastore.BlacklistEntry{}, 0, false
	}

	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, plate.Normalize(e.Text))
	}
	match, ok := plate.BestMatch(normalized, texts, threshold)
	if !ok {
		return datastore.BlacklistEntry{}, 0, false
	}
	idx := slices.Index(texts, match.Text)
	return entries[idx], match.Similarity, true
}

// PriorityFor maps a blacklist danger level to a notification priority.
// Unknown levels are treated as critical.
func PriorityFor(dangerLevel string) notification.Priority {
	switch strings.ToUpper(strings.TrimSpace(dangerLevel)) {
	case datastore.DangerCritical:
		return notification.PriorityCritical
	case datastore.DangerHigh:
		return notification.PriorityHigh
	case datastore.DangerMedium:
		return notification.PriorityNormal
	case datastore.DangerLow:
		return notification.PriorityLow
	default:
		return notification.PriorityCritical
	}
}

// Record returns the alert log row for a blacklist alert, nil otherwise.
func (a Alert) Record() *datastore.AlertRecord {
	if a.Kind != KindBlacklist {
		return nil
	}
	return &datastore.AlertRecord{
		DetectedText: a.Plate,
		MatchedText:  a.MatchedText,
		Similarity:   a.Similarity,
		Timestamp:    a.Timestamp,
	}
}

// Notification builds the outbound message for the alert.
func (a Alert) Notification() *notification.Notification {
	var n *notification.Notification
	switch a.Kind {
	case KindBlacklist:
		n = notification.NewNotification(notification.TypeBlacklist, a.Priority, "Blacklist alert", FormatBlacklist(a)).
			WithMetadata("matched", a.MatchedText).
			WithMetadata("similarity", a.Similarity).
			WithMetadata("danger_level", a.DangerLevel)
	default:
		n = notification.NewNotification(notification.TypeSuspicious, a.Priority, "Suspicious presence", FormatSuspicious(a)).
			WithMetadata("dwell_minutes", int(a.Dwell.Minutes()))
	}
	return n.WithPlate(a.Plate).WithImage(a.ImageRef).WithTimestamp(a.Timestamp)
}
