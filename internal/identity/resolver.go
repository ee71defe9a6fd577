// Package identity turns noisy plate readings into stable identities and
// groups repeat readings into visits.
package identity

import (
	"context"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/plate"
)

// ErrEmptyReading is returned for readings that normalize to nothing.
var ErrEmptyReading = errors.NewStd("reading has no plate text")

// Store is the persistence the resolver needs.
type Store interface {
	DetectionLookup
	CanonicalTexts(ctx context.Context) ([]string, error)
	RecordObservation(ctx context.Context, obs datastore.Observation) (*datastore.ObservationResult, error)
}

// Reading is one recognition result.
type Reading struct {
	Text        string
	Confidence  float64
	CountryCode string
	Timestamp   time.Time
	HasImage    bool
}

// Outcome describes how a reading was resolved.
type Outcome struct {
	Identity    datastore.Identity
	Detection   datastore.Detection
	Normalized  string
	Similarity  float64
	Created     bool
	Grouped     bool
	RenamedFrom string
	// Persisted is false when the store write failed and Identity was
	// built from the reading alone.
	Persisted bool
}

// ImageNamer returns the image reference stored for a standalone detection.
type ImageNamer func(canonicalText string, ts time.Time) string

// Resolver matches readings against known identities using confusable-aware
// similarity and a length dependent threshold.
type Resolver struct {
	store      Store
	grouper    *Grouper
	imageNamer ImageNamer
	log        logger.Logger

	mu       sync.Mutex
	snapshot []string // last canonical texts read successfully
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithImageNamer enables image references for standalone detections.
func WithImageNamer(fn ImageNamer) ResolverOption {
	return func(r *Resolver) { r.imageNamer = fn }
}

// WithResolverLogger replaces the module logger.
func WithResolverLogger(l logger.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a Resolver.
func NewResolver(store Store, grouper *Grouper, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:   store,
		grouper: grouper,
		log:     logger.Global().Module("identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Match returns the best candidate for a normalized text at or above the
// adaptive threshold for its length.
func Match(normalized string, candidates []string) (plate.Match, bool) {
	threshold := plate.AdaptiveThreshold(utf8.RuneCountInString(normalized))
	return plate.BestMatch(normalized, candidates, threshold)
}

// Resolve matches the reading to an identity (or creates one), decides its
// grouping and records it. On a store failure the returned Outcome is still
// usable for alert evaluation, Persisted is false and the error is returned
// alongside it.
func (r *Resolver) Resolve(ctx context.Context, reading Reading) (*Outcome, error) {
	normalized := plate.Normalize(reading.Text)
	if normalized == "" {
		return nil, ErrEmptyReading
	}

	out := &Outcome{Normalized: normalized, Similarity: 100}
	canonical := normalized
	match, matched := Match(normalized, r.candidates(ctx))
	if matched {
		canonical = match.Text
		out.Similarity = match.Similarity
	}

	grouping, err := r.grouper.Decide(ctx, canonical, reading.Timestamp)
	if err != nil {
		r.log.Warn("grouping lookup failed, treating reading as standalone",
			logger.String("plate", canonical),
			logger.Error(err))
		grouping = Grouping{}
	}
	out.Grouped = grouping.Grouped

	obs := datastore.Observation{
		VariantText:    normalized,
		RawText:        reading.Text,
		Confidence:     reading.Confidence,
		CountryCode:    reading.CountryCode,
		Timestamp:      reading.Timestamp,
		ParentID:       grouping.ParentID,
		ElapsedSeconds: grouping.Elapsed.Seconds(),
	}
	if matched {
		obs.IdentityText = canonical
	}
	if !grouping.Grouped && reading.HasImage && r.imageNamer != nil {
		obs.ImageRef = r.imageNamer(canonical, reading.Timestamp)
	}

	res, err := r.store.RecordObservation(ctx, obs)
	if err != nil {
		out.Identity = datastore.Identity{
			CanonicalText:     canonical,
			FirstSeen:         reading.Timestamp,
			LastSeen:          reading.Timestamp,
			DetectionCount:    1,
			CountryCode:       reading.CountryCode,
			HighestConfidence: reading.Confidence,
			LastConfidence:    reading.Confidence,
			LastImageRef:      obs.ImageRef,
		}
		out.Detection = datastore.Detection{
			IdentityText:   canonical,
			RawText:        reading.Text,
			Timestamp:      reading.Timestamp,
			Confidence:     reading.Confidence,
			ParentID:       grouping.ParentID,
			ElapsedSeconds: obs.ElapsedSeconds,
			IsGrouped:      grouping.Grouped,
		}
		out.Created = !matched
		if !matched {
			r.remember(canonical, "")
		}
		return out, errors.New(err).
			Component("identity").
			Category(errors.CategoryIdentity).
			Context("plate", canonical).
			Build()
	}

	out.Identity = res.Identity
	out.Detection = res.Detection
	out.Created = res.Created
	out.RenamedFrom = res.RenamedFrom
	out.Persisted = true
	if res.Created || res.RenamedFrom != "" {
		r.remember(res.Identity.CanonicalText, res.RenamedFrom)
	}
	return out, nil
}

// candidates returns the current canonical texts, falling back to the last
// good snapshot when the store is unavailable.
func (r *Resolver) candidates(ctx context.Context) []string {
	texts, err := r.store.CanonicalTexts(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.log.Warn("canonical text fetch failed, using last snapshot",
			logger.Int("snapshot_size", len(r.snapshot)),
			logger.Error(err))
		return slices.Clone(r.snapshot)
	}
	r.snapshot = texts
	return texts
}

// remember adds text to the snapshot, replacing previous when set.
func (r *Resolver) remember(text, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous != "" {
		r.snapshot = slices.DeleteFunc(r.snapshot, func(s string) bool { return s == previous })
	}
	if !slices.Contains(r.snapshot, text) {
		r.snapshot = append(r.snapshot, text)
	}
}
