package identity

import (
	"context"
	"time"

	"github.com/tphakala/platewatch/internal/datastore"
)

// DefaultGroupingWindow is the gap under which a reading continues the
// current visit.
const DefaultGroupingWindow = 10 * time.Second

// DetectionLookup finds the newest standalone detection of an identity.
type DetectionLookup interface {
	LatestUngroupedDetection(ctx context.Context, canonicalText string) (*datastore.Detection, error)
}

// Grouping is the outcome of a grouping decision.
type Grouping struct {
	Grouped  bool
	ParentID *uint
	Elapsed  time.Duration
}

// Grouper folds rapid repeat readings of one plate into a single visit.
type Grouper struct {
	store  DetectionLookup
	window time.Duration
}

// NewGrouper returns a Grouper. A window of zero disables grouping.
func NewGrouper(store DetectionLookup, window time.Duration) *Grouper {
	return &Grouper{store: store, window: window}
}

// Decide reports whether a reading of canonicalText at ts belongs to the
// visit started by the identity's latest standalone detection.
func (g *Grouper) Decide(ctx context.Context, canonicalText string, ts time.Time) (Grouping, error) {
	if g.window <= 0 {
		return Grouping{}, nil
	}

	parent, err := g.store.LatestUngroupedDetection(ctx, canonicalText)
	if err != nil {
		return Grouping{}, err
	}
	if parent == nil {
		return Grouping{}, nil
	}

	gap := ts.Sub(parent.Timestamp)
	if gap >= g.window {
		return Grouping{}, nil
	}

	id := parent.ID
	return Grouping{
		Grouped:  true,
		ParentID: &id,
		Elapsed:  max(gap, 0),
	}, nil
}
