// interfaces.go defines the repository contract used by the rest of the application
package datastore

import (
	"context"
	"io"
	"time"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	// identities
	CanonicalTexts(ctx context.Context) ([]string, error)
	GetIdentity(ctx context.Context, canonicalText string) (*Identity, error)
	RecordObservation(ctx context.Context, obs Observation) (*ObservationResult, error)
	LatestUngroupedDetection(ctx context.Context, canonicalText string) (*Detection, error)
	MarkSuspicious(ctx context.Context, canonicalText string) (bool, error)
	Variants(ctx context.Context, canonicalText string) ([]Variant, error)
	Detections(ctx context.Context, canonicalText string, limit int) ([]Detection, error)
	GroupedDetections(ctx context.Context, canonicalText string, limit int) ([]DetectionGroup, error)
	SearchIdentities(ctx context.Context, term string, limit int) ([]SearchResult, error)

	// blacklist
	Blacklist(ctx context.Context) ([]BlacklistEntry, error)
	AddBlacklistEntry(ctx context.Context, entry BlacklistEntry) error
	RemoveBlacklistEntry(ctx context.Context, text string) error
	ImportBlacklist(ctx context.Context, r io.Reader, format string) (int, error)

	// alert log
	AppendAlert(ctx context.Context, rec *AlertRecord) error
	RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)

	// reporting and maintenance
	DailyStatistics(ctx context.Context, day time.Time) (*DailyStatistics, error)
	Cleanup(ctx context.Context, olderThan time.Time) (CleanupResult, error)
	ExportCSV(ctx context.Context, w io.Writer, from, to *time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

var _ Interface = (*Store)(nil)
