package datastore

import (
	"context"
	"time"

	"github.com/tphakala/platewatch/internal/observability/metrics"
)

// AppendAlert adds a record to the append-only alert log.
func (s *Store) AppendAlert(ctx context.Context, rec *AlertRecord) error {
	started := time.Now()
	rec.Timestamp = rec.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Create(rec).Error
	s.observe(metrics.OpAppendAlert, started, err)
	if err != nil {
		return dbError(err, "append_alert", started)
	}
	return nil
}

// RecentAlerts returns the newest alert records.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	started := time.Now()
	var recs []AlertRecord
	err := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, dbError(err, "recent_alerts", started)
	}
	return recs, nil
}
