package datastore

import (
	"context"
	"time"

	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/observability/metrics"
	"gorm.io/gorm"
)

// CleanupResult reports how many rows a retention sweep removed.
type CleanupResult struct {
	Detections int64
	Identities int64
	Variants   int64
}

// Cleanup deletes detections older than olderThan and identities last seen
// before it, together with their variants. Blacklisted identities are kept.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Time) (CleanupResult, error) {
	started := time.Now()
	cutoff := olderThan.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var result CleanupResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("timestamp < ?", cutoff).Delete(&Detection{})
		if res.Error != nil {
			return res.Error
		}
		result.Detections = res.RowsAffected

		var stale []string
		if err := tx.Model(&Identity{}).
			Where("last_seen < ? AND is_blacklisted = ?", cutoff, false).
			Pluck("canonical_text", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		res = tx.Where("identity_text IN ?", stale).Delete(&Variant{})
		if res.Error != nil {
			return res.Error
		}
		result.Variants = res.RowsAffected

		res = tx.Where("canonical_text IN ?", stale).Delete(&Identity{})
		if res.Error != nil {
			return res.Error
		}
		result.Identities = res.RowsAffected
		return nil
	})
	s.observe(metrics.OpCleanup, started, err)
	if err != nil {
		return CleanupResult{}, dbError(err, "cleanup", started)
	}

	if s.metrics != nil {
		s.metrics.RecordCleanup("detections", result.Detections)
		s.metrics.RecordCleanup("identities", result.Identities)
		s.metrics.RecordCleanup("variants", result.Variants)
	}
	s.log.Info("retention sweep completed",
		logger.Time("cutoff", cutoff),
		logger.Int64("detections", result.Detections),
		logger.Int64("identities", result.Identities))
	return result, nil
}
