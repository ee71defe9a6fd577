package datastore

import (
	"context"
	"time"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyStatistics computes the counters for the calendar day containing day
// (in day's location). Finished days are served from and written to the
// statistics table; the current day is always computed.
func (s *Store) DailyStatistics(ctx context.Context, day time.Time) (*DailyStatistics, error) {
	started := time.Now()
	date := day.Format(time.DateOnly)
	start, end := dayBounds(day)
	finished := !s.now().Before(end)
	db := s.db.WithContext(ctx)

	if finished {
		var cached DailyStatistics
		err := db.Where("date = ?", date).Take(&cached).Error
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dbError(err, "statistics", started)
		}
	}

	stats := DailyStatistics{Date: date}
	err := computeStatistics(db, start, end, &stats)
	s.observe(metrics.OpStatistics, started, err)
	if err != nil {
		return nil, dbError(err, "statistics", started)
	}

	if finished {
		s.mu.Lock()
		err = db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&stats).Error
		s.mu.Unlock()
		if err != nil {
			return nil, dbError(err, "statistics", started)
		}
	}
	return &stats, nil
}

func computeStatistics(db *gorm.DB, start, end time.Time, stats *DailyStatistics) error {
	inDay := "timestamp >= ? AND timestamp < ?"

	if err := db.Model(&Detection{}).Where(inDay, start, end).Count(&stats.TotalDetections).Error; err != nil {
		return err
	}
	if err := db.Model(&Detection{}).Where(inDay, start, end).
		Distinct("identity_text").Count(&stats.UniquePlates).Error; err != nil {
		return err
	}
	if err := db.Model(&Identity{}).
		Where("is_suspicious = ? AND last_seen >= ? AND last_seen < ?", true, start, end).
		Count(&stats.SuspiciousEvents).Error; err != nil {
		return err
	}
	return db.Model(&AlertRecord{}).Where(inDay, start, end).Count(&stats.BlacklistHits).Error
}
