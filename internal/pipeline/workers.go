package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/tphakala/platewatch/internal/alert"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/notification"
)

// deliver hands one notification to the notifier. Failures are logged and
// the notification is dropped.
func (m *Manager) deliver(ctx context.Context, n *notification.Notification) error {
	if err := m.notifier.Dispatch(ctx, n); err != nil {
		m.stats.notifyFailed.Add(1)
		m.log.Warn("notification delivery failed",
			logger.String("type", string(n.Type)),
			logger.String("plate", n.Plate),
			logger.Error(err))
		return nil
	}
	m.stats.notifySent.Add(1)
	return nil
}

func (m *Manager) persist(ctx context.Context, job persistJob) error {
	var err error
	switch job.kind {
	case persistAlert:
		err = m.store.AppendAlert(ctx, job.alert)
	case persistSuspicious:
		var changed bool
		changed, err = m.store.MarkSuspicious(ctx, job.plate)
		if err == nil && changed {
			m.log.Info("plate marked suspicious", logger.String("plate", job.plate))
		}
	case persistImage:
		if m.images == nil {
			return nil
		}
		if err = m.images.Write(job.ref, job.data); err == nil {
			m.stats.imagesWritten.Add(1)
		}
	case persistRetention:
		err = m.sweep(ctx, job.cutoff)
	}

	m.stats.storeOps.Add(1)
	if err != nil {
		m.stats.storeErrors.Add(1)
		category := errors.CategoryDatabase
		if job.kind == persistImage {
			category = errors.CategoryFileIO
		}
		return errors.New(err).
			Component("pipeline").
			Category(category).
			Context("operation", job.kind.String()).
			Context("plate", job.plate).
			Build()
	}
	return nil
}

// sweep removes records and image directories older than cutoff.
func (m *Manager) sweep(ctx context.Context, cutoff time.Time) error {
	res, err := m.store.Cleanup(ctx, cutoff)
	if err != nil {
		return err
	}
	m.log.Info("retention sweep completed",
		logger.Time("cutoff", cutoff),
		logger.Int64("detections", res.Detections),
		logger.Int64("identities", res.Identities),
		logger.Int64("variants", res.Variants))

	if m.images != nil {
		if _, err := m.images.CleanupOlderThan(ctx, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) maintain(_ context.Context, job maintenanceJob) error {
	now := m.now()
	switch job {
	case jobPruneThrottle:
		if n := m.evaluator.Throttle().Prune(now.Add(-m.cfg.ThrottleStale)); n > 0 {
			m.log.Debug("pruned alert throttle", logger.Int("removed", n))
		}
	case jobEvictRecent:
		m.recent.DeleteExpired()
	case jobRetention:
		if m.cfg.Retention <= 0 {
			return nil
		}
		m.enqueuePersist(persistJob{kind: persistRetention, cutoff: now.Add(-m.cfg.Retention)})
	case jobReclaimMemory:
		// FreeOSMemory forces a collection before returning memory to the OS
		debug.FreeOSMemory()
		m.log.Debug("memory reclaimed")
	}
	return nil
}

// maintenanceSchedule runs cleanup and memory reclamation on their intervals.
// The first cleanup runs one interval after start.
func (m *Manager) maintenanceSchedule() schedule {
	start := m.now()
	lastCleanup, lastGC := start, start

	return func(ctx context.Context, now time.Time) {
		if now.Sub(lastCleanup) >= m.cfg.CleanupInterval {
			lastCleanup = now
			for _, job := range []maintenanceJob{jobPruneThrottle, jobEvictRecent, jobRetention} {
				_ = m.maintain(ctx, job)
			}
		}
		if now.Sub(lastGC) >= m.cfg.GCInterval {
			lastGC = now
			_ = m.maintain(ctx, jobReclaimMemory)
		}
	}
}

// report builds and queues the digest for one day.
func (m *Manager) report(ctx context.Context, req reportRequest) error {
	stats, err := m.store.DailyStatistics(ctx, req.day)
	if err != nil {
		return err
	}
	m.log.Info("daily statistics",
		logger.String("date", stats.Date),
		logger.Int64("detections", stats.TotalDetections),
		logger.Int64("unique_plates", stats.UniquePlates),
		logger.Int64("suspicious", stats.SuspiciousEvents),
		logger.Int64("blacklist_hits", stats.BlacklistHits))

	n := notification.NewNotification(notification.TypeReport, notification.PriorityLow,
		"Daily report", alert.FormatDailyReport(*stats)).
		WithMetadata("date", stats.Date).
		WithTimestamp(m.now())
	m.enqueueNotification(n)
	return nil
}

// statisticsSchedule logs counters every StatsInterval and queues the digest
// for the previous day once the local date changes.
func (m *Manager) statisticsSchedule() schedule {
	start := m.now()
	lastLog := start
	lastDay := dayOf(start, m.cfg.Location)

	return func(ctx context.Context, now time.Time) {
		if now.Sub(lastLog) >= m.cfg.StatsInterval {
			lastLog = now
			m.logStats()
		}

		today := dayOf(now, m.cfg.Location)
		if today.After(lastDay) {
			lastDay = today
			if m.cfg.DailyReport {
				if err := m.report(ctx, reportRequest{day: today.AddDate(0, 0, -1)}); err != nil {
					m.log.Warn("daily report failed", logger.Error(err))
				}
			}
		}
	}
}

func (m *Manager) logStats() {
	s := m.Stats()
	fields := []logger.Field{
		logger.Uint64("received", s.DetectionsReceived),
		logger.Uint64("processed", s.DetectionsProcessed),
		logger.Uint64("created", s.IdentitiesCreated),
		logger.Uint64("grouped", s.GroupedDetections),
		logger.Uint64("alerts", s.AlertsRaised),
		logger.Uint64("notifications_sent", s.NotificationsSent),
		logger.Uint64("store_errors", s.StoreErrors),
		logger.Uint64("worker_errors", s.WorkerErrors),
	}
	for _, q := range s.Queues {
		fields = append(fields, logger.Uint64(q.Name+"_dropped", q.Dropped))
	}
	m.log.Info("pipeline statistics", fields...)
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}
