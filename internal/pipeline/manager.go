// Package pipeline runs detection processing on a fixed set of workers, each
// fed by its own bounded queue.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/platewatch/internal/alert"
	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/datastore"
	"github.com/tphakala/platewatch/internal/diskmanager"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/identity"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/notification"
	"github.com/tphakala/platewatch/internal/observability/metrics"
)

// Worker and queue names.
const (
	WorkerIntake       = "intake"
	WorkerNotification = "notification"
	WorkerPersistence  = "persistence"
	WorkerMaintenance  = "maintenance"
	WorkerStatistics   = "statistics"
)

// Store is the persistence used by the workers.
type Store interface {
	AppendAlert(ctx context.Context, rec *datastore.AlertRecord) error
	MarkSuspicious(ctx context.Context, canonicalText string) (bool, error)
	Cleanup(ctx context.Context, olderThan time.Time) (datastore.CleanupResult, error)
	DailyStatistics(ctx context.Context, day time.Time) (*datastore.DailyStatistics, error)
}

// Resolver resolves readings to identities.
type Resolver interface {
	Resolve(ctx context.Context, reading identity.Reading) (*identity.Outcome, error)
}

// Notifier delivers notifications. It is satisfied by notification.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, n *notification.Notification) error
}

// Config holds queue sizes and worker schedules.
type Config struct {
	IntakeCapacity       int
	NotificationCapacity int
	PersistenceCapacity  int
	MaintenanceCapacity  int
	StatisticsCapacity   int

	PollTimeout     time.Duration
	ShutdownTimeout time.Duration

	GCInterval      time.Duration
	CleanupInterval time.Duration
	StatsInterval   time.Duration
	RecentTTL       time.Duration
	ThrottleStale   time.Duration
	// Retention is the record age removed by the sweep. Zero disables it.
	Retention   time.Duration
	DailyReport bool
	Location    *time.Location
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		IntakeCapacity:       100,
		NotificationCapacity: 50,
		PersistenceCapacity:  50,
		MaintenanceCapacity:  10,
		StatisticsCapacity:   10,
		PollTimeout:          500 * time.Millisecond,
		ShutdownTimeout:      8 * time.Second,
		GCInterval:           5 * time.Minute,
		CleanupInterval:      time.Hour,
		StatsInterval:        5 * time.Minute,
		RecentTTL:            5 * time.Minute,
		ThrottleStale:        time.Hour,
		Retention:            30 * 24 * time.Hour,
		DailyReport:          true,
		Location:             time.Local,
	}
}

// ConfigFromSettings builds the pipeline configuration from settings.
func ConfigFromSettings(s *conf.Settings) Config {
	p := s.Pipeline
	cfg := Config{
		IntakeCapacity:       p.Queues.Intake,
		NotificationCapacity: p.Queues.Notification,
		PersistenceCapacity:  p.Queues.Persistence,
		MaintenanceCapacity:  p.Queues.Maintenance,
		StatisticsCapacity:   p.Queues.Statistics,
		PollTimeout:          time.Duration(p.PollTimeoutMs) * time.Millisecond,
		ShutdownTimeout:      time.Duration(p.ShutdownTimeoutSeconds) * time.Second,
		GCInterval:           time.Duration(p.GCIntervalMinutes) * time.Minute,
		CleanupInterval:      time.Duration(p.CleanupIntervalMinutes) * time.Minute,
		StatsInterval:        time.Duration(p.StatsIntervalMinutes) * time.Minute,
		RecentTTL:            time.Duration(p.RecentCacheMinutes) * time.Minute,
		ThrottleStale:        time.Duration(s.Alerts.ThrottleStaleMinutes) * time.Minute,
		DailyReport:          p.DailyReport,
		Location:             time.Local,
	}
	if s.Retention.Enabled {
		cfg.Retention = s.RetentionHorizon()
	}
	if tz := s.Logging.Timezone; tz != "" && tz != "Local" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Location = loc
		}
	}
	return cfg.withDefaults()
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	setIfZero(&c.IntakeCapacity, d.IntakeCapacity)
	setIfZero(&c.NotificationCapacity, d.NotificationCapacity)
	setIfZero(&c.PersistenceCapacity, d.PersistenceCapacity)
	setIfZero(&c.MaintenanceCapacity, d.MaintenanceCapacity)
	setIfZero(&c.StatisticsCapacity, d.StatisticsCapacity)
	setIfZero(&c.PollTimeout, d.PollTimeout)
	setIfZero(&c.ShutdownTimeout, d.ShutdownTimeout)
	setIfZero(&c.GCInterval, d.GCInterval)
	setIfZero(&c.CleanupInterval, d.CleanupInterval)
	setIfZero(&c.StatsInterval, d.StatsInterval)
	setIfZero(&c.RecentTTL, d.RecentTTL)
	setIfZero(&c.ThrottleStale, d.ThrottleStale)
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

func setIfZero[T int | time.Duration](v *T, def T) {
	if *v <= 0 {
		*v = def
	}
}

// Deps are the collaborators driven by the workers.
type Deps struct {
	Store     Store
	Resolver  Resolver
	Evaluator *alert.Evaluator
	Notifier  Notifier
	// Images is optional; without it detection images are not written.
	Images  *diskmanager.ImageStore
	Metrics *metrics.PipelineMetrics
	Logger  logger.Logger
	Now     func() time.Time
}

// counters are the running totals reported by Stats.
type counters struct {
	received      atomic.Uint64
	processed     atomic.Uint64
	skipped       atomic.Uint64
	created       atomic.Uint64
	grouped       atomic.Uint64
	alerts        atomic.Uint64
	throttled     atomic.Uint64
	notifySent    atomic.Uint64
	notifyFailed  atomic.Uint64
	storeOps      atomic.Uint64
	storeErrors   atomic.Uint64
	workerErrors  atomic.Uint64
	workerPanics  atomic.Uint64
	imagesWritten atomic.Uint64
}

// Stats is a snapshot of pipeline activity.
type Stats struct {
	Running             bool         `json:"running"`
	DetectionsReceived  uint64       `json:"detections_received"`
	DetectionsProcessed uint64       `json:"detections_processed"`
	DetectionsSkipped   uint64       `json:"detections_skipped"`
	IdentitiesCreated   uint64       `json:"identities_created"`
	GroupedDetections   uint64       `json:"grouped_detections"`
	AlertsRaised        uint64       `json:"alerts_raised"`
	AlertsThrottled     uint64       `json:"alerts_throttled"`
	NotificationsSent   uint64       `json:"notifications_sent"`
	NotificationsFailed uint64       `json:"notifications_failed"`
	StoreOperations     uint64       `json:"store_operations"`
	StoreErrors         uint64       `json:"store_errors"`
	ImagesWritten       uint64       `json:"images_written"`
	WorkerErrors        uint64       `json:"worker_errors"`
	WorkerPanics        uint64       `json:"worker_panics"`
	ThrottleEntries     int          `json:"throttle_entries"`
	RecentPlates        int          `json:"recent_plates"`
	Queues              []QueueStats `json:"queues"`
}

type worker struct {
	name string
	done chan struct{}
}

// Manager owns the pipeline queues and workers.
type Manager struct {
	cfg       Config
	store     Store
	resolver  Resolver
	evaluator *alert.Evaluator
	notifier  Notifier
	images    *diskmanager.ImageStore
	metrics   *metrics.PipelineMetrics
	log       logger.Logger
	now       func() time.Time

	intake        *Queue[RawDetection]
	notifications *Queue[*notification.Notification]
	persistence   *Queue[persistJob]
	maintenance   *Queue[maintenanceJob]
	statistics    *Queue[reportRequest]

	recent *gocache.Cache
	stats  counters

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers []worker
	running atomic.Bool
	stopped atomic.Bool
	// gate orders OnDetection enqueues before Stop marks the manager
	// stopped, so the final drain sees every accepted reading.
	gate sync.RWMutex
}

// GetLogger returns the pipeline module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}

// NewManager creates a manager. Store, Resolver and Evaluator are required.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Store == nil || deps.Resolver == nil || deps.Evaluator == nil {
		return nil, errors.Newf("pipeline requires a store, resolver and evaluator").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:       cfg,
		store:     deps.Store,
		resolver:  deps.Resolver,
		evaluator: deps.Evaluator,
		notifier:  deps.Notifier,
		images:    deps.Images,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
		recent:    gocache.New(cfg.RecentTTL, 0),
	}
	if m.log == nil {
		m.log = GetLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.intake = NewQueue(WorkerIntake, cfg.IntakeCapacity, m.discardDetection)
	m.notifications = NewQueue(WorkerNotification, cfg.NotificationCapacity, func(n *notification.Notification) {
		m.log.Warn("notification dropped", logger.String("type", string(n.Type)), logger.String("plate", n.Plate))
	})
	m.persistence = NewQueue(WorkerPersistence, cfg.PersistenceCapacity, func(j persistJob) {
		m.log.Warn("store operation dropped", logger.String("operation", j.kind.String()), logger.String("plate", j.plate))
	})
	m.maintenance = NewQueue[maintenanceJob](WorkerMaintenance, cfg.MaintenanceCapacity, nil)
	m.statistics = NewQueue[reportRequest](WorkerStatistics, cfg.StatisticsCapacity, nil)

	return m, nil
}

// Start launches the workers. The manager stops when ctx is cancelled or
// Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped.Load() {
		return errors.Newf("pipeline already stopped").
			Component("pipeline").
			Category(errors.CategoryState).
			Build()
	}
	if !m.running.CompareAndSwap(false, true) {
		return errors.Newf("pipeline already running").
			Component("pipeline").
			Category(errors.CategoryState).
			Build()
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.spawn(ctx, WorkerIntake, func(ctx context.Context) {
		runQueue(ctx, m, m.intake, m.processDetection, nil)
	})
	m.spawn(ctx, WorkerNotification, func(ctx context.Context) {
		runQueue(ctx, m, m.notifications, m.deliver, nil)
	})
	m.spawn(ctx, WorkerPersistence, func(ctx context.Context) {
		runQueue(ctx, m, m.persistence, m.persist, nil)
	})
	m.spawn(ctx, WorkerMaintenance, func(ctx context.Context) {
		runQueue(ctx, m, m.maintenance, m.maintain, m.maintenanceSchedule())
	})
	m.spawn(ctx, WorkerStatistics, func(ctx context.Context) {
		runQueue(ctx, m, m.statistics, m.report, m.statisticsSchedule())
	})

	m.log.Info("pipeline started",
		logger.Int("intake_capacity", m.intake.Cap()),
		logger.Duration("poll_timeout", m.cfg.PollTimeout))
	return nil
}

func (m *Manager) spawn(ctx context.Context, name string, fn func(context.Context)) {
	w := worker{name: name, done: make(chan struct{})}
	m.workers = append(m.workers, w)
	go func() {
		defer close(w.done)
		fn(ctx)
	}()
}

// Stop cancels the workers and waits for each up to the shutdown timeout.
// Items still queued afterwards are discarded and their images released.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gate.Lock()
	m.stopped.Store(true)
	m.gate.Unlock()
	if !m.running.CompareAndSwap(true, false) {
		m.drain()
		return nil
	}

	m.log.Info("stopping pipeline", logger.Duration("timeout", m.cfg.ShutdownTimeout))
	m.cancel()

	deadline := time.NewTimer(m.cfg.ShutdownTimeout)
	defer deadline.Stop()

	var late []string
	expired := false
	for _, w := range m.workers {
		if expired {
			select {
			case <-w.done:
			default:
				late = append(late, w.name)
			}
			continue
		}
		select {
		case <-w.done:
		case <-deadline.C:
			expired = true
			late = append(late, w.name)
		}
	}

	m.drain()

	if len(late) > 0 {
		m.log.Warn("workers did not stop in time", logger.Any("workers", late))
		return errors.Newf("pipeline shutdown timed out waiting for %v", late).
			Component("pipeline").
			Category(errors.CategoryTimeout).
			Build()
	}
	m.log.Info("pipeline stopped")
	return nil
}

func (m *Manager) drain() {
	n := m.intake.Drain() + m.notifications.Drain() + m.persistence.Drain() +
		m.maintenance.Drain() + m.statistics.Drain()
	if n > 0 {
		m.log.Info("discarded queued items on shutdown", logger.Int("count", n))
	}
}

// OnDetection hands a reading to the intake worker. It never blocks: when the
// intake queue is full, or the manager is stopped, the reading is dropped,
// its image released and false returned.
func (m *Manager) OnDetection(det RawDetection) bool {
	det.Image = releaseOnce(det.Image)
	if det.Timestamp.IsZero() {
		det.Timestamp = m.now()
	}

	m.gate.RLock()
	if m.stopped.Load() {
		m.gate.RUnlock()
		det.release()
		return false
	}
	m.stats.received.Add(1)
	ok := m.intake.TryEnqueue(det)
	m.gate.RUnlock()

	if !ok {
		m.log.Warn("intake queue full, dropping detection",
			logger.String("text", det.Text),
			logger.Int("capacity", m.intake.Cap()))
		m.metrics.RecordDropped(WorkerIntake)
	}
	m.metrics.SetQueueDepth(WorkerIntake, m.intake.Len(), m.intake.Cap())
	return ok
}

func (m *Manager) discardDetection(det RawDetection) {
	det.release()
}

// RequestCleanup queues a throttle prune, cache eviction and retention sweep.
func (m *Manager) RequestCleanup() bool {
	ok := m.maintenance.TryEnqueue(jobPruneThrottle)
	ok = m.maintenance.TryEnqueue(jobEvictRecent) && ok
	return m.maintenance.TryEnqueue(jobRetention) && ok
}

// RequestReport queues the daily digest for day.
func (m *Manager) RequestReport(day time.Time) bool {
	return m.statistics.TryEnqueue(reportRequest{day: day})
}

// Idle reports whether no work is queued or in progress in any worker.
// Work queued by an item is counted before that item finishes.
func (m *Manager) Idle() bool {
	return m.intake.Pending() == 0 &&
		m.notifications.Pending() == 0 &&
		m.persistence.Pending() == 0 &&
		m.maintenance.Pending() == 0 &&
		m.statistics.Pending() == 0
}

// Recent returns the plates seen within the recent cache window, newest first.
func (m *Manager) Recent() []RecentPlate {
	items := m.recent.Items()
	out := make([]RecentPlate, 0, len(items))
	for _, item := range items {
		if p, ok := item.Object.(RecentPlate); ok {
			out = append(out, p)
		}
	}
	sortRecent(out)
	return out
}

// Stats returns a snapshot of the counters and queues.
func (m *Manager) Stats() Stats {
	return Stats{
		Running:             m.running.Load(),
		DetectionsReceived:  m.stats.received.Load(),
		DetectionsProcessed: m.stats.processed.Load(),
		DetectionsSkipped:   m.stats.skipped.Load(),
		IdentitiesCreated:   m.stats.created.Load(),
		GroupedDetections:   m.stats.grouped.Load(),
		AlertsRaised:        m.stats.alerts.Load(),
		AlertsThrottled:     m.stats.throttled.Load(),
		NotificationsSent:   m.stats.notifySent.Load(),
		NotificationsFailed: m.stats.notifyFailed.Load(),
		StoreOperations:     m.stats.storeOps.Load(),
		StoreErrors:         m.stats.storeErrors.Load(),
		ImagesWritten:       m.stats.imagesWritten.Load(),
		WorkerErrors:        m.stats.workerErrors.Load(),
		WorkerPanics:        m.stats.workerPanics.Load(),
		ThrottleEntries:     m.evaluator.Throttle().Len(),
		RecentPlates:        m.recent.ItemCount(),
		Queues: []QueueStats{
			m.intake.Stats(),
			m.notifications.Stats(),
			m.persistence.Stats(),
			m.maintenance.Stats(),
			m.statistics.Stats(),
		},
	}
}

// schedule is run by a worker after every poll.
type schedule func(ctx context.Context, now time.Time)

// runQueue is the loop shared by all workers: poll the queue with a timeout,
// handle the item with panic recovery, then run the periodic schedule.
func runQueue[T any](ctx context.Context, m *Manager, q *Queue[T], handle func(context.Context, T) error, tick schedule) {
	name := q.Name()
	log := m.log.Module(name)
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for {
		item, ok := q.Receive(ctx, m.cfg.PollTimeout)
		if ctx.Err() != nil {
			if ok {
				q.drop(item)
				q.done()
			}
			return
		}
		if ok {
			started := time.Now()
			if err := m.safely(name, func() error { return handle(ctx, item) }); err != nil {
				m.stats.workerErrors.Add(1)
				m.metrics.RecordWorkerError(name)
				log.Warn("item processing failed", logger.Error(err))
			}
			q.done()
			m.metrics.RecordProcessed(name, time.Since(started).Seconds())
		}
		if tick != nil {
			err := m.safely(name, func() error {
				tick(ctx, m.now())
				return nil
			})
			if err != nil {
				m.stats.workerErrors.Add(1)
				log.Warn("scheduled task failed", logger.Error(err))
			}
		}
		m.metrics.SetQueueDepth(name, q.Len(), q.Cap())
	}
}

// safely runs fn and converts a panic into an error.
func (m *Manager) safely(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.stats.workerPanics.Add(1)
			m.metrics.RecordWorkerPanic(name)
			m.log.Error("worker recovered from panic",
				logger.String("worker", name),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			err = errors.New(fmt.Errorf("panic: %v", r)).
				Component("pipeline").
				Category(errors.CategoryWorker).
				Context("worker", name).
				Build()
		}
	}()
	return fn()
}
