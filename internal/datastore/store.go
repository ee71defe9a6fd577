package datastore

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/observability/metrics"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite = "sqlite"
	dbTypeMySQL  = "mysql"

	defaultSlowQuery = 200 * time.Millisecond
)

// Store is the gorm backed repository for identities, detections, the
// blacklist and the alert log. Every write runs under one coarse mutex so
// a canonical rewrite never interleaves with an append.
type Store struct {
	db      *gorm.DB
	dbType  string
	mu      sync.Mutex
	log     logger.Logger
	metrics *metrics.DatastoreMetrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records operation counts and latencies.
func WithMetrics(m *metrics.DatastoreMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source used to decide which days are finished.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens the database selected by settings.Database.Type.
func New(settings *conf.Settings, opts ...Option) (*Store, error) {
	slow := time.Duration(settings.Database.SlowQueryMs) * time.Millisecond
	if slow <= 0 {
		slow = defaultSlowQuery
	}

	switch strings.ToLower(settings.Database.Type) {
	case dbTypeMySQL:
		return OpenMySQL(mysqlDSN(&settings.Database), slow, opts...)
	default:
		return OpenSQLite(settings.Database.SQLite.Path, slow, opts...)
	}
}

// mysqlDSN builds the driver DSN with credentials escaped by the driver.
func mysqlDSN(db *conf.DatabaseSettings) string {
	my := db.MySQL
	cfg := gosqlmysql.Config{
		User:                 my.Username,
		Passwd:               my.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(my.Host, strconv.Itoa(my.Port)),
		DBName:               my.Database,
		Loc:                  time.UTC,
		ParseTime:            true,
		AllowNativePasswords: true,
		Params: map[string]string{
			"charset": "utf8mb4",
		},
	}
	return cfg.FormatDSN()
}

// OpenSQLite opens (creating if needed) an SQLite database at path. The
// special path ":memory:" opens a private in-memory database.
func OpenSQLite(path string, slowThreshold time.Duration, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	s, err := open(sqlite.Open(dsn), dbTypeSQLite, slowThreshold, opts...)
	if err != nil {
		return nil, err
	}

	// single writer; also keeps every query on the same in-memory database
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return s, nil
}

// OpenMySQL opens a MySQL database using a go-sql-driver DSN.
func OpenMySQL(dsn string, slowThreshold time.Duration, opts ...Option) (*Store, error) {
	return open(mysql.Open(dsn), dbTypeMySQL, slowThreshold, opts...)
}

func open(dialector gorm.Dialector, dbType string, slowThreshold time.Duration, opts ...Option) (*Store, error) {
	s := &Store{
		dbType: dbType,
		log:    GetLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.NewGormLoggerAdapter(s.log.Module("gorm"), slowThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		s.log.Error("failed to open database", logger.String("db_type", dbType), logger.Error(err))
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	started := time.Now()
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate %s database: %w", s.dbType, err), "migrate", started)
	}
	s.log.Debug("database migration completed",
		logger.String("db_type", s.dbType),
		logger.Duration("duration", time.Since(started)))
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrNotInitialized
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// observe records the outcome of an operation when metrics are enabled.
func (s *Store) observe(operation string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		s.metrics.RecordError(operation, "database")
	}
	s.metrics.RecordOperation(operation, status)
	s.metrics.RecordDuration(operation, time.Since(started).Seconds())
}

// dayBounds returns [start, end) of the calendar day containing t, in UTC.
func dayBounds(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
