// Package conf loads platewatch settings from YAML, environment variables and
// command line flags using viper.
package conf

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
)

//go:embed config.yaml
var defaultConfigYAML []byte

// Settings is the complete application configuration. It is loaded once and
// passed to constructors; the core packages never read viper directly.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Main struct {
		Name string `mapstructure:"name" validate:"required"`
	} `mapstructure:"main"`

	Logging logger.LoggingConfig `mapstructure:"logging"`

	Database     DatabaseSettings     `mapstructure:"database"`
	Identity     IdentitySettings     `mapstructure:"identity"`
	Alerts       AlertSettings        `mapstructure:"alerts"`
	Blacklist    BlacklistSettings    `mapstructure:"blacklist"`
	Retention    RetentionSettings    `mapstructure:"retention"`
	Images       ImageSettings        `mapstructure:"images"`
	Pipeline     PipelineSettings     `mapstructure:"pipeline"`
	Notification NotificationSettings `mapstructure:"notification"`
	Source       SourceSettings       `mapstructure:"source"`
	WebServer    WebServerSettings    `mapstructure:"webserver"`
	Sentry       SentrySettings       `mapstructure:"sentry"`
}

// DatabaseSettings selects and configures the store backend.
type DatabaseSettings struct {
	Type   string `mapstructure:"type" validate:"oneof=sqlite mysql"`
	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mysql"`
	SlowQueryMs int `mapstructure:"slow_query_ms" validate:"gte=0"`
}

// IdentitySettings controls identity resolution and visit grouping.
type IdentitySettings struct {
	GroupingWindowSeconds int `mapstructure:"grouping_window_seconds" validate:"gte=0"`
}

// AlertSettings controls blacklist and dwell alerts.
type AlertSettings struct {
	BlacklistSimilarityThreshold float64 `mapstructure:"blacklist_similarity_threshold" validate:"gte=0,lte=100"`
	SuspiciousDurationMinutes    int     `mapstructure:"suspicious_duration_minutes" validate:"gte=0"`
	CooldownSeconds              int     `mapstructure:"cooldown_seconds" validate:"gte=0"`
	ThrottleStaleMinutes         int     `mapstructure:"throttle_stale_minutes" validate:"gte=1"`
}

// BlacklistSettings controls the blacklist read-through cache.
type BlacklistSettings struct {
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" validate:"gte=1"`
}

// RetentionSettings controls the periodic sweep of old records.
type RetentionSettings struct {
	Enabled bool `mapstructure:"enabled"`
	Days    int  `mapstructure:"days" validate:"gte=1"`
}

// ImageSettings controls where standalone detection images are written.
type ImageSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// QueueSettings holds per-stage queue capacities.
type QueueSettings struct {
	Intake       int `mapstructure:"intake" validate:"gte=1"`
	Notification int `mapstructure:"notification" validate:"gte=1"`
	Persistence  int `mapstructure:"persistence" validate:"gte=1"`
	Maintenance  int `mapstructure:"maintenance" validate:"gte=1"`
	Statistics   int `mapstructure:"statistics" validate:"gte=1"`
}

// PipelineSettings controls the worker manager.
type PipelineSettings struct {
	Queues                 QueueSettings `mapstructure:"queues"`
	PollTimeoutMs          int           `mapstructure:"poll_timeout_ms" validate:"gte=10"`
	ShutdownTimeoutSeconds int           `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
	GCIntervalMinutes      int           `mapstructure:"gc_interval_minutes" validate:"gte=1"`
	CleanupIntervalMinutes int           `mapstructure:"cleanup_interval_minutes" validate:"gte=1"`
	StatsIntervalMinutes   int           `mapstructure:"stats_interval_minutes" validate:"gte=1"`
	RecentCacheMinutes     int           `mapstructure:"recent_cache_minutes" validate:"gte=1"`
	DailyReport            bool          `mapstructure:"daily_report"`
}

// NotificationSettings configures the outbound alert providers.
type NotificationSettings struct {
	Shoutrrr struct {
		Enabled        bool     `mapstructure:"enabled"`
		URLs           []string `mapstructure:"urls"`
		TimeoutSeconds int      `mapstructure:"timeout_seconds" validate:"gte=1"`
	} `mapstructure:"shoutrrr"`
	Webhook struct {
		Enabled        bool              `mapstructure:"enabled"`
		URL            string            `mapstructure:"url" validate:"omitempty,url"`
		Headers        map[string]string `mapstructure:"headers"`
		TimeoutSeconds int               `mapstructure:"timeout_seconds" validate:"gte=1"`
	} `mapstructure:"webhook"`
	MQTT           MQTTSettings `mapstructure:"mqtt"`
	RateLimit      struct {
		RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gte=1"`
		Burst             int `mapstructure:"burst" validate:"gte=1"`
	} `mapstructure:"rate_limit"`
	CircuitBreaker struct {
		MaxFailures    int `mapstructure:"max_failures" validate:"gte=1"`
		TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=1"`
	} `mapstructure:"circuit_breaker"`
}

// MQTTSettings is shared by the MQTT alert publisher and detection source.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Retain   bool   `mapstructure:"retain"`
	QoS      byte   `mapstructure:"qos" validate:"lte=2"`
}

// SourceSettings configures where recognition results come from.
type SourceSettings struct {
	MQTT MQTTSettings `mapstructure:"mqtt"`
}

// WebServerSettings configures the status API.
type WebServerSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// GroupingWindow returns the visit grouping window.
func (s *Settings) GroupingWindow() time.Duration {
	return time.Duration(s.Identity.GroupingWindowSeconds) * time.Second
}

// AlertCooldown returns the suspicious alert cooldown.
func (s *Settings) AlertCooldown() time.Duration {
	return time.Duration(s.Alerts.CooldownSeconds) * time.Second
}

// SuspiciousDuration returns the dwell time after which a plate is suspicious.
func (s *Settings) SuspiciousDuration() time.Duration {
	return time.Duration(s.Alerts.SuspiciousDurationMinutes) * time.Minute
}

// BlacklistCacheTTL returns the blacklist cache lifetime.
func (s *Settings) BlacklistCacheTTL() time.Duration {
	return time.Duration(s.Blacklist.CacheTTLSeconds) * time.Second
}

// RetentionHorizon returns the age after which records are swept.
func (s *Settings) RetentionHorizon() time.Duration {
	return time.Duration(s.Retention.Days) * 24 * time.Hour
}

// Load reads the configuration file (configFile, or config.yaml from the
// default search paths), applies environment overrides and validates the
// result. A default config file is created when none exists.
func Load(configFile string) (*Settings, error) {
	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// invalid env values are reported but do not stop startup
		logger.Global().Module("conf").Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfigYAML, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		return []string{
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", "platewatch"),
		}, nil
	}

	return []string{
		filepath.Join(homeDir, ".config", "platewatch"),
		"/etc/platewatch",
		".",
	}, nil
}
