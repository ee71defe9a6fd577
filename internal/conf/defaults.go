// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
	"github.com/tphakala/platewatch/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "platewatch")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "platewatch.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.database", "platewatch")
	viper.SetDefault("database.slow_query_ms", 200)

	viper.SetDefault("identity.grouping_window_seconds", 10)

	viper.SetDefault("alerts.blacklist_similarity_threshold", 80.0)
	viper.SetDefault("alerts.suspicious_duration_minutes", 2)
	viper.SetDefault("alerts.cooldown_seconds", 10)
	viper.SetDefault("alerts.throttle_stale_minutes", 60)

	viper.SetDefault("blacklist.cache_ttl_seconds", 60)

	viper.SetDefault("retention.enabled", true)
	viper.SetDefault("retention.days", 30)

	viper.SetDefault("images.enabled", true)
	viper.SetDefault("images.path", "detections")

	viper.SetDefault("pipeline.queues.intake", 100)
	viper.SetDefault("pipeline.queues.notification", 50)
	viper.SetDefault("pipeline.queues.persistence", 50)
	viper.SetDefault("pipeline.queues.maintenance", 10)
	viper.SetDefault("pipeline.queues.statistics", 10)
	viper.SetDefault("pipeline.poll_timeout_ms", 500)
	viper.SetDefault("pipeline.shutdown_timeout_seconds", 8)
	viper.SetDefault("pipeline.gc_interval_minutes", 5)
	viper.SetDefault("pipeline.cleanup_interval_minutes", 60)
	viper.SetDefault("pipeline.stats_interval_minutes", 5)
	viper.SetDefault("pipeline.recent_cache_minutes", 5)
	viper.SetDefault("pipeline.daily_report", true)

	viper.SetDefault("notification.shoutrrr.enabled", false)
	viper.SetDefault("notification.shoutrrr.urls", []string{})
	viper.SetDefault("notification.shoutrrr.timeout_seconds", 10)
	viper.SetDefault("notification.webhook.enabled", false)
	viper.SetDefault("notification.webhook.timeout_seconds", 10)
	viper.SetDefault("notification.mqtt.enabled", false)
	viper.SetDefault("notification.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notification.mqtt.topic", "platewatch/alerts")
	viper.SetDefault("notification.mqtt.client_id", "platewatch-alerts")
	viper.SetDefault("notification.mqtt.qos", 1)
	viper.SetDefault("notification.rate_limit.requests_per_minute", 60)
	viper.SetDefault("notification.rate_limit.burst", 10)
	viper.SetDefault("notification.circuit_breaker.max_failures", 5)
	viper.SetDefault("notification.circuit_breaker.timeout_seconds", 30)

	viper.SetDefault("source.mqtt.enabled", false)
	viper.SetDefault("source.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("source.mqtt.topic", "platewatch/detections")
	viper.SetDefault("source.mqtt.client_id", "platewatch-source")
	viper.SetDefault("source.mqtt.qos", 1)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")

	viper.SetDefault("sentry.enabled", false)
}
