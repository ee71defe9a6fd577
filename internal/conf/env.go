// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every automatically bound environment variable.
const envPrefix = "PLATEWATCH"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Other keys are still reachable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PLATEWATCH_DEBUG", validateEnvBool},
		{"database.type", "PLATEWATCH_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "PLATEWATCH_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.host", "PLATEWATCH_DATABASE_MYSQL_HOST", nil},
		{"database.mysql.port", "PLATEWATCH_DATABASE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.password", "PLATEWATCH_DATABASE_MYSQL_PASSWORD", nil},
		{"alerts.blacklist_similarity_threshold", "PLATEWATCH_ALERTS_BLACKLIST_SIMILARITY_THRESHOLD", validateEnvPercentage},
		{"alerts.suspicious_duration_minutes", "PLATEWATCH_ALERTS_SUSPICIOUS_DURATION_MINUTES", validateEnvNonNegativeInt},
		{"identity.grouping_window_seconds", "PLATEWATCH_IDENTITY_GROUPING_WINDOW_SECONDS", validateEnvNonNegativeInt},
		{"notification.mqtt.password", "PLATEWATCH_NOTIFICATION_MQTT_PASSWORD", nil},
		{"source.mqtt.password", "PLATEWATCH_SOURCE_MQTT_PASSWORD", nil},
		{"sentry.dsn", "PLATEWATCH_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch strings.ToLower(value) {
	case "sqlite", "mysql":
		return nil
	}
	return fmt.Errorf("must be sqlite or mysql")
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPercentage(value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 || v > 100 {
		return fmt.Errorf("must be a number between 0 and 100")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

// configureEnvironmentVariables enables PLATEWATCH_ prefixed overrides for
// every config key, with explicit validation for the common ones.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
