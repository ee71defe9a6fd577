// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/tphakala/platewatch/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateSettings checks struct tag constraints and the cross-field rules
// that tags cannot express.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := structValidator().Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				ve.Errors = append(ve.Errors, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateNotificationSettings(&settings.Notification); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Source.MQTT.Enabled && settings.Source.MQTT.Broker == "" {
		ve.Errors = append(ve.Errors, "source MQTT is enabled but no broker is set")
	}
	if settings.Images.Enabled && settings.Images.Path == "" {
		ve.Errors = append(ve.Errors, "image storage is enabled but no path is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(db *DatabaseSettings) error {
	switch strings.ToLower(db.Type) {
	case "sqlite":
		if db.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required for sqlite")
		}
	case "mysql":
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			return fmt.Errorf("database.mysql.host and database.mysql.database are required for mysql")
		}
	}
	return nil
}

func validateNotificationSettings(n *NotificationSettings) error {
	var problems []string
	if n.Shoutrrr.Enabled && len(n.Shoutrrr.URLs) == 0 {
		problems = append(problems, "shoutrrr is enabled but no urls are configured")
	}
	if n.Webhook.Enabled && n.Webhook.URL == "" {
		problems = append(problems, "webhook is enabled but no url is configured")
	}
	if n.MQTT.Enabled && (n.MQTT.Broker == "" || n.MQTT.Topic == "") {
		problems = append(problems, "mqtt notifications need both broker and topic")
	}
	if len(problems) > 0 {
		return fmt.Errorf("notification settings: %s", strings.Join(problems, "; "))
	}
	return nil
}
