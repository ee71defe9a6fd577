package notification

import (
	"context"

	"github.com/tphakala/platewatch/internal/logger"
)

// Provider defines a push delivery backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	ValidateConfig() error
	Send(ctx context.Context, n *Notification) error
	IsEnabled() bool
}

// GetLogger returns the notification module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
