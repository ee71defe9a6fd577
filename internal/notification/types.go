// Package notification delivers alert messages to external services.
package notification

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type represents the category of a notification
type Type string

const (
	// TypeBlacklist is sent when a blacklisted plate is seen.
	TypeBlacklist Type = "blacklist"
	// TypeSuspicious is sent when a plate dwells longer than allowed.
	TypeSuspicious Type = "suspicious"
	// TypeReport carries the daily digest.
	TypeReport Type = "report"
	// TypeTest is sent by the notify command.
	TypeTest Type = "test"
)

// Priority represents the urgency level of a notification
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps a name to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return p
	default:
		return PriorityNormal
	}
}

// Notification is a single outbound message.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Plate     string         `json:"plate,omitempty"`
	ImageRef  string         `json:"image_ref,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewNotification creates a new notification with a unique ID and timestamp
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// WithPlate sets the plate the notification is about.
func (n *Notification) WithPlate(plate string) *Notification {
	n.Plate = plate
	return n
}

// WithImage attaches an image reference.
func (n *Notification) WithImage(ref string) *Notification {
	n.ImageRef = ref
	return n
}

// WithMetadata adds a metadata entry and returns the notification for chaining.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// WithTimestamp overrides the creation time.
func (n *Notification) WithTimestamp(ts time.Time) *Notification {
	n.Timestamp = ts
	return n
}
