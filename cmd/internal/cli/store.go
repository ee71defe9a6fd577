package cli

import (
	"fmt"
	"time"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/datastore"
)

// OpenStore opens the configured store. The caller closes it.
func OpenStore(settings *conf.Settings) (*datastore.Store, error) {
	store, err := datastore.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// ParseDate parses a YYYY-MM-DD date in local time. An empty string yields
// nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}
