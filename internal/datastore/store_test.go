package datastore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tphakala/platewatch/internal/logger"
)

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// newTestStore opens a private in-memory SQLite store.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))}, opts...)
	s, err := OpenSQLite(":memory:", time.Second, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// observe records a reading and fails the test on error.
func observe(t *testing.T, s *Store, obs Observation) *ObservationResult {
	t.Helper()
	res, err := s.RecordObservation(context.Background(), obs)
	require.NoError(t, err)
	return res
}

func reading(identity, text string, confidence float64, offset time.Duration) Observation {
	return Observation{
		IdentityText: identity,
		VariantText:  text,
		RawText:      text,
		Confidence:   confidence,
		CountryCode:  "FI",
		Timestamp:    baseTime.Add(offset),
	}
}
