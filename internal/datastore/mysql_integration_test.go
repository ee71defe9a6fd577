//go:build integration

package datastore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/tphakala/platewatch/internal/logger"
)

func TestMySQL_CanonicalRewrite(t *testing.T) {
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("platewatch"),
		mysql.WithUsername("platewatch"),
		mysql.WithPassword("platewatch"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)

	s, err := OpenMySQL(dsn, time.Second, WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	observe(t, s, reading("", "AB123C", 70, 0))
	res := observe(t, s, reading("AB123C", "AB128C", 95, time.Second))
	assert.Equal(t, "AB128C", res.Identity.CanonicalText)

	dets, err := s.Detections(ctx, "AB128C", 10)
	require.NoError(t, err)
	assert.Len(t, dets, 2)

	changed, err := s.MarkSuspicious(ctx, "AB128C")
	require.NoError(t, err)
	assert.True(t, changed)
}
