package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/datastore"
)

func TestStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platewatch.db")
	store, err := datastore.OpenSQLite(path, time.Second)
	require.NoError(t, err)
	for i, text := range []string{"AB123C", "AB123C", "XY999Z"} {
		_, err := store.RecordObservation(context.Background(), datastore.Observation{
			VariantText: text,
			Confidence:  90,
			Timestamp:   time.Date(2025, 3, 14, 9, i, 0, 0, time.Local),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	settings := &conf.Settings{}
	settings.Database.SQLite.Path = path

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--date", "2025-03-14", "--days", "2"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "2025-03-14")
	assert.Contains(t, out.String(), "2025-03-13")
	assert.Contains(t, out.String(), "3")

	cmd = Command(settings)
	cmd.SetArgs([]string{"--date", "03/14/2025"})
	require.Error(t, cmd.Execute())
}
