package search

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

func TestSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platewatch.db")
	store, err := datastore.OpenSQLite(path, time.Second)
	require.NoError(t, err)
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	_, err = store.RecordObservation(context.Background(), datastore.Observation{
		VariantText: "AB123C", Confidence: 91, Timestamp: ts,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	settings := &conf.Settings{}
	settings.Database.SQLite.Path = path

	execute := func(args ...string) string {
		t.Helper()
		cmd := Command(settings)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := execute("123", "--variants")
	assert.Contains(t, out, "AB123C")
	assert.Contains(t, out, "91.0")
	assert.Contains(t, out, "Variants of AB123C")

	out = execute("ZZZ")
	assert.Contains(t, out, `No plates match "ZZZ"`)
}
