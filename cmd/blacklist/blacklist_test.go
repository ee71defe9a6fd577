package blacklist

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/conf"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Database.Type = "sqlite"
	s.Database.SQLite.Path = filepath.Join(t.TempDir(), "platewatch.db")
	return s
}

func execute(t *testing.T, settings *conf.Settings, args ...string) (string, error) {
	t.Helper()
	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBlacklistCommands(t *testing.T) {
	settings := testSettings(t)

	out, err := execute(t, settings, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "empty")

	out, err = execute(t, settings, "add", "ab-123c", "--reason", "stolen", "--danger", "high")
	require.NoError(t, err)
	assert.Contains(t, out, "Blacklisted AB123C")

	out, err = execute(t, settings, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "AB123C")
	assert.Contains(t, out, "HIGH")
	assert.Contains(t, out, "stolen")

	_, err = execute(t, settings, "remove", "AB123C")
	require.NoError(t, err)

	_, err = execute(t, settings, "remove", "AB123C")
	require.Error(t, err)
}

func TestBlacklistImport(t *testing.T) {
	settings := testSettings(t)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "list.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("text,reason,danger_level,notes\nXY999Z,fraud,CRITICAL,\nKL456M,,,\n"), 0o600))
	out, err := execute(t, settings, "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 entries")

	yamlPath := filepath.Join(dir, "list.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- text: QW111E\n  reason: wanted\n"), 0o600))
	out, err = execute(t, settings, "import", yamlPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 entries")

	out, err = execute(t, settings, "list")
	require.NoError(t, err)
	for _, plate := range []string{"XY999Z", "KL456M", "QW111E"} {
		assert.Contains(t, out, plate)
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "yaml", formatFromPath("a/b.YAML"))
	assert.Equal(t, "yaml", formatFromPath("b.yml"))
	assert.Equal(t, "csv", formatFromPath("b.csv"))
	assert.Equal(t, "csv", formatFromPath("noext"))
}
