package datastore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklist_AddRemove(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	observe(t, s, reading("", "AB123C", 70, 0))

	require.NoError(t, s.AddBlacklistEntry(ctx, BlacklistEntry{Text: "ab-123 c", Reason: "stolen", DangerLevel: "high"}))

	entries, err := s.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AB123C", entries[0].Text)
	assert.Equal(t, DangerHigh, entries[0].DangerLevel)
	assert.False(t, entries[0].DateAdded.IsZero())

	ident, err := s.GetIdentity(ctx, "AB123C")
	require.NoError(t, err)
	assert.True(t, ident.IsBlacklisted)

	// upsert replaces the reason
	require.NoError(t, s.AddBlacklistEntry(ctx, BlacklistEntry{Text: "AB123C", Reason: "wanted"}))
	entries, err = s.Blacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wanted", entries[0].Reason)
	assert.Equal(t, DangerMedium, entries[0].DangerLevel)

	require.NoError(t, s.RemoveBlacklistEntry(ctx, "AB123C"))
	ident, err = s.GetIdentity(ctx, "AB123C")
	require.NoError(t, err)
	assert.False(t, ident.IsBlacklisted)

	err = s.RemoveBlacklistEntry(ctx, "AB123C")
	require.ErrorIs(t, err, ErrBlacklistEntryNotFound)
}

func TestBlacklist_AddValidation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.AddBlacklistEntry(ctx, BlacklistEntry{Text: " - "}), ErrEmptyText)
	require.Error(t, s.AddBlacklistEntry(ctx, BlacklistEntry{Text: "AB123C", DangerLevel: "EXTREME"}))
}

func TestBlacklist_NewIdentityInheritsFlag(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.AddBlacklistEntry(context.Background(), BlacklistEntry{Text: "AB123C"}))

	res := observe(t, s, reading("", "AB123C", 70, 0))
	assert.True(t, res.Identity.IsBlacklisted)
}

func TestImportBlacklist_CSV(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	input := "text,reason,danger_level,notes\n" +
		"AB123C,stolen,CRITICAL,seen downtown\n" +
		"xyz-987,unpaid fines,low,\n" +
		"BAD1,broken,NOPE,\n"
	n, err := s.ImportBlacklist(context.Background(), strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := s.Blacklist(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AB123C", entries[0].Text)
	assert.Equal(t, DangerCritical, entries[0].DangerLevel)
	assert.Equal(t, "XYZ987", entries[1].Text)
}

func TestImportBlacklist_YAML(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	list := "- text: AB123C\n  reason: stolen\n  danger_level: HIGH\n- text: CD456E\n"
	n, err := s.ImportBlacklist(ctx, strings.NewReader(list), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc := "blacklist:\n  - text: EF789G\n    reason: wanted\n"
	n, err = s.ImportBlacklist(ctx, strings.NewReader(doc), "yml")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.Blacklist(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestImportBlacklist_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.ImportBlacklist(context.Background(), strings.NewReader(""), "xml")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
