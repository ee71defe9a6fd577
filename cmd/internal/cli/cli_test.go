package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderTable(&buf, []string{"Plate", "Count"}, [][]string{
		{"AB123C", "12"},
		{"XY999Z"},
	}, []Align{AlignLeft, AlignRight})

	out := buf.String()
	assert.Contains(t, out, "PLATE")
	assert.Contains(t, out, "AB123C")
	assert.Contains(t, out, "XY999Z")
	assert.Contains(t, out, "12")
}

func TestRenderTable_NoColumns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderTable(&buf, nil, [][]string{{"x"}}, nil)
	assert.Empty(t, buf.String())
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDate("2025-03-14")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 14, d.Day())

	_, err = ParseDate("14/03/2025")
	require.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", FormatTime(time.Time{}))
	assert.NotEqual(t, "-", FormatTime(time.Now()))
	assert.Equal(t, "87.5", FormatConfidence(87.5))
}
