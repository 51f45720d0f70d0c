package downloader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessedWeeks_MissingFileIsEmpty(t *testing.T) {
	pw, err := LoadProcessedWeeks(t.TempDir())
	require.NoError(t, err)
	assert.False(t, pw.Contains("20240101"))
}

func TestProcessedWeeks_MarkAndPersist(t *testing.T) {
	dir := t.TempDir()
	pw, err := LoadProcessedWeeks(dir)
	require.NoError(t, err)

	require.NoError(t, pw.MarkProcessed("20240101"))
	assert.True(t, pw.Contains("20240101"))

	reloaded, err := LoadProcessedWeeks(dir)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("20240101"))
}

func TestProcessedWeeks_WrittenUnderRawDirectory(t *testing.T) {
	dir := t.TempDir()
	pw, err := LoadProcessedWeeks(dir)
	require.NoError(t, err)
	require.NoError(t, pw.MarkProcessed("20240101"))

	assert.FileExists(t, filepath.Join(dir, "raw", "processed_weeks.json"))
}

func TestSelectWeeks_ExcludesProcessedRegardlessOfSinceLast(t *testing.T) {
	discovered := []Week{{ID: "20240201"}, {ID: "20240108"}, {ID: "20240101"}}
	dir := t.TempDir()
	pw, err := LoadProcessedWeeks(dir)
	require.NoError(t, err)
	require.NoError(t, pw.MarkProcessed("20240108"))

	selected := SelectWeeks(discovered, 10, false, pw)
	require.Len(t, selected, 2)
	assert.Equal(t, "20240201", selected[0].ID)
	assert.Equal(t, "20240101", selected[1].ID)
}

func TestSelectWeeks_LimitsToN(t *testing.T) {
	discovered := []Week{{ID: "20240301"}, {ID: "20240201"}, {ID: "20240101"}}
	dir := t.TempDir()
	pw, err := LoadProcessedWeeks(dir)
	require.NoError(t, err)

	selected := SelectWeeks(discovered, 2, true, pw)
	assert.Len(t, selected, 2)
}
