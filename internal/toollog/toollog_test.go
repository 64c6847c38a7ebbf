package toollog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/toollog"
)

func TestWriter_RoundTripsThroughReadRecent(t *testing.T) {
	dir := t.TempDir()

	w, err := toollog.OpenWriter(dir, "sess-1")
	require.NoError(t, err)

	require.NoError(t, w.WritePreToolUse("grep", 1.0, map[string]any{"pattern": "x"}))
	require.NoError(t, w.WritePostToolUse("grep", 1.5, "no matches"))
	require.NoError(t, w.Close())

	events, err := toollog.ReadRecent(dir, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, toollog.EventPreToolUse, events[0].Event)
	require.Equal(t, "grep", events[0].ToolName)
	require.Equal(t, toollog.EventPostToolUse, events[1].Event)
	require.Equal(t, "no matches", events[1].ToolOutputPreview)
}

func TestWritePostToolUse_TruncatesOversizePreview(t *testing.T) {
	dir := t.TempDir()
	w, err := toollog.OpenWriter(dir, "sess-2")
	require.NoError(t, err)

	huge := strings.Repeat("x", 5000)
	require.NoError(t, w.WritePostToolUse("bash", 1.0, huge))
	require.NoError(t, w.Close())

	events, err := toollog.ReadRecent(dir, "sess-2", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.LessOrEqual(t, len(events[0].ToolOutputPreview), 2048)
}

func TestReadRecent_ReturnsOnlyLastLimitEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := toollog.OpenWriter(dir, "sess-3")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		require.NoError(t, w.WritePreToolUse("grep", float64(i), nil))
	}
	require.NoError(t, w.Close())

	events, err := toollog.ReadRecent(dir, "sess-3", 5)
	require.NoError(t, err)
	require.Len(t, events, 5)
	require.Equal(t, float64(2), events[0].StartTime)
}

func TestReadRecent_MissingFileReturnsEmptyNotError(t *testing.T) {
	events, err := toollog.ReadRecent(t.TempDir(), "missing-session", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}
