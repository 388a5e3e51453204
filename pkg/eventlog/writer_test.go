package eventlog

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck // test cleanup

	require.NoError(t, w.Write(&Event{
		Kind:      KindTurnStarted,
		SessionID: "sess-1",
		TurnID:    "turn-1",
	}))
	require.NoError(t, w.Write(&Event{
		Kind:       KindCallCompleted,
		SessionID:  "sess-1",
		TurnID:     "turn-1",
		Round:      0,
		Capability: "get_prefixes_by_location",
		Status:     "success",
		ElapsedMS:  42,
	}))
	require.NoError(t, w.Write(&Event{
		Kind:      KindTurnCompleted,
		SessionID: "sess-1",
		TurnID:    "turn-1",
		Status:    "done",
	}))

	path := w.CurrentLogFile()
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "events-"))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindTurnStarted, events[0].Kind)
	assert.Equal(t, "get_prefixes_by_location", events[1].Capability)
	assert.Equal(t, int64(42), events[1].ElapsedMS)
	assert.Equal(t, "done", events[2].Status)
	for _, e := range events {
		assert.False(t, e.Timestamp.IsZero(), "writer stamps missing timestamps")
	}
}

func TestWriteKeepsCallerTimestamp(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck // test cleanup

	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write(&Event{Timestamp: stamp, Kind: KindRoundPlanned, SessionID: "s"}))

	events, err := ReadEvents(w.CurrentLogFile())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, stamp, events[0].Timestamp)
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Write(&Event{Kind: KindTurnStarted, SessionID: "s"}))
	require.NoError(t, w.Close())

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReadEventsMissingFile(t *testing.T) {
	_, err := ReadEvents(filepath.Join(t.TempDir(), "events-2025-01-01.jsonl"))
	assert.Error(t, err)
}
