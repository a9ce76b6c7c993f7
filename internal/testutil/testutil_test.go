package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDGenerator_Sequence(t *testing.T) {
	gen := NewSequentialIDGenerator("ev")
	assert.Equal(t, "ev-000001", gen.NewID())
	assert.Equal(t, "ev-000002", gen.NewID())

	// Empty prefix falls back to the default.
	def := NewSequentialIDGenerator("")
	assert.Equal(t, "corr-000001", def.NewID())
}

func TestManualScheduler_StepOrdering(t *testing.T) {
	m := NewManualScheduler()
	var order []string

	m.NextSlice(func() {
		order = append(order, "slice1")
		m.AfterCommit(func() { order = append(order, "after") })
		m.NextSlice(func() { order = append(order, "slice2") })
	})

	require.True(t, m.Step())
	assert.Equal(t, []string{"slice1", "after"}, order)
	assert.Equal(t, 1, m.Pending())

	require.True(t, m.Step())
	assert.Equal(t, []string{"slice1", "after", "slice2"}, order)
	assert.False(t, m.Step())
}

func TestManualScheduler_AfterCommitBetweenSteps(t *testing.T) {
	m := NewManualScheduler()
	ran := false
	m.AfterCommit(func() { ran = true })

	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, 1, m.RunAll())
	assert.True(t, ran)
}

func TestLogRecorder_CapturesAttrs(t *testing.T) {
	rec := NewLogRecorder()
	log := rec.Logger().With("component", "queue")

	log.Info("event processed", "event", "counter/inc")
	log.WithGroup("fx").Warn("unknown effect", "id", "missing")

	entries := rec.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, slog.LevelInfo, entries[0].Level)
	assert.Equal(t, "event processed", entries[0].Message)
	assert.Equal(t, "queue", entries[0].Attrs["component"])
	assert.Equal(t, "counter/inc", entries[0].Attrs["event"])

	assert.Equal(t, slog.LevelWarn, entries[1].Level)
	assert.Equal(t, "missing", entries[1].Attrs["fx.id"])

	assert.Equal(t, []string{"event processed", "unknown effect"}, rec.Messages())
}
