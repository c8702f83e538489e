package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	require.NoError(t, writer.Record(PairRecord{
		GroupID:       "group-1",
		ClusterKey:    "claude",
		DuplicateUuid: "dup-1",
		DuplicateName: "claude",
		CanonicalUuid: "canon-1",
		CanonicalName: "Claude",
		Decision:      DecisionMerged,
		Confidence:    0.97,
	}))
	require.NoError(t, writer.Record(PairRecord{
		GroupID:       "group-1",
		ClusterKey:    "openai",
		DuplicateUuid: "dup-2",
		DuplicateName: "Open AI",
		CanonicalUuid: "canon-2",
		CanonicalName: "OpenAI",
		Decision:      DecisionDistinct,
		Reason:        "judge kept entities apart",
		JudgeUsed:     true,
	}))

	assert.Equal(t, 0, writer.Written())
	require.NoError(t, writer.Close())
	assert.Equal(t, 2, writer.Written())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "reconcile_audit_run-1_"))

	rows, err := parquet.ReadFile[PairRecord](filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, DecisionMerged, rows[0].Decision)
	assert.False(t, rows[0].Timestamp.IsZero())
	assert.Equal(t, DecisionDistinct, rows[1].Decision)
	assert.True(t, rows[1].JudgeUsed)
}

func TestWriterEmptyCloseWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-1")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
