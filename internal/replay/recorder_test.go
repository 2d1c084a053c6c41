package replay

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardroom/internal/codec"
)

func tapeOf(t *testing.T, gameID uint64, seqs ...uint64) []codec.EventEnvelope {
	t.Helper()
	out := make([]codec.EventEnvelope, 0, len(seqs))
	for _, seq := range seqs {
		payload, err := json.Marshal(map[string]uint64{"seq": seq})
		require.NoError(t, err)
		out = append(out, codec.EventEnvelope{
			Origin:     codec.OriginGame,
			OriginID:   gameID,
			Sequence:   seq,
			Type:       "lifeChanged",
			Payload:    payload,
			ServerTsMs: int64(1000 + seq),
		})
	}
	return out
}

func runRecorderSuite(t *testing.T, rec Recorder) {
	ctx := context.Background()

	_, err := rec.ReadLog(ctx, 42, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, rec.Append(ctx, 42, tapeOf(t, 42, 1, 2, 3)))
	require.NoError(t, rec.Append(ctx, 99, tapeOf(t, 99, 1)))

	full, err := rec.ReadLog(ctx, 42, 0)
	require.NoError(t, err)
	require.Len(t, full, 3)
	for i, env := range full {
		assert.Equal(t, uint64(i+1), env.Sequence)
		assert.Equal(t, uint64(42), env.OriginID)
	}

	// Re-appending an already-recorded prefix must not duplicate rows.
	require.NoError(t, rec.Append(ctx, 42, tapeOf(t, 42, 2, 3, 4)))
	full, err = rec.ReadLog(ctx, 42, 0)
	require.NoError(t, err)
	require.Len(t, full, 4)

	tail, err := rec.ReadLog(ctx, 42, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(3), tail[0].Sequence)
	assert.Equal(t, uint64(4), tail[1].Sequence)

	tail, err = rec.ReadLog(ctx, 42, 100)
	require.NoError(t, err)
	assert.Empty(t, tail)

	ids, err := rec.GameIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{42, 99}, ids)

	_, err = rec.GetMeta(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, rec.PutMeta(ctx, 42, []byte(`{"minDeckSize":60}`)))
	meta, err := rec.GetMeta(ctx, 42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"minDeckSize":60}`, string(meta))
}

func TestMemoryRecorder(t *testing.T) {
	runRecorderSuite(t, NewMemoryRecorder())
}

func TestSQLiteRecorder(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	defer rec.Close()
	runRecorderSuite(t, rec)
}

func TestSQLiteRecorderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	ctx := context.Background()

	rec, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	require.NoError(t, rec.Append(ctx, 7, tapeOf(t, 7, 1, 2)))
	require.NoError(t, rec.Close())

	rec, err = NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer rec.Close()

	tape, err := rec.ReadLog(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, tape, 2)
	assert.Equal(t, "lifeChanged", tape[0].Type)
}
