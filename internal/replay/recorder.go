package replay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"cardroom/internal/codec"
)

var ErrNotFound = errors.New("no replay log for game")

// Recorder persists the authoritative per-game event log. Append runs
// before fan-out to subscribers, so the durable log is never behind a
// delivered event.
type Recorder interface {
	Close() error
	// Append stores envelopes for one game. Re-appending an existing
	// (game, seq) pair is a no-op, which makes crash-retry safe.
	Append(ctx context.Context, gameID uint64, envelopes []codec.EventEnvelope) error
	// ReadLog returns the ordered envelopes with sequence > afterSeq.
	// afterSeq 0 reads the whole log.
	ReadLog(ctx context.Context, gameID uint64, afterSeq uint64) ([]codec.EventEnvelope, error)
	// GameIDs lists every game with at least one recorded event.
	GameIDs(ctx context.Context) ([]uint64, error)
	// PutMeta stores the per-game sidecar blob (rule config) folding needs.
	PutMeta(ctx context.Context, gameID uint64, meta []byte) error
	GetMeta(ctx context.Context, gameID uint64) ([]byte, error)
}

// NewRecorderFromEnv picks the backend from REPLAY_MODE: "memory" keeps
// logs in process (tests, throwaway servers), anything else opens the
// local sqlite file.
func NewRecorderFromEnv() (Recorder, string, error) {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("REPLAY_MODE")))
	if mode == "memory" {
		return NewMemoryRecorder(), "memory", nil
	}
	svc, err := NewSQLiteRecorderFromEnv()
	if err != nil {
		return nil, "", fmt.Errorf("replay sqlite init: %w", err)
	}
	log.Printf("[Replay] sqlite recorder ready")
	return svc, "sqlite", nil
}

type MemoryRecorder struct {
	mu    sync.RWMutex
	logs  map[uint64][]codec.EventEnvelope
	metas map[uint64][]byte
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		logs:  make(map[uint64][]codec.EventEnvelope),
		metas: make(map[uint64][]byte),
	}
}

func (m *MemoryRecorder) Close() error { return nil }

func (m *MemoryRecorder) Append(_ context.Context, gameID uint64, envelopes []codec.EventEnvelope) error {
	if gameID == 0 || len(envelopes) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tape := m.logs[gameID]
	for _, env := range envelopes {
		if n := len(tape); n > 0 && env.Sequence <= tape[n-1].Sequence {
			continue
		}
		tape = append(tape, env)
	}
	m.logs[gameID] = tape
	return nil
}

func (m *MemoryRecorder) ReadLog(_ context.Context, gameID uint64, afterSeq uint64) ([]codec.EventEnvelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tape, ok := m.logs[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]codec.EventEnvelope, 0, len(tape))
	for _, env := range tape {
		if env.Sequence > afterSeq {
			out = append(out, env)
		}
	}
	return out, nil
}

func (m *MemoryRecorder) PutMeta(_ context.Context, gameID uint64, meta []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[gameID] = append([]byte(nil), meta...)
	return nil
}

func (m *MemoryRecorder) GetMeta(_ context.Context, gameID uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metas[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), meta...), nil
}

func (m *MemoryRecorder) GameIDs(_ context.Context) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
