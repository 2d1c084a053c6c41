package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"cardroom/game"
	"cardroom/internal/codec"
	"cardroom/internal/replay"
)

var ErrUnknownGame = errors.New("unknown game")

// SnapshotCache holds fold results keyed by (game, seq). Because the key
// carries the sequence number a stale entry can never be served; eviction is
// the only invalidation.
type SnapshotCache struct {
	cache *lru.Cache[SnapshotKey, *game.Snapshot]
}

type SnapshotKey struct {
	GameID uint64
	Seq    uint64
}

func NewSnapshotCache(size int) (*SnapshotCache, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[SnapshotKey, *game.Snapshot](size)
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{cache: cache}, nil
}

func (c *SnapshotCache) Get(key SnapshotKey) (*game.Snapshot, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *SnapshotCache) Add(key SnapshotKey, snap *game.Snapshot) {
	if c == nil {
		return
	}
	c.cache.Add(key, snap)
}

// Resync serves a live match. With fromSeq unset it returns a full snapshot;
// otherwise the event tail with sequence > fromSeq, gap-free and without
// duplicates. Runs through the actor so the answer is consistent with
// command ordering.
func (m *Match) Resync(ctx context.Context, fromSeq *uint64) (codec.ResyncResult, error) {
	value, err := m.do(func() (any, error) {
		return m.answerResync(ctx, fromSeq)
	})
	if err != nil {
		return codec.ResyncResult{}, err
	}
	return value.(codec.ResyncResult), nil
}

// ResyncSubscribe answers a resync and registers the caller's feed in the same
// actor command. Nothing can publish between the answer and the subscription,
// so the live feed picks up exactly where the snapshot or tail ends.
func (m *Match) ResyncSubscribe(ctx context.Context, accountID uint64, fromSeq *uint64) (codec.ResyncResult, *Subscription, error) {
	type answer struct {
		result codec.ResyncResult
		sub    *Subscription
	}
	value, err := m.do(func() (any, error) {
		sub, err := m.SubscribeBuffered(accountID, 0)
		if err != nil {
			return nil, err
		}
		result, err := m.answerResync(ctx, fromSeq)
		if err != nil {
			m.Unsubscribe(accountID)
			return nil, err
		}
		return answer{result: result, sub: sub}, nil
	})
	if err != nil {
		return codec.ResyncResult{}, nil, err
	}
	a := value.(answer)
	return a.result, a.sub, nil
}

// answerResync runs on the actor goroutine.
func (m *Match) answerResync(ctx context.Context, fromSeq *uint64) (codec.ResyncResult, error) {
	if fromSeq == nil {
		key := SnapshotKey{GameID: m.ID, Seq: m.g.LastSeq()}
		if snap, ok := m.snapshots.Get(key); ok {
			return codec.ResyncResult{GameID: m.ID, Snapshot: snap}, nil
		}
		snap := m.g.Snapshot()
		m.snapshots.Add(key, &snap)
		return codec.ResyncResult{GameID: m.ID, Snapshot: &snap}, nil
	}

	envelopes, err := m.recorder.ReadLog(ctx, m.ID, *fromSeq)
	if err != nil {
		if errors.Is(err, replay.ErrNotFound) {
			envelopes = nil
		} else {
			return codec.ResyncResult{}, err
		}
	}
	return codec.ResyncResult{GameID: m.ID, Events: envelopes}, nil
}

// ColdResync answers the same contract for games that are no longer resident:
// the durable log is folded back into a state. Live and cold games are
// indistinguishable to the caller.
func ColdResync(
	ctx context.Context,
	rec replay.Recorder,
	snapshots *SnapshotCache,
	gameID uint64,
	fromSeq *uint64,
) (codec.ResyncResult, error) {
	if fromSeq != nil {
		envelopes, err := rec.ReadLog(ctx, gameID, *fromSeq)
		if err != nil {
			if errors.Is(err, replay.ErrNotFound) {
				return codec.ResyncResult{}, ErrUnknownGame
			}
			return codec.ResyncResult{}, err
		}
		return codec.ResyncResult{GameID: gameID, Events: envelopes}, nil
	}

	snap, err := RebuildSnapshot(ctx, rec, snapshots, gameID)
	if err != nil {
		return codec.ResyncResult{}, err
	}
	return codec.ResyncResult{GameID: gameID, Snapshot: snap}, nil
}

// RebuildSnapshot folds the whole recorded log for gameID.
func RebuildSnapshot(
	ctx context.Context,
	rec replay.Recorder,
	snapshots *SnapshotCache,
	gameID uint64,
) (*game.Snapshot, error) {
	envelopes, err := rec.ReadLog(ctx, gameID, 0)
	if err != nil {
		if errors.Is(err, replay.ErrNotFound) {
			return nil, ErrUnknownGame
		}
		return nil, err
	}

	cfg := game.DefaultConfig()
	if meta, err := rec.GetMeta(ctx, gameID); err == nil {
		if err := json.Unmarshal(meta, &cfg); err != nil {
			return nil, fmt.Errorf("game %d meta: %w", gameID, err)
		}
	}

	lastSeq := uint64(0)
	if n := len(envelopes); n > 0 {
		lastSeq = envelopes[n-1].Sequence
	}
	key := SnapshotKey{GameID: gameID, Seq: lastSeq}
	if snap, ok := snapshots.Get(key); ok {
		return snap, nil
	}

	events := make([]game.Event, 0, len(envelopes))
	for _, env := range envelopes {
		ev, err := codec.DecodeGameEvent(env)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	g, err := game.Rebuild(gameID, cfg, events)
	if err != nil {
		return nil, fmt.Errorf("fold game %d: %w", gameID, err)
	}
	snap := g.Snapshot()
	snapshots.Add(key, &snap)
	return &snap, nil
}
