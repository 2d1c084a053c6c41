package match

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardroom/game"
	"cardroom/internal/codec"
	"cardroom/internal/replay"
)

func smallRules(seed int64) game.Config {
	cfg := game.DefaultConfig()
	cfg.MinDeckSize = 8
	cfg.StartingHandSize = 3
	cfg.Seed = seed
	return cfg
}

func smallDeck() game.DeckList {
	deck := game.DeckList{}
	for i := 0; i < 10; i++ {
		deck.Main = append(deck.Main, fmt.Sprintf("card_%d", i))
	}
	return deck
}

func newTestMatch(t *testing.T, id uint64, cfg Config) (*Match, *replay.MemoryRecorder, *SnapshotCache) {
	t.Helper()
	rec := replay.NewMemoryRecorder()
	snapshots, err := NewSnapshotCache(16)
	require.NoError(t, err)
	m, err := New(id, 1, cfg, rec, snapshots, nil)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, rec, snapshots
}

func startedMatch(t *testing.T, id uint64) (*Match, *replay.MemoryRecorder, *SnapshotCache) {
	t.Helper()
	m, rec, snapshots := newTestMatch(t, id, Config{Game: smallRules(7)})
	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))
	return m, rec, snapshots
}

func drain(sub *Subscription) (collected *[]codec.EventEnvelope, wait func()) {
	out := &[]codec.EventEnvelope{}
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range sub.Events() {
			mu.Lock()
			*out = append(*out, env)
			mu.Unlock()
		}
	}()
	return out, func() { <-done }
}

func TestEventDeliveryOrdered(t *testing.T) {
	m, rec, _ := newTestMatch(t, 42, Config{Game: smallRules(7)})

	sub, err := m.Subscribe(9)
	require.NoError(t, err)
	collected, wait := drain(sub)

	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))

	m.Unsubscribe(9)
	wait()

	require.NotEmpty(t, *collected)
	for i, env := range *collected {
		assert.Equal(t, uint64(i+1), env.Sequence, "delivered stream must be gap-free")
		assert.Equal(t, uint64(42), env.OriginID)
	}

	// Everything delivered was durably recorded first.
	tape, err := rec.ReadLog(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Equal(t, len(*collected), len(tape))
}

func TestValidationFailureEmitsNothing(t *testing.T) {
	m, _, _ := startedMatch(t, 42)
	before := m.Snapshot().Seq

	err := m.DrawCards(99, 1)
	assert.ErrorIs(t, err, game.ErrUnknownPlayer)
	assert.Equal(t, before, m.Snapshot().Seq)
}

func TestSlowSubscriberTornDown(t *testing.T) {
	m, _, _ := newTestMatch(t, 42, Config{Game: smallRules(7)})

	fast, err := m.SubscribeBuffered(10, 256)
	require.NoError(t, err)
	collected, wait := drain(fast)

	slow, err := m.SubscribeBuffered(11, 4)
	require.NoError(t, err)
	// Never drained: overflows once more than 4 envelopes are pending.

	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))

	lastSeq := m.Snapshot().Seq
	require.Greater(t, lastSeq, uint64(4))

	// The slow feed must be closed.
	timeout := time.After(2 * time.Second)
	closed := false
	for !closed {
		select {
		case _, ok := <-slow.Events():
			if !ok {
				closed = true
			}
		case <-timeout:
			t.Fatal("slow subscriber was not torn down")
		}
	}

	m.Unsubscribe(10)
	wait()
	require.Len(t, *collected, int(lastSeq), "fast subscriber sees every event")
	for i, env := range *collected {
		assert.Equal(t, uint64(i+1), env.Sequence)
	}
}

func TestCrossGameIndependence(t *testing.T) {
	a, _, _ := startedMatch(t, 42)
	b, _, _ := startedMatch(t, 43)

	subA, err := a.Subscribe(20)
	require.NoError(t, err)
	gotA, waitA := drain(subA)

	require.NoError(t, b.SetLife(1, -5))
	require.NoError(t, a.SetLife(1, -1))

	a.Unsubscribe(20)
	waitA()

	require.Len(t, *gotA, 1)
	assert.Equal(t, uint64(42), (*gotA)[0].OriginID)
	assert.Equal(t, "lifeChanged", (*gotA)[0].Type)
}

// slowAppendRecorder stalls every append by the configured delay, pinning one
// match's actor while others keep going.
type slowAppendRecorder struct {
	replay.Recorder
	delay atomic.Int64
}

func (r *slowAppendRecorder) Append(ctx context.Context, gameID uint64, envelopes []codec.EventEnvelope) error {
	if d := time.Duration(r.delay.Load()); d > 0 {
		time.Sleep(d)
	}
	return r.Recorder.Append(ctx, gameID, envelopes)
}

func TestDistinctMatchesOverlapInTime(t *testing.T) {
	slowRec := &slowAppendRecorder{Recorder: replay.NewMemoryRecorder()}
	snapshots, err := NewSnapshotCache(4)
	require.NoError(t, err)
	a, err := New(42, 1, Config{Game: smallRules(7)}, slowRec, snapshots, nil)
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	require.NoError(t, a.Join(1, "alice", smallDeck()))
	require.NoError(t, a.Join(2, "bob", smallDeck()))
	require.NoError(t, a.Ready(1))
	require.NoError(t, a.Ready(2))

	b, _, _ := startedMatch(t, 43)

	const stall = 300 * time.Millisecond
	slowRec.delay.Store(int64(stall))

	stalled := make(chan time.Duration, 1)
	entered := make(chan struct{})
	go func() {
		close(entered)
		t0 := time.Now()
		_ = a.SetLife(1, -1)
		stalled <- time.Since(t0)
	}()
	<-entered
	time.Sleep(20 * time.Millisecond)

	t0 := time.Now()
	require.NoError(t, b.SetLife(1, -1))
	fast := time.Since(t0)

	slow := <-stalled
	require.GreaterOrEqual(t, slow, stall, "the stalled command must actually have been held up")
	assert.Less(t, fast, stall/2, "a command on another game must not queue behind the stalled one")
}

func TestJoinSubscribedSeesOwnJoin(t *testing.T) {
	m, _, _ := newTestMatch(t, 42, Config{Game: smallRules(7)})

	sub, err := m.JoinSubscribed(1, "alice", smallDeck())
	require.NoError(t, err)
	collected, wait := drain(sub)

	m.Unsubscribe(1)
	wait()

	require.NotEmpty(t, *collected, "the joiner's feed must carry the join's own events")
	assert.Equal(t, uint64(1), (*collected)[0].Sequence)
	assert.Equal(t, string(game.EventPlayerJoined), (*collected)[0].Type)
}

func TestJoinSubscribedRejectionLeavesNoFeed(t *testing.T) {
	m, _, _ := newTestMatch(t, 42, Config{Game: smallRules(7)})

	short := game.DeckList{Main: []string{"card_0"}}
	_, err := m.JoinSubscribed(3, "carol", short)
	require.Error(t, err)

	m.mu.RLock()
	_, ok := m.subscribers[3]
	m.mu.RUnlock()
	assert.False(t, ok, "a rejected join must not leave a subscription behind")

	// The account can still come back with a legal deck.
	sub, err := m.JoinSubscribed(3, "carol", smallDeck())
	require.NoError(t, err)
	collected, wait := drain(sub)
	m.Unsubscribe(3)
	wait()
	require.NotEmpty(t, *collected)
	assert.Equal(t, string(game.EventPlayerJoined), (*collected)[0].Type)
}

func TestResyncSubscribeFeedContinuesTail(t *testing.T) {
	m, _, _ := startedMatch(t, 42)
	require.NoError(t, m.SetLife(1, -2))

	from := uint64(1)
	result, sub, err := m.ResyncSubscribe(context.Background(), 9, &from)
	require.NoError(t, err)
	require.NotEmpty(t, result.Events)
	tailEnd := result.Events[len(result.Events)-1].Sequence
	require.Equal(t, m.Snapshot().Seq, tailEnd)

	collected, wait := drain(sub)
	require.NoError(t, m.SetLife(2, -3))
	m.Unsubscribe(9)
	wait()

	require.NotEmpty(t, *collected)
	for i, env := range *collected {
		assert.Equal(t, tailEnd+uint64(i+1), env.Sequence,
			"live feed must pick up exactly after the returned tail")
	}
}

func TestResyncSubscribeSnapshotThenFeed(t *testing.T) {
	m, _, _ := startedMatch(t, 42)

	result, sub, err := m.ResyncSubscribe(context.Background(), 9, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)

	collected, wait := drain(sub)
	require.NoError(t, m.SetLife(1, -1))
	m.Unsubscribe(9)
	wait()

	require.NotEmpty(t, *collected)
	assert.Equal(t, result.Snapshot.Seq+1, (*collected)[0].Sequence,
		"live feed must start right after the snapshot")
}

func TestResyncSnapshotAndTail(t *testing.T) {
	m, _, _ := startedMatch(t, 42)
	require.NoError(t, m.SetLife(1, -4))

	ctx := context.Background()

	full, err := m.Resync(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, full.Snapshot)
	assert.Equal(t, m.Snapshot().Seq, full.Snapshot.Seq)
	assert.Nil(t, full.Events)

	// Cached on repeat.
	again, err := m.Resync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, full.Snapshot, again.Snapshot)

	from := uint64(2)
	tail, err := m.Resync(ctx, &from)
	require.NoError(t, err)
	require.NotEmpty(t, tail.Events)
	want := from + 1
	for _, env := range tail.Events {
		assert.Equal(t, want, env.Sequence)
		want++
	}
	assert.Equal(t, m.Snapshot().Seq, tail.Events[len(tail.Events)-1].Sequence)

	// Tail beyond the head is empty, not an error.
	far := uint64(10_000)
	empty, err := m.Resync(ctx, &far)
	require.NoError(t, err)
	assert.Empty(t, empty.Events)
}

func TestColdResyncMatchesLive(t *testing.T) {
	m, rec, _ := startedMatch(t, 42)
	require.NoError(t, m.DrawCards(m.Snapshot().ActivePlayer, 1))
	require.NoError(t, m.SetLife(2, -7))

	live := m.Snapshot()
	m.Stop()

	// Same recorder, fresh process: fold the durable log back.
	fresh, err := NewSnapshotCache(16)
	require.NoError(t, err)

	cold, err := ColdResync(context.Background(), rec, fresh, 42, nil)
	require.NoError(t, err)
	require.NotNil(t, cold.Snapshot)
	assert.Equal(t, live, *cold.Snapshot)

	_, err = ColdResync(context.Background(), rec, fresh, 777, nil)
	assert.ErrorIs(t, err, ErrUnknownGame)
}

func TestConnectionLossPausesThenAbandons(t *testing.T) {
	cfg := Config{Game: smallRules(7), ConnLossGrace: 100 * time.Millisecond}
	cfg.Game.AbandonGraceSec = 1

	rec := replay.NewMemoryRecorder()
	snapshots, err := NewSnapshotCache(4)
	require.NoError(t, err)
	m, err := New(42, 1, cfg, rec, snapshots, nil)
	require.NoError(t, err)
	defer m.Stop()

	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))
	require.Equal(t, game.StateInProgress, m.State())

	m.ConnLost(2)

	require.Eventually(t, func() bool { return m.State() == game.StatePaused },
		3*time.Second, 50*time.Millisecond, "grace expiry should pause the game")

	require.Eventually(t, func() bool { return m.State() == game.StateAbandoned },
		5*time.Second, 50*time.Millisecond, "abandon grace expiry should abandon")
}

func TestConnectionResumeClearsGrace(t *testing.T) {
	cfg := Config{Game: smallRules(7), ConnLossGrace: 30 * time.Minute}
	m, _, _ := newTestMatch(t, 42, cfg)
	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))

	m.ConnLost(2)
	m.ConnResumed(2)
	assert.Equal(t, game.StateInProgress, m.State())

	snap := m.Snapshot()
	for _, p := range snap.Players {
		assert.True(t, p.Connected)
	}
}

func TestTerminalNotice(t *testing.T) {
	notice := make(chan uint64, 1)
	rec := replay.NewMemoryRecorder()
	snapshots, err := NewSnapshotCache(4)
	require.NoError(t, err)
	m, err := New(42, 1, Config{Game: smallRules(7)}, rec, snapshots, func(id uint64) { notice <- id })
	require.NoError(t, err)
	defer m.Stop()

	require.NoError(t, m.Join(1, "alice", smallDeck()))
	require.NoError(t, m.Join(2, "bob", smallDeck()))
	require.NoError(t, m.Ready(1))
	require.NoError(t, m.Ready(2))
	require.NoError(t, m.Concede(2))

	select {
	case id := <-notice:
		assert.Equal(t, uint64(42), id)
	case <-time.After(time.Second):
		t.Fatal("terminal notice never fired")
	}
	assert.Equal(t, game.StateFinished, m.State())
}

func TestCommandsAfterStop(t *testing.T) {
	m, _, _ := startedMatch(t, 42)
	m.Stop()
	assert.ErrorIs(t, m.SetLife(1, -1), ErrMatchClosed)
	_, err := m.Subscribe(5)
	assert.ErrorIs(t, err, ErrMatchClosed)
}
