package lobby

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardroom/game"
	"cardroom/internal/codec"
	"cardroom/internal/match"
	"cardroom/internal/replay"
)

type captured struct {
	mu   sync.Mutex
	envs map[uint64][]codec.EventEnvelope
}

func newCaptured() *captured {
	return &captured{envs: make(map[uint64][]codec.EventEnvelope)}
}

func (c *captured) fn(accountID uint64, env codec.EventEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs[accountID] = append(c.envs[accountID], env)
}

func (c *captured) forAccount(accountID uint64) []codec.EventEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]codec.EventEnvelope(nil), c.envs[accountID]...)
}

func testRules() game.Config {
	cfg := game.DefaultConfig()
	cfg.MinDeckSize = 4
	cfg.StartingHandSize = 2
	cfg.Seed = 11
	return cfg
}

func testDeck() game.DeckList {
	deck := game.DeckList{}
	for i := 0; i < 6; i++ {
		deck.Main = append(deck.Main, fmt.Sprintf("c%d", i))
	}
	return deck
}

func newTestLobby(t *testing.T, sink *captured) *Lobby {
	t.Helper()
	snapshots, err := match.NewSnapshotCache(8)
	require.NoError(t, err)
	var fn BroadcastFunc
	if sink != nil {
		fn = sink.fn
	}
	l := New(Config{DefaultGame: testRules()}, replay.NewMemoryRecorder(), snapshots, fn)
	t.Cleanup(l.Stop)
	return l
}

func TestRoomLifecycle(t *testing.T) {
	sink := newCaptured()
	l := newTestLobby(t, sink)

	room, err := l.CreateRoom("main", "general play")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), room.ID)

	require.NoError(t, l.JoinRoom(room.ID, 100, "alice"))
	require.NoError(t, l.JoinRoom(room.ID, 101, "bob"))
	require.NoError(t, l.Say(room.ID, 100, "hello"))

	assert.ErrorIs(t, l.Say(room.ID, 999, "eavesdropping"), ErrNotInRoom)
	assert.ErrorIs(t, l.Say(12345, 100, "void"), ErrUnknownRoom)

	// Bob saw bob-join and the chat line; sequences are per-room, increasing.
	bobEnvs := sink.forAccount(101)
	require.NotEmpty(t, bobEnvs)
	var last uint64
	for _, env := range bobEnvs {
		assert.Equal(t, codec.OriginRoom, env.Origin)
		assert.Equal(t, room.ID, env.OriginID)
		assert.Greater(t, env.Sequence, last)
		last = env.Sequence
	}
	assert.Equal(t, RoomEventChat, bobEnvs[len(bobEnvs)-1].Type)

	assert.ErrorIs(t, l.DestroyRoom(room.ID), ErrRoomNotEmpty)
	require.NoError(t, l.LeaveRoom(room.ID, 100))
	require.NoError(t, l.LeaveRoom(room.ID, 101))
	require.NoError(t, l.DestroyRoom(room.ID))
	assert.ErrorIs(t, l.DestroyRoom(room.ID), ErrUnknownRoom)
}

func TestGameIDsAreMonotonicAndNeverReused(t *testing.T) {
	l := newTestLobby(t, nil)
	room, err := l.CreateRoom("main", "")
	require.NoError(t, err)
	require.NoError(t, l.JoinRoom(room.ID, 100, "alice"))

	first, err := l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{}, 0)
	require.NoError(t, err)
	second, err := l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{}, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)

	// Reaping the first never frees its id.
	first.Stop()
	l.sweep()
	third, err := l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{}, 0)
	require.NoError(t, err)
	assert.Equal(t, second.ID+1, third.ID)

	_, ok := l.Match(first.ID)
	assert.False(t, ok)
}

func TestCreateGameRequiresMembership(t *testing.T) {
	l := newTestLobby(t, nil)
	room, err := l.CreateRoom("main", "")
	require.NoError(t, err)

	_, err = l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{}, 0)
	assert.ErrorIs(t, err, ErrNotInRoom)

	_, err = l.CreateGame(54321, 100, "", codec.CreateGameOverrides{}, 0)
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestListGames(t *testing.T) {
	l := newTestLobby(t, nil)
	room, err := l.CreateRoom("main", "")
	require.NoError(t, err)
	require.NoError(t, l.JoinRoom(room.ID, 100, "alice"))

	m, err := l.CreateGame(room.ID, 100, "friday casual", codec.CreateGameOverrides{}, 0)
	require.NoError(t, err)
	require.NoError(t, m.Join(100, "alice", testDeck()))

	infos, err := l.ListGames(room.ID)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, m.ID, infos[0].ID)
	assert.Equal(t, "friday casual", infos[0].Description)
	assert.Equal(t, "setup", infos[0].State)
	assert.Equal(t, 1, infos[0].Players)
}

func TestGameOverridesApplied(t *testing.T) {
	l := newTestLobby(t, nil)
	room, err := l.CreateRoom("main", "")
	require.NoError(t, err)
	require.NoError(t, l.JoinRoom(room.ID, 100, "alice"))

	m, err := l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{
		StartingLife: 40,
		MinDeckSize:  2,
	}, 4)
	require.NoError(t, err)
	assert.Equal(t, 40, m.Config.Game.StartingLife)
	assert.Equal(t, 2, m.Config.Game.MinDeckSize)
	assert.Equal(t, 4, m.Config.Game.MaxPlayers)
}

func TestJanitorReapsIdleMatches(t *testing.T) {
	snapshots, err := match.NewSnapshotCache(8)
	require.NoError(t, err)
	l := New(Config{
		DefaultGame:   testRules(),
		IdleTTL:       50 * time.Millisecond,
		SweepInterval: 25 * time.Millisecond,
	}, replay.NewMemoryRecorder(), snapshots, nil)
	defer l.Stop()

	room, err := l.CreateRoom("main", "")
	require.NoError(t, err)
	require.NoError(t, l.JoinRoom(room.ID, 100, "alice"))

	m, err := l.CreateGame(room.ID, 100, "", codec.CreateGameOverrides{}, 0)
	require.NoError(t, err)

	// Never joined: reapable after the idle TTL.
	require.Eventually(t, func() bool {
		_, ok := l.Match(m.ID)
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
	assert.True(t, m.IsClosed())
}
