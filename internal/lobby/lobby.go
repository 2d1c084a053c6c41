package lobby

import (
	"errors"
	"log"
	"sync"
	"time"

	"cardroom/game"
	"cardroom/internal/codec"
	"cardroom/internal/match"
	"cardroom/internal/replay"
)

var (
	ErrUnknownRoom  = errors.New("unknown room")
	ErrUnknownGame  = errors.New("unknown game")
	ErrNotInRoom    = errors.New("not a room member")
	ErrRoomNotEmpty = errors.New("room has members or live games")
	ErrLobbyClosed  = errors.New("lobby closed")
)

const (
	defaultIdleTTL       = 10 * time.Minute
	defaultSweepInterval = 30 * time.Second
)

// Room event types carried in room-scoped EventEnvelopes.
const (
	RoomEventChat        = "chat"
	RoomEventMember      = "member"
	RoomEventGameCreated = "gameCreated"
)

type ChatPayload struct {
	AccountID uint64 `json:"accountId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

type MemberPayload struct {
	AccountID uint64 `json:"accountId"`
	Username  string `json:"username"`
	Joined    bool   `json:"joined"`
}

type GameCreatedPayload struct {
	GameID    uint64 `json:"gameId"`
	CreatedBy uint64 `json:"createdBy"`
}

// Room is a chat container that hosts games. Events carry a per-room
// sequence so clients can order chat and membership consistently.
type Room struct {
	ID          uint64
	Name        string
	Description string

	mu      sync.RWMutex
	members map[uint64]string // accountID -> username
	chatSeq uint64
}

func (r *Room) memberIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) isMember(accountID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[accountID]
	return ok
}

func (r *Room) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Config tunes the registry.
type Config struct {
	DefaultGame   game.Config
	Match         match.Config
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultGame.MaxPlayers == 0 {
		c.DefaultGame = game.DefaultConfig()
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = defaultIdleTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// BroadcastFunc pushes one room envelope to one account's connection. The
// gateway supplies it; a dead account is simply skipped there.
type BroadcastFunc func(accountID uint64, env codec.EventEnvelope)

// Lobby is the room and game registry. Ids are monotonic and never reused.
// The registry mutex guards maps only, never gameplay.
type Lobby struct {
	mu         sync.RWMutex
	rooms      map[uint64]*Room
	matches    map[uint64]*match.Match
	nextRoomID uint64
	nextGameID uint64
	closed     bool

	cfg       Config
	recorder  replay.Recorder
	snapshots *match.SnapshotCache
	broadcast BroadcastFunc

	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, rec replay.Recorder, snapshots *match.SnapshotCache, broadcast BroadcastFunc) *Lobby {
	l := &Lobby{
		rooms:     make(map[uint64]*Room),
		matches:   make(map[uint64]*match.Match),
		cfg:       cfg.withDefaults(),
		recorder:  rec,
		snapshots: snapshots,
		broadcast: broadcast,
		done:      make(chan struct{}),
	}
	go l.janitor()
	return l
}

// janitor sweeps terminal and never-used matches.
func (l *Lobby) janitor() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

func (l *Lobby) sweep() {
	l.mu.RLock()
	candidates := make([]*match.Match, 0)
	for _, m := range l.matches {
		if m.IsIdleFor(l.cfg.IdleTTL) {
			candidates = append(candidates, m)
		}
	}
	l.mu.RUnlock()

	for _, m := range candidates {
		log.Printf("[Lobby] reaping idle game %d", m.ID)
		m.Stop()
		l.mu.Lock()
		delete(l.matches, m.ID)
		l.mu.Unlock()
	}
}

func (l *Lobby) Stop() {
	l.mu.Lock()
	l.closed = true
	matches := make([]*match.Match, 0, len(l.matches))
	for _, m := range l.matches {
		matches = append(matches, m)
	}
	l.mu.Unlock()

	for _, m := range matches {
		m.Stop()
	}
	l.stopOnce.Do(func() { close(l.done) })
}

// --- rooms ---

func (l *Lobby) CreateRoom(name, description string) (*Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLobbyClosed
	}
	l.nextRoomID++
	room := &Room{
		ID:          l.nextRoomID,
		Name:        name,
		Description: description,
		members:     make(map[uint64]string),
	}
	l.rooms[room.ID] = room
	log.Printf("[Lobby] room %d created (%s)", room.ID, name)
	return room, nil
}

// DestroyRoom removes an empty room with no live games.
func (l *Lobby) DestroyRoom(roomID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[roomID]
	if !ok {
		return ErrUnknownRoom
	}
	if room.memberCount() > 0 {
		return ErrRoomNotEmpty
	}
	for _, m := range l.matches {
		if m.RoomID == roomID && !m.State().Terminal() {
			return ErrRoomNotEmpty
		}
	}
	delete(l.rooms, roomID)
	log.Printf("[Lobby] room %d destroyed", roomID)
	return nil
}

func (l *Lobby) Room(roomID uint64) (*Room, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	room, ok := l.rooms[roomID]
	return room, ok
}

func (l *Lobby) JoinRoom(roomID, accountID uint64, username string) error {
	room, ok := l.Room(roomID)
	if !ok {
		return ErrUnknownRoom
	}
	room.mu.Lock()
	if _, already := room.members[accountID]; already {
		room.mu.Unlock()
		return nil
	}
	room.members[accountID] = username
	room.mu.Unlock()

	l.publishRoom(room, RoomEventMember, MemberPayload{AccountID: accountID, Username: username, Joined: true})
	return nil
}

func (l *Lobby) LeaveRoom(roomID, accountID uint64) error {
	room, ok := l.Room(roomID)
	if !ok {
		return ErrUnknownRoom
	}
	room.mu.Lock()
	username, member := room.members[accountID]
	if !member {
		room.mu.Unlock()
		return ErrNotInRoom
	}
	delete(room.members, accountID)
	room.mu.Unlock()

	l.publishRoom(room, RoomEventMember, MemberPayload{AccountID: accountID, Username: username, Joined: false})
	return nil
}

func (l *Lobby) Say(roomID, accountID uint64, message string) error {
	room, ok := l.Room(roomID)
	if !ok {
		return ErrUnknownRoom
	}
	room.mu.RLock()
	username, member := room.members[accountID]
	room.mu.RUnlock()
	if !member {
		return ErrNotInRoom
	}
	l.publishRoom(room, RoomEventChat, ChatPayload{AccountID: accountID, Username: username, Message: message})
	return nil
}

// publishRoom assigns the room sequence and pushes to every member.
func (l *Lobby) publishRoom(room *Room, typ string, payload any) {
	room.mu.Lock()
	room.chatSeq++
	seq := room.chatSeq
	room.mu.Unlock()

	env, err := codec.RoomEvent(room.ID, seq, typ, payload)
	if err != nil {
		log.Printf("[Lobby] encode room %d event failed: %v", room.ID, err)
		return
	}
	if l.broadcast == nil {
		return
	}
	for _, accountID := range room.memberIDs() {
		l.broadcast(accountID, env)
	}
}

func (l *Lobby) ListRooms() []codec.RoomInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	infos := make([]codec.RoomInfo, 0, len(l.rooms))
	for _, room := range l.rooms {
		games := 0
		for _, m := range l.matches {
			if m.RoomID == room.ID {
				games++
			}
		}
		infos = append(infos, codec.RoomInfo{
			ID:          room.ID,
			Name:        room.Name,
			Description: room.Description,
			Members:     room.memberCount(),
			Games:       games,
		})
	}
	return infos
}

// --- games ---

// CreateGame allocates a never-reused game id and spins up its actor. The
// creator must be a room member; their deck is validated on their own Join.
func (l *Lobby) CreateGame(roomID, creator uint64, description string, overrides codec.CreateGameOverrides, maxPlayers int) (*match.Match, error) {
	room, ok := l.Room(roomID)
	if !ok {
		return nil, ErrUnknownRoom
	}
	if !room.isMember(creator) {
		return nil, ErrNotInRoom
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLobbyClosed
	}
	l.nextGameID++
	gameID := l.nextGameID
	l.mu.Unlock()

	cfg := l.cfg.Match
	cfg.Game = l.cfg.DefaultGame
	cfg.Description = description
	if maxPlayers > 0 {
		cfg.Game.MaxPlayers = maxPlayers
	}
	if overrides.StartingLife > 0 {
		cfg.Game.StartingLife = overrides.StartingLife
	}
	if overrides.StartingHandSize > 0 {
		cfg.Game.StartingHandSize = overrides.StartingHandSize
	}
	if overrides.MinDeckSize > 0 {
		cfg.Game.MinDeckSize = overrides.MinDeckSize
	}
	if overrides.Seed != 0 {
		cfg.Game.Seed = overrides.Seed
	}

	m, err := match.New(gameID, roomID, cfg, l.recorder, l.snapshots, l.onGameTerminal)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.matches[gameID] = m
	l.mu.Unlock()

	l.publishRoom(room, RoomEventGameCreated, GameCreatedPayload{GameID: gameID, CreatedBy: creator})
	return m, nil
}

// onGameTerminal is called once per match when it reaches Finished or
// Abandoned. Removal itself is deferred to the janitor so late resyncs still
// find the live actor.
func (l *Lobby) onGameTerminal(gameID uint64) {
	log.Printf("[Lobby] game %d reached terminal state", gameID)
}

func (l *Lobby) Match(gameID uint64) (*match.Match, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.matches[gameID]
	return m, ok
}

func (l *Lobby) ListGames(roomID uint64) ([]codec.GameInfo, error) {
	if _, ok := l.Room(roomID); !ok {
		return nil, ErrUnknownRoom
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	infos := make([]codec.GameInfo, 0)
	for _, m := range l.matches {
		if m.RoomID != roomID {
			continue
		}
		infos = append(infos, codec.GameInfo{
			ID:          m.ID,
			RoomID:      m.RoomID,
			Description: m.Config.Description,
			State:       m.State().String(),
			Players:     m.PlayerCount(),
			MaxPlayers:  m.Config.Game.MaxPlayers,
		})
	}
	return infos, nil
}

// LeaveEverywhere drops the account from all rooms and notifies its matches
// that the connection is gone. Called on disconnect.
func (l *Lobby) LeaveEverywhere(accountID uint64) {
	l.mu.RLock()
	rooms := make([]*Room, 0, len(l.rooms))
	for _, room := range l.rooms {
		rooms = append(rooms, room)
	}
	matches := make([]*match.Match, 0, len(l.matches))
	for _, m := range l.matches {
		matches = append(matches, m)
	}
	l.mu.RUnlock()

	for _, room := range rooms {
		if room.isMember(accountID) {
			_ = l.LeaveRoom(room.ID, accountID)
		}
	}
	for _, m := range matches {
		if m.HasPlayer(accountID) {
			m.Unsubscribe(accountID)
			m.ConnLost(accountID)
		} else {
			m.Unsubscribe(accountID)
		}
	}
}
