package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Game is one authoritative match instance. Mutating operations are applied
// strictly serially by the owning actor; internally every mutation flows
// through the same event-apply path the fold uses, so the emitted stream is
// the state.
type Game struct {
	cfg Config
	rng *rand.Rand

	mu sync.Mutex

	id    uint64
	state State

	players   map[uint64]*Player
	joinOrder []uint64 // turn rotation follows join order

	turn         int
	phase        Phase
	activePlayer uint64

	nextSeq    uint64
	nextCardID uint64

	// expectedCards tracks the conserved instance total; only CardCreated and
	// CardDestroyed may move it.
	expectedCards int

	abandonReason string
}

func NewGame(id uint64, cfg Config) (*Game, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		id:      id,
		state:   StateSetup,
		players: make(map[uint64]*Player, cfg.MaxPlayers),
	}, nil
}

func (g *Game) ID() uint64 { return g.id }

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// LastSeq returns the sequence number of the most recently emitted event.
func (g *Game) LastSeq() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextSeq
}

// emit assigns the next sequence number, applies the payload to local state
// and accumulates the event. Emitted events are immutable once returned.
func (g *Game) emit(out []Event, data EventData) ([]Event, error) {
	if err := g.applyEventLocked(data); err != nil {
		return out, err
	}
	g.nextSeq++
	return append(out, Event{Seq: g.nextSeq, Data: data}), nil
}

// finish runs the post-apply conservation check. A mismatch is a programming
// defect, not a user error: the game is abandoned and the stream up to this
// point stays valid.
func (g *Game) finish(out []Event) ([]Event, error) {
	actual := 0
	for _, p := range g.players {
		actual += p.cardCount()
	}
	if actual == g.expectedCards {
		return out, nil
	}
	detail := fmt.Sprintf("card count %d != expected %d", actual, g.expectedCards)
	out, _ = g.emit(out, &StateChanged{State: StateAbandoned, Reason: "internal defect: " + detail})
	return out, &InvariantViolationError{GameID: g.id, Detail: detail}
}

// AddPlayer admits a participant during Setup with a structurally validated
// deck list, and shuffles the freshly built library.
func (g *Game) AddPlayer(playerID uint64, name string, deck DeckList) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateSetup {
		return nil, errValidation(CodeBadState, "game already started")
	}
	if len(g.players) >= g.cfg.MaxPlayers {
		return nil, errValidation(CodeBadState, "game is full")
	}
	if g.players[playerID] != nil {
		return nil, errValidation(CodeBadState, fmt.Sprintf("player %d already joined", playerID))
	}
	if err := g.cfg.validateDeck(deck); err != nil {
		return nil, err
	}

	out, err := g.emit(nil, &PlayerJoined{PlayerID: playerID, Name: name, Deck: deck})
	if err != nil {
		return out, err
	}
	// Initial library order must not be the submitted order.
	out, err = g.emit(out, g.buildShuffleLocked(playerID, ZoneLibrary))
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// SetReady marks a participant ready; the last ready flips Setup→InProgress,
// picks the starting player and deals opening hands.
func (g *Game) SetReady(playerID uint64) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateSetup {
		return nil, errValidation(CodeBadState, "game already started")
	}
	p := g.players[playerID]
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if p.Ready {
		return nil, nil
	}

	out, err := g.emit(nil, &PlayerReady{PlayerID: playerID})
	if err != nil {
		return out, err
	}
	if !g.allReadyLocked() {
		return g.finish(out)
	}

	// Everyone confirmed: start.
	out, err = g.emit(out, &StateChanged{State: StateInProgress})
	if err != nil {
		return out, err
	}
	starter := g.joinOrder[g.rng.Intn(len(g.joinOrder))]
	out, err = g.emit(out, &TurnChanged{Turn: 1, ActivePlayer: starter})
	if err != nil {
		return out, err
	}
	out, err = g.emit(out, &PhaseChanged{Phase: PhaseUntap})
	if err != nil {
		return out, err
	}
	for _, id := range g.joinOrder {
		for i := 0; i < g.cfg.StartingHandSize; i++ {
			mv := g.buildTopDrawLocked(id)
			if mv == nil {
				break
			}
			if out, err = g.emit(out, mv); err != nil {
				return out, err
			}
		}
	}
	return g.finish(out)
}

func (g *Game) allReadyLocked() bool {
	if len(g.players) < g.cfg.MinPlayers {
		return false
	}
	for _, p := range g.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// buildShuffleLocked captures the RNG outcome in the event so fold never
// touches the RNG.
func (g *Game) buildShuffleLocked(playerID uint64, kind ZoneKind) *ZoneShuffled {
	z := g.players[playerID].zone(kind)
	order := make([]uint64, 0, z.Size())
	for _, c := range z.cards {
		order = append(order, c.ID)
	}
	g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return &ZoneShuffled{PlayerID: playerID, Zone: z.Ref, Order: order}
}

func (g *Game) buildTopDrawLocked(playerID uint64) *CardMoved {
	lib := g.players[playerID].zone(ZoneLibrary)
	top := lib.top()
	if top == nil {
		return nil
	}
	hand := g.players[playerID].zone(ZoneHand)
	return &CardMoved{
		PlayerID:  playerID,
		Card:      top.ID,
		CardID:    top.CardID,
		From:      lib.Ref,
		FromIndex: 0,
		To:        hand.Ref,
		ToIndex:   hand.Size(),
	}
}

// requireLive gates mutating gameplay commands.
func (g *Game) requireLiveLocked() error {
	switch g.state {
	case StateInProgress:
		return nil
	case StatePaused:
		return ErrGamePaused
	case StateSetup:
		return ErrGameNotLive
	default:
		return ErrGameEnded
	}
}

func (g *Game) requirePlayerLocked(playerID uint64) (*Player, error) {
	p := g.players[playerID]
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	return p, nil
}

// AdvancePhase moves the phase cursor; wrapping past cleanup passes the turn.
// Active player only.
func (g *Game) AdvancePhase(playerID uint64) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	if playerID != g.activePlayer {
		return nil, errValidation(CodeNotYourTurn, "only the active player advances phases")
	}

	if g.phase == PhaseCleanup {
		return g.advanceTurnLocked()
	}
	next := g.phase + 1
	out, err := g.emit(nil, &PhaseChanged{Phase: next})
	if err != nil {
		return out, err
	}
	if next == PhaseDraw {
		if mv := g.buildTopDrawLocked(g.activePlayer); mv != nil {
			if out, err = g.emit(out, mv); err != nil {
				return out, err
			}
		}
	}
	return g.finish(out)
}

// AdvanceTurn jumps straight to the next player's untap. Active player only.
func (g *Game) AdvanceTurn(playerID uint64) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	if playerID != g.activePlayer {
		return nil, errValidation(CodeNotYourTurn, "only the active player passes the turn")
	}
	return g.advanceTurnLocked()
}

func (g *Game) advanceTurnLocked() ([]Event, error) {
	next := g.nextActivePlayerLocked()
	out, err := g.emit(nil, &TurnChanged{Turn: g.turn + 1, ActivePlayer: next})
	if err != nil {
		return out, err
	}
	if out, err = g.emit(out, &PhaseChanged{Phase: PhaseUntap}); err != nil {
		return out, err
	}
	return g.finish(out)
}

// nextActivePlayerLocked walks the join-order ring, skipping conceded seats.
func (g *Game) nextActivePlayerLocked() uint64 {
	n := len(g.joinOrder)
	start := 0
	for i, id := range g.joinOrder {
		if id == g.activePlayer {
			start = i
			break
		}
	}
	for step := 1; step <= n; step++ {
		candidate := g.joinOrder[(start+step)%n]
		if p := g.players[candidate]; p != nil && !p.Conceded {
			return candidate
		}
	}
	return g.activePlayer
}

// Concede removes a participant from contention; one live player left ends
// the game.
func (g *Game) Concede(playerID uint64) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateInProgress && g.state != StatePaused {
		return nil, ErrGameNotLive
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	if p.Conceded {
		return nil, nil
	}

	out, err := g.emit(nil, &PlayerConceded{PlayerID: playerID})
	if err != nil {
		return out, err
	}

	remaining := 0
	for _, other := range g.players {
		if !other.Conceded {
			remaining++
		}
	}
	if remaining <= 1 {
		if out, err = g.emit(out, &StateChanged{State: StateFinished, Reason: "concession"}); err != nil {
			return out, err
		}
	} else if playerID == g.activePlayer {
		var turnEvents []Event
		turnEvents, err = g.advanceTurnLocked()
		out = append(out, turnEvents...)
		if err != nil {
			return out, err
		}
		return out, nil
	}
	return g.finish(out)
}

// Pause suspends gameplay (admin action or connection-loss grace).
func (g *Game) Pause(reason string) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateInProgress {
		return nil, errValidation(CodeBadState, "only a running game can pause")
	}
	out, err := g.emit(nil, &StateChanged{State: StatePaused, Reason: reason})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

func (g *Game) Resume() ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatePaused {
		return nil, errValidation(CodeBadState, "game is not paused")
	}
	out, err := g.emit(nil, &StateChanged{State: StateInProgress})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// Abandon is the irrecoverable-loss terminal transition. Valid from any
// non-terminal state.
func (g *Game) Abandon(reason string) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Terminal() {
		return nil, ErrGameEnded
	}
	out, err := g.emit(nil, &StateChanged{State: StateAbandoned, Reason: reason})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// SetConnected records participant liveness; the match actor drives grace
// timing off these events.
func (g *Game) SetConnected(playerID uint64, connected bool) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.players[playerID]
	if p == nil || p.Connected == connected || g.state.Terminal() {
		return nil, nil
	}
	out, err := g.emit(nil, &PlayerConnection{PlayerID: playerID, Connected: connected})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// Players returns the participant ids in join order.
func (g *Game) Players() []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint64{}, g.joinOrder...)
}
