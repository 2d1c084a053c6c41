package match

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"cardroom/game"
	"cardroom/internal/codec"
	"cardroom/internal/replay"
)

var ErrMatchClosed = errors.New("match closed")

const (
	defaultConnLossGrace    = 15 * time.Second
	defaultSubscriberBuffer = 64
	appendTimeout           = 3 * time.Second
)

// Config carries the per-match knobs on top of the game rules.
type Config struct {
	Game game.Config
	// Description is the creator's free-form label, shown in game listings.
	Description string
	// ConnLossGrace is how long a vanished participant may stay missing
	// before an in-progress game is paused.
	ConnLossGrace time.Duration
	// SubscriberBuffer bounds each subscriber queue; overflow tears the
	// subscriber down instead of blocking the actor.
	SubscriberBuffer int
}

func (c Config) withDefaults() Config {
	if c.ConnLossGrace <= 0 {
		c.ConnLossGrace = defaultConnLossGrace
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
	return c
}

// Match owns one game behind an actor goroutine. All gameplay commands are
// funneled through a single queue; arrival order is application order, and
// distinct matches never serialize against each other.
type Match struct {
	ID     uint64
	RoomID uint64
	Config Config

	mu          sync.RWMutex
	g           *game.Game
	subscribers map[uint64]*Subscription
	closed      bool
	stopOnce    sync.Once

	events chan command
	done   chan struct{}

	recorder  replay.Recorder
	snapshots *SnapshotCache

	// Connection-loss bookkeeping, touched only by the actor goroutine.
	graceUntil     map[uint64]time.Time
	pausedByLoss   bool
	abandonAt      time.Time
	emptySince     time.Time
	terminalAt     time.Time
	terminalNotice func(gameID uint64)
	notified       bool
}

type command struct {
	run  func() (any, error)
	resp chan cmdResult
}

type cmdResult struct {
	value any
	err   error
}

// Subscription is one bounded event feed. The channel is closed when the
// subscriber falls behind or the match stops; a closed channel is the signal
// to resync or hang up.
type Subscription struct {
	AccountID uint64
	ch        chan codec.EventEnvelope
}

func (s *Subscription) Events() <-chan codec.EventEnvelope { return s.ch }

func New(
	id, roomID uint64,
	cfg Config,
	rec replay.Recorder,
	snapshots *SnapshotCache,
	terminalNotice func(gameID uint64),
) (*Match, error) {
	cfg = cfg.withDefaults()
	g, err := game.NewGame(id, cfg.Game)
	if err != nil {
		return nil, err
	}

	m := &Match{
		ID:             id,
		RoomID:         roomID,
		Config:         cfg,
		g:              g,
		subscribers:    make(map[uint64]*Subscription),
		events:         make(chan command, 256),
		done:           make(chan struct{}),
		recorder:       rec,
		snapshots:      snapshots,
		graceUntil:     make(map[uint64]time.Time),
		emptySince:     time.Now(),
		terminalNotice: terminalNotice,
	}

	if meta, err := json.Marshal(cfg.Game); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := rec.PutMeta(ctx, id, meta); err != nil {
			log.Printf("[Match %d] store game meta failed: %v", id, err)
		}
		cancel()
	}

	go m.run()
	log.Printf("[Match %d] created (room=%d, players=%d-%d)", id, roomID, cfg.Game.MinPlayers, cfg.Game.MaxPlayers)
	return m, nil
}

func (m *Match) run() {
	// Sub-second heartbeat for connection grace and abandon deadlines.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-m.events:
			value, err := cmd.run()
			if cmd.resp != nil {
				cmd.resp <- cmdResult{value: value, err: err}
			}
		case <-ticker.C:
			m.tick()
		case <-m.done:
			log.Printf("[Match %d] actor stopped", m.ID)
			return
		}
	}
}

// do queues work onto the actor and waits for its single terminal result.
// A command already queued when the caller's connection dies still runs to
// completion; only delivery back is lost.
func (m *Match) do(run func() (any, error)) (any, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrMatchClosed
	}

	cmd := command{run: run, resp: make(chan cmdResult, 1)}
	select {
	case m.events <- cmd:
	case <-m.done:
		return nil, ErrMatchClosed
	}
	select {
	case res := <-cmd.resp:
		return res.value, res.err
	case <-m.done:
		return nil, ErrMatchClosed
	}
}

// apply runs one gameplay operation and publishes whatever it emitted.
// Events are published even when the operation errors: an invariant failure
// emits the abandon transition, and the prior stream stays valid.
func (m *Match) apply(op func(g *game.Game) ([]game.Event, error)) error {
	_, err := m.do(func() (any, error) {
		events, opErr := op(m.g)
		m.publish(events)
		return nil, opErr
	})
	return err
}

// publish appends to the durable log, then fans out in sequence order.
// Runs on the actor goroutine.
func (m *Match) publish(events []game.Event) {
	if len(events) == 0 {
		return
	}
	envelopes := make([]codec.EventEnvelope, 0, len(events))
	for _, ev := range events {
		env, err := codec.GameEvent(m.ID, ev)
		if err != nil {
			log.Printf("[Match %d] encode event seq=%d failed: %v", m.ID, ev.Seq, err)
			continue
		}
		envelopes = append(envelopes, env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	if err := m.recorder.Append(ctx, m.ID, envelopes); err != nil {
		log.Printf("[Match %d] replay append failed: %v", m.ID, err)
	}
	cancel()

	m.mu.Lock()
	for accountID, sub := range m.subscribers {
		dropped := false
		for _, env := range envelopes {
			select {
			case sub.ch <- env:
			default:
				dropped = true
			}
			if dropped {
				break
			}
		}
		if dropped {
			log.Printf("[Match %d] subscriber %d overflowed, tearing down", m.ID, accountID)
			delete(m.subscribers, accountID)
			close(sub.ch)
		}
	}
	m.mu.Unlock()

	if m.g.State().Terminal() {
		m.notifyTerminal()
	}
}

// notifyTerminal runs on the actor goroutine, at most once per match.
func (m *Match) notifyTerminal() {
	if m.notified {
		return
	}
	m.notified = true
	m.mu.Lock()
	m.terminalAt = time.Now()
	m.mu.Unlock()
	if m.terminalNotice != nil {
		go m.terminalNotice(m.ID)
	}
}

// --- gameplay command surface ---

func (m *Match) Join(accountID uint64, name string, deck game.DeckList) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) {
		events, err := g.AddPlayer(accountID, name, deck)
		if err == nil {
			delete(m.graceUntil, accountID)
			m.mu.Lock()
			m.emptySince = time.Time{}
			m.mu.Unlock()
		}
		return events, err
	})
}

// JoinSubscribed registers the joiner's feed and applies the join inside one
// actor command, so the feed carries the join's own events. The subscription
// is torn down again when the join is rejected.
func (m *Match) JoinSubscribed(accountID uint64, name string, deck game.DeckList) (*Subscription, error) {
	value, err := m.do(func() (any, error) {
		sub, err := m.SubscribeBuffered(accountID, 0)
		if err != nil {
			return nil, err
		}
		events, err := m.g.AddPlayer(accountID, name, deck)
		if err != nil {
			m.Unsubscribe(accountID)
			return nil, err
		}
		delete(m.graceUntil, accountID)
		m.mu.Lock()
		m.emptySince = time.Time{}
		m.mu.Unlock()
		m.publish(events)
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Subscription), nil
}

func (m *Match) Ready(accountID uint64) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.SetReady(accountID) })
}

func (m *Match) MoveCard(accountID uint64, from game.ZoneRef, index int, to game.ZoneRef, toIndex int, facedown bool) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) {
		return g.MoveCard(accountID, from, index, to, toIndex, facedown)
	})
}

func (m *Match) DrawCards(accountID uint64, n int) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.DrawCards(accountID, n) })
}

func (m *Match) Shuffle(accountID uint64, ref game.ZoneRef) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.Shuffle(accountID, ref) })
}

func (m *Match) RevealCard(accountID uint64, ref game.ZoneRef, index int) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.RevealCard(accountID, ref, index) })
}

func (m *Match) ModifyCounter(accountID, instanceID uint64, counter string, delta int) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) {
		return g.ModifyCounter(accountID, instanceID, counter, delta)
	})
}

func (m *Match) Attach(accountID, instanceID, targetID uint64, attached bool) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) {
		return g.Attach(accountID, instanceID, targetID, attached)
	})
}

func (m *Match) SetLife(accountID uint64, delta int) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.SetLife(accountID, delta) })
}

func (m *Match) CreateToken(accountID uint64, cardID string, ref game.ZoneRef) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.CreateToken(accountID, cardID, ref) })
}

func (m *Match) DestroyCard(accountID, instanceID uint64) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.DestroyCard(accountID, instanceID) })
}

func (m *Match) AdvancePhase(accountID uint64) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.AdvancePhase(accountID) })
}

func (m *Match) AdvanceTurn(accountID uint64) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.AdvanceTurn(accountID) })
}

func (m *Match) Concede(accountID uint64) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.Concede(accountID) })
}

func (m *Match) Pause(reason string) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.Pause(reason) })
}

func (m *Match) Resume() error {
	return m.apply(func(g *game.Game) ([]game.Event, error) {
		events, err := g.Resume()
		if err == nil {
			m.pausedByLoss = false
			m.abandonAt = time.Time{}
		}
		return events, err
	})
}

func (m *Match) Abandon(reason string) error {
	return m.apply(func(g *game.Game) ([]game.Event, error) { return g.Abandon(reason) })
}

// --- connection lifecycle ---

// ConnLost marks a participant as gone and starts the grace clock. The game
// itself keeps running until the grace expires.
func (m *Match) ConnLost(accountID uint64) {
	err := m.apply(func(g *game.Game) ([]game.Event, error) {
		events, err := g.SetConnected(accountID, false)
		if err == nil && containsID(g.Players(), accountID) {
			m.graceUntil[accountID] = time.Now().Add(m.Config.ConnLossGrace)
		}
		return events, err
	})
	if err != nil && !errors.Is(err, game.ErrUnknownPlayer) && !errors.Is(err, ErrMatchClosed) {
		log.Printf("[Match %d] conn lost for %d: %v", m.ID, accountID, err)
	}
}

// ConnResumed clears the grace clock; when every participant is back and the
// pause was loss-driven, play resumes.
func (m *Match) ConnResumed(accountID uint64) {
	err := m.apply(func(g *game.Game) ([]game.Event, error) {
		events, err := g.SetConnected(accountID, true)
		if err != nil {
			return events, err
		}
		delete(m.graceUntil, accountID)

		if m.pausedByLoss && g.State() == game.StatePaused && len(m.graceUntil) == 0 {
			more, resumeErr := g.Resume()
			events = append(events, more...)
			if resumeErr == nil {
				m.pausedByLoss = false
				m.abandonAt = time.Time{}
			}
		}
		return events, err
	})
	if err != nil && !errors.Is(err, game.ErrUnknownPlayer) && !errors.Is(err, ErrMatchClosed) {
		log.Printf("[Match %d] conn resumed for %d: %v", m.ID, accountID, err)
	}
}

// tick runs on the actor goroutine.
func (m *Match) tick() {
	now := time.Now()
	state := m.g.State()

	if state == game.StateInProgress {
		for accountID, deadline := range m.graceUntil {
			if deadline.IsZero() || now.Before(deadline) {
				continue
			}
			events, err := m.g.Pause("participant connection lost")
			if err != nil {
				log.Printf("[Match %d] pause after grace for %d failed: %v", m.ID, accountID, err)
				break
			}
			m.pausedByLoss = true
			m.abandonAt = now.Add(time.Duration(m.Config.Game.AbandonGraceSec) * time.Second)
			m.publish(events)
			break
		}
		return
	}

	if state == game.StatePaused && m.pausedByLoss && !m.abandonAt.IsZero() && !now.Before(m.abandonAt) {
		events, err := m.g.Abandon("participant never returned")
		if err != nil {
			log.Printf("[Match %d] abandon after grace failed: %v", m.ID, err)
			return
		}
		m.pausedByLoss = false
		m.abandonAt = time.Time{}
		m.publish(events)
	}
}

// --- subscriptions and observation ---

func (m *Match) Subscribe(accountID uint64) (*Subscription, error) {
	return m.SubscribeBuffered(accountID, m.Config.SubscriberBuffer)
}

// SubscribeBuffered registers a feed with an explicit queue bound. A second
// subscription for the same account replaces the first.
func (m *Match) SubscribeBuffered(accountID uint64, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = m.Config.SubscriberBuffer
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMatchClosed
	}
	if old, ok := m.subscribers[accountID]; ok {
		delete(m.subscribers, accountID)
		close(old.ch)
	}
	sub := &Subscription{
		AccountID: accountID,
		ch:        make(chan codec.EventEnvelope, buffer),
	}
	m.subscribers[accountID] = sub
	return sub, nil
}

func (m *Match) Unsubscribe(accountID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[accountID]
	if !ok {
		return
	}
	delete(m.subscribers, accountID)
	close(sub.ch)
}

func (m *Match) Snapshot() game.Snapshot {
	return m.g.Snapshot()
}

func (m *Match) State() game.State {
	return m.g.State()
}

func (m *Match) HasPlayer(accountID uint64) bool {
	return containsID(m.g.Players(), accountID)
}

func (m *Match) PlayerCount() int {
	return len(m.g.Players())
}

// IsIdleFor reports whether the match is reapable: terminal with no
// subscribers for at least ttl, or never joined within ttl of creation. The
// lobby janitor uses this to sweep.
func (m *Match) IsIdleFor(ttl time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return true
	}
	if len(m.subscribers) > 0 {
		return false
	}
	if !m.terminalAt.IsZero() {
		return time.Since(m.terminalAt) >= ttl
	}
	if !m.emptySince.IsZero() && m.g.State() == game.StateSetup {
		return time.Since(m.emptySince) >= ttl
	}
	return false
}

// Stop shuts the actor down and closes every subscriber feed.
func (m *Match) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for accountID, sub := range m.subscribers {
		delete(m.subscribers, accountID)
		close(sub.ch)
	}
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

func (m *Match) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
