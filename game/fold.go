package game

import "fmt"

// Rebuild folds an ordered event stream into a fresh game. The result is
// indistinguishable from the live instance at the same sequence number; this
// is the reconnection and crash-recovery path, and the determinism contract
// the tests pin down.
func Rebuild(id uint64, cfg Config, events []Event) (*Game, error) {
	g, err := NewGame(id, cfg)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, ev := range events {
		if ev.Seq != g.nextSeq+1 {
			return nil, fmt.Errorf("event stream gap: have seq %d, want %d", ev.Seq, g.nextSeq+1)
		}
		if err := g.applyEventLocked(ev.Data); err != nil {
			return nil, fmt.Errorf("apply seq %d: %w", ev.Seq, err)
		}
		g.nextSeq = ev.Seq
	}
	return g, nil
}

// applyEventLocked is the single mutation path shared by live commands and
// fold. It must never consult the RNG and must accept any event the live path
// can emit.
func (g *Game) applyEventLocked(data EventData) error {
	switch ev := data.(type) {
	case *PlayerJoined:
		return g.applyPlayerJoinedLocked(ev)
	case *PlayerReady:
		p := g.players[ev.PlayerID]
		if p == nil {
			return ErrUnknownPlayer
		}
		p.Ready = true
	case *StateChanged:
		g.state = ev.State
		if ev.State == StateAbandoned {
			g.abandonReason = ev.Reason
		}
	case *TurnChanged:
		g.turn = ev.Turn
		g.activePlayer = ev.ActivePlayer
	case *PhaseChanged:
		g.phase = ev.Phase
	case *CardMoved:
		return g.applyCardMovedLocked(ev)
	case *ZoneShuffled:
		owner := g.players[ev.Zone.Owner]
		if owner == nil {
			return ErrUnknownPlayer
		}
		if !owner.zone(ev.Zone.Kind).reorder(ev.Order) {
			return &InvariantViolationError{GameID: g.id, Detail: "shuffle order is not a permutation"}
		}
	case *CardRevealed:
		owner := g.players[ev.Zone.Owner]
		if owner == nil {
			return ErrUnknownPlayer
		}
		c := owner.zone(ev.Zone.Kind).card(ev.Index)
		if c == nil || c.ID != ev.Card {
			return &InvariantViolationError{GameID: g.id, Detail: "reveal target missing"}
		}
		c.Facedown = false
	case *CardCreated:
		owner := g.players[ev.Zone.Owner]
		if owner == nil {
			return ErrUnknownPlayer
		}
		c := newCardInstance(ev.Card, ev.CardID)
		owner.zone(ev.Zone.Kind).insertAt(ev.Index, c)
		if ev.Card > g.nextCardID {
			g.nextCardID = ev.Card
		}
		g.expectedCards++
	case *CardDestroyed:
		owner := g.players[ev.Zone.Owner]
		if owner == nil {
			return ErrUnknownPlayer
		}
		z := owner.zone(ev.Zone.Kind)
		idx := z.indexOf(ev.Card)
		if idx < 0 {
			return &InvariantViolationError{GameID: g.id, Detail: "destroy target missing"}
		}
		removed := z.removeAt(idx)
		for _, p := range g.players {
			for _, kind := range allZoneKinds {
				for _, other := range p.zone(kind).cards {
					other.detach(removed.ID)
				}
			}
		}
		g.expectedCards--
	case *CounterChanged:
		c := g.findInstanceLocked(ev.Card)
		if c == nil {
			return &InvariantViolationError{GameID: g.id, Detail: "counter target missing"}
		}
		c.addCounter(ev.Counter, ev.Delta)
	case *AttachmentChanged:
		c := g.findInstanceLocked(ev.Card)
		if c == nil {
			return &InvariantViolationError{GameID: g.id, Detail: "attachment source missing"}
		}
		if ev.Attached {
			c.attach(ev.Target)
		} else {
			c.detach(ev.Target)
		}
	case *LifeChanged:
		p := g.players[ev.PlayerID]
		if p == nil {
			return ErrUnknownPlayer
		}
		p.Life = ev.Total
	case *PlayerConceded:
		p := g.players[ev.PlayerID]
		if p == nil {
			return ErrUnknownPlayer
		}
		p.Conceded = true
	case *PlayerConnection:
		p := g.players[ev.PlayerID]
		if p == nil {
			return ErrUnknownPlayer
		}
		p.Connected = ev.Connected
	default:
		return fmt.Errorf("unknown event payload %T", data)
	}
	return nil
}

func (g *Game) applyPlayerJoinedLocked(ev *PlayerJoined) error {
	if g.players[ev.PlayerID] != nil {
		return &InvariantViolationError{GameID: g.id, Detail: "duplicate player join"}
	}
	p := newPlayer(ev.PlayerID, ev.Name, g.cfg.StartingLife)
	g.players[ev.PlayerID] = p
	g.joinOrder = append(g.joinOrder, ev.PlayerID)

	// Instance ids are assigned in deck order; fold and live agree because both
	// run through here.
	lib := p.zone(ZoneLibrary)
	for _, cardID := range ev.Deck.Main {
		g.nextCardID++
		c := newCardInstance(g.nextCardID, cardID)
		c.Facedown = true
		lib.insertAt(lib.Size(), c)
	}
	side := p.zone(ZoneSideboard)
	for _, cardID := range ev.Deck.Sideboard {
		g.nextCardID++
		side.insertAt(side.Size(), newCardInstance(g.nextCardID, cardID))
	}
	g.expectedCards += len(ev.Deck.Main) + len(ev.Deck.Sideboard)
	return nil
}

func (g *Game) applyCardMovedLocked(ev *CardMoved) error {
	srcOwner := g.players[ev.From.Owner]
	dstOwner := g.players[ev.To.Owner]
	if srcOwner == nil || dstOwner == nil {
		return ErrUnknownPlayer
	}
	src := srcOwner.zone(ev.From.Kind)
	dst := dstOwner.zone(ev.To.Kind)
	c := src.card(ev.FromIndex)
	if c == nil || c.ID != ev.Card {
		return &InvariantViolationError{GameID: g.id, Detail: "move source mismatch"}
	}
	src.removeAt(ev.FromIndex)
	c.Facedown = ev.Facedown
	dst.insertAt(ev.ToIndex, c)
	return nil
}

func (g *Game) findInstanceLocked(instanceID uint64) *CardInstance {
	for _, id := range g.joinOrder {
		z, idx := g.players[id].findCard(instanceID)
		if z != nil {
			return z.card(idx)
		}
	}
	return nil
}
