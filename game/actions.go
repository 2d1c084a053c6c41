package game

import "fmt"

// Card-level commands. Each validates against current state, then emits and
// applies events through the shared fold path. Rejections leave the state
// machine untouched.

func (g *Game) resolveZoneLocked(playerID uint64, ref ZoneRef) (*Zone, error) {
	if ref.Owner != playerID {
		return nil, errValidation(CodeIllegalMove, "zone belongs to another player")
	}
	owner := g.players[ref.Owner]
	if owner == nil {
		return nil, errValidation(CodeUnknownZone, fmt.Sprintf("no player %d", ref.Owner))
	}
	z := owner.zone(ref.Kind)
	if z == nil {
		return nil, errValidation(CodeUnknownZone, fmt.Sprintf("no zone %q", ref.Kind))
	}
	return z, nil
}

// MoveCard relocates the card at from[index] to to[toIndex]. toIndex beyond
// the destination length appends. facedown is the card's orientation after
// the move.
func (g *Game) MoveCard(playerID uint64, from ZoneRef, index int, to ZoneRef, toIndex int, facedown bool) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	src, err := g.resolveZoneLocked(playerID, from)
	if err != nil {
		return nil, err
	}
	dst, err := g.resolveZoneLocked(playerID, to)
	if err != nil {
		return nil, err
	}
	c := src.card(index)
	if c == nil {
		return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card at %s[%d]", from.Kind, index))
	}
	if src == dst && index == toIndex {
		return nil, errValidation(CodeIllegalMove, "source and destination are identical")
	}
	if toIndex < 0 || toIndex > dst.Size() {
		toIndex = dst.Size()
	}
	// Moving within the same zone: the removal shifts later indices.
	if src == dst && toIndex > index {
		toIndex--
	}

	out, err := g.emit(nil, &CardMoved{
		PlayerID:  playerID,
		Card:      c.ID,
		CardID:    c.CardID,
		From:      from,
		FromIndex: index,
		To:        to,
		ToIndex:   toIndex,
		Facedown:  facedown,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// DrawCards moves n cards from the top of the library to the hand.
func (g *Game) DrawCards(playerID uint64, n int) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errValidation(CodeIllegalMove, "draw count must be positive")
	}
	if p.zone(ZoneLibrary).Size() < n {
		return nil, errValidation(CodeIllegalMove,
			fmt.Sprintf("library has %d cards, cannot draw %d", p.zone(ZoneLibrary).Size(), n))
	}

	var out []Event
	for i := 0; i < n; i++ {
		if out, err = g.emit(out, g.buildTopDrawLocked(playerID)); err != nil {
			return out, err
		}
	}
	return g.finish(out)
}

// Shuffle permutes an owned zone; the event records the resulting order.
func (g *Game) Shuffle(playerID uint64, ref ZoneRef) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	if _, err := g.resolveZoneLocked(playerID, ref); err != nil {
		return nil, err
	}

	out, err := g.emit(nil, g.buildShuffleLocked(playerID, ref.Kind))
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// RevealCard turns the addressed card face up for all subscribers.
func (g *Game) RevealCard(playerID uint64, ref ZoneRef, index int) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	z, err := g.resolveZoneLocked(playerID, ref)
	if err != nil {
		return nil, err
	}
	c := z.card(index)
	if c == nil {
		return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card at %s[%d]", ref.Kind, index))
	}

	out, err := g.emit(nil, &CardRevealed{
		PlayerID: playerID,
		Zone:     ref,
		Index:    index,
		Card:     c.ID,
		CardID:   c.CardID,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// ModifyCounter adjusts a named counter on an owned card.
func (g *Game) ModifyCounter(playerID uint64, instanceID uint64, counter string, delta int) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	if counter == "" || delta == 0 {
		return nil, errValidation(CodeIllegalMove, "counter name and non-zero delta required")
	}
	z, idx := p.findCard(instanceID)
	if z == nil {
		return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card instance %d", instanceID))
	}
	c := z.card(idx)

	out, err := g.emit(nil, &CounterChanged{
		PlayerID: playerID,
		Card:     instanceID,
		Counter:  counter,
		Delta:    delta,
		Total:    c.Counter(counter) + delta,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// Attach binds target beneath card (attached=true) or releases it. A zero
// target with attached=false clears every attachment from the card.
func (g *Game) Attach(playerID uint64, instanceID, targetID uint64, attached bool) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	if attached && targetID == 0 {
		return nil, errValidation(CodeUnknownTarget, "attach requires a target instance")
	}
	if instanceID == targetID {
		return nil, errValidation(CodeIllegalMove, "card cannot attach to itself")
	}
	if z, _ := p.findCard(instanceID); z == nil {
		return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card instance %d", instanceID))
	}
	if targetID != 0 {
		if z, _ := p.findCard(targetID); z == nil {
			return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card instance %d", targetID))
		}
	}

	out, err := g.emit(nil, &AttachmentChanged{
		PlayerID: playerID,
		Card:     instanceID,
		Target:   targetID,
		Attached: attached,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// SetLife applies a delta to the player's own life total.
func (g *Game) SetLife(playerID uint64, delta int) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, errValidation(CodeIllegalMove, "life delta must be non-zero")
	}

	out, err := g.emit(nil, &LifeChanged{
		PlayerID: playerID,
		Delta:    delta,
		Total:    p.Life + delta,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// CreateToken mints a new card instance. One of the two designated actions
// allowed to change the conserved card total.
func (g *Game) CreateToken(playerID uint64, cardID string, ref ZoneRef) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	if _, err := g.requirePlayerLocked(playerID); err != nil {
		return nil, err
	}
	if cardID == "" {
		return nil, errValidation(CodeIllegalMove, "token card id required")
	}
	z, err := g.resolveZoneLocked(playerID, ref)
	if err != nil {
		return nil, err
	}

	out, err := g.emit(nil, &CardCreated{
		PlayerID: playerID,
		Card:     g.nextCardID + 1,
		CardID:   cardID,
		Zone:     ref,
		Index:    z.Size(),
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}

// DestroyCard removes an instance from the game entirely.
func (g *Game) DestroyCard(playerID uint64, instanceID uint64) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLiveLocked(); err != nil {
		return nil, err
	}
	p, err := g.requirePlayerLocked(playerID)
	if err != nil {
		return nil, err
	}
	z, idx := p.findCard(instanceID)
	if z == nil {
		return nil, errValidation(CodeUnknownTarget, fmt.Sprintf("no card instance %d", instanceID))
	}

	out, err := g.emit(nil, &CardDestroyed{
		PlayerID: playerID,
		Card:     instanceID,
		Zone:     z.Ref,
		Index:    idx,
	})
	if err != nil {
		return out, err
	}
	return g.finish(out)
}
