package game

import "testing"

func totalCardCount(snap Snapshot) int {
	total := 0
	for _, p := range snap.Players {
		for _, z := range p.Zones {
			total += len(z.Cards)
		}
	}
	return total
}

// Zone moves shuffle cards around but never change the total; only the
// designated create/destroy actions may.
func TestCardConservationAcrossMoves(t *testing.T) {
	g, _ := startedGame(t, 11)
	want := totalCardCount(g.Snapshot())

	hand := ZoneRef{Owner: 1, Kind: ZoneHand}
	battlefield := ZoneRef{Owner: 1, Kind: ZoneBattlefield}
	graveyard := ZoneRef{Owner: 1, Kind: ZoneGraveyard}

	steps := []func() ([]Event, error){
		func() ([]Event, error) { return g.MoveCard(1, hand, 2, battlefield, 0, false) },
		func() ([]Event, error) { return g.DrawCards(1, 3) },
		func() ([]Event, error) { return g.MoveCard(1, battlefield, 0, graveyard, 0, false) },
		func() ([]Event, error) { return g.Shuffle(1, ZoneRef{Owner: 1, Kind: ZoneLibrary}) },
		func() ([]Event, error) { return g.MoveCard(2, ZoneRef{Owner: 2, Kind: ZoneHand}, 0, ZoneRef{Owner: 2, Kind: ZoneBattlefield}, 0, false) },
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d err: %v", i, err)
		}
		if got := totalCardCount(g.Snapshot()); got != want {
			t.Fatalf("step %d: card count %d, want %d", i, got, want)
		}
	}
}

func TestCreateAndDestroyAdjustTotal(t *testing.T) {
	g, _ := startedGame(t, 11)
	base := totalCardCount(g.Snapshot())

	events, err := g.CreateToken(1, "token_goblin", ZoneRef{Owner: 1, Kind: ZoneBattlefield})
	if err != nil {
		t.Fatalf("CreateToken err: %v", err)
	}
	created, ok := events[0].Data.(*CardCreated)
	if !ok {
		t.Fatalf("expected CardCreated, got %T", events[0].Data)
	}
	if got := totalCardCount(g.Snapshot()); got != base+1 {
		t.Fatalf("after create: count %d, want %d", got, base+1)
	}

	if _, err := g.DestroyCard(1, created.Card); err != nil {
		t.Fatalf("DestroyCard err: %v", err)
	}
	if got := totalCardCount(g.Snapshot()); got != base {
		t.Fatalf("after destroy: count %d, want %d", got, base)
	}
}

// Scenario: move hand[2] to battlefield — hand shrinks by one, battlefield
// grows by one, and the emitted event describes exactly that change.
func TestMoveHandToBattlefield(t *testing.T) {
	g, _ := startedGame(t, 23)

	handBefore := g.ZoneSize(1, ZoneHand)
	fieldBefore := g.ZoneSize(1, ZoneBattlefield)

	events, err := g.MoveCard(1, ZoneRef{Owner: 1, Kind: ZoneHand}, 2, ZoneRef{Owner: 1, Kind: ZoneBattlefield}, 0, false)
	if err != nil {
		t.Fatalf("MoveCard err: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	mv, ok := events[0].Data.(*CardMoved)
	if !ok {
		t.Fatalf("expected CardMoved, got %T", events[0].Data)
	}
	if mv.From.Kind != ZoneHand || mv.FromIndex != 2 || mv.To.Kind != ZoneBattlefield {
		t.Fatalf("unexpected move payload: %+v", mv)
	}
	if got := g.ZoneSize(1, ZoneHand); got != handBefore-1 {
		t.Fatalf("hand size %d, want %d", got, handBefore-1)
	}
	if got := g.ZoneSize(1, ZoneBattlefield); got != fieldBefore+1 {
		t.Fatalf("battlefield size %d, want %d", got, fieldBefore+1)
	}
}
