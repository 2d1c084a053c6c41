package game

import "testing"

func activePlayer(g *Game) uint64 { return g.Snapshot().ActivePlayer }

func TestPhaseProgressionAndTurnWrap(t *testing.T) {
	g, _ := startedGame(t, 55)

	first := activePlayer(g)
	want := []Phase{
		PhaseUpkeep, PhaseDraw, PhaseMain1, PhaseCombat, PhaseMain2, PhaseEnd, PhaseCleanup,
	}
	for _, phase := range want {
		if _, err := g.AdvancePhase(first); err != nil {
			t.Fatalf("advance to %v err: %v", phase, err)
		}
		if got := g.Snapshot().Phase; got != phase {
			t.Fatalf("phase = %v, want %v", got, phase)
		}
	}

	// Advancing past cleanup passes the turn.
	events, err := g.AdvancePhase(first)
	if err != nil {
		t.Fatalf("wrap err: %v", err)
	}
	snap := g.Snapshot()
	if snap.Turn != 2 {
		t.Fatalf("turn = %d, want 2", snap.Turn)
	}
	if snap.ActivePlayer == first {
		t.Fatal("turn did not pass to the other player")
	}
	if snap.Phase != PhaseUntap {
		t.Fatalf("new turn phase = %v, want untap", snap.Phase)
	}
	var sawTurn bool
	for _, ev := range events {
		if _, ok := ev.Data.(*TurnChanged); ok {
			sawTurn = true
		}
	}
	if !sawTurn {
		t.Fatal("no TurnChanged event on wrap")
	}
}

func TestDrawPhaseAutoDraws(t *testing.T) {
	g, _ := startedGame(t, 55)
	first := activePlayer(g)
	handBefore := g.ZoneSize(first, ZoneHand)

	if _, err := g.AdvancePhase(first); err != nil { // upkeep
		t.Fatal(err)
	}
	events, err := g.AdvancePhase(first) // draw
	if err != nil {
		t.Fatal(err)
	}
	if got := g.ZoneSize(first, ZoneHand); got != handBefore+1 {
		t.Fatalf("hand size %d after draw phase, want %d", got, handBefore+1)
	}
	var sawMove bool
	for _, ev := range events {
		if mv, ok := ev.Data.(*CardMoved); ok && mv.To.Kind == ZoneHand {
			sawMove = true
		}
	}
	if !sawMove {
		t.Fatal("draw phase emitted no CardMoved")
	}
}

func TestNonActivePlayerCannotAdvance(t *testing.T) {
	g, _ := startedGame(t, 55)
	other := uint64(1)
	if activePlayer(g) == 1 {
		other = 2
	}
	seqBefore := g.LastSeq()

	_, err := g.AdvancePhase(other)
	vErr, ok := err.(*ValidationError)
	if !ok || vErr.Code != CodeNotYourTurn {
		t.Fatalf("expected not_your_turn, got %v", err)
	}
	if g.LastSeq() != seqBefore {
		t.Fatal("rejected command emitted events")
	}

	if _, err := g.AdvanceTurn(other); err == nil {
		t.Fatal("AdvanceTurn by non-active player must fail")
	}
}

func TestAdvanceTurnSkipsConcededPlayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayers = 3
	cfg.MinPlayers = 3
	cfg.Seed = 77
	g, err := NewGame(9, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []uint64{1, 2, 3} {
		if _, err := g.AddPlayer(id, "p", testDeck(60)); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []uint64{1, 2, 3} {
		if _, err := g.SetReady(id); err != nil {
			t.Fatal(err)
		}
	}

	// Concede the player who would act next; passing the turn must skip them.
	first := activePlayer(g)
	ring := map[uint64]uint64{1: 2, 2: 3, 3: 1}
	next := ring[first]
	if _, err := g.Concede(next); err != nil {
		t.Fatal(err)
	}
	if g.State() != StateInProgress {
		t.Fatalf("three-player game should continue, state=%v", g.State())
	}
	if _, err := g.AdvanceTurn(first); err != nil {
		t.Fatal(err)
	}
	if got := activePlayer(g); got == next || got == first {
		t.Fatalf("turn passed to %d, conceded=%d first=%d", got, next, first)
	}
}
