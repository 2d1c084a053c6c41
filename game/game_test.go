package game

import (
	"fmt"
	"testing"
)

func testDeck(size int) DeckList {
	deck := DeckList{Main: make([]string, 0, size)}
	for i := 0; i < size; i++ {
		deck.Main = append(deck.Main, fmt.Sprintf("card_%03d", i))
	}
	return deck
}

// startedGame returns a two-player game already in progress with opening
// hands dealt, plus every event emitted so far.
func startedGame(t *testing.T, seed int64) (*Game, []Event) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = seed
	g, err := NewGame(42, cfg)
	if err != nil {
		t.Fatalf("NewGame err: %v", err)
	}

	var all []Event
	for _, id := range []uint64{1, 2} {
		events, err := g.AddPlayer(id, fmt.Sprintf("player_%d", id), testDeck(60))
		if err != nil {
			t.Fatalf("AddPlayer(%d) err: %v", id, err)
		}
		all = append(all, events...)
	}
	for _, id := range []uint64{1, 2} {
		events, err := g.SetReady(id)
		if err != nil {
			t.Fatalf("SetReady(%d) err: %v", id, err)
		}
		all = append(all, events...)
	}
	if g.State() != StateInProgress {
		t.Fatalf("expected in-progress after both ready, got %v", g.State())
	}
	return g, all
}

func TestSetReadyDealsOpeningHands(t *testing.T) {
	g, _ := startedGame(t, 7)

	for _, id := range []uint64{1, 2} {
		if got := g.ZoneSize(id, ZoneHand); got != 7 {
			t.Fatalf("player %d hand size = %d, want 7", id, got)
		}
		if got := g.ZoneSize(id, ZoneLibrary); got != 53 {
			t.Fatalf("player %d library size = %d, want 53", id, got)
		}
	}
}

func TestEventSequenceIsGapFree(t *testing.T) {
	g, all := startedGame(t, 3)

	events, err := g.DrawCards(1, 2)
	if err != nil {
		t.Fatalf("DrawCards err: %v", err)
	}
	all = append(all, events...)

	for i, ev := range all {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
	}
	if g.LastSeq() != uint64(len(all)) {
		t.Fatalf("LastSeq=%d, want %d", g.LastSeq(), len(all))
	}
}

func TestAddPlayerRejectsShortDeck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 1
	g, err := NewGame(1, cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.AddPlayer(1, "p1", testDeck(40))
	vErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Code != CodeInvalidDeckList {
		t.Fatalf("expected %s, got %s", CodeInvalidDeckList, vErr.Code)
	}
	if g.LastSeq() != 0 {
		t.Fatalf("rejected join must emit no events, LastSeq=%d", g.LastSeq())
	}
}

func TestInitialLibraryIsShuffled(t *testing.T) {
	g, _ := startedGame(t, 99)

	// With 53 remaining cards the odds of the shuffle being a no-op are nil;
	// compare against submitted order via the snapshot.
	snap := g.Snapshot()
	lib := snap.Players[0].Zones[0]
	if lib.Kind != ZoneLibrary {
		t.Fatalf("zone order changed: first zone is %v", lib.Kind)
	}
	inOrder := true
	for i := 1; i < len(lib.Cards); i++ {
		if lib.Cards[i-1].ID > lib.Cards[i].ID {
			inOrder = false
			break
		}
	}
	if inOrder {
		t.Fatal("library still in submitted order after initial shuffle")
	}
}

func TestConcedeFinishesGame(t *testing.T) {
	g, _ := startedGame(t, 5)

	events, err := g.Concede(2)
	if err != nil {
		t.Fatalf("Concede err: %v", err)
	}
	if g.State() != StateFinished {
		t.Fatalf("expected finished, got %v", g.State())
	}
	var sawFinish bool
	for _, ev := range events {
		if sc, ok := ev.Data.(*StateChanged); ok && sc.State == StateFinished {
			sawFinish = true
		}
	}
	if !sawFinish {
		t.Fatal("no StateChanged(finished) event emitted")
	}

	// Terminal state refuses further mutation.
	if _, err := g.DrawCards(1, 1); err != ErrGameEnded {
		t.Fatalf("expected ErrGameEnded after finish, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	g, _ := startedGame(t, 5)

	if _, err := g.Pause("admin"); err != nil {
		t.Fatalf("Pause err: %v", err)
	}
	if _, err := g.DrawCards(1, 1); err != ErrGamePaused {
		t.Fatalf("expected ErrGamePaused, got %v", err)
	}
	if _, err := g.Resume(); err != nil {
		t.Fatalf("Resume err: %v", err)
	}
	if _, err := g.DrawCards(1, 1); err != nil {
		t.Fatalf("draw after resume err: %v", err)
	}
}

// zoneCards pulls the current snapshot of one zone.
func zoneCards(t *testing.T, g *Game, playerID uint64, kind ZoneKind) []CardSnapshot {
	t.Helper()
	snap := g.Snapshot()
	for _, p := range snap.Players {
		if p.ID != playerID {
			continue
		}
		for _, z := range p.Zones {
			if z.Kind == kind {
				return z.Cards
			}
		}
	}
	t.Fatalf("player %d has no %v zone", playerID, kind)
	return nil
}

func findCard(t *testing.T, cards []CardSnapshot, instanceID uint64) CardSnapshot {
	t.Helper()
	for _, c := range cards {
		if c.ID == instanceID {
			return c
		}
	}
	t.Fatalf("no card instance %d in zone", instanceID)
	return CardSnapshot{}
}

func TestDetachAllWithZeroTarget(t *testing.T) {
	g, _ := startedGame(t, 11)

	hand := zoneCards(t, g, 1, ZoneHand)
	host, first, second := hand[0].ID, hand[1].ID, hand[2].ID

	if _, err := g.Attach(1, host, first, true); err != nil {
		t.Fatalf("attach first err: %v", err)
	}
	if _, err := g.Attach(1, host, second, true); err != nil {
		t.Fatalf("attach second err: %v", err)
	}
	got := findCard(t, zoneCards(t, g, 1, ZoneHand), host)
	if len(got.Attachments) != 2 {
		t.Fatalf("attachments = %v, want both targets", got.Attachments)
	}

	// Attaching demands a real target; only the release form takes zero.
	_, err := g.Attach(1, host, 0, true)
	vErr, ok := err.(*ValidationError)
	if !ok || vErr.Code != CodeUnknownTarget {
		t.Fatalf("attach to zero target: got %v, want %s", err, CodeUnknownTarget)
	}

	if _, err := g.Attach(1, host, 0, false); err != nil {
		t.Fatalf("detach all err: %v", err)
	}
	got = findCard(t, zoneCards(t, g, 1, ZoneHand), host)
	if len(got.Attachments) != 0 {
		t.Fatalf("attachments = %v after detach all, want none", got.Attachments)
	}
}

func TestMoveCardFacedownSurvivesFold(t *testing.T) {
	g, all := startedGame(t, 13)

	events, err := g.MoveCard(1, ZoneRef{Owner: 1, Kind: ZoneHand}, 0, ZoneRef{Owner: 1, Kind: ZoneBattlefield}, 0, true)
	if err != nil {
		t.Fatalf("MoveCard err: %v", err)
	}
	all = append(all, events...)

	mv, ok := events[0].Data.(*CardMoved)
	if !ok {
		t.Fatalf("expected CardMoved, got %T", events[0].Data)
	}
	if !mv.Facedown {
		t.Fatal("CardMoved did not record the facedown orientation")
	}

	bf := zoneCards(t, g, 1, ZoneBattlefield)
	if len(bf) != 1 || !bf[0].Facedown {
		t.Fatalf("battlefield = %+v, want one facedown card", bf)
	}

	cfg := DefaultConfig()
	cfg.Seed = 13
	rebuilt, err := Rebuild(42, cfg, all)
	if err != nil {
		t.Fatalf("Rebuild err: %v", err)
	}
	bf = zoneCards(t, rebuilt, 1, ZoneBattlefield)
	if len(bf) != 1 || !bf[0].Facedown {
		t.Fatalf("rebuilt battlefield = %+v, want one facedown card", bf)
	}
}

func TestAbandonFromAnyLiveState(t *testing.T) {
	g, _ := startedGame(t, 5)
	if _, err := g.Pause("loss"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Abandon("participants gone"); err != nil {
		t.Fatalf("Abandon err: %v", err)
	}
	if g.State() != StateAbandoned {
		t.Fatalf("expected abandoned, got %v", g.State())
	}
	if _, err := g.Abandon("again"); err != ErrGameEnded {
		t.Fatalf("expected ErrGameEnded on double abandon, got %v", err)
	}
}
