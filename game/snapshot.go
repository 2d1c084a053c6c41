package game

// Snapshot is a deep copy of the authoritative state, safe to serialize and
// hand to other goroutines. Resync uses it as a derived optimization over the
// event log; the log stays the source of truth.
type Snapshot struct {
	GameID       uint64 `json:"gameId"`
	State        State  `json:"state"`
	Turn         int    `json:"turn"`
	Phase        Phase  `json:"phase"`
	ActivePlayer uint64 `json:"activePlayer"`
	Seq          uint64 `json:"seq"`

	Players []PlayerSnapshot `json:"players"`

	AbandonReason string `json:"abandonReason,omitempty"`
}

type PlayerSnapshot struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Life      int    `json:"life"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Conceded  bool   `json:"conceded"`

	Zones []ZoneSnapshot `json:"zones"`
}

type ZoneSnapshot struct {
	Kind  ZoneKind       `json:"kind"`
	Cards []CardSnapshot `json:"cards"`
}

type CardSnapshot struct {
	ID          uint64         `json:"id"`
	CardID      string         `json:"cardId"`
	Facedown    bool           `json:"facedown,omitempty"`
	Counters    map[string]int `json:"counters,omitempty"`
	Attachments []uint64       `json:"attachments,omitempty"`
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		GameID:        g.id,
		State:         g.state,
		Turn:          g.turn,
		Phase:         g.phase,
		ActivePlayer:  g.activePlayer,
		Seq:           g.nextSeq,
		AbandonReason: g.abandonReason,
	}
	for _, id := range g.joinOrder {
		p := g.players[id]
		ps := PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Life:      p.Life,
			Ready:     p.Ready,
			Connected: p.Connected,
			Conceded:  p.Conceded,
		}
		for _, kind := range allZoneKinds {
			z := p.zone(kind)
			zs := ZoneSnapshot{Kind: kind, Cards: make([]CardSnapshot, 0, z.Size())}
			for _, c := range z.cards {
				cs := CardSnapshot{
					ID:       c.ID,
					CardID:   c.CardID,
					Facedown: c.Facedown,
				}
				if len(c.counters) > 0 {
					cs.Counters = make(map[string]int, len(c.counters))
					for name, value := range c.counters {
						cs.Counters[name] = value
					}
				}
				if len(c.attachments) > 0 {
					cs.Attachments = append([]uint64{}, c.attachments...)
				}
				zs.Cards = append(zs.Cards, cs)
			}
			ps.Zones = append(ps.Zones, zs)
		}
		s.Players = append(s.Players, ps)
	}
	return s
}

// ZoneSize is a convenience for tests and handlers.
func (g *Game) ZoneSize(playerID uint64, kind ZoneKind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.players[playerID]
	if p == nil {
		return 0
	}
	return p.zone(kind).Size()
}
