package game

// Player is one participant's authoritative per-game record.
type Player struct {
	ID   uint64
	Name string

	Life      int
	Ready     bool
	Connected bool
	Conceded  bool

	zones map[ZoneKind]*Zone
}

func newPlayer(id uint64, name string, startingLife int) *Player {
	p := &Player{
		ID:        id,
		Name:      name,
		Life:      startingLife,
		Connected: true,
		zones:     make(map[ZoneKind]*Zone, len(allZoneKinds)),
	}
	for _, kind := range allZoneKinds {
		p.zones[kind] = newZone(id, kind)
	}
	return p
}

func (p *Player) zone(kind ZoneKind) *Zone { return p.zones[kind] }

// cardCount sums instances across every zone the player owns.
func (p *Player) cardCount() int {
	total := 0
	for _, z := range p.zones {
		total += z.Size()
	}
	return total
}

func (p *Player) findCard(instanceID uint64) (*Zone, int) {
	for _, kind := range allZoneKinds {
		z := p.zones[kind]
		if idx := z.indexOf(instanceID); idx >= 0 {
			return z, idx
		}
	}
	return nil, -1
}
