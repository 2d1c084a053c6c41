package game

// State 游戏生命周期状态
type State byte

const (
	StateSetup      State = 0
	StateInProgress State = 1
	StatePaused     State = 2
	StateFinished   State = 3
	StateAbandoned  State = 4
)

var StateDictionary = map[State]string{
	StateSetup:      "setup",
	StateInProgress: "inprogress",
	StatePaused:     "paused",
	StateFinished:   "finished",
	StateAbandoned:  "abandoned",
}

func (s State) String() string { return StateDictionary[s] }

// Terminal reports whether no further mutation is accepted.
func (s State) Terminal() bool { return s == StateFinished || s == StateAbandoned }

// Phase is the per-turn phase cursor. It is bookkeeping only; rules text
// interpretation happens client-side.
type Phase byte

const (
	PhaseUntap   Phase = 0
	PhaseUpkeep  Phase = 1
	PhaseDraw    Phase = 2
	PhaseMain1   Phase = 3
	PhaseCombat  Phase = 4
	PhaseMain2   Phase = 5
	PhaseEnd     Phase = 6
	PhaseCleanup Phase = 7
)

var PhaseDictionary = map[Phase]string{
	PhaseUntap:   "untap",
	PhaseUpkeep:  "upkeep",
	PhaseDraw:    "draw",
	PhaseMain1:   "main1",
	PhaseCombat:  "combat",
	PhaseMain2:   "main2",
	PhaseEnd:     "end",
	PhaseCleanup: "cleanup",
}

func (p Phase) String() string { return PhaseDictionary[p] }

// ZoneKind names the per-player card containers.
type ZoneKind byte

const (
	ZoneLibrary     ZoneKind = 0
	ZoneHand        ZoneKind = 1
	ZoneBattlefield ZoneKind = 2
	ZoneGraveyard   ZoneKind = 3
	ZoneExile       ZoneKind = 4
	ZoneSideboard   ZoneKind = 5
)

var ZoneKindDictionary = map[ZoneKind]string{
	ZoneLibrary:     "library",
	ZoneHand:        "hand",
	ZoneBattlefield: "battlefield",
	ZoneGraveyard:   "graveyard",
	ZoneExile:       "exile",
	ZoneSideboard:   "sideboard",
}

var zoneKindByName = map[string]ZoneKind{
	"library":     ZoneLibrary,
	"hand":        ZoneHand,
	"battlefield": ZoneBattlefield,
	"graveyard":   ZoneGraveyard,
	"exile":       ZoneExile,
	"sideboard":   ZoneSideboard,
}

func (z ZoneKind) String() string { return ZoneKindDictionary[z] }

// ParseZoneKind resolves a wire zone name.
func ParseZoneKind(name string) (ZoneKind, bool) {
	k, ok := zoneKindByName[name]
	return k, ok
}

// ZoneRef addresses one zone: owned by Owner (player id), of Kind.
type ZoneRef struct {
	Owner uint64   `json:"owner"`
	Kind  ZoneKind `json:"kind"`
}

// allZoneKinds is the construction order of a player's zones; fold and live
// paths must agree on it.
var allZoneKinds = []ZoneKind{
	ZoneLibrary, ZoneHand, ZoneBattlefield, ZoneGraveyard, ZoneExile, ZoneSideboard,
}
