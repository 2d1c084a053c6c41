package game

import (
	"encoding/json"
	"fmt"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventPlayerJoined      EventType = "playerJoined"
	EventPlayerReady       EventType = "playerReady"
	EventStateChanged      EventType = "stateChanged"
	EventTurnChanged       EventType = "turnChanged"
	EventPhaseChanged      EventType = "phaseChanged"
	EventCardMoved         EventType = "cardMoved"
	EventZoneShuffled      EventType = "zoneShuffled"
	EventCardRevealed      EventType = "cardRevealed"
	EventCardCreated       EventType = "cardCreated"
	EventCardDestroyed     EventType = "cardDestroyed"
	EventCounterChanged    EventType = "counterChanged"
	EventAttachmentChanged EventType = "attachmentChanged"
	EventLifeChanged       EventType = "lifeChanged"
	EventPlayerConceded    EventType = "playerConceded"
	EventPlayerConnection  EventType = "playerConnection"
)

// EventData is one state-change payload. Every payload must be applicable by
// fold without access to the game's RNG: anything random carries its outcome.
type EventData interface {
	Type() EventType
}

// Event is one entry of a game's ordered, gap-free event stream.
type Event struct {
	Seq  uint64
	Data EventData
}

type PlayerJoined struct {
	PlayerID uint64   `json:"playerId"`
	Name     string   `json:"name"`
	Deck     DeckList `json:"deck"`
}

type PlayerReady struct {
	PlayerID uint64 `json:"playerId"`
}

type StateChanged struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type TurnChanged struct {
	Turn         int    `json:"turn"`
	ActivePlayer uint64 `json:"activePlayer"`
}

type PhaseChanged struct {
	Phase Phase `json:"phase"`
}

type CardMoved struct {
	PlayerID  uint64  `json:"playerId"`
	Card      uint64  `json:"card"`
	CardID    string  `json:"cardId,omitempty"`
	From      ZoneRef `json:"from"`
	FromIndex int     `json:"fromIndex"`
	To        ZoneRef `json:"to"`
	ToIndex   int     `json:"toIndex"`
	// Facedown is the card's orientation after the move.
	Facedown bool `json:"facedown,omitempty"`
}

type ZoneShuffled struct {
	PlayerID uint64   `json:"playerId"`
	Zone     ZoneRef  `json:"zone"`
	Order    []uint64 `json:"order"`
}

type CardRevealed struct {
	PlayerID uint64  `json:"playerId"`
	Zone     ZoneRef `json:"zone"`
	Index    int     `json:"index"`
	Card     uint64  `json:"card"`
	CardID   string  `json:"cardId"`
}

type CardCreated struct {
	PlayerID uint64  `json:"playerId"`
	Card     uint64  `json:"card"`
	CardID   string  `json:"cardId"`
	Zone     ZoneRef `json:"zone"`
	Index    int     `json:"index"`
}

type CardDestroyed struct {
	PlayerID uint64  `json:"playerId"`
	Card     uint64  `json:"card"`
	Zone     ZoneRef `json:"zone"`
	Index    int     `json:"index"`
}

type CounterChanged struct {
	PlayerID uint64 `json:"playerId"`
	Card     uint64 `json:"card"`
	Counter  string `json:"counter"`
	Delta    int    `json:"delta"`
	Total    int    `json:"total"`
}

type AttachmentChanged struct {
	PlayerID uint64 `json:"playerId"`
	Card     uint64 `json:"card"`
	Target   uint64 `json:"target"`
	Attached bool   `json:"attached"`
}

type LifeChanged struct {
	PlayerID uint64 `json:"playerId"`
	Delta    int    `json:"delta"`
	Total    int    `json:"total"`
}

type PlayerConceded struct {
	PlayerID uint64 `json:"playerId"`
}

type PlayerConnection struct {
	PlayerID  uint64 `json:"playerId"`
	Connected bool   `json:"connected"`
}

func (PlayerJoined) Type() EventType      { return EventPlayerJoined }
func (PlayerReady) Type() EventType       { return EventPlayerReady }
func (StateChanged) Type() EventType      { return EventStateChanged }
func (TurnChanged) Type() EventType       { return EventTurnChanged }
func (PhaseChanged) Type() EventType      { return EventPhaseChanged }
func (CardMoved) Type() EventType         { return EventCardMoved }
func (ZoneShuffled) Type() EventType      { return EventZoneShuffled }
func (CardRevealed) Type() EventType      { return EventCardRevealed }
func (CardCreated) Type() EventType       { return EventCardCreated }
func (CardDestroyed) Type() EventType     { return EventCardDestroyed }
func (CounterChanged) Type() EventType    { return EventCounterChanged }
func (AttachmentChanged) Type() EventType { return EventAttachmentChanged }
func (LifeChanged) Type() EventType       { return EventLifeChanged }
func (PlayerConceded) Type() EventType    { return EventPlayerConceded }
func (PlayerConnection) Type() EventType  { return EventPlayerConnection }

var eventDataFactory = map[EventType]func() EventData{
	EventPlayerJoined:      func() EventData { return &PlayerJoined{} },
	EventPlayerReady:       func() EventData { return &PlayerReady{} },
	EventStateChanged:      func() EventData { return &StateChanged{} },
	EventTurnChanged:       func() EventData { return &TurnChanged{} },
	EventPhaseChanged:      func() EventData { return &PhaseChanged{} },
	EventCardMoved:         func() EventData { return &CardMoved{} },
	EventZoneShuffled:      func() EventData { return &ZoneShuffled{} },
	EventCardRevealed:      func() EventData { return &CardRevealed{} },
	EventCardCreated:       func() EventData { return &CardCreated{} },
	EventCardDestroyed:     func() EventData { return &CardDestroyed{} },
	EventCounterChanged:    func() EventData { return &CounterChanged{} },
	EventAttachmentChanged: func() EventData { return &AttachmentChanged{} },
	EventLifeChanged:       func() EventData { return &LifeChanged{} },
	EventPlayerConceded:    func() EventData { return &PlayerConceded{} },
	EventPlayerConnection:  func() EventData { return &PlayerConnection{} },
}

// NewEventData returns a zero payload for the given type, for decode paths.
func NewEventData(t EventType) (EventData, bool) {
	factory, ok := eventDataFactory[t]
	if !ok {
		return nil, false
	}
	return factory(), true
}

type eventWire struct {
	Seq  uint64          `json:"seq"`
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventWire{Seq: e.Seq, Type: e.Data.Type(), Data: data})
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire eventWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	data, ok := NewEventData(wire.Type)
	if !ok {
		return fmt.Errorf("unknown event type %q", wire.Type)
	}
	if err := json.Unmarshal(wire.Data, data); err != nil {
		return err
	}
	e.Seq = wire.Seq
	e.Data = data
	return nil
}
