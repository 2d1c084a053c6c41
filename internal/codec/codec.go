package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"cardroom/game"
)

// MaxCommandBytes bounds a single decoded command; oversized input is
// rejected before JSON parsing.
const MaxCommandBytes = 256 * 1024

// DecodeCommand parses one client frame. Any failure here maps to
// malformed_command: the sender still gets a response if a correlation id
// could be recovered, otherwise the connection is closed.
func DecodeCommand(raw []byte) (CommandEnvelope, error) {
	var cmd CommandEnvelope
	if len(raw) > MaxCommandBytes {
		return cmd, fmt.Errorf("command exceeds %d bytes", MaxCommandBytes)
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("decode command: %w", err)
	}
	if cmd.CorrelationID == 0 {
		return cmd, fmt.Errorf("missing correlationId")
	}
	if !knownScopes[cmd.Scope] {
		return cmd, fmt.Errorf("unknown scope %q", cmd.Scope)
	}
	if cmd.Type == "" {
		return cmd, fmt.Errorf("missing type")
	}
	return cmd, nil
}

func EncodeResponse(resp ResponseEnvelope) ([]byte, error) {
	return json.Marshal(resp)
}

func EncodeEvent(ev EventEnvelope) ([]byte, error) {
	return json.Marshal(ev)
}

// OKResponse builds a success reply; result may be nil.
func OKResponse(corrID uint64, result any) ResponseEnvelope {
	resp := ResponseEnvelope{CorrelationID: corrID, OK: true}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return ErrResponse(corrID, CodeInternal, "encode result")
		}
		resp.Result = raw
	}
	return resp
}

func ErrResponse(corrID uint64, code, msg string) ResponseEnvelope {
	return ResponseEnvelope{CorrelationID: corrID, OK: false, ErrorCode: code, ErrorMessage: msg}
}

// GameEvent wraps a core game event for the wire, stamping it against its
// originating game.
func GameEvent(gameID uint64, ev game.Event) (EventEnvelope, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("encode game event %d/%d: %w", gameID, ev.Seq, err)
	}
	return EventEnvelope{
		Origin:     OriginGame,
		OriginID:   gameID,
		Sequence:   ev.Seq,
		Type:       string(ev.Data.Type()),
		Payload:    payload,
		ServerTsMs: time.Now().UnixMilli(),
	}, nil
}

// DecodeGameEvent is the inverse of GameEvent, used when folding a recorded
// log back into core events.
func DecodeGameEvent(env EventEnvelope) (game.Event, error) {
	data, ok := game.NewEventData(game.EventType(env.Type))
	if !ok {
		return game.Event{}, fmt.Errorf("unknown game event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, data); err != nil {
		return game.Event{}, fmt.Errorf("decode game event %d/%d: %w", env.OriginID, env.Sequence, err)
	}
	return game.Event{Seq: env.Sequence, Data: data}, nil
}

// RoomEvent wraps a lobby-level notification (chat, membership, listings).
func RoomEvent(roomID, seq uint64, typ string, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("encode room event %d/%d: %w", roomID, seq, err)
	}
	return EventEnvelope{
		Origin:     OriginRoom,
		OriginID:   roomID,
		Sequence:   seq,
		Type:       typ,
		Payload:    raw,
		ServerTsMs: time.Now().UnixMilli(),
	}, nil
}
