package codec

import "encoding/json"

// ProtocolVersion is negotiated during the handshake; mismatch is
// connection-fatal before any session exists.
const ProtocolVersion = 1

// Scope routes a command to its handler family.
type Scope string

const (
	ScopeSession    Scope = "session"
	ScopeRoom       Scope = "room"
	ScopeGame       Scope = "game"
	ScopeModeration Scope = "moderation"
	ScopeAdmin      Scope = "admin"
)

var knownScopes = map[Scope]bool{
	ScopeSession:    true,
	ScopeRoom:       true,
	ScopeGame:       true,
	ScopeModeration: true,
	ScopeAdmin:      true,
}

// CommandEnvelope is one client request. Every accepted envelope resolves to
// exactly one ResponseEnvelope carrying the same correlation id.
type CommandEnvelope struct {
	CorrelationID uint64          `json:"correlationId"`
	Scope         Scope           `json:"scope"`
	Type          string          `json:"type"`
	TargetID      uint64          `json:"targetId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ResponseEnvelope is the terminal reply to a command.
type ResponseEnvelope struct {
	CorrelationID uint64          `json:"correlationId"`
	OK            bool            `json:"ok"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// EventEnvelope is an async state-change notification, ordered per origin by
// a gap-free sequence number. Events are never correlation-tagged.
type EventEnvelope struct {
	Origin     string          `json:"origin"` // "room" | "game"
	OriginID   uint64          `json:"originId"`
	Sequence   uint64          `json:"sequence"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ServerTsMs int64           `json:"serverTsMs"`
}

const (
	OriginRoom   = "room"
	OriginGame   = "game"
	OriginServer = "server"
)

// HelloRequest opens every connection: version negotiation plus either
// credentials or a resumable session token.
type HelloRequest struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty"`
	Register        bool   `json:"register,omitempty"`
}

type HelloResponse struct {
	OK            bool   `json:"ok"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	AccountID     uint64 `json:"accountId,omitempty"`
	Username      string `json:"username,omitempty"`
	SessionToken  string `json:"sessionToken,omitempty"`
	ServerVersion int    `json:"serverVersion"`
}

// Error codes shared across the dispatcher and gateway. Validation subcodes
// come through unchanged from the game core.
const (
	CodeMalformedCommand   = "malformed_command"
	CodeUnknownCommand     = "unknown_command"
	CodeNotAuthorized      = "not_authorized"
	CodeNotInRoom          = "not_in_room"
	CodeNotInGame          = "not_in_game"
	CodeUnknownRoom        = "unknown_room"
	CodeUnknownGame        = "unknown_game"
	CodeResourceExhaustion = "resource_exhaustion"
	CodeVersionMismatch    = "version_mismatch"
	CodeAuthFailed         = "auth_failed"
	CodeHandshakeTimeout   = "handshake_timeout"
	CodeInternal           = "internal_error"
)
