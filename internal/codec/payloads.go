package codec

import "cardroom/game"

// Command type names, keyed per scope by the dispatcher route table.
const (
	// session scope
	CmdPing         = "ping"
	CmdListRooms    = "listRooms"
	CmdReplayExport = "replayExport"

	// room scope (targetId = room id)
	CmdJoinRoom   = "join"
	CmdLeaveRoom  = "leave"
	CmdSay        = "say"
	CmdListGames  = "listGames"
	CmdCreateGame = "createGame"

	// game scope (targetId = game id)
	CmdJoinGame     = "join"
	CmdReady        = "ready"
	CmdMoveCard     = "moveCard"
	CmdDrawCards    = "drawCards"
	CmdShuffle      = "shuffle"
	CmdRevealCard   = "revealCard"
	CmdCreateToken  = "createToken"
	CmdDestroyCard  = "destroyCard"
	CmdCounter      = "modifyCounter"
	CmdAttach       = "attach"
	CmdSetLife      = "setLife"
	CmdAdvancePhase = "advancePhase"
	CmdAdvanceTurn  = "advanceTurn"
	CmdConcede      = "concede"
	CmdResync       = "resync"

	// moderation scope
	CmdKick = "kick"
	CmdWarn = "warn"

	// admin scope
	CmdCreateRoom  = "createRoom"
	CmdDestroyRoom = "destroyRoom"
	CmdPauseGame   = "pauseGame"
	CmdResumeGame  = "resumeGame"
	CmdAbandonGame = "abandonGame"
)

type SayRequest struct {
	Message string `json:"message"`
}

type CreateGameRequest struct {
	Description string               `json:"description,omitempty"`
	MaxPlayers  int                  `json:"maxPlayers,omitempty"`
	DeckList    *game.DeckList       `json:"deckList,omitempty"`
	Config      *CreateGameOverrides `json:"config,omitempty"`
}

// CreateGameOverrides tweaks the default game config; zero fields keep the
// server default.
type CreateGameOverrides struct {
	StartingLife     int   `json:"startingLife,omitempty"`
	StartingHandSize int   `json:"startingHandSize,omitempty"`
	MinDeckSize      int   `json:"minDeckSize,omitempty"`
	Seed             int64 `json:"seed,omitempty"`
}

type JoinGameRequest struct {
	DeckList game.DeckList `json:"deckList"`
}

type MoveCardRequest struct {
	From      ZoneRefWire `json:"from"`
	FromIndex int         `json:"fromIndex"`
	To        ZoneRefWire `json:"to"`
	ToIndex   int         `json:"toIndex"`
	Facedown  bool        `json:"facedown"`
}

// ZoneRefWire names a zone on the wire; owner 0 means the acting player.
type ZoneRefWire struct {
	Owner uint64 `json:"owner,omitempty"`
	Kind  string `json:"kind"`
}

type DrawCardsRequest struct {
	Count int `json:"count"`
}

type ShuffleRequest struct {
	Zone ZoneRefWire `json:"zone"`
}

type RevealCardRequest struct {
	Zone  ZoneRefWire `json:"zone"`
	Index int         `json:"index"`
}

type CreateTokenRequest struct {
	CardID string      `json:"cardId"`
	Zone   ZoneRefWire `json:"zone"`
}

type DestroyCardRequest struct {
	Card uint64 `json:"card"`
}

type ModifyCounterRequest struct {
	Card    uint64 `json:"card"`
	Counter string `json:"counter"`
	Delta   int    `json:"delta"`
}

type AttachRequest struct {
	Card   uint64 `json:"card"`
	Target uint64 `json:"target"` // 0 detaches
}

type SetLifeRequest struct {
	Delta int `json:"delta"`
}

type ResyncRequest struct {
	FromSequence *uint64 `json:"fromSequence,omitempty"`
}

type ReplayExportRequest struct {
	GameID uint64 `json:"gameId"`
}

type KickRequest struct {
	AccountID uint64 `json:"accountId"`
	Reason    string `json:"reason,omitempty"`
}

type WarnRequest struct {
	AccountID uint64 `json:"accountId"`
	Reason    string `json:"reason"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PauseGameRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AbandonGameRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ServerNotice is a moderation or operational message pushed outside any
// room or game stream.
type ServerNotice struct {
	Level   string `json:"level"` // "warn" | "info"
	Message string `json:"message"`
}

// Result payloads.

type RoomInfo struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Members     int    `json:"members"`
	Games       int    `json:"games"`
}

type GameInfo struct {
	ID          uint64 `json:"id"`
	RoomID      uint64 `json:"roomId"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"maxPlayers"`
}

type ListRoomsResult struct {
	Rooms []RoomInfo `json:"rooms"`
}

type ListGamesResult struct {
	Games []GameInfo `json:"games"`
}

type CreateGameResult struct {
	GameID uint64 `json:"gameId"`
}

type ResyncResult struct {
	GameID   uint64          `json:"gameId"`
	Snapshot *game.Snapshot  `json:"snapshot,omitempty"`
	Events   []EventEnvelope `json:"events,omitempty"`
}

type ReplayExportResult struct {
	GameID uint64          `json:"gameId"`
	Events []EventEnvelope `json:"events"`
}
