package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"cardroom/game"
	"cardroom/internal/auth"
	"cardroom/internal/codec"
	"cardroom/internal/lobby"
	"cardroom/internal/match"
	"cardroom/internal/replay"
)

const dispatchTimeout = 5 * time.Second

type routeKey struct {
	scope codec.Scope
	typ   string
}

type handlerFunc func(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope

// buildRoutes is the entire command surface: one flat table, no reflection,
// no handler hierarchies.
func buildRoutes() map[routeKey]handlerFunc {
	return map[routeKey]handlerFunc{
		{codec.ScopeSession, codec.CmdPing}:         handlePing,
		{codec.ScopeSession, codec.CmdListRooms}:    handleListRooms,
		{codec.ScopeSession, codec.CmdReplayExport}: handleReplayExport,

		{codec.ScopeRoom, codec.CmdJoinRoom}:   handleJoinRoom,
		{codec.ScopeRoom, codec.CmdLeaveRoom}:  handleLeaveRoom,
		{codec.ScopeRoom, codec.CmdSay}:        handleSay,
		{codec.ScopeRoom, codec.CmdListGames}:  handleListGames,
		{codec.ScopeRoom, codec.CmdCreateGame}: handleCreateGame,

		{codec.ScopeGame, codec.CmdJoinGame}:     handleJoinGame,
		{codec.ScopeGame, codec.CmdReady}:        handleReady,
		{codec.ScopeGame, codec.CmdMoveCard}:     handleMoveCard,
		{codec.ScopeGame, codec.CmdDrawCards}:    handleDrawCards,
		{codec.ScopeGame, codec.CmdShuffle}:      handleShuffle,
		{codec.ScopeGame, codec.CmdRevealCard}:   handleRevealCard,
		{codec.ScopeGame, codec.CmdCreateToken}:  handleCreateToken,
		{codec.ScopeGame, codec.CmdDestroyCard}:  handleDestroyCard,
		{codec.ScopeGame, codec.CmdCounter}:      handleModifyCounter,
		{codec.ScopeGame, codec.CmdAttach}:       handleAttach,
		{codec.ScopeGame, codec.CmdSetLife}:      handleSetLife,
		{codec.ScopeGame, codec.CmdAdvancePhase}: handleAdvancePhase,
		{codec.ScopeGame, codec.CmdAdvanceTurn}:  handleAdvanceTurn,
		{codec.ScopeGame, codec.CmdConcede}:      handleConcede,
		{codec.ScopeGame, codec.CmdResync}:       handleResync,

		{codec.ScopeModeration, codec.CmdKick}: handleKick,
		{codec.ScopeModeration, codec.CmdWarn}: handleWarn,

		{codec.ScopeAdmin, codec.CmdCreateRoom}:  handleCreateRoom,
		{codec.ScopeAdmin, codec.CmdDestroyRoom}: handleDestroyRoom,
		{codec.ScopeAdmin, codec.CmdPauseGame}:   handlePauseGame,
		{codec.ScopeAdmin, codec.CmdResumeGame}:  handleResumeGame,
		{codec.ScopeAdmin, codec.CmdAbandonGame}: handleAbandonGame,
	}
}

// dispatch maps one accepted command to its handler. Scope-level privilege
// is checked here so handlers never have to.
func (g *Gateway) dispatch(s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	switch cmd.Scope {
	case codec.ScopeModeration:
		if s.Account.Privilege < auth.PrivModerator {
			return codec.ErrResponse(cmd.CorrelationID, codec.CodeNotAuthorized, "moderator privilege required")
		}
	case codec.ScopeAdmin:
		if s.Account.Privilege < auth.PrivAdmin {
			return codec.ErrResponse(cmd.CorrelationID, codec.CodeNotAuthorized, "admin privilege required")
		}
	}

	handler, ok := g.routes[routeKey{scope: cmd.Scope, typ: cmd.Type}]
	if !ok {
		return codec.ErrResponse(cmd.CorrelationID, codec.CodeUnknownCommand,
			"no handler for "+string(cmd.Scope)+"/"+cmd.Type)
	}
	return handler(g, s, cmd)
}

// errResp translates failures into wire error codes. Validation subcodes
// pass through unchanged.
func errResp(corrID uint64, err error) codec.ResponseEnvelope {
	var verr *game.ValidationError
	var iv *game.InvariantViolationError
	switch {
	case errors.As(err, &verr):
		return codec.ErrResponse(corrID, verr.Code, verr.Msg)
	case errors.Is(err, game.ErrOutOfTurn):
		return codec.ErrResponse(corrID, game.CodeNotYourTurn, err.Error())
	case errors.Is(err, game.ErrUnknownPlayer):
		return codec.ErrResponse(corrID, codec.CodeNotInGame, err.Error())
	case errors.Is(err, game.ErrGameEnded), errors.Is(err, game.ErrGameNotLive), errors.Is(err, game.ErrGamePaused):
		return codec.ErrResponse(corrID, game.CodeBadState, err.Error())
	case errors.Is(err, lobby.ErrUnknownRoom):
		return codec.ErrResponse(corrID, codec.CodeUnknownRoom, err.Error())
	case errors.Is(err, lobby.ErrNotInRoom), errors.Is(err, lobby.ErrRoomNotEmpty):
		return codec.ErrResponse(corrID, codec.CodeNotInRoom, err.Error())
	case errors.Is(err, lobby.ErrUnknownGame), errors.Is(err, match.ErrUnknownGame),
		errors.Is(err, match.ErrMatchClosed), errors.Is(err, replay.ErrNotFound):
		return codec.ErrResponse(corrID, codec.CodeUnknownGame, err.Error())
	case errors.As(err, &iv):
		log.Printf("[Gateway] invariant violation surfaced: %v", err)
		return codec.ErrResponse(corrID, codec.CodeInternal, "internal defect, game abandoned")
	default:
		return codec.ErrResponse(corrID, codec.CodeInternal, err.Error())
	}
}

func decode[T any](cmd codec.CommandEnvelope, out *T) error {
	if len(cmd.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(cmd.Payload, out)
}

func malformed(corrID uint64, err error) codec.ResponseEnvelope {
	return codec.ErrResponse(corrID, codec.CodeMalformedCommand, err.Error())
}

// resolveZone turns a wire zone name into a core reference; owner 0 means
// the acting player.
func resolveZone(s *Session, wire codec.ZoneRefWire) (game.ZoneRef, error) {
	kind, ok := game.ParseZoneKind(wire.Kind)
	if !ok {
		return game.ZoneRef{}, &game.ValidationError{Code: game.CodeUnknownZone, Msg: "unknown zone kind " + wire.Kind}
	}
	owner := wire.Owner
	if owner == 0 {
		owner = s.Account.ID
	}
	return game.ZoneRef{Owner: owner, Kind: kind}, nil
}

func (g *Gateway) liveMatch(gameID uint64) (*match.Match, error) {
	m, ok := g.lobby.Match(gameID)
	if !ok {
		return nil, lobby.ErrUnknownGame
	}
	return m, nil
}

// withMatch wraps the common resolve-run-respond shape of game commands.
func withMatch(g *Gateway, s *Session, cmd codec.CommandEnvelope, run func(m *match.Match) error) codec.ResponseEnvelope {
	m, err := g.liveMatch(cmd.TargetID)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	if err := run(m); err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, nil)
}

// --- session scope ---

func handlePing(_ *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleListRooms(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return codec.OKResponse(cmd.CorrelationID, codec.ListRoomsResult{Rooms: g.lobby.ListRooms()})
}

func handleReplayExport(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.ReplayExportRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	gameID := req.GameID
	if gameID == 0 {
		gameID = cmd.TargetID
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	envelopes, err := g.recorder.ReadLog(ctx, gameID, 0)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, codec.ReplayExportResult{GameID: gameID, Events: envelopes})
}

// --- room scope ---

func handleJoinRoom(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	if err := g.lobby.JoinRoom(cmd.TargetID, s.Account.ID, s.Account.Username); err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	s.bindRoom(cmd.TargetID)
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleLeaveRoom(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	if err := g.lobby.LeaveRoom(cmd.TargetID, s.Account.ID); err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	s.unbindRoom(cmd.TargetID)
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleSay(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.SayRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return malformed(cmd.CorrelationID, errors.New("empty chat message"))
	}
	if err := g.lobby.Say(cmd.TargetID, s.Account.ID, req.Message); err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleListGames(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	infos, err := g.lobby.ListGames(cmd.TargetID)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, codec.ListGamesResult{Games: infos})
}

func handleCreateGame(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.CreateGameRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	var overrides codec.CreateGameOverrides
	if req.Config != nil {
		overrides = *req.Config
	}

	m, err := g.lobby.CreateGame(cmd.TargetID, s.Account.ID, req.Description, overrides, req.MaxPlayers)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}

	// A deck in the create request joins the creator immediately. The feed is
	// registered with the join itself, so the creator sees their own entry.
	if req.DeckList != nil {
		sub, err := m.JoinSubscribed(s.Account.ID, s.Account.Username, *req.DeckList)
		if err != nil {
			return errResp(cmd.CorrelationID, err)
		}
		s.bindGame(m.ID, sub)
	}
	return codec.OKResponse(cmd.CorrelationID, codec.CreateGameResult{GameID: m.ID})
}

// --- game scope ---

func handleJoinGame(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.JoinGameRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	m, err := g.liveMatch(cmd.TargetID)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	sub, err := m.JoinSubscribed(s.Account.ID, s.Account.Username, req.DeckList)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	s.bindGame(m.ID, sub)
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleReady(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.Ready(s.Account.ID) })
}

func handleMoveCard(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.MoveCardRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		from, err := resolveZone(s, req.From)
		if err != nil {
			return err
		}
		to, err := resolveZone(s, req.To)
		if err != nil {
			return err
		}
		return m.MoveCard(s.Account.ID, from, req.FromIndex, to, req.ToIndex, req.Facedown)
	})
}

func handleDrawCards(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.DrawCardsRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		return m.DrawCards(s.Account.ID, req.Count)
	})
}

func handleShuffle(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.ShuffleRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		ref, err := resolveZone(s, req.Zone)
		if err != nil {
			return err
		}
		return m.Shuffle(s.Account.ID, ref)
	})
}

func handleRevealCard(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.RevealCardRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		ref, err := resolveZone(s, req.Zone)
		if err != nil {
			return err
		}
		return m.RevealCard(s.Account.ID, ref, req.Index)
	})
}

func handleCreateToken(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.CreateTokenRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		ref, err := resolveZone(s, req.Zone)
		if err != nil {
			return err
		}
		return m.CreateToken(s.Account.ID, req.CardID, ref)
	})
}

func handleDestroyCard(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.DestroyCardRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		return m.DestroyCard(s.Account.ID, req.Card)
	})
}

func handleModifyCounter(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.ModifyCounterRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		return m.ModifyCounter(s.Account.ID, req.Card, req.Counter, req.Delta)
	})
}

func handleAttach(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.AttachRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		return m.Attach(s.Account.ID, req.Card, req.Target, req.Target != 0)
	})
}

func handleSetLife(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.SetLifeRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error {
		return m.SetLife(s.Account.ID, req.Delta)
	})
}

func handleAdvancePhase(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.AdvancePhase(s.Account.ID) })
}

func handleAdvanceTurn(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.AdvanceTurn(s.Account.ID) })
}

func handleConcede(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.Concede(s.Account.ID) })
}

// handleResync answers for both resident and reaped games; the caller cannot
// tell the difference. For live matches it also re-establishes the event
// feed and clears any connection-loss grace for participants.
func handleResync(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.ResyncRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if m, err := g.liveMatch(cmd.TargetID); err == nil {
		result, sub, err := m.ResyncSubscribe(ctx, s.Account.ID, req.FromSequence)
		if err != nil {
			return errResp(cmd.CorrelationID, err)
		}
		s.bindGame(m.ID, sub)
		if m.HasPlayer(s.Account.ID) {
			m.ConnResumed(s.Account.ID)
		}
		return codec.OKResponse(cmd.CorrelationID, result)
	}

	result, err := match.ColdResync(ctx, g.recorder, g.snapshots, cmd.TargetID, req.FromSequence)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, result)
}

// --- moderation scope ---

func handleKick(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.KickRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	if !g.kickAccount(req.AccountID, req.Reason) {
		return codec.ErrResponse(cmd.CorrelationID, game.CodeUnknownTarget, "account not connected")
	}
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handleWarn(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.WarnRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	if !g.notifyAccount(req.AccountID, "warn", req.Reason) {
		return codec.ErrResponse(cmd.CorrelationID, game.CodeUnknownTarget, "account not connected")
	}
	return codec.OKResponse(cmd.CorrelationID, nil)
}

// --- admin scope ---

func handleCreateRoom(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.CreateRoomRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return malformed(cmd.CorrelationID, errors.New("empty room name"))
	}
	room, err := g.lobby.CreateRoom(req.Name, req.Description)
	if err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, codec.RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
	})
}

func handleDestroyRoom(g *Gateway, _ *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	if err := g.lobby.DestroyRoom(cmd.TargetID); err != nil {
		return errResp(cmd.CorrelationID, err)
	}
	return codec.OKResponse(cmd.CorrelationID, nil)
}

func handlePauseGame(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.PauseGameRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.Pause(req.Reason) })
}

func handleResumeGame(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.Resume() })
}

func handleAbandonGame(g *Gateway, s *Session, cmd codec.CommandEnvelope) codec.ResponseEnvelope {
	var req codec.AbandonGameRequest
	if err := decode(cmd, &req); err != nil {
		return malformed(cmd.CorrelationID, err)
	}
	return withMatch(g, s, cmd, func(m *match.Match) error { return m.Abandon(req.Reason) })
}
