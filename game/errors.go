package game

import "errors"

var (
	ErrGameEnded     = errors.New("game already ended")
	ErrGameNotLive   = errors.New("game not in progress")
	ErrGamePaused    = errors.New("game paused")
	ErrOutOfTurn     = errors.New("action out of turn")
	ErrUnknownPlayer = errors.New("unknown player")
)

// ValidationError is a user-caused rejection: the command is refused, no event
// is emitted and no state changes.
type ValidationError struct {
	Code string
	Msg  string
}

func (e *ValidationError) Error() string { return e.Code + ": " + e.Msg }

// Validation codes surfaced in ErrorResponse envelopes.
const (
	CodeIllegalMove     = "illegal_move"
	CodeNotYourTurn     = "not_your_turn"
	CodeUnknownZone     = "unknown_zone"
	CodeUnknownTarget   = "unknown_target"
	CodeInvalidDeckList = "invalid_deck_list"
	CodeBadState        = "bad_state"
)

func errValidation(code, msg string) error { return &ValidationError{Code: code, Msg: msg} }

// InvariantViolationError signals a programming defect detected mid-apply.
// The affected game is abandoned; other games are untouched.
type InvariantViolationError struct {
	GameID uint64
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Detail
}
