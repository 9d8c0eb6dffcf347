package game

import "errors"

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindState      Kind = "state"
	KindResource   Kind = "resource"
	KindInternal   Kind = "internal"
)

// Error is a classified game error. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidPlayer   = newError(KindValidation, "invalid_player", "invalid player slot")
	ErrInvalidStock    = newError(KindValidation, "invalid_stock", "invalid stock")
	ErrInvalidAmount   = newError(KindValidation, "invalid_amount", "amount must be > 0")
	ErrInvalidIdentity = newError(KindValidation, "invalid_identity", "identity is required")
	ErrInvalidSettings = newError(KindValidation, "invalid_settings", "invalid game settings")

	ErrGameNotFound = newError(KindNotFound, "game_not_found", "game not found")

	ErrGameFull           = newError(KindState, "game_full", "game full")
	ErrNotEnoughPlayers   = newError(KindState, "not_enough_players", "need at least 2 players")
	ErrNotInGame          = newError(KindState, "not_in_game", "player not in game")
	ErrPlayerDisconnected = newError(KindState, "player_disconnected", "player is disconnected")
	ErrWrongPhase         = newError(KindState, "wrong_phase", "action not allowed in current phase")
	ErrNotYourTurn        = newError(KindState, "not_your_turn", "not your turn")
	ErrGameOver           = newError(KindState, "game_over", "game is over")
	ErrDuplicateAction    = newError(KindState, "duplicate_action", "duplicate action")

	ErrInsufficientCash   = newError(KindResource, "insufficient_cash", "not enough cash")
	ErrInsufficientShares = newError(KindResource, "insufficient_shares", "not enough shares")

	ErrInternal = newError(KindInternal, "internal", "internal game error")
)

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func internalError(cause error) error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, Cause: cause}
}
