// Package auctionerrors defines the failure taxonomy shared by the auction
// engine, the participant registry and the transports that expose them.
package auctionerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status code.
type Kind int

const (
	// KindInternal is an unexpected failure, including ledger inconsistencies.
	KindInternal Kind = iota
	// KindValidation is malformed or missing input.
	KindValidation
	// KindNotFound means a room, team or player does not exist.
	KindNotFound
	// KindConflict is a duplicate join or a self-outbid.
	KindConflict
	// KindBusinessRule is a rejected action that was well formed.
	KindBusinessRule
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule"
	default:
		return "internal"
	}
}

// Error is a classified failure. Reason is a stable machine-readable code;
// Message is shown to users.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on Reason so a sentinel compares equal to a copy carrying a
// more specific message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// WithMessage returns a copy of e with a different user-facing message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

// Sentinel errors returned by auction and registry operations.
var (
	ErrValidation = newError(KindValidation, "validation", "invalid request")

	ErrRoomNotFound    = newError(KindNotFound, "room_not_found", "Invalid room code")
	ErrTeamNotFound    = newError(KindNotFound, "team_not_found", "Team not found in room")
	ErrPlayerNotFound  = newError(KindNotFound, "player_not_found", "Player not found")
	ErrEmptyCatalog    = newError(KindNotFound, "empty_catalog", "No players found in database")
	ErrNoCurrentPlayer = newError(KindValidation, "no_current_player", "No current player to skip")

	ErrTeamTaken   = newError(KindConflict, "team_taken", "Team already taken")
	ErrSelfOutbid  = newError(KindConflict, "self_outbid", "You already have highest bid")
	ErrCodeInUse   = newError(KindConflict, "code_in_use", "Room code already in use")
	ErrConcurrency = newError(KindConflict, "concurrent_update", "Room was updated concurrently, retry")

	ErrPaused            = newError(KindBusinessRule, "paused", "Auction is paused")
	ErrNotLive           = newError(KindBusinessRule, "not_live", "Auction is not live")
	ErrResolutionPending = newError(KindBusinessRule, "resolution_pending", "Bidding has closed for this player")
	ErrCapacityExceeded  = newError(KindBusinessRule, "capacity_exceeded", "Squad Limit (25) Reached!")
	ErrQuotaExceeded     = newError(KindBusinessRule, "quota_exceeded", "Overseas Player Limit (8) Reached!")
	ErrInsufficientFunds = newError(KindBusinessRule, "insufficient_funds", "Insufficient budget")
	ErrBidTooLow         = newError(KindBusinessRule, "bid_too_low", "Bid must exceed the current bid")
	ErrRoomFull          = newError(KindBusinessRule, "room_full", "Room is full")
	ErrWrongPhase        = newError(KindBusinessRule, "wrong_phase", "Action not allowed in the current phase")
	ErrNotQualified      = newError(KindBusinessRule, "not_qualified", "You are not qualified to participate")
	ErrLineupSize        = newError(KindValidation, "lineup_size", "You MUST select exactly 11 players")
	ErrInvalidPlayers    = newError(KindValidation, "invalid_players", "Invalid player IDs provided")
	ErrNotCompleted      = newError(KindValidation, "not_completed", "Winner not yet declared")

	ErrInconsistent = newError(KindInternal, "inconsistent", "ledger and participant state disagree")
)

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason of the first *Error in err's chain, or
// "internal" when there is none.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal"
}

// Validation returns a validation error with the given message.
func Validation(format string, args ...any) *Error {
	return ErrValidation.WithMessage(format, args...)
}

// MessageOf returns the user-facing message of the first *Error in err's
// chain, dropping any wrapping context.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
