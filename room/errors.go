package room

import (
	"errors"

	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/table"
)

var (
	ErrRoomFull           = errors.New("room: room is full")
	ErrCriteriaNotMet     = errors.New("room: match criteria not met")
	ErrTableLocked        = errors.New("room: table is locked")
	ErrNotSeated          = errors.New("room: player not seated")
	ErrInvalidTransition  = errors.New("room: invalid transition")
	ErrNoRound            = errors.New("room: no round in progress")
	ErrSpectatorsDisabled = errors.New("room: spectators not allowed")
	ErrRoomClosed         = errors.New("room: room closed")
)

// ErrorCode maps an error returned by a room to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomFull), errors.Is(err, table.ErrTableFull):
		return network.CodeRoomFull
	case errors.Is(err, ErrCriteriaNotMet):
		return network.CodeCriteriaNotMet
	case errors.Is(err, ErrTableLocked), errors.Is(err, table.ErrTableLocked):
		return network.CodeTableLocked
	case errors.Is(err, ErrNotSeated), errors.Is(err, table.ErrPlayerNotFound):
		return network.CodeNotSeated
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoRound), errors.Is(err, table.ErrInvalidTransition):
		return network.CodeInvalidTransition
	case errors.Is(err, ErrSpectatorsDisabled), errors.Is(err, game.ErrBadMove), errors.Is(err, game.ErrNotYourTurn):
		return network.CodeBadRequest
	default:
		return network.CodeInternal
	}
}
