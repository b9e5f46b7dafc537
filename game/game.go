// Package game defines the round collaborator a table drives. Rule engines
// live behind Collaborator; the table never inspects moves.
package game

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/gamehall/models"
)

var (
	ErrNoRound     = errors.New("game: no round in progress")
	ErrNotYourTurn = errors.New("game: not your turn")
	ErrBadMove     = errors.New("game: malformed move")
)

// RoundContext is handed to InitRound when a table enters PLAYING.
type RoundContext struct {
	TableID     string
	TierID      string
	GameType    string
	RoundNumber int
	Stake       int64
	Players     []models.RoundPlayer
}

// MoveOutcome tells the table what to broadcast and whether the round is over.
type MoveOutcome struct {
	Broadcast any
	Result    *models.RoundResult
}

type Collaborator interface {
	InitRound(rc RoundContext) (payload any, err error)
	HandleMove(playerID string, move json.RawMessage) (MoveOutcome, error)
}

// DisconnectAdjudicator is implemented by collaborators that decide the
// result of a round when a player drops out of it.
type DisconnectAdjudicator interface {
	AdjudicateDisconnect(playerID string) *models.RoundResult
}

// Factory creates a collaborator for one table.
type Factory func() Collaborator
