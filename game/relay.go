package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wfunc/gamehall/models"
)

// Relay forwards moves between seated players in seat order. A move of type
// "resign" forfeits, "finish" ends the round with the given winner (empty
// for a draw).
type Relay struct {
	rc      RoundContext
	roundID string
	started time.Time
	turn    int
	active  bool
	now     func() time.Time
}

func NewRelay() Collaborator {
	return &Relay{now: time.Now}
}

type relayMove struct {
	Type   string          `json:"type"`
	Winner string          `json:"winner,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// RoundStart is the game_start payload.
type RoundStart struct {
	RoundID     string               `json:"roundId"`
	RoundNumber int                  `json:"roundNumber"`
	Players     []models.RoundPlayer `json:"players"`
	Turn        string               `json:"turn"`
}

// MoveRelayed is the game_move payload.
type MoveRelayed struct {
	PlayerID string          `json:"playerId"`
	Type     string          `json:"type"`
	Body     json.RawMessage `json:"body,omitempty"`
	Next     string          `json:"next"`
}

func (r *Relay) InitRound(rc RoundContext) (any, error) {
	if len(rc.Players) == 0 {
		return nil, fmt.Errorf("game: round with no players")
	}
	r.rc = rc
	r.roundID = ulid.Make().String()
	r.started = r.now()
	// 轮流先手
	r.turn = (rc.RoundNumber - 1 + len(rc.Players)) % len(rc.Players)
	r.active = true
	return RoundStart{
		RoundID:     r.roundID,
		RoundNumber: rc.RoundNumber,
		Players:     rc.Players,
		Turn:        r.rc.Players[r.turn].PlayerID,
	}, nil
}

func (r *Relay) HandleMove(playerID string, raw json.RawMessage) (MoveOutcome, error) {
	if !r.active {
		return MoveOutcome{}, ErrNoRound
	}
	var mv relayMove
	if err := json.Unmarshal(raw, &mv); err != nil || mv.Type == "" {
		return MoveOutcome{}, ErrBadMove
	}
	if r.seatOf(playerID) < 0 {
		return MoveOutcome{}, fmt.Errorf("%w: %s is not seated", ErrBadMove, playerID)
	}

	switch mv.Type {
	case "resign":
		return MoveOutcome{Result: r.forfeit(playerID)}, nil
	case "finish":
		if mv.Winner != "" && r.seatOf(mv.Winner) < 0 {
			return MoveOutcome{}, fmt.Errorf("%w: unknown winner %s", ErrBadMove, mv.Winner)
		}
		res := r.result()
		res.WinnerID = mv.Winner
		return MoveOutcome{Result: res}, nil
	}

	if r.rc.Players[r.turn].PlayerID != playerID {
		return MoveOutcome{}, ErrNotYourTurn
	}
	r.turn = (r.turn + 1) % len(r.rc.Players)
	return MoveOutcome{Broadcast: MoveRelayed{
		PlayerID: playerID,
		Type:     mv.Type,
		Body:     mv.Body,
		Next:     r.rc.Players[r.turn].PlayerID,
	}}, nil
}

// AdjudicateDisconnect forfeits the absent player.
func (r *Relay) AdjudicateDisconnect(playerID string) *models.RoundResult {
	if !r.active || r.seatOf(playerID) < 0 {
		return nil
	}
	return r.forfeit(playerID)
}

func (r *Relay) forfeit(playerID string) *models.RoundResult {
	res := r.result()
	res.Forfeits = []string{playerID}
	var remaining []string
	for _, p := range r.rc.Players {
		if p.PlayerID != playerID {
			remaining = append(remaining, p.PlayerID)
		}
	}
	if len(remaining) == 1 {
		res.WinnerID = remaining[0]
	}
	return res
}

func (r *Relay) result() *models.RoundResult {
	r.active = false
	return &models.RoundResult{
		RoundID:   r.roundID,
		TableID:   r.rc.TableID,
		TierID:    r.rc.TierID,
		GameType:  r.rc.GameType,
		Stake:     r.rc.Stake,
		Players:   r.rc.Players,
		StartedAt: r.started,
		EndedAt:   r.now(),
	}
}

func (r *Relay) seatOf(playerID string) int {
	for i, p := range r.rc.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}
