// models/models.go
package models

import (
	"time"
)

// DefaultRating 新玩家初始分
const DefaultRating = 1200

// PlayerStats is the per-player, per-game-type statistics record read at
// admission time and updated at round end.
type PlayerStats struct {
	PlayerID    string    `json:"player_id"`
	GameType    string    `json:"game_type"`
	Rating      int       `json:"rating"`
	GamesPlayed int       `json:"games_played"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Disconnects int       `json:"disconnects"`
	Title       string    `json:"title"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPlayerStats returns the record used for a player with no history.
func NewPlayerStats(playerID, gameType string) PlayerStats {
	return PlayerStats{
		PlayerID: playerID,
		GameType: gameType,
		Rating:   DefaultRating,
	}
}

// WinRate is wins over games played. Players without history count as 0.5.
func (s PlayerStats) WinRate() float64 {
	if s.GamesPlayed <= 0 {
		return 0.5
	}
	return float64(s.Wins) / float64(s.GamesPlayed)
}

// DisconnectRate is disconnects over games played, 0 without history.
func (s PlayerStats) DisconnectRate() float64 {
	if s.GamesPlayed <= 0 {
		return 0
	}
	return float64(s.Disconnects) / float64(s.GamesPlayed)
}

// Outcome of a round for one player.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLose    Outcome = "lose"
	OutcomeDraw    Outcome = "draw"
	OutcomeAborted Outcome = "aborted"
)

// RoundPlayer 参与本局的玩家
type RoundPlayer struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
	IsBackfill  bool   `json:"is_backfill"`
}

// RoundResult is produced by the game collaborator when a round concludes.
type RoundResult struct {
	RoundID   string         `json:"round_id"`
	TableID   string         `json:"table_id"`
	TierID    string         `json:"tier_id"`
	GameType  string         `json:"game_type"`
	Stake     int64          `json:"stake"`
	Players   []RoundPlayer  `json:"players"`
	WinnerID  string         `json:"winner_id,omitempty"` // empty means draw
	Forfeits  []string       `json:"forfeits,omitempty"`
	Aborted   bool           `json:"aborted,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// OutcomeFor reports how the round ended for playerID.
func (r RoundResult) OutcomeFor(playerID string) Outcome {
	for _, id := range r.Forfeits {
		if id == playerID {
			return OutcomeLose
		}
	}
	switch {
	case r.WinnerID == playerID:
		return OutcomeWin
	case r.WinnerID != "":
		return OutcomeLose
	case r.Aborted:
		return OutcomeAborted
	default:
		return OutcomeDraw
	}
}

// PlayerInfo 玩家信息（用于对局记录）
type PlayerInfo struct {
	PlayerID    string  `json:"player_id"`
	Name        string  `json:"name"`
	Outcome     Outcome `json:"outcome"`
	RatingDelta int     `json:"rating_delta"`
}

// RoundRecord 对局记录
type RoundRecord struct {
	RoundID   string         `json:"round_id"`
	TableID   string         `json:"table_id"`
	GameType  string         `json:"game_type"`
	Players   []PlayerInfo   `json:"players"`
	Result    map[string]any `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}
