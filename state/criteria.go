package state

import (
	"fmt"

	"github.com/wfunc/gamehall/models"
)

// Range is an inclusive numeric range. Max <= 0 means no upper bound.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	if v < r.Min {
		return false
	}
	return r.Max <= 0 || v <= r.Max
}

func (r Range) String() string {
	if r.Max <= 0 {
		return fmt.Sprintf("%g+", r.Min)
	}
	return fmt.Sprintf("%g-%g", r.Min, r.Max)
}

// MatchSettings are established by the first occupant of a table and are
// immutable once a second player has been admitted against them.
type MatchSettings struct {
	Stake                     int64   `json:"stake"`
	AcceptableStakeRange      Range   `json:"acceptable_stake_range"`
	AcceptableOpponentWinRate Range   `json:"acceptable_opponent_win_rate"`
	MaxOpponentDisconnectRate float64 `json:"max_opponent_disconnect_rate"` // <= 0 disables the ceiling
	AcceptableRatingRange     *Range  `json:"acceptable_rating_range,omitempty"`
}

// DefaultMatchSettings accept any opponent at stake 0.
func DefaultMatchSettings() MatchSettings {
	return MatchSettings{}
}

// CriteriaResult is the verdict of CheckMatchCriteria.
type CriteriaResult struct {
	Allowed bool
	Reason  string
}

func allowed() CriteriaResult { return CriteriaResult{Allowed: true} }

func rejected(format string, args ...any) CriteriaResult {
	return CriteriaResult{Reason: fmt.Sprintf(format, args...)}
}

// CheckMatchCriteria decides whether a candidate may sit at a table whose
// settings were defined by its first occupant.
func CheckMatchCriteria(candidate models.PlayerStats, candidateSettings, tableSettings MatchSettings, isFirstOccupant bool) CriteriaResult {
	if isFirstOccupant {
		return allowed()
	}

	// stake must be acceptable in both directions
	if !candidateSettings.AcceptableStakeRange.Contains(float64(tableSettings.Stake)) {
		return rejected("table stake %d is outside your accepted range %s",
			tableSettings.Stake, candidateSettings.AcceptableStakeRange)
	}
	if !tableSettings.AcceptableStakeRange.Contains(float64(candidateSettings.Stake)) {
		return rejected("your stake %d is outside the table's accepted range %s",
			candidateSettings.Stake, tableSettings.AcceptableStakeRange)
	}

	if wr := candidate.WinRate(); !tableSettings.AcceptableOpponentWinRate.Contains(wr) {
		return rejected("your win rate %.2f is outside the table's accepted range %s",
			wr, tableSettings.AcceptableOpponentWinRate)
	}

	if ceiling := tableSettings.MaxOpponentDisconnectRate; ceiling > 0 {
		if dr := candidate.DisconnectRate(); dr > ceiling {
			return rejected("your disconnect rate %.2f exceeds the table's limit %.2f", dr, ceiling)
		}
	}

	if rr := tableSettings.AcceptableRatingRange; rr != nil && !rr.Contains(float64(candidate.Rating)) {
		return rejected("your rating %d is outside the table's accepted range %s", candidate.Rating, *rr)
	}

	return allowed()
}
