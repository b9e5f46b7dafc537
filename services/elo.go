package services

import (
	"math"

	"github.com/wfunc/gamehall/models"
)

// RatingCalculator turns a finished round into per-player rating deltas.
type RatingCalculator interface {
	Deltas(result models.RoundResult, ratings map[string]int) map[string]int
}

// EloCalculator is a pairwise K-factor Elo. With more than two players each
// pair is scored and the deltas are averaged over the opponents.
type EloCalculator struct {
	K float64
}

func NewEloCalculator(k float64) *EloCalculator {
	if k <= 0 {
		k = 32
	}
	return &EloCalculator{K: k}
}

func expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

func score(o models.Outcome) (float64, bool) {
	switch o {
	case models.OutcomeWin:
		return 1, true
	case models.OutcomeLose:
		return 0, true
	case models.OutcomeDraw:
		return 0.5, true
	default:
		return 0, false
	}
}

func (e *EloCalculator) Deltas(result models.RoundResult, ratings map[string]int) map[string]int {
	out := make(map[string]int, len(result.Players))
	n := len(result.Players)
	if n < 2 {
		return out
	}
	for _, p := range result.Players {
		sp, ok := score(result.OutcomeFor(p.PlayerID))
		if !ok {
			out[p.PlayerID] = 0
			continue
		}
		var sum float64
		for _, q := range result.Players {
			if q.PlayerID == p.PlayerID {
				continue
			}
			sq, _ := score(result.OutcomeFor(q.PlayerID))
			// pairwise score: 1 if p beat q, 0.5 if level
			pair := 0.5
			if sp > sq {
				pair = 1
			} else if sp < sq {
				pair = 0
			}
			sum += e.K * (pair - expected(ratings[p.PlayerID], ratings[q.PlayerID]))
		}
		out[p.PlayerID] = int(math.Round(sum / float64(n-1)))
	}
	return out
}
