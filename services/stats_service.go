// services/stats_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/persistence"
	"github.com/wfunc/gamehall/state"
)

const minRating = 100

// StatsService reads statistics at admission time and updates them when a
// round ends.
type StatsService struct {
	db     persistence.Database
	rating RatingCalculator
	now    func() time.Time
}

func NewStatsService(db persistence.Database, rating RatingCalculator) *StatsService {
	if rating == nil {
		rating = NewEloCalculator(32)
	}
	return &StatsService{db: db, rating: rating, now: time.Now}
}

// Get 获取玩家统计, falling back to a fresh record for new players.
func (s *StatsService) Get(ctx context.Context, playerID, gameType string) (models.PlayerStats, error) {
	stats, err := s.db.LoadPlayerStats(ctx, playerID, gameType)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		stats = models.NewPlayerStats(playerID, gameType)
		stats.Title = state.TitleForRating(stats.Rating)
		return stats, nil
	}
	if err != nil {
		return models.PlayerStats{}, err
	}
	if stats.Title == "" {
		stats.Title = state.TitleForRating(stats.Rating)
	}
	return stats, nil
}

// RecordDisconnect 掉线计数
func (s *StatsService) RecordDisconnect(ctx context.Context, playerID, gameType string) error {
	return s.db.IncrementDisconnects(ctx, playerID, gameType)
}

// RecordRound applies a finished round to every human participant and
// returns their updated statistics. Aborted rounds only store the record.
func (s *StatsService) RecordRound(ctx context.Context, result models.RoundResult) ([]models.PlayerStats, error) {
	current := make(map[string]models.PlayerStats, len(result.Players))
	ratings := make(map[string]int, len(result.Players))
	for _, p := range result.Players {
		var st models.PlayerStats
		if p.IsBackfill {
			st = models.NewPlayerStats(p.PlayerID, result.GameType)
		} else {
			var err error
			if st, err = s.Get(ctx, p.PlayerID, result.GameType); err != nil {
				return nil, err
			}
		}
		current[p.PlayerID] = st
		ratings[p.PlayerID] = st.Rating
	}

	var deltas map[string]int
	if !result.Aborted || len(result.Forfeits) > 0 {
		deltas = s.rating.Deltas(result, ratings)
	}

	record := models.RoundRecord{
		RoundID:   result.RoundID,
		TableID:   result.TableID,
		GameType:  result.GameType,
		Result:    map[string]any{"winner": result.WinnerID, "forfeits": result.Forfeits, "aborted": result.Aborted, "stake": result.Stake},
		CreatedAt: s.now(),
	}

	var updated []models.PlayerStats
	for _, p := range result.Players {
		outcome := result.OutcomeFor(p.PlayerID)
		record.Players = append(record.Players, models.PlayerInfo{
			PlayerID:    p.PlayerID,
			Name:        p.DisplayName,
			Outcome:     outcome,
			RatingDelta: deltas[p.PlayerID],
		})
		if p.IsBackfill || outcome == models.OutcomeAborted {
			continue
		}

		st := current[p.PlayerID]
		st.GamesPlayed++
		switch outcome {
		case models.OutcomeWin:
			st.Wins++
		case models.OutcomeLose:
			st.Losses++
		}
		st.Rating += deltas[p.PlayerID]
		if st.Rating < minRating {
			st.Rating = minRating
		}
		st.Title = state.TitleForRating(st.Rating)
		st.UpdatedAt = s.now()
		updated = append(updated, st)
	}

	if err := s.db.RecordRound(ctx, record, updated); err != nil {
		return nil, err
	}
	logger.Log.Infof("round %s on %s recorded for %d players", result.RoundID, result.TableID, len(updated))
	return updated, nil
}

// History 最近对局
func (s *StatsService) History(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.db.RecentRounds(ctx, playerID, limit)
}
