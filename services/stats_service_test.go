package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/persistence"
)

// MockDatabase fails RecordRound on demand.
type MockDatabase struct {
	*persistence.Memory
	failRecord bool
}

func (m *MockDatabase) RecordRound(ctx context.Context, rec models.RoundRecord, stats []models.PlayerStats) error {
	if m.failRecord {
		return errors.New("db down")
	}
	return m.Memory.RecordRound(ctx, rec, stats)
}

func TestEloDeltas(t *testing.T) {
	elo := NewEloCalculator(32)
	res := models.RoundResult{
		Players:  []models.RoundPlayer{{PlayerID: "a"}, {PlayerID: "b"}},
		WinnerID: "a",
	}
	d := elo.Deltas(res, map[string]int{"a": 1200, "b": 1200})
	assert.Equal(t, 16, d["a"])
	assert.Equal(t, -16, d["b"])

	// the favourite gains less
	d = elo.Deltas(res, map[string]int{"a": 1600, "b": 1200})
	assert.Less(t, d["a"], 16)

	draw := models.RoundResult{Players: res.Players}
	d = elo.Deltas(draw, map[string]int{"a": 1200, "b": 1200})
	assert.Equal(t, 0, d["a"])
}

func TestStatsServiceGetDefault(t *testing.T) {
	svc := NewStatsService(persistence.NewMemory(), nil)
	s, err := svc.Get(context.Background(), "new", "chess")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRating, s.Rating)
	assert.Equal(t, "Adept", s.Title)
}

func TestStatsServiceRecordRound(t *testing.T) {
	db := persistence.NewMemory()
	svc := NewStatsService(db, nil)
	ctx := context.Background()

	res := models.RoundResult{
		RoundID:  "r1",
		TableID:  "t1",
		GameType: "chess",
		Players: []models.RoundPlayer{
			{PlayerID: "a"},
			{PlayerID: "bot-1", IsBackfill: true},
		},
		WinnerID: "a",
	}
	updated, err := svc.RecordRound(ctx, res)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "a", updated[0].PlayerID)
	assert.Equal(t, 1, updated[0].Wins)
	assert.Equal(t, 1, updated[0].GamesPlayed)
	assert.Greater(t, updated[0].Rating, models.DefaultRating)

	stored, err := db.LoadPlayerStats(ctx, "a", "chess")
	require.NoError(t, err)
	assert.Equal(t, updated[0].Rating, stored.Rating)

	// backfill participants are never persisted
	_, err = db.LoadPlayerStats(ctx, "bot-1", "chess")
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	history, err := svc.History(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStatsServiceAbortedRound(t *testing.T) {
	svc := NewStatsService(persistence.NewMemory(), nil)
	res := models.RoundResult{
		RoundID:  "r2",
		GameType: "chess",
		Players:  []models.RoundPlayer{{PlayerID: "a"}, {PlayerID: "b"}},
		Aborted:  true,
	}
	updated, err := svc.RecordRound(context.Background(), res)
	require.NoError(t, err)
	assert.Empty(t, updated)
}

func TestStatsServiceRecordFailure(t *testing.T) {
	db := &MockDatabase{Memory: persistence.NewMemory(), failRecord: true}
	svc := NewStatsService(db, nil)
	_, err := svc.RecordRound(context.Background(), models.RoundResult{
		Players:  []models.RoundPlayer{{PlayerID: "a"}, {PlayerID: "b"}},
		WinnerID: "b",
	})
	assert.Error(t, err)
}

func TestRecordDisconnect(t *testing.T) {
	db := persistence.NewMemory()
	svc := NewStatsService(db, nil)
	require.NoError(t, svc.RecordDisconnect(context.Background(), "a", "chess"))
	s, err := svc.Get(context.Background(), "a", "chess")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Disconnects)
}
