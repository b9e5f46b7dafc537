package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/gamehall/models"
)

// Memory is an in-process Database for development and tests.
type Memory struct {
	mutex  sync.RWMutex
	stats  map[string]models.PlayerStats
	rounds []models.RoundRecord
}

func NewMemory() *Memory {
	return &Memory{stats: make(map[string]models.PlayerStats)}
}

func statsKey(playerID, gameType string) string {
	return gameType + "/" + playerID
}

func (m *Memory) LoadPlayerStats(ctx context.Context, playerID, gameType string) (models.PlayerStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.stats[statsKey(playerID, gameType)]
	if !ok {
		return models.PlayerStats{}, ErrRecordNotFound
	}
	return s, nil
}

func (m *Memory) SavePlayerStats(ctx context.Context, stats models.PlayerStats) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.saveLocked(stats)
	return nil
}

func (m *Memory) saveLocked(stats models.PlayerStats) {
	stats.UpdatedAt = time.Now()
	m.stats[statsKey(stats.PlayerID, stats.GameType)] = stats
}

func (m *Memory) IncrementDisconnects(ctx context.Context, playerID, gameType string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	key := statsKey(playerID, gameType)
	s, ok := m.stats[key]
	if !ok {
		s = models.NewPlayerStats(playerID, gameType)
	}
	s.Disconnects++
	m.saveLocked(s)
	return nil
}

func (m *Memory) RecordRound(ctx context.Context, record models.RoundRecord, stats []models.PlayerStats) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rounds = append(m.rounds, record)
	for _, s := range stats {
		m.saveLocked(s)
	}
	return nil
}

func (m *Memory) RecentRounds(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []models.RoundRecord
	for _, r := range m.rounds {
		for _, p := range r.Players {
			if p.PlayerID == playerID {
				out = append(out, r)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
