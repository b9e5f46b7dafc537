package room

import (
	"context"
	"time"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
)

// Broadcaster defines the channel multicast the room publishes through.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	Publish(channel, event string, data any) error
	SendTo(connID, event string, data any) error
	Subscribe(channel, connID string)
	Unsubscribe(channel, connID string)
}

// StatsProvider reads statistics at admission and records finished rounds.
type StatsProvider interface {
	Get(ctx context.Context, playerID, gameType string) (models.PlayerStats, error)
	RecordRound(ctx context.Context, result models.RoundResult) ([]models.PlayerStats, error)
	RecordDisconnect(ctx context.Context, playerID, gameType string) error
}

// Settler reports a finished round to the external ledger.
type Settler interface {
	Settle(ctx context.Context, result models.RoundResult) error
}

// Observer receives table events for metrics.
type Observer interface {
	StatusChanged(gameType string, from, to state.Status)
	RoundStarted(gameType string)
	RoundEnded(gameType string, duration time.Duration)
	PlayerKicked(gameType, code string)
	JoinRejected(gameType, code string)
	BackfillSeated(gameType string)
}

// ChangeFunc is called with the new summary whenever it changes.
type ChangeFunc func(table.Summary)

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(string, string, any) error { return nil }
func (noopBroadcaster) SendTo(string, string, any) error  { return nil }
func (noopBroadcaster) Subscribe(string, string)          {}
func (noopBroadcaster) Unsubscribe(string, string)        {}

// defaultStats treats every player as new and stores nothing.
type defaultStats struct{}

func (defaultStats) Get(_ context.Context, playerID, gameType string) (models.PlayerStats, error) {
	return models.NewPlayerStats(playerID, gameType), nil
}

func (defaultStats) RecordRound(context.Context, models.RoundResult) ([]models.PlayerStats, error) {
	return nil, nil
}

func (defaultStats) RecordDisconnect(context.Context, string, string) error { return nil }

type noopObserver struct{}

func (noopObserver) StatusChanged(string, state.Status, state.Status) {}
func (noopObserver) RoundStarted(string)                              {}
func (noopObserver) RoundEnded(string, time.Duration)                 {}
func (noopObserver) PlayerKicked(string, string)                      {}
func (noopObserver) JoinRejected(string, string)                      {}
func (noopObserver) BackfillSeated(string)                            {}
