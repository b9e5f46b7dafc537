package room

import (
	"time"

	"github.com/wfunc/gamehall/backfill"
	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/state"
)

// BackfillConfig controls non-human opponents.
type BackfillConfig struct {
	Enabled       bool
	MinDelay      time.Duration
	MaxDelay      time.Duration
	ReadyMinDelay time.Duration
	ReadyMaxDelay time.Duration
}

// Config is the per game type table configuration.
type Config struct {
	GameType        string
	MaxPlayers      int
	SeatStrategy    state.SeatStrategy
	AllowSpectators bool
	ReadyTimeout    time.Duration
	CountdownFrom   int
	CountdownTick   time.Duration
	Backfill        BackfillConfig
	ZombieTimeout   time.Duration
	RematchTimeout  time.Duration
	StatsTimeout    time.Duration
}

func DefaultConfig(gameType string) Config {
	return Config{
		GameType:        gameType,
		MaxPlayers:      2,
		SeatStrategy:    state.SeatSequential,
		AllowSpectators: true,
		ReadyTimeout:    30 * time.Second,
		CountdownFrom:   3,
		CountdownTick:   time.Second,
		Backfill: BackfillConfig{
			Enabled:       true,
			MinDelay:      8 * time.Second,
			MaxDelay:      15 * time.Second,
			ReadyMinDelay: time.Second,
			ReadyMaxDelay: 3 * time.Second,
		},
		ZombieTimeout:  state.DefaultZombieTimeout,
		RematchTimeout: 60 * time.Second,
		StatsTimeout:   5 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.GameType)
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = d.MaxPlayers
	}
	if c.SeatStrategy == "" {
		c.SeatStrategy = d.SeatStrategy
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.CountdownFrom < 0 {
		c.CountdownFrom = 0
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = d.CountdownTick
	}
	if c.Backfill.MaxDelay < c.Backfill.MinDelay {
		c.Backfill.MaxDelay = c.Backfill.MinDelay
	}
	if c.Backfill.ReadyMaxDelay < c.Backfill.ReadyMinDelay {
		c.Backfill.ReadyMaxDelay = c.Backfill.ReadyMinDelay
	}
	if c.ZombieTimeout <= 0 {
		c.ZombieTimeout = d.ZombieTimeout
	}
	if c.RematchTimeout <= 0 {
		c.RematchTimeout = d.RematchTimeout
	}
	if c.StatsTimeout <= 0 {
		c.StatsTimeout = d.StatsTimeout
	}
	return c
}

// Deps are the collaborators of a room. Nil fields fall back to no-ops.
type Deps struct {
	Broadcaster Broadcaster
	Stats       StatsProvider
	Game        game.Factory
	Backfill    backfill.Provider
	Settler     Settler
	Observer    Observer
	OnChange    ChangeFunc
}

func (d Deps) withDefaults() Deps {
	if d.Broadcaster == nil {
		d.Broadcaster = noopBroadcaster{}
	}
	if d.Stats == nil {
		d.Stats = defaultStats{}
	}
	if d.Game == nil {
		d.Game = game.NewRelay
	}
	if d.Observer == nil {
		d.Observer = noopObserver{}
	}
	return d
}
