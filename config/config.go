package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wfunc/gamehall/hall"
	"github.com/wfunc/gamehall/matchqueue"
	"github.com/wfunc/gamehall/persistence"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/state"
)

// EnvPrefix 环境变量前缀, e.g. GAMEHALL_SERVER_HTTP_ADDRESS
const EnvPrefix = "GAMEHALL"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Log         LogConfig         `mapstructure:"log"`
	Games       []GameConfig      `mapstructure:"games"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	RateLimit         float64       `mapstructure:"rate_limit"` // 每秒消息数
	RateBurst         int           `mapstructure:"rate_burst"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	ZombieSweep       time.Duration `mapstructure:"zombie_sweep"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MatchmakingConfig struct {
	RatingThreshold  int           `mapstructure:"rating_threshold"`
	RelaxAfter       time.Duration `mapstructure:"relax_after"`
	RelaxedThreshold int           `mapstructure:"relaxed_threshold"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	EloK             float64       `mapstructure:"elo_k"`
}

type SettlementConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // 为空则不结算
	Secret   string        `mapstructure:"secret"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MonitorConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BackfillConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MinDelay      time.Duration `mapstructure:"min_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	ReadyMinDelay time.Duration `mapstructure:"ready_min_delay"`
	ReadyMaxDelay time.Duration `mapstructure:"ready_max_delay"`
}

// GameConfig is one game type: its tables and tiers.
type GameConfig struct {
	GameType        string            `mapstructure:"game_type"`
	MaxPlayers      int               `mapstructure:"max_players"`
	SeatStrategy    string            `mapstructure:"seat_strategy"`
	AllowSpectators bool              `mapstructure:"allow_spectators"`
	ReadyTimeout    time.Duration     `mapstructure:"ready_timeout"`
	CountdownFrom   int               `mapstructure:"countdown_from"`
	CountdownTick   time.Duration     `mapstructure:"countdown_tick"`
	RematchTimeout  time.Duration     `mapstructure:"rematch_timeout"`
	ZombieTimeout   time.Duration     `mapstructure:"zombie_timeout"`
	Backfill        BackfillConfig    `mapstructure:"backfill"`
	Tiers           []hall.TierConfig `mapstructure:"tiers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.zombie_sweep", time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "gamehall")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("matchmaking.rating_threshold", 300)
	v.SetDefault("matchmaking.relax_after", 30*time.Second)
	v.SetDefault("matchmaking.relaxed_threshold", 0)
	v.SetDefault("matchmaking.tick_interval", 3*time.Second)
	v.SetDefault("matchmaking.elo_k", 32.0)

	v.SetDefault("settlement.timeout", 5*time.Second)
	v.SetDefault("monitor.namespace", "gamehall")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads .env (if present), then config.yaml from path, then
// GAMEHALL_* environment overrides. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if len(cfg.Games) == 0 {
		cfg.Games = []GameConfig{DefaultGame()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultGame is used when no games are configured.
func DefaultGame() GameConfig {
	rc := room.DefaultConfig("relay")
	return GameConfig{
		GameType:        rc.GameType,
		MaxPlayers:      rc.MaxPlayers,
		SeatStrategy:    string(rc.SeatStrategy),
		AllowSpectators: rc.AllowSpectators,
		ReadyTimeout:    rc.ReadyTimeout,
		CountdownFrom:   rc.CountdownFrom,
		CountdownTick:   rc.CountdownTick,
		RematchTimeout:  rc.RematchTimeout,
		ZombieTimeout:   rc.ZombieTimeout,
		Backfill: BackfillConfig{
			Enabled:       rc.Backfill.Enabled,
			MinDelay:      rc.Backfill.MinDelay,
			MaxDelay:      rc.Backfill.MaxDelay,
			ReadyMinDelay: rc.Backfill.ReadyMinDelay,
			ReadyMaxDelay: rc.Backfill.ReadyMaxDelay,
		},
		Tiers: []hall.TierConfig{
			{ID: "novice", DisplayName: "Novice", MaxRating: 1399, InitialTables: 4},
			{ID: "adept", DisplayName: "Adept", MinRating: 1400, MaxRating: 1799, InitialTables: 2},
			{ID: "master", DisplayName: "Master", MinRating: 1800, InitialTables: 1},
		},
	}
}

func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, g := range c.Games {
		if g.GameType == "" {
			return fmt.Errorf("config: game without game_type")
		}
		if seen[g.GameType] {
			return fmt.Errorf("config: duplicate game_type %q", g.GameType)
		}
		seen[g.GameType] = true
		if len(g.Tiers) == 0 {
			return fmt.Errorf("config: game %q has no tiers", g.GameType)
		}
		switch state.SeatStrategy(g.SeatStrategy) {
		case "", state.SeatSequential, state.SeatRandom, state.SeatSpread:
		default:
			return fmt.Errorf("config: game %q: unknown seat_strategy %q", g.GameType, g.SeatStrategy)
		}
	}
	return nil
}

// RoomConfig converts to the table configuration. Zero fields take the
// room defaults.
func (g GameConfig) RoomConfig() room.Config {
	return room.Config{
		GameType:        g.GameType,
		MaxPlayers:      g.MaxPlayers,
		SeatStrategy:    state.SeatStrategy(g.SeatStrategy),
		AllowSpectators: g.AllowSpectators,
		ReadyTimeout:    g.ReadyTimeout,
		CountdownFrom:   g.CountdownFrom,
		CountdownTick:   g.CountdownTick,
		RematchTimeout:  g.RematchTimeout,
		ZombieTimeout:   g.ZombieTimeout,
		Backfill: room.BackfillConfig{
			Enabled:       g.Backfill.Enabled,
			MinDelay:      g.Backfill.MinDelay,
			MaxDelay:      g.Backfill.MaxDelay,
			ReadyMinDelay: g.Backfill.ReadyMinDelay,
			ReadyMaxDelay: g.Backfill.ReadyMaxDelay,
		},
	}
}

func (d DatabaseConfig) Options() persistence.Options {
	return persistence.Options{
		Driver:   d.Driver,
		Host:     d.Postgres.Host,
		Port:     d.Postgres.Port,
		User:     d.Postgres.User,
		Password: d.Postgres.Password,
		DBName:   d.Postgres.DBName,
		SSLMode:  d.Postgres.SSLMode,
	}
}

func (m MatchmakingConfig) QueueConfig() matchqueue.Config {
	return matchqueue.Config{
		Policy: state.MatchPolicy{
			RatingThreshold:  m.RatingThreshold,
			RelaxAfter:       m.RelaxAfter,
			RelaxedThreshold: m.RelaxedThreshold,
		},
		TickInterval: m.TickInterval,
	}
}
