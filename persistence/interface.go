// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/gamehall/models"
)

// Database 数据库接口
type Database interface {
	LoadPlayerStats(ctx context.Context, playerID, gameType string) (models.PlayerStats, error)
	SavePlayerStats(ctx context.Context, stats models.PlayerStats) error
	IncrementDisconnects(ctx context.Context, playerID, gameType string) error
	// RecordRound stores the round and the updated statistics atomically.
	RecordRound(ctx context.Context, record models.RoundRecord, stats []models.PlayerStats) error
	RecentRounds(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrUnknownDriver  = fmt.Errorf("unknown database driver")
)

// Options 连接参数
type Options struct {
	Driver   string // gorm | postgres | memory
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (o Options) dsn() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Password, o.DBName, sslMode)
}

// Open selects an implementation by driver name.
func Open(o Options) (Database, error) {
	switch o.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "gorm":
		return NewGormPostgreSQL(o)
	case "postgres":
		return NewPostgreSQL(o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, o.Driver)
	}
}
