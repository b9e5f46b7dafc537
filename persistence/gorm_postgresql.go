// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/gamehall/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(o Options) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(o.dsn()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// PlayerStatsModel 玩家统计, one row per (player, game type)
type PlayerStatsModel struct {
	ID          uint   `gorm:"primaryKey"`
	PlayerID    string `gorm:"uniqueIndex:idx_player_game;not null"`
	GameType    string `gorm:"uniqueIndex:idx_player_game;not null"`
	Rating      int    `gorm:"not null;default:1200"`
	GamesPlayed int    `gorm:"not null;default:0"`
	Wins        int    `gorm:"not null;default:0"`
	Losses      int    `gorm:"not null;default:0"`
	Disconnects int    `gorm:"not null;default:0"`
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (PlayerStatsModel) TableName() string { return "player_stats" }

// RoundRecordModel 对局记录
type RoundRecordModel struct {
	ID        uint                `gorm:"primaryKey"`
	RoundID   string              `gorm:"uniqueIndex;not null"`
	TableID   string              `gorm:"index;not null"`
	GameType  string              `gorm:"not null"`
	Players   []models.PlayerInfo `gorm:"type:jsonb;serializer:json"`
	Result    map[string]any      `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time           `gorm:"index"`
}

func (RoundRecordModel) TableName() string { return "round_records" }

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PlayerStatsModel{},
		&RoundRecordModel{},
	)
}

func toStatsModel(s models.PlayerStats) PlayerStatsModel {
	return PlayerStatsModel{
		PlayerID:    s.PlayerID,
		GameType:    s.GameType,
		Rating:      s.Rating,
		GamesPlayed: s.GamesPlayed,
		Wins:        s.Wins,
		Losses:      s.Losses,
		Disconnects: s.Disconnects,
		Title:       s.Title,
	}
}

func (m PlayerStatsModel) toStats() models.PlayerStats {
	return models.PlayerStats{
		PlayerID:    m.PlayerID,
		GameType:    m.GameType,
		Rating:      m.Rating,
		GamesPlayed: m.GamesPlayed,
		Wins:        m.Wins,
		Losses:      m.Losses,
		Disconnects: m.Disconnects,
		Title:       m.Title,
		UpdatedAt:   m.UpdatedAt,
	}
}

// LoadPlayerStats 加载玩家统计
func (p *GormPostgreSQL) LoadPlayerStats(ctx context.Context, playerID, gameType string) (models.PlayerStats, error) {
	var m PlayerStatsModel
	err := p.db.WithContext(ctx).
		Where("player_id = ? AND game_type = ?", playerID, gameType).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlayerStats{}, ErrRecordNotFound
		}
		return models.PlayerStats{}, err
	}
	return m.toStats(), nil
}

// SavePlayerStats 保存玩家统计 (UPSERT)
func (p *GormPostgreSQL) SavePlayerStats(ctx context.Context, stats models.PlayerStats) error {
	return upsertStats(p.db.WithContext(ctx), stats)
}

func upsertStats(tx *gorm.DB, stats models.PlayerStats) error {
	m := toStatsModel(stats)
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}, {Name: "game_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"rating", "games_played", "wins", "losses", "disconnects", "title", "updated_at",
		}),
	}).Create(&m).Error
}

// IncrementDisconnects 掉线次数+1
func (p *GormPostgreSQL) IncrementDisconnects(ctx context.Context, playerID, gameType string) error {
	m := PlayerStatsModel{
		PlayerID:    playerID,
		GameType:    gameType,
		Rating:      models.DefaultRating,
		Disconnects: 1,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}, {Name: "game_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"disconnects": gorm.Expr("player_stats.disconnects + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(&m).Error
}

// RecordRound 对局记录和统计在同一事务中写入
func (p *GormPostgreSQL) RecordRound(ctx context.Context, record models.RoundRecord, stats []models.PlayerStats) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := RoundRecordModel{
			RoundID:   record.RoundID,
			TableID:   record.TableID,
			GameType:  record.GameType,
			Players:   record.Players,
			Result:    record.Result,
			CreatedAt: record.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		for _, s := range stats {
			if err := upsertStats(tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentRounds 最近的对局
func (p *GormPostgreSQL) RecentRounds(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error) {
	filter, err := containsPlayer(playerID)
	if err != nil {
		return nil, err
	}

	var rows []RoundRecordModel
	err = p.db.WithContext(ctx).
		Where("players @> ?", filter).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.RoundRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RoundRecord{
			RoundID:   r.RoundID,
			TableID:   r.TableID,
			GameType:  r.GameType,
			Players:   r.Players,
			Result:    r.Result,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
