// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/gamehall/models"
)

const queryTimeout = 5 * time.Second

// PostgreSQL 数据库实现 (database/sql + lib/pq)
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(o Options) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", o.dsn())
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS player_stats (
            id SERIAL PRIMARY KEY,
            player_id VARCHAR(255) NOT NULL,
            game_type VARCHAR(100) NOT NULL,
            rating INT NOT NULL DEFAULT 1200,
            games_played INT NOT NULL DEFAULT 0,
            wins INT NOT NULL DEFAULT 0,
            losses INT NOT NULL DEFAULT 0,
            disconnects INT NOT NULL DEFAULT 0,
            title VARCHAR(50),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (player_id, game_type)
        )
    `)
	if err != nil {
		return err
	}

	// 创建对局记录表
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS round_records (
            id SERIAL PRIMARY KEY,
            round_id VARCHAR(64) UNIQUE NOT NULL,
            table_id VARCHAR(255) NOT NULL,
            game_type VARCHAR(100) NOT NULL,
            players JSONB NOT NULL,
            result JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_round_records_table_id ON round_records(table_id);
        CREATE INDEX IF NOT EXISTS idx_round_records_created_at ON round_records(created_at);
    `)

	return err
}

const upsertStatsSQL = `
        INSERT INTO player_stats (player_id, game_type, rating, games_played, wins, losses, disconnects, title)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (player_id, game_type)
        DO UPDATE SET rating = $3, games_played = $4, wins = $5, losses = $6,
            disconnects = $7, title = $8, updated_at = CURRENT_TIMESTAMP
    `

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpsertStats(ctx context.Context, e execer, s models.PlayerStats) error {
	_, err := e.ExecContext(ctx, upsertStatsSQL,
		s.PlayerID, s.GameType, s.Rating, s.GamesPlayed, s.Wins, s.Losses, s.Disconnects, s.Title)
	return err
}

// LoadPlayerStats 加载玩家统计
func (p *PostgreSQL) LoadPlayerStats(ctx context.Context, playerID, gameType string) (models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	s := models.PlayerStats{PlayerID: playerID, GameType: gameType}
	var title sql.NullString
	query := `SELECT rating, games_played, wins, losses, disconnects, title, updated_at
        FROM player_stats WHERE player_id = $1 AND game_type = $2`
	err := p.db.QueryRowContext(ctx, query, playerID, gameType).
		Scan(&s.Rating, &s.GamesPlayed, &s.Wins, &s.Losses, &s.Disconnects, &title, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PlayerStats{}, ErrRecordNotFound
		}
		return models.PlayerStats{}, err
	}
	s.Title = title.String
	return s, nil
}

// SavePlayerStats 使用 UPSERT 操作 (PostgreSQL 9.5+)
func (p *PostgreSQL) SavePlayerStats(ctx context.Context, stats models.PlayerStats) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return execUpsertStats(ctx, p.db, stats)
}

// IncrementDisconnects 掉线次数+1
func (p *PostgreSQL) IncrementDisconnects(ctx context.Context, playerID, gameType string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
        INSERT INTO player_stats (player_id, game_type, rating, disconnects)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (player_id, game_type)
        DO UPDATE SET disconnects = player_stats.disconnects + 1, updated_at = CURRENT_TIMESTAMP
    `
	_, err := p.db.ExecContext(ctx, query, playerID, gameType, models.DefaultRating)
	return err
}

// RecordRound 保存对局记录并更新统计
func (p *PostgreSQL) RecordRound(ctx context.Context, record models.RoundRecord, stats []models.PlayerStats) error {
	playersJSON, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO round_records (round_id, table_id, game_type, players, result, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if _, err := tx.ExecContext(ctx, query,
		record.RoundID, record.TableID, record.GameType, playersJSON, resultJSON, record.CreatedAt); err != nil {
		return err
	}
	for _, s := range stats {
		if err := execUpsertStats(ctx, tx, s); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentRounds 最近的对局
func (p *PostgreSQL) RecentRounds(ctx context.Context, playerID string, limit int) ([]models.RoundRecord, error) {
	filter, err := containsPlayer(playerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT round_id, table_id, game_type, players, result, created_at
        FROM round_records WHERE players @> $1
        ORDER BY created_at DESC LIMIT $2
    `, filter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoundRecord
	for rows.Next() {
		var (
			r                 models.RoundRecord
			players, resultJS []byte
		)
		if err := rows.Scan(&r.RoundID, &r.TableID, &r.GameType, &players, &resultJS, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &r.Players); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(resultJS, &r.Result); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// containsPlayer builds a jsonb containment filter for a players array.
func containsPlayer(playerID string) (string, error) {
	b, err := json.Marshal([]map[string]string{{"player_id": playerID}})
	return string(b), err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
