package persistence

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/models"
)

func exerciseDatabase(t *testing.T, db Database) {
	ctx := context.Background()
	player := "p-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	_, err := db.LoadPlayerStats(ctx, player, "chess")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, db.IncrementDisconnects(ctx, player, "chess"))
	s, err := db.LoadPlayerStats(ctx, player, "chess")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Disconnects)
	assert.Equal(t, models.DefaultRating, s.Rating)

	s.Rating = 1216
	s.GamesPlayed = 1
	s.Wins = 1
	s.Title = "Adept"
	rec := models.RoundRecord{
		RoundID:   "r-" + player,
		TableID:   "chess-beginner-1",
		GameType:  "chess",
		Players:   []models.PlayerInfo{{PlayerID: player, Outcome: models.OutcomeWin, RatingDelta: 16}},
		Result:    map[string]any{"winner": player},
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.RecordRound(ctx, rec, []models.PlayerStats{s}))

	got, err := db.LoadPlayerStats(ctx, player, "chess")
	require.NoError(t, err)
	assert.Equal(t, 1216, got.Rating)
	assert.Equal(t, 1, got.Wins)
	assert.Equal(t, 1, got.Disconnects)

	rounds, err := db.RecentRounds(ctx, player, 10)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, rec.RoundID, rounds[0].RoundID)

	// other game types are separate records
	_, err = db.LoadPlayerStats(ctx, player, "go")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMemory(t *testing.T) {
	db, err := Open(Options{Driver: "memory"})
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

// testOptions reads a live database from GAMEHALL_TEST_DB_HOST; the SQL
// backends are skipped without one.
func testOptions(t *testing.T, driver string) Options {
	host := os.Getenv("GAMEHALL_TEST_DB_HOST")
	if host == "" {
		t.Skip("GAMEHALL_TEST_DB_HOST not set")
	}
	return Options{
		Driver:   driver,
		Host:     host,
		Port:     5432,
		User:     os.Getenv("GAMEHALL_TEST_DB_USER"),
		Password: os.Getenv("GAMEHALL_TEST_DB_PASSWORD"),
		DBName:   os.Getenv("GAMEHALL_TEST_DB_NAME"),
	}
}

func TestGormPostgreSQL(t *testing.T) {
	db, err := Open(testOptions(t, "gorm"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestPostgreSQL(t *testing.T) {
	db, err := Open(testOptions(t, "postgres"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}
