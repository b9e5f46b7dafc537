// Package backfill supplies non-human opponents for tables that wait too long
// for a second human.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
)

var ErrNoParticipant = errors.New("backfill: no participant available")

// Request describes the table that needs an opponent.
type Request struct {
	GameType      string
	TableID       string
	TierID        string
	TargetRating  int
	TableSettings state.MatchSettings
}

// Participant is seated exactly like a human player.
type Participant struct {
	PlayerID    string
	DisplayName string
	Stats       models.PlayerStats
	Preferences *state.MatchSettings
}

type Provider interface {
	Acquire(ctx context.Context, req Request) (*Participant, error)
	Release(playerID string)
}

const botGames = 100

var defaultNames = []string{"Ada", "Bao", "Cyra", "Dmitri", "Esme", "Farid", "Greta", "Hiro", "Ines", "Jun"}

// Pool hands out bot identities whose statistics satisfy the requesting
// table's criteria.
type Pool struct {
	mutex     sync.Mutex
	names     []string
	active    map[string]string
	maxActive int
	spread    int
	rnd       *rand.Rand
}

type PoolOption func(*Pool)

// WithNames overrides the display names bots are drawn from.
func WithNames(names ...string) PoolOption {
	return func(p *Pool) { p.names = names }
}

// WithMaxActive caps concurrently seated bots. 0 means unlimited.
func WithMaxActive(n int) PoolOption {
	return func(p *Pool) { p.maxActive = n }
}

// WithRatingSpread sets how far a bot's rating may stray from the target.
func WithRatingSpread(n int) PoolOption {
	return func(p *Pool) { p.spread = n }
}

func WithRand(r *rand.Rand) PoolOption {
	return func(p *Pool) { p.rnd = r }
}

func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		names:  defaultNames,
		active: make(map[string]string),
		spread: 50,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return p
}

func (p *Pool) Acquire(ctx context.Context, req Request) (*Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.maxActive > 0 && len(p.active) >= p.maxActive {
		return nil, ErrNoParticipant
	}

	id := "bot-" + uuid.NewString()
	name := p.names[p.rnd.Intn(len(p.names))] + " (AI)"

	stats := models.NewPlayerStats(id, req.GameType)
	stats.Rating = p.rating(req)
	stats.GamesPlayed = botGames
	stats.Wins = p.wins(req.TableSettings.AcceptableOpponentWinRate)
	stats.Losses = botGames - stats.Wins
	stats.Title = state.TitleForRating(stats.Rating)

	stake := req.TableSettings.Stake
	prefs := &state.MatchSettings{
		Stake:                stake,
		AcceptableStakeRange: state.Range{Min: float64(stake), Max: float64(stake)},
	}

	p.active[id] = req.TableID
	return &Participant{
		PlayerID:    id,
		DisplayName: name,
		Stats:       stats,
		Preferences: prefs,
	}, nil
}

func (p *Pool) Release(playerID string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.active, playerID)
}

func (p *Pool) Active() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.active)
}

func (p *Pool) rating(req Request) int {
	r := req.TargetRating
	if p.spread > 0 {
		r += p.rnd.Intn(2*p.spread+1) - p.spread
	}
	if rr := req.TableSettings.AcceptableRatingRange; rr != nil {
		if float64(r) < rr.Min {
			r = int(math.Ceil(rr.Min))
		}
		if rr.Max > 0 && float64(r) > rr.Max {
			r = int(math.Floor(rr.Max))
		}
	}
	if r < 0 {
		r = 0
	}
	return r
}

// wins picks the win count whose rate sits in the middle of the accepted range.
func (p *Pool) wins(wr state.Range) int {
	hi := wr.Max
	if hi <= 0 || hi > 1 {
		hi = 1
	}
	mid := (wr.Min + hi) / 2
	w := int(math.Round(mid * botGames))
	if !wr.Contains(float64(w) / botGames) {
		w = int(math.Ceil(wr.Min * botGames))
	}
	return w
}

func (p *Participant) String() string {
	return fmt.Sprintf("%s(%s, %d)", p.DisplayName, p.PlayerID, p.Stats.Rating)
}
