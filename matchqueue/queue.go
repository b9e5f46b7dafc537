// Package matchqueue pairs players who asked for auto-match, independently
// of any table. Pairs are handed to a per game type callback that seats them.
package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thoas/go-funk"

	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/timer"
)

var (
	ErrAlreadyQueued  = errors.New("matchqueue: player already queued")
	ErrUnknownGame    = errors.New("matchqueue: game type not registered")
	ErrMissingPlayer  = errors.New("matchqueue: entry without player id")
	ErrQueueIsStopped = errors.New("matchqueue: queue stopped")
)

// Entry is one waiting player.
type Entry struct {
	PlayerID    string
	ConnID      string
	DisplayName string
	Stats       models.PlayerStats
	Preferences state.MatchSettings
	EnqueuedAt  time.Time
}

// HandoffFunc seats a matched pair. An error is reported to both players
// as match_failed; neither is re-queued.
type HandoffFunc func(ctx context.Context, a, b Entry) error

// Notifier delivers events to a single connection.
type Notifier interface {
	SendTo(connID, event string, data any) error
}

// Observer receives queue metrics.
type Observer interface {
	QueueDepth(gameType string, n int)
	Matched(gameType string, waited time.Duration)
}

type Config struct {
	Policy         state.MatchPolicy
	TickInterval   time.Duration
	HandoffTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Policy:         state.DefaultMatchPolicy(),
		TickInterval:   3 * time.Second,
		HandoffTimeout: 10 * time.Second,
	}
}

type pair struct {
	gameType string
	a, b     Entry
}

// Queue holds one FIFO per game type.
type Queue struct {
	cfg      Config
	notifier Notifier
	observer Observer

	mutex    sync.Mutex
	queues   map[string][]Entry
	handoffs map[string]HandoffFunc
	stopped  bool

	pass sync.Mutex // 配对过程串行
	now  func() time.Time
}

func New(cfg Config, notifier Notifier, observer Observer) *Queue {
	d := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = d.TickInterval
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = d.HandoffTimeout
	}
	if cfg.Policy == (state.MatchPolicy{}) {
		cfg.Policy = d.Policy
	}
	return &Queue{
		cfg:      cfg,
		notifier: notifier,
		observer: observer,
		queues:   make(map[string][]Entry),
		handoffs: make(map[string]HandoffFunc),
		now:      time.Now,
	}
}

// Register installs the handoff for a game type. Enqueue rejects game
// types without one.
func (q *Queue) Register(gameType string, fn HandoffFunc) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.handoffs[gameType] = fn
}

// Enqueue adds a player and immediately runs a pairing pass for the game type.
func (q *Queue) Enqueue(gameType string, e Entry) error {
	if e.PlayerID == "" {
		return ErrMissingPlayer
	}

	q.mutex.Lock()
	if q.stopped {
		q.mutex.Unlock()
		return ErrQueueIsStopped
	}
	if _, ok := q.handoffs[gameType]; !ok {
		q.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	if q.indexLocked(gameType, e.PlayerID) >= 0 {
		q.mutex.Unlock()
		return ErrAlreadyQueued
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.now()
	}
	q.queues[gameType] = append(q.queues[gameType], e)
	n := len(q.queues[gameType])
	q.mutex.Unlock()

	logger.Log.Infof("matchqueue %s: %s queued (rating %d, %d waiting)", gameType, e.PlayerID, e.Stats.Rating, n)
	q.depth(gameType, n)
	q.notify(e.ConnID, network.EventMatchQueueJoined, struct{}{})

	q.runPass(gameType, q.now())
	return nil
}

// Cancel removes a queued player on request.
func (q *Queue) Cancel(gameType, playerID string) bool {
	e, ok := q.remove(gameType, playerID)
	if ok {
		logger.Log.Infof("matchqueue %s: %s cancelled", gameType, playerID)
		q.notify(e.ConnID, network.EventMatchCancelled, struct{}{})
	}
	return ok
}

// RemovePlayer drops a disconnected player from every queue silently.
func (q *Queue) RemovePlayer(playerID string) {
	q.mutex.Lock()
	var games []string
	for gt := range q.queues {
		games = append(games, gt)
	}
	q.mutex.Unlock()

	for _, gt := range games {
		if _, ok := q.remove(gt, playerID); ok {
			logger.Log.Infof("matchqueue %s: %s removed on disconnect", gt, playerID)
		}
	}
}

// Contains reports whether playerID waits in the queue for gameType.
func (q *Queue) Contains(gameType, playerID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.indexLocked(gameType, playerID) >= 0
}

func (q *Queue) Len(gameType string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.queues[gameType])
}

// Tick runs a pairing pass for every game type.
func (q *Queue) Tick(now time.Time) {
	q.mutex.Lock()
	games := funk.Keys(q.queues).([]string)
	q.mutex.Unlock()
	sort.Strings(games)

	for _, gt := range games {
		q.runPass(gt, now)
	}
}

// Run ticks on the given timer manager until ctx is done.
func (q *Queue) Run(ctx context.Context, tm *timer.TimerManager) error {
	id := tm.AddTimer(q.cfg.TickInterval, q.cfg.TickInterval, func() {
		q.Tick(q.now())
	})
	defer tm.RemoveTimer(id)

	<-ctx.Done()
	q.mutex.Lock()
	q.stopped = true
	q.mutex.Unlock()
	return nil
}

func (q *Queue) indexLocked(gameType, playerID string) int {
	for i, e := range q.queues[gameType] {
		if e.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (q *Queue) remove(gameType, playerID string) (Entry, bool) {
	q.mutex.Lock()
	i := q.indexLocked(gameType, playerID)
	if i < 0 {
		q.mutex.Unlock()
		return Entry{}, false
	}
	entries := q.queues[gameType]
	e := entries[i]
	q.queues[gameType] = append(entries[:i:i], entries[i+1:]...)
	n := len(q.queues[gameType])
	q.mutex.Unlock()

	q.depth(gameType, n)
	return e, true
}

// runPass pairs what it can and hands pairs off outside the queue lock.
func (q *Queue) runPass(gameType string, now time.Time) {
	q.pass.Lock()
	defer q.pass.Unlock()

	q.mutex.Lock()
	pairs, rest := pairEntries(gameType, q.queues[gameType], now, q.cfg.Policy)
	if len(pairs) > 0 {
		q.queues[gameType] = rest
	}
	handoff := q.handoffs[gameType]
	n := len(q.queues[gameType])
	q.mutex.Unlock()

	if len(pairs) == 0 {
		return
	}
	q.depth(gameType, n)

	for _, p := range pairs {
		if q.observer != nil {
			q.observer.Matched(gameType, now.Sub(p.a.EnqueuedAt))
			q.observer.Matched(gameType, now.Sub(p.b.EnqueuedAt))
		}
		logger.Log.Infof("matchqueue %s: paired %s (%d) with %s (%d)",
			gameType, p.a.PlayerID, p.a.Stats.Rating, p.b.PlayerID, p.b.Stats.Rating)

		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.HandoffTimeout)
		err := handoff(ctx, p.a, p.b)
		cancel()
		if err != nil {
			logger.Log.Warnf("matchqueue %s: handoff of %s and %s failed: %v", gameType, p.a.PlayerID, p.b.PlayerID, err)
			msg := network.MatchFailedPayload{Message: err.Error()}
			q.notify(p.a.ConnID, network.EventMatchFailed, msg)
			q.notify(p.b.ConnID, network.EventMatchFailed, msg)
		}
	}
}

// pairEntries scans oldest first and pairs each entry with the first
// compatible later one.
func pairEntries(gameType string, entries []Entry, now time.Time, policy state.MatchPolicy) ([]pair, []Entry) {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt) })

	used := make([]bool, len(sorted))
	var pairs []pair
	for i := range sorted {
		if used[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if used[j] || !Compatible(sorted[i], sorted[j], now, policy) {
				continue
			}
			used[i], used[j] = true, true
			pairs = append(pairs, pair{gameType: gameType, a: sorted[i], b: sorted[j]})
			break
		}
	}

	rest := make([]Entry, 0, len(sorted)-2*len(pairs))
	for i, e := range sorted {
		if !used[i] {
			rest = append(rest, e)
		}
	}
	return pairs, rest
}

// Compatible applies the rating window and both players' criteria.
func Compatible(a, b Entry, now time.Time, policy state.MatchPolicy) bool {
	if !state.RatingCompatible(a.Stats.Rating, b.Stats.Rating, now.Sub(a.EnqueuedAt), now.Sub(b.EnqueuedAt), policy) {
		return false
	}
	return state.CheckMatchCriteria(b.Stats, b.Preferences, a.Preferences, false).Allowed &&
		state.CheckMatchCriteria(a.Stats, a.Preferences, b.Preferences, false).Allowed
}

func (q *Queue) notify(connID, event string, data any) {
	if q.notifier == nil || connID == "" {
		return
	}
	if err := q.notifier.SendTo(connID, event, data); err != nil {
		logger.Log.Debugf("matchqueue: send %s to %s: %v", event, connID, err)
	}
}

func (q *Queue) depth(gameType string, n int) {
	if q.observer != nil {
		q.observer.QueueDepth(gameType, n)
	}
}
