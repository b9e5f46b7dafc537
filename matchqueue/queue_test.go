package matchqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/timer"
)

type MockNotifier struct {
	mutex sync.Mutex
	sent  map[string][]string
}

func (m *MockNotifier) SendTo(connID, event string, _ any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[connID] = append(m.sent[connID], event)
	return nil
}

func (m *MockNotifier) events(connID string) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]string(nil), m.sent[connID]...)
}

type handoffRecorder struct {
	mutex sync.Mutex
	pairs [][2]string
	err   error
}

func (h *handoffRecorder) handoff(_ context.Context, a, b Entry) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.pairs = append(h.pairs, [2]string{a.PlayerID, b.PlayerID})
	return h.err
}

func (h *handoffRecorder) count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.pairs)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestQueue(t *testing.T) (*Queue, *MockNotifier, *handoffRecorder, *clock) {
	t.Helper()
	n := &MockNotifier{}
	h := &handoffRecorder{}
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	q := New(DefaultConfig(), n, nil)
	q.now = c.now
	q.Register("relay", h.handoff)
	return q, n, h, c
}

func entry(id string, rating int) Entry {
	stats := models.NewPlayerStats(id, "relay")
	stats.Rating = rating
	return Entry{PlayerID: id, ConnID: "c-" + id, Stats: stats}
}

func TestCloseRatingsPairImmediately(t *testing.T) {
	q, n, h, _ := newTestQueue(t)

	require.NoError(t, q.Enqueue("relay", entry("a", 1200)))
	assert.Equal(t, 1, q.Len("relay"))
	assert.Equal(t, []string{network.EventMatchQueueJoined}, n.events("c-a"))

	require.NoError(t, q.Enqueue("relay", entry("b", 1450)))
	assert.Equal(t, 0, q.Len("relay"))
	require.Equal(t, 1, h.count())
	assert.Equal(t, [2]string{"a", "b"}, h.pairs[0])
}

func TestWideGapWaitsForRelaxation(t *testing.T) {
	q, _, h, c := newTestQueue(t)

	require.NoError(t, q.Enqueue("relay", entry("a", 1000)))
	c.t = c.t.Add(time.Second)
	require.NoError(t, q.Enqueue("relay", entry("b", 1600)))
	assert.Equal(t, 0, h.count())

	c.t = c.t.Add(20 * time.Second)
	q.Tick(c.t)
	assert.Equal(t, 0, h.count())
	assert.Equal(t, 2, q.Len("relay"))

	// a has now waited 30s
	c.t = c.t.Add(9 * time.Second)
	q.Tick(c.t)
	assert.Equal(t, 1, h.count())
	assert.Equal(t, 0, q.Len("relay"))
}

func TestDuplicateRejected(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	require.NoError(t, q.Enqueue("relay", entry("a", 1200)))
	assert.ErrorIs(t, q.Enqueue("relay", entry("a", 1200)), ErrAlreadyQueued)
	assert.ErrorIs(t, q.Enqueue("chess", entry("z", 1200)), ErrUnknownGame)
	assert.ErrorIs(t, q.Enqueue("relay", Entry{}), ErrMissingPlayer)
}

func TestCancelAndRemove(t *testing.T) {
	q, n, _, _ := newTestQueue(t)
	require.NoError(t, q.Enqueue("relay", entry("a", 1000)))
	require.NoError(t, q.Enqueue("relay", entry("b", 2000)))

	assert.True(t, q.Cancel("relay", "a"))
	assert.False(t, q.Cancel("relay", "a"))
	assert.Contains(t, n.events("c-a"), network.EventMatchCancelled)

	q.RemovePlayer("b")
	assert.False(t, q.Contains("relay", "b"))
	assert.NotContains(t, n.events("c-b"), network.EventMatchCancelled)
}

func TestCancelDuringHandoff(t *testing.T) {
	n := &MockNotifier{}
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	q := New(DefaultConfig(), n, nil)
	q.now = c.now

	entered := make(chan struct{})
	release := make(chan struct{})
	q.Register("relay", func(context.Context, Entry, Entry) error {
		close(entered)
		<-release
		return nil
	})

	require.NoError(t, q.Enqueue("relay", entry("far", 2400)))
	enqueued := make(chan struct{})
	go func() {
		defer close(enqueued)
		_ = q.Enqueue("relay", entry("a", 1200))
		_ = q.Enqueue("relay", entry("b", 1200))
	}()
	<-entered

	// the enqueue that found the pair returns only after its handoff
	select {
	case <-enqueued:
		t.Fatal("enqueue returned before handoff finished")
	default:
	}

	cancelled := make(chan bool, 1)
	go func() { cancelled <- q.Cancel("relay", "far") }()
	select {
	case ok := <-cancelled:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("cancel blocked on handoff")
	}
	assert.False(t, q.Contains("relay", "far"))

	close(release)
	<-enqueued
	assert.Equal(t, 0, q.Len("relay"))
}

func TestOldestPairedFirst(t *testing.T) {
	q, _, h, c := newTestQueue(t)
	// b and c are both compatible with a; the older one wins
	q.queues["relay"] = []Entry{
		withTime(entry("c", 1250), c.t.Add(2*time.Second)),
		withTime(entry("a", 1200), c.t),
		withTime(entry("b", 1300), c.t.Add(time.Second)),
	}
	q.Tick(c.t.Add(3 * time.Second))
	require.Equal(t, 1, h.count())
	assert.Equal(t, [2]string{"a", "b"}, h.pairs[0])
	assert.True(t, q.Contains("relay", "c"))
}

func TestCriteriaBlockPairing(t *testing.T) {
	q, _, h, _ := newTestQueue(t)
	a := entry("a", 1200)
	a.Preferences = state.MatchSettings{Stake: 100, AcceptableStakeRange: state.Range{Min: 100, Max: 100}}
	b := entry("b", 1200)
	b.Preferences = state.MatchSettings{Stake: 10, AcceptableStakeRange: state.Range{Min: 10, Max: 10}}

	require.NoError(t, q.Enqueue("relay", a))
	require.NoError(t, q.Enqueue("relay", b))
	assert.Equal(t, 0, h.count())
	assert.Equal(t, 2, q.Len("relay"))
}

func TestHandoffFailureNotifiesBoth(t *testing.T) {
	q, n, h, _ := newTestQueue(t)
	h.err = errors.New("no table")

	require.NoError(t, q.Enqueue("relay", entry("a", 1200)))
	require.NoError(t, q.Enqueue("relay", entry("b", 1200)))

	assert.Contains(t, n.events("c-a"), network.EventMatchFailed)
	assert.Contains(t, n.events("c-b"), network.EventMatchFailed)
	assert.Equal(t, 0, q.Len("relay"))
}

func TestRunTicks(t *testing.T) {
	n := &MockNotifier{}
	h := &handoffRecorder{}
	cfg := DefaultConfig()
	cfg.TickInterval = 20 * time.Millisecond
	cfg.Policy = state.MatchPolicy{RatingThreshold: 300, RelaxAfter: 50 * time.Millisecond}
	q := New(cfg, n, nil)
	q.Register("relay", h.handoff)

	tm := timer.NewTimerManagerWithResolution(5 * time.Millisecond)
	defer tm.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx, tm)
		close(done)
	}()

	require.NoError(t, q.Enqueue("relay", entry("a", 1000)))
	require.NoError(t, q.Enqueue("relay", entry("b", 1900)))
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.ErrorIs(t, q.Enqueue("relay", entry("c", 1000)), ErrQueueIsStopped)
}

func withTime(e Entry, t time.Time) Entry {
	e.EnqueuedAt = t
	return e
}
