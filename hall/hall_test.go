package hall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/matchqueue"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/state"
)

type delivery struct {
	target string
	event  string
	data   any
}

type MockBroadcaster struct {
	mutex sync.Mutex
	log   []delivery
	subs  map[string]map[string]bool
}

func (m *MockBroadcaster) Publish(channel, event string, data any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.log = append(m.log, delivery{channel, event, data})
	return nil
}

func (m *MockBroadcaster) SendTo(connID, event string, data any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.log = append(m.log, delivery{connID, event, data})
	return nil
}

func (m *MockBroadcaster) Subscribe(channel, connID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.subs == nil {
		m.subs = make(map[string]map[string]bool)
	}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[string]bool)
	}
	m.subs[channel][connID] = true
}

func (m *MockBroadcaster) Unsubscribe(channel, connID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.subs[channel], connID)
}

func (m *MockBroadcaster) to(target, event string) []delivery {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []delivery
	for _, d := range m.log {
		if d.target == target && d.event == event {
			out = append(out, d)
		}
	}
	return out
}

type ratings map[string]int

func (r ratings) Get(_ context.Context, playerID, gameType string) (models.PlayerStats, error) {
	s := models.NewPlayerStats(playerID, gameType)
	if v, ok := r[playerID]; ok {
		s.Rating = v
	}
	return s, nil
}

func (ratings) RecordRound(context.Context, models.RoundResult) ([]models.PlayerStats, error) {
	return nil, nil
}

func (ratings) RecordDisconnect(context.Context, string, string) error { return nil }

var testTiers = []TierConfig{
	{ID: "novice", DisplayName: "Novice", MinRating: 0, MaxRating: 1399, InitialTables: 2, MaxTables: 3},
	{ID: "expert", DisplayName: "Expert", MinRating: 1400, InitialTables: 1},
}

func newTestHall(t *testing.T, r ratings) (*Hall, *MockBroadcaster) {
	t.Helper()
	b := &MockBroadcaster{}
	h := New(Deps{Broadcaster: b, Stats: r})

	cfg := room.DefaultConfig("relay")
	cfg.Backfill.Enabled = false
	cfg.ReadyTimeout = time.Minute
	require.NoError(t, h.Register(CenterConfig{GameType: "relay", Room: cfg, Tiers: testTiers}))
	t.Cleanup(func() { _ = h.Close() })
	return h, b
}

func joinReq(id string) room.JoinRequest {
	return room.JoinRequest{PlayerID: id, ConnID: "c-" + id, DisplayName: id}
}

func TestRegisterCreatesInitialTables(t *testing.T) {
	h, _ := newTestHall(t, nil)

	list, err := h.RoomList("relay", "novice")
	require.NoError(t, err)
	require.Len(t, list.Tables, 2)
	assert.Equal(t, "relay-novice-0", list.Tables[0].TableID)
	assert.Equal(t, "relay-novice-1", list.Tables[1].TableID)
	assert.Equal(t, state.StatusIdle, list.Tables[0].Status)

	assert.ErrorIs(t, h.Register(CenterConfig{GameType: "relay", Tiers: testTiers}), ErrDuplicateGame)
	_, err = h.RoomList("chess", "novice")
	assert.ErrorIs(t, err, ErrUnknownGame)
	assert.Equal(t, []string{"relay"}, h.GameTypes())
}

func TestTiersByRating(t *testing.T) {
	h, _ := newTestHall(t, nil)

	tiers, err := h.Tiers("relay", 1200)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "novice", tiers[0].ID)
	assert.Equal(t, 2, tiers[0].Tables)
	assert.Equal(t, 2, tiers[0].Open)

	tiers, err = h.Tiers("relay", 2500)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "expert", tiers[0].ID)
}

func TestJoinOutsideTierForbidden(t *testing.T) {
	h, _ := newTestHall(t, ratings{"pro": 1800})
	_, err := h.Join(context.Background(), "relay", "novice", "", joinReq("pro"))
	require.ErrorIs(t, err, ErrTierForbidden)
	assert.Equal(t, network.CodeTierForbidden, ErrorCode(err))

	_, err = h.Join(context.Background(), "relay", "expert", "", joinReq("pro"))
	assert.NoError(t, err)
}

func TestAutoJoinFillsWaitingTablesThenGrows(t *testing.T) {
	h, _ := newTestHall(t, nil)
	ctx := context.Background()

	want := map[string]string{
		"a": "relay-novice-0", "b": "relay-novice-0",
		"c": "relay-novice-1", "d": "relay-novice-1",
		"e": "relay-novice-2", "f": "relay-novice-2",
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		snap, err := h.Join(ctx, "relay", "novice", "", joinReq(id))
		require.NoError(t, err, id)
		assert.Equal(t, want[id], snap.TableID, id)
	}

	_, err := h.Join(ctx, "relay", "novice", "", joinReq("g"))
	require.Error(t, err)
	assert.Equal(t, network.CodeRoomFull, ErrorCode(err))

	loc, ok := h.Locate("c")
	require.True(t, ok)
	assert.Equal(t, "relay-novice-1", loc.TableID)
}

func TestIdleTablesAboveInitialAreRecycled(t *testing.T) {
	h, _ := newTestHall(t, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := h.Join(ctx, "relay", "novice", "", joinReq(id))
		require.NoError(t, err)
	}
	list, _ := h.RoomList("relay", "novice")
	require.Len(t, list.Tables, 3)

	require.NoError(t, h.Leave(ctx, "e"))
	require.Eventually(t, func() bool {
		list, _ := h.RoomList("relay", "novice")
		return len(list.Tables) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// the freed index is reused
	snap, err := h.Join(ctx, "relay", "novice", "", joinReq("f"))
	require.NoError(t, err)
	assert.Equal(t, "relay-novice-2", snap.TableID)
}

func TestRoutingByPlayer(t *testing.T) {
	h, b := newTestHall(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.SetReady(ctx, "a", true), ErrNotAtTable)

	_, err := h.Join(ctx, "relay", "novice", "relay-novice-1", joinReq("a"))
	require.NoError(t, err)
	_, err = h.Join(ctx, "relay", "novice", "relay-novice-1", joinReq("b"))
	require.NoError(t, err)

	require.NoError(t, h.SetReady(ctx, "a", true))
	snap, err := h.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, state.StatusMatching, snap.Status)

	require.NoError(t, h.Leave(ctx, "a"))
	_, ok := h.Locate("a")
	assert.False(t, ok)
	assert.ErrorIs(t, h.Leave(ctx, "a"), ErrNotAtTable)

	assert.NotEmpty(t, b.to("tier:relay:novice", network.EventRoomList))
}

func TestJoinElsewhereVacatesPreviousTable(t *testing.T) {
	h, _ := newTestHall(t, nil)
	ctx := context.Background()

	_, err := h.Join(ctx, "relay", "novice", "relay-novice-0", joinReq("a"))
	require.NoError(t, err)
	_, err = h.Join(ctx, "relay", "novice", "relay-novice-1", joinReq("a"))
	require.NoError(t, err)

	list, _ := h.RoomList("relay", "novice")
	assert.Equal(t, 0, list.Tables[0].Players)
	assert.Equal(t, 1, list.Tables[1].Players)
}

func TestRejoinWithoutTableKeepsSeat(t *testing.T) {
	h, _ := newTestHall(t, nil)
	ctx := context.Background()

	_, err := h.Join(ctx, "relay", "novice", "relay-novice-1", joinReq("a"))
	require.NoError(t, err)

	req := joinReq("a")
	req.ConnID = "c-a2"
	snap, err := h.Join(ctx, "relay", "novice", "", req)
	require.NoError(t, err)
	assert.Equal(t, "relay-novice-1", snap.TableID)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "a", snap.Players[0].PlayerID)

	loc, ok := h.Locate("a")
	require.True(t, ok)
	assert.Equal(t, "relay-novice-1", loc.TableID)
	assert.Equal(t, "c-a2", loc.ConnID)

	list, _ := h.RoomList("relay", "novice")
	assert.Equal(t, 0, list.Tables[0].Players)
	assert.Equal(t, 1, list.Tables[1].Players)
}

func TestUnknownTable(t *testing.T) {
	h, _ := newTestHall(t, nil)
	_, err := h.Join(context.Background(), "relay", "novice", "nope", joinReq("a"))
	assert.ErrorIs(t, err, ErrUnknownTable)
	_, err = h.Join(context.Background(), "relay", "gold", "", joinReq("a"))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestSeatPairSendsMatchFound(t *testing.T) {
	h, b := newTestHall(t, ratings{"x": 1500, "y": 1450})
	snap, err := h.SeatPair(context.Background(), "relay", joinReq("x"), joinReq("y"))
	require.NoError(t, err)
	assert.Equal(t, "relay-expert-0", snap.TableID)
	assert.Len(t, snap.Players, 2)

	for _, conn := range []string{"c-x", "c-y"} {
		found := b.to(conn, network.EventMatchFound)
		require.Len(t, found, 1, conn)
		assert.Equal(t, "relay-expert-0", found[0].data.(network.MatchFoundPayload).TableID)
	}

	_, err = h.SeatPair(context.Background(), "relay", joinReq("low"), room.JoinRequest{
		PlayerID: "high", Stats: &models.PlayerStats{PlayerID: "high", Rating: 2000},
	})
	assert.ErrorIs(t, err, ErrNoCommonTier)
}

func TestQueueHandoffSeatsPair(t *testing.T) {
	h, b := newTestHall(t, nil)
	q := matchqueue.New(matchqueue.DefaultConfig(), b, nil)
	q.Register("relay", h.Handoff("relay"))

	for _, id := range []string{"p", "q"} {
		require.NoError(t, q.Enqueue("relay", matchqueue.Entry{
			PlayerID: id,
			ConnID:   "c-" + id,
			Stats:    models.NewPlayerStats(id, "relay"),
		}))
	}

	lp, ok := h.Locate("p")
	require.True(t, ok)
	lq, _ := h.Locate("q")
	assert.Equal(t, lp.TableID, lq.TableID)
	assert.Len(t, b.to("c-q", network.EventMatchFound), 1)
}

func TestSweepZombies(t *testing.T) {
	h, b := newTestHall(t, nil)
	ctx := context.Background()
	_, err := h.Join(ctx, "relay", "novice", "", joinReq("a"))
	require.NoError(t, err)

	assert.Equal(t, 0, h.SweepZombies(ctx, time.Now()))
	assert.Equal(t, 1, h.SweepZombies(ctx, time.Now().Add(time.Hour)))
	assert.Len(t, b.to("c-a", network.EventKicked), 1)
}

func TestWatchTier(t *testing.T) {
	h, b := newTestHall(t, nil)
	list, err := h.WatchTier("relay", "novice", "c-w")
	require.NoError(t, err)
	assert.Len(t, list.Tables, 2)
	assert.Len(t, b.to("c-w", network.EventRoomList), 1)
	b.mutex.Lock()
	assert.True(t, b.subs["tier:relay:novice"]["c-w"])
	b.mutex.Unlock()
}
