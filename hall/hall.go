// Package hall is the table hierarchy: a Center per game type owns rating
// tiers, each tier owns a recycled pool of room actors.
package hall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wfunc/gamehall/backfill"
	"github.com/wfunc/gamehall/broadcast"
	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/matchqueue"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/network"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
	"github.com/wfunc/gamehall/timer"
)

var (
	ErrUnknownGame   = errors.New("hall: unknown game type")
	ErrDuplicateGame = errors.New("hall: game type already registered")
	ErrUnknownTier   = errors.New("hall: unknown tier")
	ErrUnknownTable  = errors.New("hall: unknown table")
	ErrTierForbidden = errors.New("hall: rating outside tier")
	ErrTierFull      = errors.New("hall: tier has no free table")
	ErrNoCommonTier  = errors.New("hall: no tier admits both players")
	ErrNotAtTable    = errors.New("hall: player is not at a table")
	ErrClosed        = errors.New("hall: closed")
)

// ErrorCode extends room.ErrorCode with the hierarchy's own errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTierForbidden), errors.Is(err, ErrNoCommonTier):
		return network.CodeTierForbidden
	case errors.Is(err, ErrTierFull):
		return network.CodeRoomFull
	case errors.Is(err, ErrNotAtTable):
		return network.CodeNotSeated
	case errors.Is(err, ErrUnknownGame), errors.Is(err, ErrUnknownTier), errors.Is(err, ErrUnknownTable):
		return network.CodeBadRequest
	default:
		return room.ErrorCode(err)
	}
}

// TableFactory lets a game type substitute its own room configuration.
type TableFactory func(cfg room.Config, deps room.Deps, tableID, tierID string) *room.Room

type CenterConfig struct {
	GameType string
	Room     room.Config
	Game     game.Factory
	Tiers    []TierConfig
	Factory  TableFactory
}

// Center 一个游戏类型
type Center struct {
	GameType string
	cfg      CenterConfig
	tiers    []*Tier
	byID     map[string]*Tier
}

// PoolObserver is told when a tier grows or shrinks.
type PoolObserver interface {
	TablesChanged(gameType, tierID string, n int)
}

type Deps struct {
	Broadcaster room.Broadcaster
	Stats       room.StatsProvider
	Backfill    backfill.Provider
	Settler     room.Settler
	Observer    room.Observer
	Pool        PoolObserver
}

// Location is where a player currently sits or watches.
type Location struct {
	GameType  string `json:"gameType"`
	TierID    string `json:"tierId"`
	TableID   string `json:"tableId"`
	ConnID    string `json:"-"`
	Spectator bool   `json:"spectator"`
}

// RoomList is the room_list payload of a tier channel.
type RoomList struct {
	GameType string          `json:"gameType"`
	TierID   string          `json:"tierId"`
	Tables   []table.Summary `json:"tables"`
}

// TierInfo describes an accessible tier.
type TierInfo struct {
	TierConfig
	Tables int `json:"tables"`
	Open   int `json:"open"`
}

type Hall struct {
	deps Deps

	mutex   sync.RWMutex
	centers map[string]*Center
	where   map[string]Location
	closed  bool
}

func New(deps Deps) *Hall {
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}
	return &Hall{
		deps:    deps,
		centers: make(map[string]*Center),
		where:   make(map[string]Location),
	}
}

// Register creates a center and its initial tables.
func (h *Hall) Register(cc CenterConfig) error {
	if cc.GameType == "" || len(cc.Tiers) == 0 {
		return fmt.Errorf("hall: game type and at least one tier required")
	}
	if cc.Factory == nil {
		cc.Factory = room.New
	}
	cc.Room.GameType = cc.GameType

	c := &Center{GameType: cc.GameType, cfg: cc, byID: make(map[string]*Tier)}
	for _, tc := range cc.Tiers {
		if _, dup := c.byID[tc.ID]; dup || tc.ID == "" {
			return fmt.Errorf("hall: bad tier id %q for %s", tc.ID, cc.GameType)
		}
		t := newTier(cc.GameType, tc)
		c.tiers = append(c.tiers, t)
		c.byID[tc.ID] = t
	}

	h.mutex.Lock()
	if _, ok := h.centers[cc.GameType]; ok {
		h.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateGame, cc.GameType)
	}
	h.centers[cc.GameType] = c
	h.mutex.Unlock()

	for _, t := range c.tiers {
		for i := 0; i < t.InitialTables; i++ {
			t.allocate(h.creator(c, t))
		}
		h.poolChanged(c, t)
	}
	logger.Log.Infof("hall: registered %s with %d tiers", cc.GameType, len(c.tiers))
	return nil
}

func (h *Hall) creator(c *Center, t *Tier) func(string) *room.Room {
	return func(tableID string) *room.Room {
		deps := room.Deps{
			Broadcaster: h.deps.Broadcaster,
			Stats:       h.deps.Stats,
			Game:        c.cfg.Game,
			Backfill:    h.deps.Backfill,
			Settler:     h.deps.Settler,
			Observer:    h.deps.Observer,
			OnChange: func(s table.Summary) {
				h.tableChanged(c, t, s)
			},
		}
		return c.cfg.Factory(c.cfg.Room, deps, tableID, t.ID)
	}
}

// GameTypes lists registered game types in name order.
func (h *Hall) GameTypes() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]string, 0, len(h.centers))
	for gt := range h.centers {
		out = append(out, gt)
	}
	sort.Strings(out)
	return out
}

func (h *Hall) center(gameType string) (*Center, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}
	c, ok := h.centers[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	return c, nil
}

func (h *Hall) lookup(gameType, tierID string) (*Center, *Tier, error) {
	c, err := h.center(gameType)
	if err != nil {
		return nil, nil, err
	}
	t, ok := c.byID[tierID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrUnknownTier, gameType, tierID)
	}
	return c, t, nil
}

// RoomConfig returns the table configuration of a game type.
func (h *Hall) RoomConfig(gameType string) (room.Config, error) {
	c, err := h.center(gameType)
	if err != nil {
		return room.Config{}, err
	}
	return c.cfg.Room, nil
}

// TierIDs lists every tier of a game type in configuration order.
func (h *Hall) TierIDs(gameType string) ([]string, error) {
	c, err := h.center(gameType)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		out[i] = t.ID
	}
	return out, nil
}

// Tiers returns the tiers a player with rating may enter.
func (h *Hall) Tiers(gameType string, rating int) ([]TierInfo, error) {
	c, err := h.center(gameType)
	if err != nil {
		return nil, err
	}
	var out []TierInfo
	for _, t := range c.tiers {
		if !t.Admits(rating) {
			continue
		}
		info := TierInfo{TierConfig: t.TierConfig}
		for _, s := range t.summaries() {
			info.Tables++
			if s.Players < s.MaxPlayers && s.UIStatus != state.UIStarting && s.UIStatus != state.UIInGame {
				info.Open++
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// RoomList returns the summaries of a tier ordered by table index.
func (h *Hall) RoomList(gameType, tierID string) (RoomList, error) {
	_, t, err := h.lookup(gameType, tierID)
	if err != nil {
		return RoomList{}, err
	}
	return RoomList{GameType: gameType, TierID: tierID, Tables: t.summaries()}, nil
}

// WatchTier subscribes a connection to a tier's list channel and sends the
// current list to it.
func (h *Hall) WatchTier(gameType, tierID, connID string) (RoomList, error) {
	list, err := h.RoomList(gameType, tierID)
	if err != nil {
		return list, err
	}
	h.deps.Broadcaster.Subscribe(broadcast.TierChannel(gameType, tierID), connID)
	if err := h.deps.Broadcaster.SendTo(connID, network.EventRoomList, list); err != nil {
		logger.Log.Debugf("hall: send room list to %s: %v", connID, err)
	}
	return list, nil
}

func (h *Hall) UnwatchTier(gameType, tierID, connID string) {
	h.deps.Broadcaster.Unsubscribe(broadcast.TierChannel(gameType, tierID), connID)
}

func (h *Hall) statsFor(ctx context.Context, req room.JoinRequest, gameType string) models.PlayerStats {
	if req.Stats != nil {
		return *req.Stats
	}
	if h.deps.Stats != nil {
		stats, err := h.deps.Stats.Get(ctx, req.PlayerID, gameType)
		if err == nil {
			return stats
		}
		logger.Log.Warnf("hall: stats for %s unavailable: %v", req.PlayerID, err)
	}
	return models.NewPlayerStats(req.PlayerID, gameType)
}

// Join seats a player in a tier, at tableID when given, otherwise at the
// first table that accepts them.
func (h *Hall) Join(ctx context.Context, gameType, tierID, tableID string, req room.JoinRequest) (table.Snapshot, error) {
	c, t, err := h.lookup(gameType, tierID)
	if err != nil {
		return table.Snapshot{}, err
	}
	stats := h.statsFor(ctx, req, gameType)
	req.Stats = &stats
	if snap, ok := h.rejoin(ctx, gameType, tierID, tableID, req); ok {
		return snap, nil
	}
	if !t.Admits(stats.Rating) {
		return table.Snapshot{}, fmt.Errorf("%w: rating %d, tier %s", ErrTierForbidden, stats.Rating, t.ID)
	}
	if err := h.vacate(ctx, req.PlayerID, tableID); err != nil {
		return table.Snapshot{}, err
	}

	var snap table.Snapshot
	if tableID != "" {
		r, ok := t.table(tableID)
		if !ok {
			return table.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
		}
		snap, err = r.Join(ctx, req)
	} else {
		snap, err = h.autoJoin(ctx, c, t, req)
	}
	if err != nil {
		return table.Snapshot{}, err
	}
	h.setLocation(req.PlayerID, Location{GameType: gameType, TierID: tierID, TableID: snap.TableID, ConnID: req.ConnID})
	return snap, nil
}

// rejoin routes a seated player back to their own table, swapping in the
// new connection. A join without a table id counts as a reconnect.
func (h *Hall) rejoin(ctx context.Context, gameType, tierID, tableID string, req room.JoinRequest) (table.Snapshot, bool) {
	loc, ok := h.Locate(req.PlayerID)
	if !ok || loc.Spectator || loc.GameType != gameType || loc.TierID != tierID {
		return table.Snapshot{}, false
	}
	if tableID != "" && tableID != loc.TableID {
		return table.Snapshot{}, false
	}
	r, err := h.current(req.PlayerID)
	if err != nil {
		return table.Snapshot{}, false
	}
	snap, err := r.Join(ctx, req)
	if err != nil {
		logger.Log.Debugf("hall: rejoin %s at %s: %v", req.PlayerID, loc.TableID, err)
		return table.Snapshot{}, false
	}
	h.setLocation(req.PlayerID, Location{GameType: gameType, TierID: tierID, TableID: snap.TableID, ConnID: req.ConnID})
	return snap, true
}

func retryable(err error) bool {
	return errors.Is(err, room.ErrRoomFull) ||
		errors.Is(err, room.ErrTableLocked) ||
		errors.Is(err, room.ErrCriteriaNotMet) ||
		errors.Is(err, room.ErrRoomClosed)
}

func (h *Hall) autoJoin(ctx context.Context, c *Center, t *Tier, req room.JoinRequest) (table.Snapshot, error) {
	var lastErr error
	// second attempt covers a table recycled under us
	for attempt := 0; attempt < 2; attempt++ {
		for _, r := range t.candidates() {
			snap, err := r.Join(ctx, req)
			if err == nil {
				return snap, nil
			}
			if !retryable(err) {
				return table.Snapshot{}, err
			}
			lastErr = err
		}

		r := t.allocate(h.creator(c, t))
		if r == nil {
			break
		}
		h.poolChanged(c, t)
		snap, err := r.Join(ctx, req)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, room.ErrRoomClosed) {
			return table.Snapshot{}, err
		}
		lastErr = err
	}
	if lastErr == nil || errors.Is(lastErr, room.ErrRoomClosed) {
		lastErr = ErrTierFull
	}
	return table.Snapshot{}, lastErr
}

// Spectate subscribes a connection to a table without a seat.
func (h *Hall) Spectate(ctx context.Context, gameType, tierID, tableID string, req room.SpectateRequest) (table.Snapshot, error) {
	_, t, err := h.lookup(gameType, tierID)
	if err != nil {
		return table.Snapshot{}, err
	}
	r, ok := t.table(tableID)
	if !ok {
		return table.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownTable, tableID)
	}
	if err := h.vacate(ctx, req.PlayerID, tableID); err != nil {
		return table.Snapshot{}, err
	}
	snap, err := r.Spectate(ctx, req)
	if err != nil {
		return table.Snapshot{}, err
	}
	h.setLocation(req.PlayerID, Location{GameType: gameType, TierID: tierID, TableID: tableID, ConnID: req.ConnID, Spectator: true})
	return snap, nil
}

// SeatPair seats two matched players together at an empty table of a tier
// that admits both and tells them with match_found.
func (h *Hall) SeatPair(ctx context.Context, gameType string, a, b room.JoinRequest) (table.Snapshot, error) {
	c, err := h.center(gameType)
	if err != nil {
		return table.Snapshot{}, err
	}
	sa, sb := h.statsFor(ctx, a, gameType), h.statsFor(ctx, b, gameType)
	a.Stats, b.Stats = &sa, &sb

	var t *Tier
	for _, candidate := range c.tiers {
		if candidate.Admits(sa.Rating) && candidate.Admits(sb.Rating) &&
			(t == nil || candidate.MinRating > t.MinRating) {
			t = candidate
		}
	}
	if t == nil {
		return table.Snapshot{}, fmt.Errorf("%w: ratings %d and %d", ErrNoCommonTier, sa.Rating, sb.Rating)
	}
	for _, id := range []string{a.PlayerID, b.PlayerID} {
		if err := h.vacate(ctx, id, ""); err != nil {
			return table.Snapshot{}, err
		}
	}

	r := t.emptyTable()
	if r == nil {
		if r = t.allocate(h.creator(c, t)); r == nil {
			return table.Snapshot{}, ErrTierFull
		}
		h.poolChanged(c, t)
	}
	if _, err := r.Join(ctx, a); err != nil {
		return table.Snapshot{}, err
	}
	snap, err := r.Join(ctx, b)
	if err != nil {
		if lerr := r.Leave(ctx, a.PlayerID); lerr != nil {
			logger.Log.Warnf("hall: undo seat of %s: %v", a.PlayerID, lerr)
		}
		return table.Snapshot{}, err
	}

	for _, req := range []room.JoinRequest{a, b} {
		h.setLocation(req.PlayerID, Location{GameType: gameType, TierID: t.ID, TableID: snap.TableID, ConnID: req.ConnID})
		if req.ConnID == "" {
			continue
		}
		if err := h.deps.Broadcaster.SendTo(req.ConnID, network.EventMatchFound,
			network.MatchFoundPayload{TableID: snap.TableID, TierID: t.ID}); err != nil {
			logger.Log.Debugf("hall: match_found to %s: %v", req.ConnID, err)
		}
	}
	logger.Log.Infof("hall: matched %s and %s at %s", a.PlayerID, b.PlayerID, snap.TableID)
	return snap, nil
}

// Handoff adapts SeatPair to the match queue.
func (h *Hall) Handoff(gameType string) matchqueue.HandoffFunc {
	return func(ctx context.Context, a, b matchqueue.Entry) error {
		_, err := h.SeatPair(ctx, gameType, entryRequest(a), entryRequest(b))
		return err
	}
}

func entryRequest(e matchqueue.Entry) room.JoinRequest {
	stats := e.Stats
	prefs := e.Preferences
	return room.JoinRequest{
		PlayerID:    e.PlayerID,
		ConnID:      e.ConnID,
		DisplayName: e.DisplayName,
		Settings:    &prefs,
		Stats:       &stats,
	}
}

// --- routing by player ---

func (h *Hall) Locate(playerID string) (Location, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	loc, ok := h.where[playerID]
	return loc, ok
}

func (h *Hall) setLocation(playerID string, loc Location) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.where[playerID] = loc
}

func (h *Hall) clearLocation(playerID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.where, playerID)
}

func (h *Hall) current(playerID string) (*room.Room, error) {
	loc, ok := h.Locate(playerID)
	if !ok {
		return nil, ErrNotAtTable
	}
	_, t, err := h.lookup(loc.GameType, loc.TierID)
	if err != nil {
		return nil, err
	}
	r, ok := t.table(loc.TableID)
	if !ok {
		h.clearLocation(playerID)
		return nil, ErrNotAtTable
	}
	return r, nil
}

// routed forgets a location the room no longer agrees with.
func (h *Hall) routed(playerID string, err error) error {
	if errors.Is(err, room.ErrNotSeated) || errors.Is(err, room.ErrRoomClosed) {
		h.clearLocation(playerID)
	}
	return err
}

// vacate leaves the player's previous table unless it is target.
func (h *Hall) vacate(ctx context.Context, playerID, target string) error {
	loc, ok := h.Locate(playerID)
	if !ok || (target != "" && loc.TableID == target) {
		return nil
	}
	r, err := h.current(playerID)
	if err != nil {
		return nil
	}
	err = r.Leave(ctx, playerID)
	switch {
	case err == nil, errors.Is(err, room.ErrNotSeated), errors.Is(err, room.ErrRoomClosed):
		h.clearLocation(playerID)
		return nil
	default:
		return err
	}
}

func (h *Hall) Leave(ctx context.Context, playerID string) error {
	r, err := h.current(playerID)
	if err != nil {
		return err
	}
	if err := r.Leave(ctx, playerID); err != nil {
		return h.routed(playerID, err)
	}
	h.clearLocation(playerID)
	return nil
}

func (h *Hall) SetReady(ctx context.Context, playerID string, ready bool) error {
	r, err := h.current(playerID)
	if err != nil {
		return err
	}
	return h.routed(playerID, r.SetReady(ctx, playerID, ready))
}

func (h *Hall) Move(ctx context.Context, playerID string, move json.RawMessage) error {
	r, err := h.current(playerID)
	if err != nil {
		return err
	}
	return h.routed(playerID, r.Move(ctx, playerID, move))
}

func (h *Hall) NextRound(ctx context.Context, playerID string) error {
	r, err := h.current(playerID)
	if err != nil {
		return err
	}
	return h.routed(playerID, r.RequestNextRound(ctx, playerID))
}

// Snapshot returns the table the player is at.
func (h *Hall) Snapshot(ctx context.Context, playerID string) (table.Snapshot, error) {
	r, err := h.current(playerID)
	if err != nil {
		return table.Snapshot{}, err
	}
	return r.Snapshot(ctx)
}

// Disconnect forwards a closed connection to the player's table. A
// connection that was already replaced leaves the location alone.
func (h *Hall) Disconnect(playerID, connID string) {
	loc, ok := h.Locate(playerID)
	if !ok {
		return
	}
	r, err := h.current(playerID)
	if err != nil {
		return
	}
	r.Disconnect(playerID, connID)
	if connID == "" || loc.ConnID == connID {
		h.clearLocation(playerID)
	}
}

// --- 维护 ---

func (h *Hall) allRooms() []*room.Room {
	h.mutex.RLock()
	centers := make([]*Center, 0, len(h.centers))
	for _, c := range h.centers {
		centers = append(centers, c)
	}
	h.mutex.RUnlock()

	var out []*room.Room
	for _, c := range centers {
		for _, t := range c.tiers {
			out = append(out, t.rooms()...)
		}
	}
	return out
}

// SweepZombies runs the zombie check on every table and returns how many
// tables were cleared.
func (h *Hall) SweepZombies(ctx context.Context, now time.Time) int {
	n := 0
	for _, r := range h.allRooms() {
		cleared, err := r.CheckZombie(ctx, now)
		if err != nil {
			if !errors.Is(err, room.ErrRoomClosed) {
				logger.Log.Warnf("hall: zombie check %s: %v", r.ID, err)
			}
			continue
		}
		if cleared {
			n++
		}
	}
	if n > 0 {
		logger.Log.Infof("hall: cleared %d zombie tables", n)
	}
	return n
}

// StartSweeper runs SweepZombies on tm every interval until ctx is done.
func (h *Hall) StartSweeper(ctx context.Context, tm *timer.TimerManager, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	id := tm.AddTimer(interval, interval, func() {
		sctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		h.SweepZombies(sctx, time.Now())
	})
	defer tm.RemoveTimer(id)
	<-ctx.Done()
	return nil
}

func (h *Hall) tableChanged(c *Center, t *Tier, s table.Summary) {
	h.publishTier(c.GameType, t)
	if s.Status == state.StatusIdle && t.size() > t.InitialTables {
		// runs on the room's own goroutine; retiring must wait for it
		go h.recycle(c, t, s.TableID)
	}
}

func (h *Hall) recycle(c *Center, t *Tier, tableID string) {
	r, ok := t.table(tableID)
	if !ok || t.size() <= t.InitialTables {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	retired, err := r.Retire(ctx)
	if err != nil || !retired {
		return
	}
	t.release(tableID)
	logger.Log.Infof("hall: recycled %s", tableID)
	h.poolChanged(c, t)
	h.publishTier(c.GameType, t)
}

func (h *Hall) publishTier(gameType string, t *Tier) {
	list := RoomList{GameType: gameType, TierID: t.ID, Tables: t.summaries()}
	if err := h.deps.Broadcaster.Publish(broadcast.TierChannel(gameType, t.ID), network.EventRoomList, list); err != nil {
		logger.Log.Warnf("hall: publish room list %s/%s: %v", gameType, t.ID, err)
	}
}

func (h *Hall) poolChanged(c *Center, t *Tier) {
	if h.deps.Pool != nil {
		h.deps.Pool.TablesChanged(c.GameType, t.ID, t.size())
	}
}

// Close stops every table and waits for their pending work.
func (h *Hall) Close() error {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return nil
	}
	h.closed = true
	h.mutex.Unlock()

	var g errgroup.Group
	for _, r := range h.allRooms() {
		r := r
		g.Go(func() error {
			r.Close()
			return nil
		})
	}
	return g.Wait()
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, string, any) error { return nil }
func (nopBroadcaster) SendTo(string, string, any) error  { return nil }
func (nopBroadcaster) Subscribe(string, string)          {}
func (nopBroadcaster) Unsubscribe(string, string)        {}
