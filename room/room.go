// room/room.go
package room

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/gamehall/broadcast"
	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
	"github.com/wfunc/gamehall/timer"
)

// Room 是单张桌子的 actor: every mutation of its table goes through one
// command queue drained by a single goroutine.
type Room struct {
	ID     string
	TierID string

	cfg   Config
	deps  Deps
	table *table.State
	queue *commandQueue
	game  game.Collaborator

	// owned by the loop goroutine
	phase        Phase
	countdown    *timer.Countdown
	tokens       uint64
	countLeft    int
	botTimers    map[string]*timer.Countdown
	rematch      *consent
	rematchGen   uint64
	sameMatch    bool
	roundStarted time.Time
	lastStatus   state.Status
	rnd          *rand.Rand

	summary atomic.Value // table.Summary
	done    chan struct{}
	closing atomic.Bool
	async   sync.WaitGroup
}

// New 创建一张桌子并启动其命令循环
func New(cfg Config, deps Deps, tableID, tierID string) *Room {
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	r := &Room{
		ID:         tableID,
		TierID:     tierID,
		cfg:        cfg,
		deps:       deps,
		table:      table.New(tableID, tierID, cfg.GameType, cfg.MaxPlayers, cfg.SeatStrategy),
		queue:      newCommandQueue(),
		game:       deps.Game(),
		phase:      PhaseIdle,
		botTimers:  make(map[string]*timer.Countdown),
		lastStatus: state.StatusIdle,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		done:       make(chan struct{}),
	}
	r.summary.Store(r.table.Summary())

	go r.loop()
	return r
}

func (r *Room) Config() Config { return r.cfg }

// Summary returns the last published summary without touching the queue.
func (r *Room) Summary() table.Summary {
	return r.summary.Load().(table.Summary)
}

func (r *Room) channel() string {
	return broadcast.TableChannel(r.ID)
}

// loop 命令循环
func (r *Room) loop() {
	defer close(r.done)
	for {
		<-r.queue.notify
		for {
			cmd, ok := r.queue.pop()
			if !ok {
				break
			}
			if !r.dispatch(cmd) {
				r.shutdown()
				return
			}
		}
	}
}

// dispatch applies one command. It returns false once the room is closed.
func (r *Room) dispatch(cmd command) bool {
	switch c := cmd.(type) {
	case joinCmd:
		snap, err := r.handleJoin(c.req)
		c.reply <- joinReply{snap: snap, err: err}
	case spectateCmd:
		snap, err := r.handleSpectate(c.req)
		c.reply <- joinReply{snap: snap, err: err}
	case leaveCmd:
		c.reply <- r.handleLeave(c.playerID)
	case readyCmd:
		c.reply <- r.handleReady(c.playerID, c.ready)
	case disconnectCmd:
		r.handleDisconnect(c.playerID, c.connID)
	case moveCmd:
		c.reply <- r.handleMove(c.playerID, c.move)
	case roundEndCmd:
		c.reply <- r.handleRoundEnd(c.result)
	case nextRoundCmd:
		c.reply <- r.handleNextRound(c.playerID)
	case timerCmd:
		r.handleTimer(c.kind, c.token)
	case botReadyCmd:
		r.handleBotReady(c.playerID, c.token)
	case rematchDoneCmd:
		r.handleRematchDone(c.gen)
	case noticeCmd:
		r.publish(c.event, c.data)
	case zombieCheckCmd:
		c.reply <- r.handleZombieCheck(c.now)
	case snapshotCmd:
		v := View{Snapshot: r.table.Snapshot(), Phase: r.phase, Armed: r.armedKind(), BotTimers: make(map[string]timer.Kind)}
		for id, t := range r.botTimers {
			v.BotTimers[id] = t.Kind
		}
		c.reply <- v
	case retireCmd:
		if !r.table.IsEmpty() || len(r.table.Spectators) > 0 {
			c.reply <- false
			return true
		}
		r.closing.Store(true)
		c.reply <- true
		return false
	case closeCmd:
		return false
	}
	return true
}

func (r *Room) shutdown() {
	r.queue.close()
	r.disarm()
	for id, t := range r.botTimers {
		t.Cancel()
		delete(r.botTimers, id)
	}
	r.stopRematch()
	for _, p := range r.table.Players {
		if p.IsBackfill && r.deps.Backfill != nil {
			r.deps.Backfill.Release(p.PlayerID)
		}
	}
	logger.Log.Infof("room %s closed", r.ID)
}

// submit enqueues and waits for the reply.
func submit[T any](ctx context.Context, r *Room, cmd command, reply chan T) (T, error) {
	var zero T
	if r.closing.Load() || !r.queue.push(cmd) {
		return zero, ErrRoomClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		return zero, ErrRoomClosed
	}
}

func submitErr(ctx context.Context, r *Room, cmd command, reply chan error) error {
	err, serr := submit(ctx, r, cmd, reply)
	if serr != nil {
		return serr
	}
	return err
}

// Join seats a player after the criteria check.
func (r *Room) Join(ctx context.Context, req JoinRequest) (table.Snapshot, error) {
	reply := make(chan joinReply, 1)
	res, err := submit(ctx, r, joinCmd{req: req, reply: reply}, reply)
	if err != nil {
		return table.Snapshot{}, err
	}
	return res.snap, res.err
}

// Spectate subscribes a connection to the table without a seat.
func (r *Room) Spectate(ctx context.Context, req SpectateRequest) (table.Snapshot, error) {
	reply := make(chan joinReply, 1)
	res, err := submit(ctx, r, spectateCmd{req: req, reply: reply}, reply)
	if err != nil {
		return table.Snapshot{}, err
	}
	return res.snap, res.err
}

func (r *Room) Leave(ctx context.Context, playerID string) error {
	reply := make(chan error, 1)
	return submitErr(ctx, r, leaveCmd{playerID: playerID, reply: reply}, reply)
}

func (r *Room) SetReady(ctx context.Context, playerID string, ready bool) error {
	reply := make(chan error, 1)
	return submitErr(ctx, r, readyCmd{playerID: playerID, ready: ready, reply: reply}, reply)
}

// Disconnect is reported by the transport and never waits. connID may be
// empty; otherwise a disconnect from a replaced connection is ignored.
func (r *Room) Disconnect(playerID, connID string) {
	if r.closing.Load() {
		return
	}
	r.queue.push(disconnectCmd{playerID: playerID, connID: connID})
}

func (r *Room) Move(ctx context.Context, playerID string, move json.RawMessage) error {
	reply := make(chan error, 1)
	return submitErr(ctx, r, moveCmd{playerID: playerID, move: move, reply: reply}, reply)
}

// EndRound is the round result callback for collaborators that decide
// outside of HandleMove.
func (r *Room) EndRound(ctx context.Context, result models.RoundResult) error {
	reply := make(chan error, 1)
	return submitErr(ctx, r, roundEndCmd{result: result, reply: reply}, reply)
}

func (r *Room) RequestNextRound(ctx context.Context, playerID string) error {
	reply := make(chan error, 1)
	return submitErr(ctx, r, nextRoundCmd{playerID: playerID, reply: reply}, reply)
}

// CheckZombie evicts everyone if the table has been occupied without play
// for longer than the zombie timeout. It reports whether it did.
func (r *Room) CheckZombie(ctx context.Context, now time.Time) (bool, error) {
	reply := make(chan bool, 1)
	return submit(ctx, r, zombieCheckCmd{now: now, reply: reply}, reply)
}

func (r *Room) Snapshot(ctx context.Context) (table.Snapshot, error) {
	v, err := r.Inspect(ctx)
	return v.Snapshot, err
}

func (r *Room) Inspect(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	return submit(ctx, r, snapshotCmd{reply: reply}, reply)
}

// Close stops the loop after the commands already queued and waits for
// pending stats and settlement work.
func (r *Room) Close() {
	if r.closing.CompareAndSwap(false, true) {
		r.queue.push(closeCmd{})
	}
	<-r.done
	r.async.Wait()
}

// Retire closes the room if it is empty and reports whether it did.
// Commands queued behind it fail with ErrRoomClosed.
func (r *Room) Retire(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	ok, err := submit(ctx, r, retireCmd{reply: reply}, reply)
	if err != nil || !ok {
		return false, err
	}
	<-r.done
	r.async.Wait()
	return true, nil
}

// Done is closed when the loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }
