package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
	"github.com/wfunc/gamehall/timer"
)

// command is anything the room loop executes. Commands are applied one at a
// time in arrival order.
type command interface{ isRoomCmd() }

// JoinRequest seats a player. Stats is loaded through the StatsProvider
// when nil.
type JoinRequest struct {
	PlayerID    string
	ConnID      string
	DisplayName string
	Settings    *state.MatchSettings
	Stats       *models.PlayerStats
	IsBackfill  bool
}

type SpectateRequest struct {
	PlayerID    string
	ConnID      string
	DisplayName string
}

// View is a consistent read of the room for tests and admin tooling.
type View struct {
	Snapshot table.Snapshot
	Phase    Phase
	Armed    timer.Kind

	// pending self-ready timers of backfill participants
	BotTimers map[string]timer.Kind
}

type joinReply struct {
	snap table.Snapshot
	err  error
}

type joinCmd struct {
	req   JoinRequest
	reply chan joinReply
}

type spectateCmd struct {
	req   SpectateRequest
	reply chan joinReply
}

type leaveCmd struct {
	playerID string
	reply    chan error
}

type readyCmd struct {
	playerID string
	ready    bool
	reply    chan error
}

type disconnectCmd struct {
	playerID string
	connID   string
}

type moveCmd struct {
	playerID string
	move     json.RawMessage
	reply    chan error
}

type roundEndCmd struct {
	result models.RoundResult
	reply  chan error
}

type nextRoundCmd struct {
	playerID string
	reply    chan error
}

type timerCmd struct {
	kind  timer.Kind
	token uint64
}

type botReadyCmd struct {
	playerID string
	token    uint64
}

// rematchDoneCmd reports that every seat of consent window gen agreed.
type rematchDoneCmd struct {
	gen uint64
}

// noticeCmd publishes an event produced off the loop, e.g. by the
// asynchronous stats update.
type noticeCmd struct {
	event string
	data  any
}

type zombieCheckCmd struct {
	now   time.Time
	reply chan bool
}

type snapshotCmd struct {
	reply chan View
}

type closeCmd struct{}

// retireCmd closes the room only if nobody is in it.
type retireCmd struct {
	reply chan bool
}

func (joinCmd) isRoomCmd()        {}
func (spectateCmd) isRoomCmd()    {}
func (leaveCmd) isRoomCmd()       {}
func (readyCmd) isRoomCmd()       {}
func (disconnectCmd) isRoomCmd()  {}
func (moveCmd) isRoomCmd()        {}
func (roundEndCmd) isRoomCmd()    {}
func (nextRoundCmd) isRoomCmd()   {}
func (timerCmd) isRoomCmd()       {}
func (botReadyCmd) isRoomCmd()    {}
func (rematchDoneCmd) isRoomCmd() {}
func (noticeCmd) isRoomCmd()      {}
func (zombieCheckCmd) isRoomCmd() {}
func (snapshotCmd) isRoomCmd()    {}
func (closeCmd) isRoomCmd()       {}
func (retireCmd) isRoomCmd()      {}

// commandQueue is an unbounded FIFO with a single consumer. push never
// blocks, so timer callbacks and other tables can always enqueue.
type commandQueue struct {
	mutex  sync.Mutex
	items  []command
	notify chan struct{}
	closed bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{notify: make(chan struct{}, 1)}
}

func (q *commandQueue) push(cmd command) bool {
	q.mutex.Lock()
	if q.closed {
		q.mutex.Unlock()
		return false
	}
	q.items = append(q.items, cmd)
	q.mutex.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// pop returns the oldest command, or false when the queue is empty.
func (q *commandQueue) pop() (command, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) close() {
	q.mutex.Lock()
	q.closed = true
	q.items = nil
	q.mutex.Unlock()
}

func (q *commandQueue) len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
