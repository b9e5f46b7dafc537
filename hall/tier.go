package hall

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/state"
	"github.com/wfunc/gamehall/table"
)

// TierConfig is a rating bracket. MaxRating 0 means no upper bound.
type TierConfig struct {
	ID            string `mapstructure:"id" json:"id"`
	DisplayName   string `mapstructure:"display_name" json:"displayName"`
	MinRating     int    `mapstructure:"min_rating" json:"minRating"`
	MaxRating     int    `mapstructure:"max_rating" json:"maxRating"`
	InitialTables int    `mapstructure:"initial_tables" json:"-"`
	MaxTables     int    `mapstructure:"max_tables" json:"-"` // 0 不限
}

// Admits reports whether a player with rating may sit in the tier.
func (c TierConfig) Admits(rating int) bool {
	return rating >= c.MinRating && (c.MaxRating == 0 || rating <= c.MaxRating)
}

// indexHeap 回收的桌号，小的先复用
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type slot struct {
	index int
	room  *room.Room
}

// Tier owns the table pool of one bracket.
type Tier struct {
	TierConfig
	gameType string

	mutex  sync.Mutex
	tables map[string]slot
	free   indexHeap
	next   int
}

func newTier(gameType string, cfg TierConfig) *Tier {
	return &Tier{
		TierConfig: cfg,
		gameType:   gameType,
		tables:     make(map[string]slot),
	}
}

func (t *Tier) tableID(index int) string {
	return fmt.Sprintf("%s-%s-%d", t.gameType, t.ID, index)
}

// allocate creates a table at the smallest free index. It returns nil
// when the tier is at MaxTables.
func (t *Tier) allocate(create func(tableID string) *room.Room) *room.Room {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.MaxTables > 0 && len(t.tables) >= t.MaxTables {
		return nil
	}
	var index int
	if t.free.Len() > 0 {
		index = heap.Pop(&t.free).(int)
	} else {
		index = t.next
		t.next++
	}
	id := t.tableID(index)
	r := create(id)
	t.tables[id] = slot{index: index, room: r}
	return r
}

// release returns a retired table's index to the pool.
func (t *Tier) release(tableID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if s, ok := t.tables[tableID]; ok {
		delete(t.tables, tableID)
		heap.Push(&t.free, s.index)
	}
}

func (t *Tier) table(tableID string) (*room.Room, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	s, ok := t.tables[tableID]
	return s.room, ok
}

// rooms returns the pool ordered by index.
func (t *Tier) rooms() []*room.Room {
	t.mutex.Lock()
	slots := make([]slot, 0, len(t.tables))
	for _, s := range t.tables {
		slots = append(slots, s)
	}
	t.mutex.Unlock()

	sort.Slice(slots, func(i, j int) bool { return slots[i].index < slots[j].index })
	out := make([]*room.Room, len(slots))
	for i, s := range slots {
		out[i] = s.room
	}
	return out
}

func (t *Tier) size() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.tables)
}

func (t *Tier) summaries() []table.Summary {
	rooms := t.rooms()
	out := make([]table.Summary, len(rooms))
	for i, r := range rooms {
		out[i] = r.Summary()
	}
	return out
}

// candidates orders tables for auto-join: tables with someone waiting
// first, then empty ones.
func (t *Tier) candidates() []*room.Room {
	var waiting, empty []*room.Room
	for _, r := range t.rooms() {
		s := r.Summary()
		switch {
		case s.Players == 0:
			empty = append(empty, r)
		case s.Status == state.StatusWaiting && s.Players < s.MaxPlayers:
			waiting = append(waiting, r)
		}
	}
	return append(waiting, empty...)
}

// emptyTable returns the lowest indexed empty table, if any.
func (t *Tier) emptyTable() *room.Room {
	for _, r := range t.rooms() {
		if r.Summary().Players == 0 {
			return r
		}
	}
	return nil
}
