package room

import (
	"sync"

	"github.com/weedbox/syncsaga"
)

// consent is one rematch window. Each window gets its own ReadyGroup; the
// group is never reconfigured after Start.
//
// The group stops itself from its completed callback. That callback runs
// after the group's worker has picked up its action channel, so Stop cannot
// overlap with the worker starting. ready and the callback share mutex so a
// Ready never lands on a closed channel.
type consent struct {
	gen   uint64
	seats []int64

	mutex   sync.Mutex
	rg      *syncsaga.ReadyGroup
	stopped bool
}

func newConsent(gen uint64, seats []int, completed func(gen uint64)) *consent {
	c := &consent{gen: gen}
	c.rg = syncsaga.NewReadyGroup(
		syncsaga.WithCompletedCallback(func(rg *syncsaga.ReadyGroup) {
			c.mutex.Lock()
			if c.stopped {
				c.mutex.Unlock()
				return
			}
			c.stopped = true
			rg.Stop()
			c.mutex.Unlock()
			completed(gen)
		}),
	)
	for _, s := range seats {
		c.seats = append(c.seats, int64(s))
		c.rg.Add(int64(s), false)
	}
	c.rg.Start()
	return c
}

func (c *consent) ready(seat int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		return
	}
	c.rg.Ready(int64(seat))
}

// abandon drives the group to completion so its worker exits. The window's
// generation is already stale when the completion arrives.
func (c *consent) abandon() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		return
	}
	for _, s := range c.seats {
		c.rg.Ready(s)
	}
	if len(c.seats) == 0 {
		c.rg.Ready(-1)
	}
}

