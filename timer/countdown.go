package timer

import (
	"sync"
	"time"

	"github.com/weedbox/timebank"
)

// Kind identifies what a table countdown is waiting for.
type Kind string

const (
	KindReadyCheck Kind = "READY_CHECK"
	KindGameStart  Kind = "GAME_START"
	KindBackfill   Kind = "BACKFILL"
	KindRematch    Kind = "REMATCH"
	KindBotReady   Kind = "BOT_READY"
)

// Countdown is one armed table timer. Token identifies this arming so that a
// fire racing a cancel can be told apart from the current timer.
type Countdown struct {
	Kind     Kind
	Deadline time.Time
	Token    uint64

	tb   *timebank.TimeBank
	once sync.Once
}

// StartCountdown arms a countdown that calls fire(kind, token) once the
// duration elapses, unless it is cancelled first.
func StartCountdown(kind Kind, token uint64, d time.Duration, fire func(Kind, uint64)) (*Countdown, error) {
	c := &Countdown{
		Kind:     kind,
		Deadline: time.Now().Add(d),
		Token:    token,
		tb:       timebank.NewTimeBank(),
	}
	err := c.tb.NewTask(d, func(isCancelled bool) {
		if isCancelled {
			return
		}
		fire(kind, token)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Cancel is safe on nil, fired and already cancelled countdowns.
func (c *Countdown) Cancel() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.tb.Cancel()
	})
}

func (c *Countdown) Remaining(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	if r := c.Deadline.Sub(now); r > 0 {
		return r
	}
	return 0
}
