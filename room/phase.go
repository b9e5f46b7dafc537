package room

import (
	"time"

	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/timer"
)

// Phase is the single authority on which timer a room may have armed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBackfill
	PhaseReadyCheck
	PhaseCountdown
	PhaseRound
	PhaseRematch
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBackfill:
		return "backfill"
	case PhaseReadyCheck:
		return "ready_check"
	case PhaseCountdown:
		return "countdown"
	case PhaseRound:
		return "round"
	case PhaseRematch:
		return "rematch"
	default:
		return "unknown"
	}
}

// arm replaces the phase timer. The previous one is cancelled first, so at
// most one of them is ever armed.
func (r *Room) arm(phase Phase, kind timer.Kind, d time.Duration) {
	r.disarm()
	r.tokens++
	token := r.tokens
	c, err := timer.StartCountdown(kind, token, d, func(k timer.Kind, tok uint64) {
		r.queue.push(timerCmd{kind: k, token: tok})
	})
	if err != nil {
		logger.Log.Errorf("room %s: arm %s: %v", r.ID, kind, err)
		r.phase = PhaseIdle
		return
	}
	r.countdown = c
	r.phase = phase
}

// disarm cancels the phase timer if any. It leaves the phase untouched.
func (r *Room) disarm() {
	if r.countdown != nil {
		r.countdown.Cancel()
		r.countdown = nil
	}
}

func (r *Room) armedKind() timer.Kind {
	if r.countdown == nil {
		return ""
	}
	return r.countdown.Kind
}

// current reports whether a fired timer still belongs to the armed countdown.
func (r *Room) current(kind timer.Kind, token uint64) bool {
	return r.countdown != nil && r.countdown.Kind == kind && r.countdown.Token == token
}

func (r *Room) handleTimer(kind timer.Kind, token uint64) {
	if !r.current(kind, token) {
		logger.Log.Debugf("room %s: stale %s timer %d ignored", r.ID, kind, token)
		return
	}
	r.countdown = nil

	switch kind {
	case timer.KindBackfill:
		r.onBackfillDue()
	case timer.KindReadyCheck:
		r.onReadyCheckExpired()
	case timer.KindGameStart:
		r.onCountdownTick()
	case timer.KindRematch:
		r.onRematchExpired()
	}
}

// randomDelay returns a duration in [min, max].
func (r *Room) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.rnd.Int63n(int64(max-min)+1))
}
