package state

import (
	"errors"
	"fmt"
)

// Status is the lifecycle status of a table.
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusWaiting  Status = "WAITING"
	StatusMatching Status = "MATCHING"
	StatusPlaying  Status = "PLAYING"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// transitions from -> allowed targets. PLAYING -> PLAYING starts a new round.
var transitions = map[Status]map[Status]bool{
	StatusIdle:     {StatusWaiting: true},
	StatusWaiting:  {StatusMatching: true, StatusIdle: true},
	StatusMatching: {StatusPlaying: true, StatusWaiting: true, StatusIdle: true},
	StatusPlaying:  {StatusMatching: true, StatusIdle: true, StatusPlaying: true},
}

// TransitionResult is the verdict of IsValidTransition.
type TransitionResult struct {
	Valid  bool
	Reason string
}

// Err converts an invalid result into an error wrapping ErrTransitionNotAllowed.
func (r TransitionResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTransitionNotAllowed, r.Reason)
}

func IsValidTransition(from, to Status) TransitionResult {
	targets, ok := transitions[from]
	if !ok {
		return TransitionResult{Reason: fmt.Sprintf("unknown status %q", from)}
	}
	if !targets[to] {
		return TransitionResult{Reason: fmt.Sprintf("%s -> %s is not allowed", from, to)}
	}
	return TransitionResult{Valid: true}
}

// NextStatusOnJoin returns the status after a join leaves countAfter players
// seated. The second value is false when the status does not change.
func NextStatusOnJoin(countAfter, maxPlayers int) (Status, bool) {
	switch {
	case countAfter >= maxPlayers:
		return StatusMatching, true
	case countAfter == 1:
		return StatusWaiting, true
	default:
		return "", false
	}
}

// NextStatusOnLeave returns the status after a leave leaves countAfter players.
func NextStatusOnLeave(countAfter, maxPlayers int) (Status, bool) {
	switch {
	case countAfter <= 0:
		return StatusIdle, true
	case countAfter < maxPlayers:
		return StatusWaiting, true
	default:
		return "", false
	}
}

// DeriveStatus is the status implied by occupancy alone.
func DeriveStatus(count, maxPlayers int, roundActive bool) Status {
	switch {
	case count <= 0:
		return StatusIdle
	case roundActive:
		return StatusPlaying
	case count >= maxPlayers:
		return StatusMatching
	default:
		return StatusWaiting
	}
}
