package state

import "time"

const DefaultZombieTimeout = 300 * time.Second

// IsZombie reports whether a table has been occupied without ever reaching
// play for longer than timeout.
func IsZombie(firstJoinedAt time.Time, status Status, now time.Time, timeout time.Duration) bool {
	if status == StatusPlaying || firstJoinedAt.IsZero() {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultZombieTimeout
	}
	return now.Sub(firstJoinedAt) >= timeout
}

// BackfillDelay scales the wait before a backfill opponent is requested by
// the first occupant's rating: min at 1000 or below, max at 2000 or above.
func BackfillDelay(rating int, min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	frac := float64(rating-1000) / 1000
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return min + time.Duration(frac*float64(max-min))
}

// MatchPolicy controls queue pairing by rating.
type MatchPolicy struct {
	RatingThreshold  int
	RelaxAfter       time.Duration
	RelaxedThreshold int // 0 means any difference once relaxed
}

func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{RatingThreshold: 300, RelaxAfter: 30 * time.Second}
}

// RatingCompatible reports whether two queued players are close enough in
// rating given how long each has waited.
func RatingCompatible(a, b int, waitA, waitB time.Duration, p MatchPolicy) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff <= p.RatingThreshold {
		return true
	}
	if p.RelaxAfter > 0 && (waitA >= p.RelaxAfter || waitB >= p.RelaxAfter) {
		return p.RelaxedThreshold <= 0 || diff <= p.RelaxedThreshold
	}
	return false
}
