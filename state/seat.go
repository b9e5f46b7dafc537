package state

import (
	"errors"
	"math/rand"

	"github.com/thoas/go-funk"
)

// SeatStrategy chooses a seat for a joining player.
type SeatStrategy string

const (
	SeatSequential SeatStrategy = "sequential"
	SeatRandom     SeatStrategy = "random"
	SeatSpread     SeatStrategy = "spread"

	UnsetSeat = -1
)

var ErrNoFreeSeat = errors.New("state: no free seat")

// AssignSeat picks a free seat index in [0, capacity) given the occupied ones.
// rnd is only used by SeatRandom and may be nil otherwise.
func AssignSeat(strategy SeatStrategy, occupied []int, capacity int, rnd *rand.Rand) (int, error) {
	free := make([]int, 0, capacity)
	for i := 0; i < capacity; i++ {
		if !funk.ContainsInt(occupied, i) {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return UnsetSeat, ErrNoFreeSeat
	}

	switch strategy {
	case SeatRandom:
		if rnd == nil {
			return free[rand.Intn(len(free))], nil
		}
		return free[rnd.Intn(len(free))], nil
	case SeatSpread:
		return spreadSeat(free, occupied, capacity), nil
	default:
		return free[0], nil
	}
}

// spreadSeat maximizes the ring distance to the nearest occupied seat.
// Ties go to the lowest index.
func spreadSeat(free, occupied []int, capacity int) int {
	if len(occupied) == 0 {
		return free[0]
	}

	best, bestDist := free[0], -1
	for _, seat := range free {
		nearest := capacity
		for _, o := range occupied {
			d := seat - o
			if d < 0 {
				d = -d
			}
			if capacity-d < d {
				d = capacity - d
			}
			if d < nearest {
				nearest = d
			}
		}
		if nearest > bestDist {
			best, bestDist = seat, nearest
		}
	}
	return best
}
