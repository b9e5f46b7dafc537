// Package table holds the mutable record of one game table. It has no
// timers and no locking; a single room actor owns each State.
package table

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
)

var (
	ErrTableFull         = errors.New("table: table is full")
	ErrAlreadySeated     = errors.New("table: player already seated")
	ErrPlayerNotFound    = errors.New("table: player not found")
	ErrTableLocked       = errors.New("table: table is locked")
	ErrInvalidTransition = errors.New("table: invalid transition")
)

// Player is a seated occupant.
type Player struct {
	PlayerID    string
	ConnID      string
	DisplayName string
	Ready       bool
	SeatIndex   int
	IsBackfill  bool
	JoinedAt    time.Time
	Stats       models.PlayerStats
	Preferences *state.MatchSettings
}

// Spectator watches a table without a seat.
type Spectator struct {
	PlayerID    string
	ConnID      string
	DisplayName string
	JoinedAt    time.Time
}

// JoinData is what AddPlayer needs to seat someone.
type JoinData struct {
	PlayerID    string
	ConnID      string
	DisplayName string
	IsBackfill  bool
	Stats       models.PlayerStats
	Preferences *state.MatchSettings
}

// ReadyOutcome is returned by SetPlayerReady.
type ReadyOutcome int

const (
	ReadyUnchanged ReadyOutcome = iota
	ReadyUpdated
	// ReadyAllReady: this call made the last not-ready player of a full table ready.
	ReadyAllReady
)

type State struct {
	TableID      string
	TierID       string
	GameType     string
	MaxPlayers   int
	SeatStrategy state.SeatStrategy

	Players    []*Player // join order
	Spectators []*Spectator
	Status     state.Status

	MatchSettings       state.MatchSettings
	ReadyDeadline       time.Time
	FirstPlayerJoinedAt time.Time

	Locked            bool
	RoundActive       bool
	RoundNumber       int
	NextRoundRequests map[string]bool

	rnd *rand.Rand
	now func() time.Time
}

func New(tableID, tierID, gameType string, maxPlayers int, strategy state.SeatStrategy) *State {
	if maxPlayers <= 0 {
		maxPlayers = 2
	}
	return &State{
		TableID:           tableID,
		TierID:            tierID,
		GameType:          gameType,
		MaxPlayers:        maxPlayers,
		SeatStrategy:      strategy,
		Status:            state.StatusIdle,
		MatchSettings:     state.DefaultMatchSettings(),
		NextRoundRequests: make(map[string]bool),
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
		now:               time.Now,
	}
}

// SetClock replaces the time source, used by tests.
func (s *State) SetClock(now func() time.Time) { s.now = now }

func (s *State) IsFull() bool  { return len(s.Players) >= s.MaxPlayers }
func (s *State) IsEmpty() bool { return len(s.Players) == 0 }

func (s *State) Player(playerID string) *Player {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (s *State) Spectator(playerID string) *Spectator {
	for _, sp := range s.Spectators {
		if sp.PlayerID == playerID {
			return sp
		}
	}
	return nil
}

func (s *State) HumanCount() int {
	n := 0
	for _, p := range s.Players {
		if !p.IsBackfill {
			n++
		}
	}
	return n
}

// AllReady is true when the table has occupants and every one of them is ready.
func (s *State) AllReady() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (s *State) NotReady() []*Player {
	var out []*Player
	for _, p := range s.Players {
		if !p.Ready {
			out = append(out, p)
		}
	}
	return out
}

// AddPlayer seats a player. Criteria checks are the caller's job.
func (s *State) AddPlayer(data JoinData) error {
	if s.Player(data.PlayerID) != nil {
		return ErrAlreadySeated
	}
	if s.Locked || s.RoundActive {
		return ErrTableLocked
	}
	if s.IsFull() {
		return ErrTableFull
	}

	occupied := make([]int, 0, len(s.Players))
	for _, p := range s.Players {
		occupied = append(occupied, p.SeatIndex)
	}
	seat, err := state.AssignSeat(s.SeatStrategy, occupied, s.MaxPlayers, s.rnd)
	if err != nil {
		return ErrTableFull
	}

	first := s.IsEmpty()
	if target, ok := state.NextStatusOnJoin(len(s.Players)+1, s.MaxPlayers); ok {
		if err := s.walkTo(target); err != nil {
			return err
		}
	}

	now := s.now()
	if first {
		s.FirstPlayerJoinedAt = now
		if data.Preferences != nil {
			s.MatchSettings = *data.Preferences
		}
	}
	s.RemoveSpectator(data.PlayerID)
	s.Players = append(s.Players, &Player{
		PlayerID:    data.PlayerID,
		ConnID:      data.ConnID,
		DisplayName: data.DisplayName,
		SeatIndex:   seat,
		IsBackfill:  data.IsBackfill,
		JoinedAt:    now,
		Stats:       data.Stats,
		Preferences: data.Preferences,
	})
	return nil
}

// RemovePlayer unseats a player and recomputes the status. Removal is never
// refused; a running round must be ended by the caller beforehand.
func (s *State) RemovePlayer(playerID string) bool {
	idx := -1
	for i, p := range s.Players {
		if p.PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	delete(s.NextRoundRequests, playerID)
	s.ReadyDeadline = time.Time{}
	s.Locked = false
	s.RoundActive = false

	if s.IsEmpty() {
		s.Status = state.StatusIdle
		s.MatchSettings = state.DefaultMatchSettings()
		s.FirstPlayerJoinedAt = time.Time{}
		s.RoundNumber = 0
		s.ClearNextRoundRequests()
		return true
	}

	if s.Status == state.StatusPlaying {
		s.Status = state.StatusMatching
	}
	if target, ok := state.NextStatusOnLeave(len(s.Players), s.MaxPlayers); ok && target != s.Status {
		s.Status = target
	}
	if !s.IsFull() {
		s.ResetReadyFlags()
	}
	return true
}

// SetPlayerReady toggles a ready flag. Toggling is refused while the table is
// locked for a game start or a round is running.
func (s *State) SetPlayerReady(playerID string, ready bool) (ReadyOutcome, error) {
	p := s.Player(playerID)
	if p == nil {
		return ReadyUnchanged, ErrPlayerNotFound
	}
	if s.Locked || s.RoundActive {
		return ReadyUnchanged, ErrTableLocked
	}
	if p.Ready == ready {
		return ReadyUnchanged, nil
	}
	p.Ready = ready
	if ready && s.IsFull() && s.AllReady() {
		return ReadyAllReady, nil
	}
	return ReadyUpdated, nil
}

func (s *State) ResetReadyFlags() {
	for _, p := range s.Players {
		p.Ready = false
	}
}

func (s *State) StartReadyWindow(deadline time.Time) {
	s.ReadyDeadline = deadline
}

// CancelReadyWindow clears the deadline and restores WAITING or MATCHING
// per occupancy.
func (s *State) CancelReadyWindow() {
	s.ReadyDeadline = time.Time{}
	if s.RoundActive {
		return
	}
	s.Status = state.DeriveStatus(len(s.Players), s.MaxPlayers, false)
}

func (s *State) Lock()   { s.Locked = true }
func (s *State) Unlock() { s.Locked = false }

// SetStatus applies a validated transition.
func (s *State) SetStatus(to state.Status) error {
	res := state.IsValidTransition(s.Status, to)
	if !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, res.Reason)
	}
	s.Status = to
	return nil
}

// walkTo moves along valid transitions, passing through WAITING when a single
// seat table goes straight from empty to full.
func (s *State) walkTo(target state.Status) error {
	if s.Status == target {
		return nil
	}
	if s.Status == state.StatusIdle && target == state.StatusMatching {
		if err := s.SetStatus(state.StatusWaiting); err != nil {
			return err
		}
	}
	return s.SetStatus(target)
}

// BeginRound moves the table into PLAYING and holds the lock for the round.
func (s *State) BeginRound() error {
	if !s.IsFull() {
		return fmt.Errorf("%w: %d of %d seats taken", ErrInvalidTransition, len(s.Players), s.MaxPlayers)
	}
	if err := s.SetStatus(state.StatusPlaying); err != nil {
		return err
	}
	s.RoundActive = true
	s.Locked = true
	s.RoundNumber++
	s.ReadyDeadline = time.Time{}
	s.ClearNextRoundRequests()
	return nil
}

// EndRound returns the table to MATCHING after a round. The zombie clock
// restarts so a table that just played is not swept immediately.
func (s *State) EndRound() error {
	if !s.RoundActive {
		return fmt.Errorf("%w: no round in progress", ErrInvalidTransition)
	}
	if err := s.SetStatus(state.StatusMatching); err != nil {
		return err
	}
	s.RoundActive = false
	s.Locked = false
	s.ResetReadyFlags()
	s.FirstPlayerJoinedAt = s.now()
	return nil
}

func (s *State) AddSpectator(sp Spectator) error {
	if s.Player(sp.PlayerID) != nil {
		return ErrAlreadySeated
	}
	if existing := s.Spectator(sp.PlayerID); existing != nil {
		existing.ConnID = sp.ConnID
		existing.DisplayName = sp.DisplayName
		return nil
	}
	if sp.JoinedAt.IsZero() {
		sp.JoinedAt = s.now()
	}
	s.Spectators = append(s.Spectators, &sp)
	return nil
}

func (s *State) RemoveSpectator(playerID string) bool {
	for i, sp := range s.Spectators {
		if sp.PlayerID == playerID {
			s.Spectators = append(s.Spectators[:i], s.Spectators[i+1:]...)
			return true
		}
	}
	return false
}

// RequestNextRound records consent for another round. allAgreed is true once
// every occupant of a full table has asked.
func (s *State) RequestNextRound(playerID string) (allAgreed bool, err error) {
	if s.Player(playerID) == nil {
		return false, ErrPlayerNotFound
	}
	if s.RoundActive || s.Status != state.StatusMatching {
		return false, fmt.Errorf("%w: next round requested in %s", ErrInvalidTransition, s.Status)
	}
	s.NextRoundRequests[playerID] = true
	if !s.IsFull() {
		return false, nil
	}
	for _, p := range s.Players {
		if !s.NextRoundRequests[p.PlayerID] {
			return false, nil
		}
	}
	return true, nil
}

func (s *State) ClearNextRoundRequests() {
	s.NextRoundRequests = make(map[string]bool)
}
