package table

import "github.com/wfunc/gamehall/state"

// PlayerView is the public view of a seated player.
type PlayerView struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Seat        int    `json:"seat"`
	Ready       bool   `json:"ready"`
	IsBackfill  bool   `json:"isBackfill"`
	Rating      int    `json:"rating"`
}

// Snapshot is the full per-table view sent to occupants.
type Snapshot struct {
	TableID         string         `json:"tableId"`
	TierID          string         `json:"tierId"`
	GameType        string         `json:"gameType"`
	Status          state.Status   `json:"status"`
	UIStatus        state.UIStatus `json:"uiStatus"`
	Players         []PlayerView   `json:"players"`
	MaxPlayers      int            `json:"maxPlayers"`
	Stake           int64          `json:"stake"`
	Spectators      int            `json:"spectators"`
	ReadyDeadlineMs int64          `json:"readyDeadlineMs,omitempty"`
	Locked          bool           `json:"locked"`
	RoundNumber     int            `json:"roundNumber"`
}

// Summary is one row of a tier's table list.
type Summary struct {
	TableID    string         `json:"tableId"`
	TierID     string         `json:"tierId"`
	Status     state.Status   `json:"status"`
	UIStatus   state.UIStatus `json:"uiStatus"`
	Players    int            `json:"players"`
	MaxPlayers int            `json:"maxPlayers"`
	Stake      int64          `json:"stake"`
}

func (s *State) Snapshot() Snapshot {
	players := make([]PlayerView, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, PlayerView{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Seat:        p.SeatIndex,
			Ready:       p.Ready,
			IsBackfill:  p.IsBackfill,
			Rating:      p.Stats.Rating,
		})
	}
	snap := Snapshot{
		TableID:     s.TableID,
		TierID:      s.TierID,
		GameType:    s.GameType,
		Status:      s.Status,
		UIStatus:    state.DeriveUIStatus(s.Status, len(s.Players), s.MaxPlayers, s.Locked),
		Players:     players,
		MaxPlayers:  s.MaxPlayers,
		Stake:       s.MatchSettings.Stake,
		Spectators:  len(s.Spectators),
		Locked:      s.Locked,
		RoundNumber: s.RoundNumber,
	}
	if !s.ReadyDeadline.IsZero() {
		snap.ReadyDeadlineMs = s.ReadyDeadline.UnixMilli()
	}
	return snap
}

func (s *State) Summary() Summary {
	return Summary{
		TableID:    s.TableID,
		TierID:     s.TierID,
		Status:     s.Status,
		UIStatus:   state.DeriveUIStatus(s.Status, len(s.Players), s.MaxPlayers, s.Locked),
		Players:    len(s.Players),
		MaxPlayers: s.MaxPlayers,
		Stake:      s.MatchSettings.Stake,
	}
}
