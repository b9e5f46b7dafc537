package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/gamehall/models"
	"github.com/wfunc/gamehall/state"
)

func join(id string) JoinData {
	return JoinData{PlayerID: id, ConnID: "c-" + id, DisplayName: id, Stats: models.NewPlayerStats(id, "chess")}
}

func newTable(max int) *State {
	return New("t1", "beginner", "chess", max, state.SeatSequential)
}

func TestAddPlayerStatusFlow(t *testing.T) {
	s := newTable(2)
	assert.Equal(t, state.StatusIdle, s.Status)

	require.NoError(t, s.AddPlayer(join("a")))
	assert.Equal(t, state.StatusWaiting, s.Status)
	assert.False(t, s.FirstPlayerJoinedAt.IsZero())

	require.NoError(t, s.AddPlayer(join("b")))
	assert.Equal(t, state.StatusMatching, s.Status)
	assert.Equal(t, 0, s.Player("a").SeatIndex)
	assert.Equal(t, 1, s.Player("b").SeatIndex)

	assert.ErrorIs(t, s.AddPlayer(join("c")), ErrTableFull)
	assert.ErrorIs(t, s.AddPlayer(join("a")), ErrAlreadySeated)
	assert.Len(t, s.Players, 2)
}

func TestSingleSeatTable(t *testing.T) {
	s := newTable(1)
	require.NoError(t, s.AddPlayer(join("a")))
	assert.Equal(t, state.StatusMatching, s.Status)
}

func TestFirstOccupantAdoptsPreferences(t *testing.T) {
	s := newTable(2)
	prefs := &state.MatchSettings{Stake: 50, AcceptableStakeRange: state.Range{Min: 10, Max: 100}}

	d := join("a")
	d.Preferences = prefs
	require.NoError(t, s.AddPlayer(d))
	assert.Equal(t, int64(50), s.MatchSettings.Stake)

	// the second occupant's preferences never replace the table's
	d = join("b")
	d.Preferences = &state.MatchSettings{Stake: 999}
	require.NoError(t, s.AddPlayer(d))
	assert.Equal(t, int64(50), s.MatchSettings.Stake)
}

func TestJoinLeaveRoundTrip(t *testing.T) {
	s := newTable(2)
	d := join("a")
	d.Preferences = &state.MatchSettings{Stake: 50}
	require.NoError(t, s.AddPlayer(d))

	assert.True(t, s.RemovePlayer("a"))
	assert.Equal(t, state.StatusIdle, s.Status)
	assert.Equal(t, state.DefaultMatchSettings(), s.MatchSettings)
	assert.True(t, s.FirstPlayerJoinedAt.IsZero())
	assert.False(t, s.RemovePlayer("a"))
}

func TestRemovePlayerRecomputesStatus(t *testing.T) {
	s := newTable(2)
	require.NoError(t, s.AddPlayer(join("a")))
	require.NoError(t, s.AddPlayer(join("b")))
	_, err := s.SetPlayerReady("a", true)
	require.NoError(t, err)
	s.StartReadyWindow(time.Now().Add(30 * time.Second))

	assert.True(t, s.RemovePlayer("b"))
	assert.Equal(t, state.StatusWaiting, s.Status)
	assert.True(t, s.ReadyDeadline.IsZero())
	assert.False(t, s.Player("a").Ready)
}

func TestSetPlayerReady(t *testing.T) {
	s := newTable(2)
	require.NoError(t, s.AddPlayer(join("a")))
	require.NoError(t, s.AddPlayer(join("b")))

	out, err := s.SetPlayerReady("a", true)
	require.NoError(t, err)
	assert.Equal(t, ReadyUpdated, out)

	out, err = s.SetPlayerReady("a", true)
	require.NoError(t, err)
	assert.Equal(t, ReadyUnchanged, out)

	out, err = s.SetPlayerReady("b", true)
	require.NoError(t, err)
	assert.Equal(t, ReadyAllReady, out)

	// repeating the last ready does not signal again
	out, err = s.SetPlayerReady("b", true)
	require.NoError(t, err)
	assert.Equal(t, ReadyUnchanged, out)

	_, err = s.SetPlayerReady("zz", true)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	s.Lock()
	_, err = s.SetPlayerReady("a", false)
	assert.ErrorIs(t, err, ErrTableLocked)
	assert.True(t, s.Player("a").Ready)
}

func TestReadyOnPartialTableIsNotAllReady(t *testing.T) {
	s := newTable(3)
	require.NoError(t, s.AddPlayer(join("a")))
	require.NoError(t, s.AddPlayer(join("b")))
	s.SetPlayerReady("a", true)
	out, err := s.SetPlayerReady("b", true)
	require.NoError(t, err)
	assert.Equal(t, ReadyUpdated, out)
}

func TestCancelReadyWindow(t *testing.T) {
	s := newTable(2)
	require.NoError(t, s.AddPlayer(join("a")))
	require.NoError(t, s.AddPlayer(join("b")))
	s.StartReadyWindow(time.Now().Add(time.Minute))
	s.CancelReadyWindow()
	assert.True(t, s.ReadyDeadline.IsZero())
	assert.Equal(t, state.StatusMatching, s.Status)
}

func TestRoundLifecycle(t *testing.T) {
	s := newTable(2)
	require.NoError(t, s.AddPlayer(join("a")))
	assert.ErrorIs(t, s.BeginRound(), ErrInvalidTransition)

	require.NoError(t, s.AddPlayer(join("b")))
	require.NoError(t, s.BeginRound())
	assert.Equal(t, state.StatusPlaying, s.Status)
	assert.True(t, s.Locked)
	assert.Equal(t, 1, s.RoundNumber)
	assert.ErrorIs(t, s.AddPlayer(join("c")), ErrTableLocked)

	_, err := s.RequestNextRound("a")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.EndRound())
	assert.Equal(t, state.StatusMatching, s.Status)
	assert.False(t, s.Locked)
	assert.ErrorIs(t, s.EndRound(), ErrInvalidTransition)

	agreed, err := s.RequestNextRound("a")
	require.NoError(t, err)
	assert.False(t, agreed)
	agreed, err = s.RequestNextRound("b")
	require.NoError(t, err)
	assert.True(t, agreed)

	require.NoError(t, s.BeginRound())
	assert.Equal(t, 2, s.RoundNumber)
	assert.Empty(t, s.NextRoundRequests)
}

func TestSetStatusRejectsInvalid(t *testing.T) {
	s := newTable(2)
	err := s.SetStatus(state.StatusPlaying)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state.StatusIdle, s.Status)
}

func TestSpectators(t *testing.T) {
	s := newTable(2)
	require.NoError(t, s.AddSpectator(Spectator{PlayerID: "w", ConnID: "c1"}))
	require.NoError(t, s.AddSpectator(Spectator{PlayerID: "w", ConnID: "c2"}))
	assert.Len(t, s.Spectators, 1)
	assert.Equal(t, "c2", s.Spectator("w").ConnID)

	// sitting down turns a spectator into a player
	require.NoError(t, s.AddPlayer(join("w")))
	assert.Empty(t, s.Spectators)
	assert.ErrorIs(t, s.AddSpectator(Spectator{PlayerID: "w"}), ErrAlreadySeated)
}

func TestSnapshotAndSummary(t *testing.T) {
	s := newTable(2)
	d := join("a")
	d.Preferences = &state.MatchSettings{Stake: 20}
	require.NoError(t, s.AddPlayer(d))
	s.AddSpectator(Spectator{PlayerID: "w"})

	snap := s.Snapshot()
	assert.Equal(t, "t1", snap.TableID)
	assert.Equal(t, state.StatusWaiting, snap.Status)
	assert.Equal(t, state.UIOpen, snap.UIStatus)
	assert.Equal(t, int64(20), snap.Stake)
	assert.Equal(t, 1, snap.Spectators)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, models.DefaultRating, snap.Players[0].Rating)

	sum := s.Summary()
	assert.Equal(t, 1, sum.Players)
	assert.Equal(t, 2, sum.MaxPlayers)
}

func TestInvariantsUnderChurn(t *testing.T) {
	s := newTable(3)
	ids := []string{"a", "b", "c", "d", "e"}
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			_ = s.AddPlayer(join(id))
			assert.LessOrEqual(t, len(s.Players), s.MaxPlayers)
			assert.Equal(t, s.Status == state.StatusIdle, s.IsEmpty())
		}
		for _, id := range ids {
			s.RemovePlayer(id)
			assert.Equal(t, s.Status == state.StatusIdle, s.IsEmpty())
		}
	}
}
