package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/models"
)

func newRound(t *testing.T, round int) *Relay {
	r := NewRelay().(*Relay)
	payload, err := r.InitRound(RoundContext{
		TableID:     "t1",
		GameType:    "chess",
		RoundNumber: round,
		Players: []models.RoundPlayer{
			{PlayerID: "a", Seat: 0},
			{PlayerID: "b", Seat: 1},
		},
	})
	require.NoError(t, err)
	require.IsType(t, RoundStart{}, payload)
	return r
}

func TestRelayTurnOrder(t *testing.T) {
	r := newRound(t, 1)

	_, err := r.HandleMove("b", json.RawMessage(`{"type":"place","body":{"x":1}}`))
	assert.ErrorIs(t, err, ErrNotYourTurn)

	out, err := r.HandleMove("a", json.RawMessage(`{"type":"place","body":{"x":1}}`))
	require.NoError(t, err)
	assert.Nil(t, out.Result)
	moved := out.Broadcast.(MoveRelayed)
	assert.Equal(t, "b", moved.Next)

	_, err = r.HandleMove("a", json.RawMessage(`not json`))
	assert.ErrorIs(t, err, ErrBadMove)
}

func TestRelayAlternatesFirstTurn(t *testing.T) {
	r := NewRelay()
	payload, err := r.InitRound(RoundContext{RoundNumber: 2, Players: []models.RoundPlayer{{PlayerID: "a"}, {PlayerID: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, "b", payload.(RoundStart).Turn)
}

func TestRelayResignAndFinish(t *testing.T) {
	r := newRound(t, 1)
	out, err := r.HandleMove("b", json.RawMessage(`{"type":"resign"}`))
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, "a", out.Result.WinnerID)
	assert.Equal(t, models.OutcomeLose, out.Result.OutcomeFor("b"))

	_, err = r.HandleMove("a", json.RawMessage(`{"type":"place"}`))
	assert.ErrorIs(t, err, ErrNoRound)

	r = newRound(t, 1)
	out, err = r.HandleMove("a", json.RawMessage(`{"type":"finish"}`))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDraw, out.Result.OutcomeFor("a"))

	r = newRound(t, 1)
	_, err = r.HandleMove("a", json.RawMessage(`{"type":"finish","winner":"zz"}`))
	assert.ErrorIs(t, err, ErrBadMove)
}

func TestRelayAdjudicateDisconnect(t *testing.T) {
	r := newRound(t, 1)
	var adj DisconnectAdjudicator = r
	res := adj.AdjudicateDisconnect("a")
	require.NotNil(t, res)
	assert.Equal(t, "b", res.WinnerID)
	assert.Equal(t, []string{"a"}, res.Forfeits)
	assert.Nil(t, adj.AdjudicateDisconnect("a"))
}
