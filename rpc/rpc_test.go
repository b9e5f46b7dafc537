package rpc

import (
	"context"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/hall"
	"github.com/wfunc/gamehall/persistence"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/services"
)

func TestGameServiceOverTCP(t *testing.T) {
	stats := services.NewStatsService(persistence.NewMemory(), services.NewEloCalculator(0))
	h := hall.New(hall.Deps{Stats: stats})
	cfg := room.DefaultConfig("relay")
	cfg.Backfill.Enabled = false
	require.NoError(t, h.Register(hall.CenterConfig{
		GameType: "relay",
		Room:     cfg,
		Tiers: []hall.TierConfig{
			{ID: "novice", MaxRating: 1399, InitialTables: 2},
			{ID: "expert", MinRating: 1400, InitialTables: 1},
		},
	}))
	defer h.Close()

	_, err := h.Join(context.Background(), "relay", "novice", "", room.JoinRequest{PlayerID: "alice", ConnID: "c1"})
	require.NoError(t, err)

	srv, err := NewServer("127.0.0.1:0", NewGameService(stats, h))
	require.NoError(t, err)
	go srv.Start()
	defer srv.Stop()

	client, err := rpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	var stReply GetPlayerStatsReply
	require.NoError(t, client.Call("GameService.GetPlayerStats", &GetPlayerStatsArgs{PlayerID: "alice", GameType: "relay"}, &stReply))
	assert.Equal(t, "alice", stReply.Stats.PlayerID)
	require.NotNil(t, stReply.Location)
	assert.Equal(t, "relay-novice-0", stReply.Location.TableID)

	var tables ListTablesReply
	require.NoError(t, client.Call("GameService.ListTables", &ListTablesArgs{GameType: "relay"}, &tables))
	assert.Len(t, tables.Tables, 3)

	err = client.Call("GameService.ListTables", &ListTablesArgs{GameType: "chess"}, &tables)
	assert.Error(t, err)
}
