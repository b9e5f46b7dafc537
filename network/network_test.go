package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	msg, err := Encode(EventGameCountdown, CountdownPayload{Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"game_countdown","data":{"count":3}}`, string(msg))

	msg, err = Encode(EventGameLocked, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"game_locked","data":{}}`, string(msg))
}

func TestEnvelopeDecode(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event":"get_rooms","data":{"tierId":"pro"}}`), &env))

	var body struct {
		TierID string `json:"tierId"`
	}
	require.NoError(t, env.Decode(&body))
	assert.Equal(t, "pro", body.TierID)

	empty := Envelope{Event: EventPing}
	assert.NoError(t, empty.Decode(&body))
}

func TestSplitGameEvent(t *testing.T) {
	gt, sfx, ok := SplitGameEvent("chess_join")
	require.True(t, ok)
	assert.Equal(t, "chess", gt)
	assert.Equal(t, SuffixJoin, sfx)

	gt, sfx, ok = SplitGameEvent(GameEvent("five_in_row", SuffixMove))
	require.True(t, ok)
	assert.Equal(t, "five_in_row", gt)
	assert.Equal(t, SuffixMove, sfx)

	_, _, ok = SplitGameEvent("player_ready")
	assert.False(t, ok)
	_, _, ok = SplitGameEvent("_join")
	assert.False(t, ok)
}

func TestWSConnectionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConn := make(chan *WSConnection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn <- NewWSConnection("conn-1", ws, 4)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var conn *WSConnection
	select {
	case conn = <-serverConn:
	case <-time.After(time.Second):
		t.Fatal("no server connection")
	}
	defer conn.Close()
	assert.Equal(t, "conn-1", conn.ID())

	require.NoError(t, conn.Send(EventPong, nil))
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong","data":{}}`, string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	env, err := conn.ReadEnvelope()
	require.NoError(t, err)
	assert.Equal(t, EventPing, env.Event)

	conn.Close()
	assert.ErrorIs(t, conn.SendRaw([]byte("x")), ErrConnectionClosed)
}
