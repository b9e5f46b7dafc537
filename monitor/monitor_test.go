package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/state"
)

func TestObserverCounters(t *testing.T) {
	m := NewMonitor("test")

	m.StatusChanged("relay", state.StatusIdle, state.StatusWaiting)
	m.StatusChanged("relay", state.StatusWaiting, state.StatusMatching)
	m.StatusChanged("relay", state.StatusMatching, state.StatusPlaying)
	m.RoundStarted("relay")
	m.RoundEnded("relay", 30*time.Second)
	m.PlayerKicked("relay", "READY_TIMEOUT")
	m.JoinRejected("relay", "ROOM_FULL")
	m.BackfillSeated("relay")
	m.TablesChanged("relay", "novice", 3)
	m.QueueDepth("relay", 2)

	mt := m.Metrics()
	assert.Equal(t, 0.0, testutil.ToFloat64(mt.TablesByStatus.WithLabelValues("relay", "WAITING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.TablesByStatus.WithLabelValues("relay", "PLAYING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.RoundsStarted.WithLabelValues("relay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.Kicks.WithLabelValues("relay", "READY_TIMEOUT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(mt.Tables.WithLabelValues("relay", "novice")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mt.QueueDepth.WithLabelValues("relay")))
}

func TestHandlerServesOwnRegistry(t *testing.T) {
	m := NewMonitor("gamehall")
	// a second monitor must not collide with the first
	_ = NewMonitor("gamehall")

	m.IncOnlinePlayers()
	m.IncMessagesReceived()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "gamehall_online_players 1"))
	assert.True(t, strings.Contains(string(body), "gamehall_messages_received_total 1"))
}
