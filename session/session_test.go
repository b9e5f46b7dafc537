package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/gamehall/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	events []string
}

func (m *MockConnection) ID() string { return "mock" }
func (m *MockConnection) Send(event string, data any) error {
	m.events = append(m.events, event)
	return nil
}
func (m *MockConnection) SendRaw(msg []byte) error                  { return nil }
func (m *MockConnection) Close() error                              { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                      { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)       {}
func (m *MockConnection) ReadEnvelope() (*network.Envelope, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	require.NotNil(t, manager)
	assert.NotNil(t, manager.sessions)
	assert.Zero(t, manager.Count())
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	assert.Equal(t, 1, manager.Count())

	got, exists := manager.Get(sessionID)
	require.True(t, exists)
	assert.Same(t, sess, got)

	manager.Remove(sessionID)
	_, exists = manager.Get(sessionID)
	assert.False(t, exists)
}

func TestManager_GetByPlayerID(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.PlayerID = "alice"
	sess2 := NewSession("session2", &MockConnection{})
	sess2.PlayerID = "bob"
	sess3 := NewSession("session3", &MockConnection{})
	sess3.PlayerID = "alice"

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	assert.Len(t, manager.GetByPlayerID("alice"), 2)
	assert.Len(t, manager.GetByPlayerID("bob"), 1)
	assert.Empty(t, manager.GetByPlayerID("carol"))
}

func TestSession_Set_Get(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	sess.Set("test_key", "test_value")
	assert.Equal(t, "test_value", sess.Get("test_key"))
	assert.Nil(t, sess.Get("non_existent_key"))
}

func TestSession_Table(t *testing.T) {
	sess := NewSession("s", &MockConnection{})
	sess.SetTable("chess", "beginner", "chess-beginner-1")
	gt, tier, table := sess.Table()
	assert.Equal(t, "chess", gt)
	assert.Equal(t, "beginner", tier)
	assert.Equal(t, "chess-beginner-1", table)

	sess.ClearTable()
	_, _, table = sess.Table()
	assert.Empty(t, table)
}

func TestSession_RateLimit(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn)
	assert.True(t, sess.Allow())

	sess.SetRateLimit(1, 2)
	assert.True(t, sess.Allow())
	assert.True(t, sess.Allow())
	assert.False(t, sess.Allow())

	require.NoError(t, sess.Send(network.EventPong, nil))
	assert.Equal(t, []string{network.EventPong}, conn.events)
}

func TestManager_All(t *testing.T) {
	manager := NewManager()
	manager.Add(NewSession("s1", &MockConnection{}))
	manager.Add(NewSession("s2", &MockConnection{}))

	all := manager.All()
	assert.Len(t, all, 2)
	manager.Remove("s1")
	assert.Len(t, all, 2)
	assert.Len(t, manager.All(), 1)
}
