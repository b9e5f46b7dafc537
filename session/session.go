// session/session.go
package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfunc/gamehall/network"
)

// Session is one websocket connection and the table it currently sits at.
type Session struct {
	ID          string
	Conn        network.Connection
	PlayerID    string
	DisplayName string
	Data        map[string]interface{} // 自定义数据
	CreatedAt   time.Time
	LastActive  time.Time

	gameType string
	tierID   string
	tableID  string
	limiter  *rate.Limiter
	mutex    sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Data[key]
}

func (s *Session) Send(event string, data any) error {
	s.touch()
	return s.Conn.Send(event, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

// SetTable records where the player is seated or spectating.
func (s *Session) SetTable(gameType, tierID, tableID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.gameType, s.tierID, s.tableID = gameType, tierID, tableID
}

func (s *Session) ClearTable() {
	s.SetTable("", "", "")
}

func (s *Session) Table() (gameType, tierID, tableID string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.gameType, s.tierID, s.tableID
}

// SetRateLimit installs a token bucket for inbound events.
func (s *Session) SetRateLimit(perSecond float64, burst int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Allow reports whether another inbound event may be processed now.
func (s *Session) Allow() bool {
	s.touch()
	s.mutex.RLock()
	l := s.limiter
	s.mutex.RUnlock()
	return l == nil || l.Allow()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByPlayerID(playerID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.PlayerID == playerID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a copy of the live sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
