// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("network: connection closed")
	ErrSendBufferFull   = errors.New("network: send buffer full")
)

const (
	DefaultSendBuffer = 256
	writeWait         = 10 * time.Second
)

// Envelope 消息封包: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Encode builds the wire form of an event once so it can be fanned out.
func Encode(event string, data any) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type Connection interface {
	ID() string
	Send(event string, data any) error
	SendRaw(msg []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadEnvelope() (*Envelope, error)
}

// WSConnection writes through a buffered queue drained by one goroutine, so
// Send never blocks the caller. A full queue drops the message.
type WSConnection struct {
	id        string
	conn      *websocket.Conn
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	heartbeat atomic.Int64
	dropped   atomic.Int64
}

func NewWSConnection(id string, conn *websocket.Conn, bufferSize int) *WSConnection {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	c := &WSConnection{
		id:     id,
		conn:   conn,
		out:    make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *WSConnection) ID() string { return c.id }

func (c *WSConnection) Send(event string, data any) error {
	msg, err := Encode(event, data)
	if err != nil {
		return err
	}
	return c.SendRaw(msg)
}

func (c *WSConnection) SendRaw(msg []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.dropped.Add(1)
		return ErrSendBufferFull
	}
}

// Dropped is the number of messages discarded because the buffer was full.
func (c *WSConnection) Dropped() int64 { return c.dropped.Load() }

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if hb := time.Duration(c.heartbeat.Load()); hb > 0 {
		c.conn.SetReadDeadline(time.Now().Add(hb * 2))
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// SetHeartbeat enables server pings. A peer silent for two intervals times out.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat.Store(int64(interval))
	if interval <= 0 {
		return
	}
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) writeLoop() {
	pingTicker := time.NewTicker(time.Second)
	defer pingTicker.Stop()
	var lastPing time.Time

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case now := <-pingTicker.C:
			hb := time.Duration(c.heartbeat.Load())
			if hb <= 0 || now.Sub(lastPing) < hb {
				continue
			}
			lastPing = now
			if err := c.conn.WriteControl(websocket.PingMessage, nil, now.Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}
