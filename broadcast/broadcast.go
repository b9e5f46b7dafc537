// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/network"
)

var (
	ErrConnNotFound = errors.New("broadcast: connection not found")
)

// Subscriber is the part of a connection the hub writes to.
type Subscriber interface {
	ID() string
	SendRaw(msg []byte) error
}

func TableChannel(tableID string) string {
	return "table:" + tableID
}

func TierChannel(gameType, tierID string) string {
	return fmt.Sprintf("tier:%s:%s", gameType, tierID)
}

// Hub 基于频道的广播器. Sends are fire-and-forget: a full or closed
// connection loses the message and the publisher moves on.
type Hub struct {
	mutex    sync.RWMutex
	conns    map[string]Subscriber
	channels map[string]map[string]struct{}
	joined   map[string]map[string]struct{} // conn -> channels

	dropped atomic.Int64
	OnDrop  func(event string)
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]Subscriber),
		channels: make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

// Register makes a connection addressable by id.
func (h *Hub) Register(sub Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.conns[sub.ID()] = sub
}

// Unregister forgets a connection and all of its subscriptions.
func (h *Hub) Unregister(connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeAllLocked(connID)
	delete(h.conns, connID)
}

// Subscribe adds a registered connection to a channel. Unknown ids are ignored.
func (h *Hub) Subscribe(channel, connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		h.channels[channel] = members
	}
	members[connID] = struct{}{}

	chans, ok := h.joined[connID]
	if !ok {
		chans = make(map[string]struct{})
		h.joined[connID] = chans
	}
	chans[channel] = struct{}{}
}

func (h *Hub) Unsubscribe(channel, connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeLocked(channel, connID)
}

func (h *Hub) UnsubscribeAll(connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeAllLocked(connID)
}

func (h *Hub) unsubscribeLocked(channel, connID string) {
	if members, ok := h.channels[channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if chans, ok := h.joined[connID]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.joined, connID)
		}
	}
}

func (h *Hub) unsubscribeAllLocked(connID string) {
	for channel := range h.joined[connID] {
		h.unsubscribeLocked(channel, connID)
	}
}

// Members returns the connection ids subscribed to a channel.
func (h *Hub) Members(channel string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]string, 0, len(h.channels[channel]))
	for id := range h.channels[channel] {
		out = append(out, id)
	}
	return out
}

// Publish encodes once and sends to every member of the channel.
func (h *Hub) Publish(channel, event string, data any) error {
	msg, err := network.Encode(event, data)
	if err != nil {
		return err
	}

	h.mutex.RLock()
	targets := make([]Subscriber, 0, len(h.channels[channel]))
	for id := range h.channels[channel] {
		if sub, ok := h.conns[id]; ok {
			targets = append(targets, sub)
		}
	}
	h.mutex.RUnlock()

	for _, sub := range targets {
		h.deliver(sub, event, msg)
	}
	return nil
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(connID, event string, data any) error {
	h.mutex.RLock()
	sub, ok := h.conns[connID]
	h.mutex.RUnlock()
	if !ok {
		return ErrConnNotFound
	}

	msg, err := network.Encode(event, data)
	if err != nil {
		return err
	}
	h.deliver(sub, event, msg)
	return nil
}

func (h *Hub) deliver(sub Subscriber, event string, msg []byte) {
	if err := sub.SendRaw(msg); err != nil {
		h.dropped.Add(1)
		if h.OnDrop != nil {
			h.OnDrop(event)
		}
		logger.Log.Debugf("broadcast: drop %s to %s: %v", event, sub.ID(), err)
	}
}

// Dropped counts messages that could not be handed to a connection.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
