package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by a Broker that has been shut down.
var ErrClosed = errors.New("relay: broker closed")

// Hub is the in-process Broker. Each subscription owns a buffered queue; a
// full queue drops the message instead of stalling the publisher.
type Hub struct {
	buffer  int
	mu      sync.RWMutex
	rooms   map[string]map[*hubSub]struct{}
	closed  bool
	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, rooms: make(map[string]map[*hubSub]struct{})}
}

func (h *Hub) Publish(_ context.Context, userID string, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for sub := range h.rooms[userID] {
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, userID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	sub := &hubSub{hub: h, room: userID, ch: make(chan Message, h.buffer)}
	if h.rooms[userID] == nil {
		h.rooms[userID] = make(map[*hubSub]struct{})
	}
	h.rooms[userID][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for room, subs := range h.rooms {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(h.rooms, room)
	}
	return nil
}

// Dropped counts messages discarded because a subscriber queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

type hubSub struct {
	hub    *Hub
	room   string
	ch     chan Message
	closed bool
}

func (s *hubSub) C() <-chan Message { return s.ch }

func (s *hubSub) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if subs := s.hub.rooms[s.room]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.rooms, s.room)
		}
	}
	s.closeLocked()
	return nil
}

// closeLocked requires the hub write lock.
func (s *hubSub) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
