package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 << 10
	sendQueueDepth = 64
)

// ServeWS upgrades the request and serves one session for the authenticated
// userID until the client disconnects.
func (r *Relay) ServeWS(w http.ResponseWriter, req *http.Request, userID string) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade", "user", userID, "err", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		relay:  r,
		send:   make(chan Message, sendQueueDepth),
		ctx:    ctx,
	}
	r.logger.Info("websocket connected", "user", userID, "conn", s.id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()
	s.readLoop()

	cancel()
	s.leave()
	wg.Wait()
	ws.Close()
	r.logger.Info("websocket disconnected", "user", userID, "conn", s.id)
}

type session struct {
	id     string
	userID string
	ws     *websocket.Conn
	relay  *Relay
	send   chan Message
	ctx    context.Context

	mu  sync.Mutex
	sub Subscription
}

// push queues msg for the writer without blocking.
func (s *session) push(msg Message) {
	select {
	case s.send <- msg:
	case <-s.ctx.Done():
	default:
	}
}

func (s *session) fail(text string) {
	s.push(Message{Type: TypeError, Error: text})
}

func (s *session) readLoop() {
	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.relay.logger.Warn("websocket read", "conn", s.id, "err", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.fail("invalid message format")
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg Message) {
	switch msg.Type {
	case TypeJoinUser:
		s.join(msg)
	case TypeTaskCreated, TypeTaskUpdated, TypeNotificationSent:
		if err := s.relay.forward(s.ctx, s.id, s.userID, msg); err != nil {
			s.fail(err.Error())
		}
	default:
		s.fail("unknown message type: " + msg.Type)
	}
}

func (s *session) join(msg Message) {
	target := msg.UserID
	if target == "" && len(msg.Payload) > 0 {
		target = refID(msg.Payload)
	}
	if target != s.userID {
		s.fail("you may only join your own channel")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		sub, err := s.relay.broker.Subscribe(s.ctx, s.userID)
		if err != nil {
			s.relay.logger.Error("relay subscribe", "user", s.userID, "err", err)
			s.fail("subscribe failed")
			return
		}
		s.sub = sub
		go s.pump(sub)
	}
	s.push(Message{Type: TypeJoined, UserID: s.userID})
}

// pump moves broker messages into the session queue until the subscription ends.
func (s *session) pump(sub Subscription) {
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if msg.Origin == s.id {
				continue
			}
			s.push(msg)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *session) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.send:
			msg.Origin = ""
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteJSON(msg); err != nil {
				s.ws.Close()
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.ws.Close()
				return
			}
		case <-s.ctx.Done():
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
