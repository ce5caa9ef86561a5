// Package client is the client-side transport for the chat gateway. A
// Subscription holds at most one live connection, scoped to a (room,
// credential) pair, and is reconfigured rather than recreated when the
// user moves between rooms.
package client

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	frameChatMessage = "chat_message"
	sendWait         = 10 * time.Second
)

// Event is one frame pushed by the gateway. Message stays raw so the
// package tracks no server-side model types.
type Event struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

type Handler func(Event)

type chatFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
}

// Subscription manages the connection lifecycle. Configure switches the
// target room, tearing the current connection down first, and dials in the
// background; frames from a torn-down connection are never delivered.
type Subscription struct {
	baseURL string
	log     *log.Logger
	handler Handler

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	lastErr   error
	gen       int
	closed    bool
}

// NewSubscription creates a disconnected subscription. baseURL is the
// gateway origin, e.g. ws://localhost:8000. No connection is made until
// Configure is called with both a room and a token.
func NewSubscription(baseURL string, handler Handler, logger *log.Logger) *Subscription {
	return &Subscription{
		baseURL: baseURL,
		log:     logger,
		handler: handler,
	}
}

// Configure points the subscription at roomId using token as the
// credential. Any current connection is closed before the new dial starts.
// If either argument is empty the subscription just disconnects and stays
// idle.
func (s *Subscription) Configure(roomId, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.gen++
	s.teardownLocked()

	if roomId == "" || token == "" {
		return
	}

	go s.dial(s.gen, roomId, token)
}

func (s *Subscription) dial(gen int, roomId, token string) {
	u, err := url.Parse(s.baseURL + "/ws")
	if err != nil {
		s.setErr(gen, fmt.Errorf("parse url: %w", err))
		return
	}
	q := u.Query()
	q.Set("room", roomId)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		s.setErr(gen, fmt.Errorf("dial %q: %w", roomId, err))
		return
	}

	s.mu.Lock()
	// Configure or Close may have moved on while the dial was in flight
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.connected = true
	s.lastErr = nil
	s.mu.Unlock()

	go s.readLoop(gen, conn)
}

func (s *Subscription) readLoop(gen int, conn *websocket.Conn) {
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			s.setErr(gen, err)
			conn.Close()
			return
		}

		s.mu.Lock()
		stale := gen != s.gen || s.closed
		s.mu.Unlock()
		if stale {
			conn.Close()
			return
		}

		if s.handler != nil {
			s.handler(ev)
		}
	}
}

// Send publishes a text message on the live connection. It reports false
// without side effects when the subscription is not connected.
func (s *Subscription) Send(content string) bool {
	return s.SendTyped(content, "")
}

func (s *Subscription) SendTyped(content, messageType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.conn == nil {
		return false
	}

	s.conn.SetWriteDeadline(time.Now().Add(sendWait))
	if err := s.conn.WriteJSON(chatFrame{
		Type:        frameChatMessage,
		Content:     content,
		MessageType: messageType,
	}); err != nil {
		s.log.Println("send:", err)
		s.lastErr = err
		s.teardownLocked()
		return false
	}

	return true
}

func (s *Subscription) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Err reports the last transport error, cleared on a successful connect.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close disconnects and retires the subscription. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.teardownLocked()
}

func (s *Subscription) setErr(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.closed {
		return
	}
	s.connected = false
	s.conn = nil
	s.lastErr = err
}

func (s *Subscription) teardownLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}
