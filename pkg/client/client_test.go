package client

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *log.Logger {
	return log.New(os.Stdout, "[test] ", log.LstdFlags)
}

// fakeGateway upgrades every /ws request and records the rooms it saw and
// the frames clients send.
type fakeGateway struct {
	t *testing.T

	mu     sync.Mutex
	rooms  []string
	frames []chatFrame
	conns  []*websocket.Conn
}

func (g *fakeGateway) handler() http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.t.Log("upgrade:", err)
			return
		}

		g.mu.Lock()
		g.rooms = append(g.rooms, r.URL.Query().Get("room"))
		g.conns = append(g.conns, conn)
		g.mu.Unlock()

		go func() {
			for {
				var frame chatFrame
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				g.mu.Lock()
				g.frames = append(g.frames, frame)
				g.mu.Unlock()
			}
		}()
	})
}

func (g *fakeGateway) seenRooms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.rooms...)
}

func (g *fakeGateway) seenFrames() []chatFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]chatFrame(nil), g.frames...)
}

func (g *fakeGateway) push(t *testing.T, i int, ev Event) {
	g.mu.Lock()
	conn := g.conns[i]
	g.mu.Unlock()
	require.NoError(t, conn.WriteJSON(ev))
}

// tryPush writes best-effort, for connections the client may already have
// closed.
func (g *fakeGateway) tryPush(i int, ev Event) {
	g.mu.Lock()
	conn := g.conns[i]
	g.mu.Unlock()
	_ = conn.WriteJSON(ev)
}

func newFakeGateway(t *testing.T) (*fakeGateway, string) {
	g := &fakeGateway{t: t}
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSendNotConnected(t *testing.T) {
	sub := NewSubscription("ws://localhost:0", nil, testLogger(t))
	defer sub.Close()

	assert.False(t, sub.Send("hello"))
	assert.False(t, sub.Connected())
}

func TestConfigureWithoutRoomStaysIdle(t *testing.T) {
	_, baseURL := newFakeGateway(t)

	sub := NewSubscription(baseURL, nil, testLogger(t))
	defer sub.Close()

	sub.Configure("", "token")

	assert.False(t, sub.Connected())
	assert.False(t, sub.Send("hello"))
}

func TestConnectAndSend(t *testing.T) {
	gw, baseURL := newFakeGateway(t)

	sub := NewSubscription(baseURL, nil, testLogger(t))
	defer sub.Close()

	sub.Configure("room-1", "token")
	require.Eventually(t, sub.Connected, time.Second, 10*time.Millisecond)
	assert.NoError(t, sub.Err())

	require.True(t, sub.Send("hello"))

	assert.Eventually(t, func() bool {
		frames := gw.seenFrames()
		return len(frames) == 1 && frames[0].Type == frameChatMessage && frames[0].Content == "hello"
	}, time.Second, 10*time.Millisecond)
}

func TestReceiveEvents(t *testing.T) {
	gw, baseURL := newFakeGateway(t)

	events := make(chan Event, 1)
	sub := NewSubscription(baseURL, func(ev Event) { events <- ev }, testLogger(t))
	defer sub.Close()

	sub.Configure("room-1", "token")
	require.Eventually(t, sub.Connected, time.Second, 10*time.Millisecond)

	gw.push(t, 0, Event{Type: "new_message", Message: json.RawMessage(`{"id":"msg-1","content":"hi"}`)})

	select {
	case ev := <-events:
		assert.Equal(t, "new_message", ev.Type)
		assert.JSONEq(t, `{"id":"msg-1","content":"hi"}`, string(ev.Message))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRoomSwitch(t *testing.T) {
	gw, baseURL := newFakeGateway(t)

	sub := NewSubscription(baseURL, nil, testLogger(t))
	defer sub.Close()

	sub.Configure("room-1", "token")
	require.Eventually(t, sub.Connected, time.Second, 10*time.Millisecond)

	sub.Configure("room-2", "token")
	require.Eventually(t, func() bool {
		rooms := gw.seenRooms()
		return len(rooms) == 2 && rooms[1] == "room-2" && sub.Connected()
	}, time.Second, 10*time.Millisecond)

	// the new connection carries the frames, not the old one
	require.True(t, sub.Send("after switch"))
	assert.Eventually(t, func() bool {
		frames := gw.seenFrames()
		return len(frames) == 1 && frames[0].Content == "after switch"
	}, time.Second, 10*time.Millisecond)
}

func TestRoomSwitchDropsOldRoomEvents(t *testing.T) {
	gw, baseURL := newFakeGateway(t)

	events := make(chan Event, 4)
	sub := NewSubscription(baseURL, func(ev Event) { events <- ev }, testLogger(t))
	defer sub.Close()

	sub.Configure("room-1", "token")
	require.Eventually(t, sub.Connected, time.Second, 10*time.Millisecond)

	sub.Configure("room-2", "token")
	require.Eventually(t, func() bool {
		return len(gw.seenRooms()) == 2 && sub.Connected()
	}, time.Second, 10*time.Millisecond)

	// an event still in flight on the old room's connection never reaches
	// the handler
	gw.tryPush(0, Event{Type: "new_message", Message: json.RawMessage(`{"id":"old-room"}`)})
	gw.push(t, 1, Event{Type: "new_message", Message: json.RawMessage(`{"id":"new-room"}`)})

	select {
	case ev := <-events:
		assert.JSONEq(t, `{"id":"new-room"}`, string(ev.Message))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the new room's event")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after room switch: %s", ev.Message)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDialFailureSetsErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	sub := NewSubscription("ws"+strings.TrimPrefix(srv.URL, "http"), nil, testLogger(t))
	defer sub.Close()

	sub.Configure("room-1", "token")
	require.Eventually(t, func() bool { return sub.Err() != nil }, time.Second, 10*time.Millisecond)
	assert.False(t, sub.Connected())
}

func TestCloseIsIdempotent(t *testing.T) {
	_, baseURL := newFakeGateway(t)

	sub := NewSubscription(baseURL, nil, testLogger(t))
	sub.Configure("room-1", "token")
	require.Eventually(t, sub.Connected, time.Second, 10*time.Millisecond)

	sub.Close()
	sub.Close()

	assert.False(t, sub.Connected())
	assert.False(t, sub.Send("hello"))

	// a Configure after Close stays a no-op
	sub.Configure("room-1", "token")
	assert.False(t, sub.Connected())
}
