package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tbuckley/go-chat-gateway/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live connection: a (user, room, socket) triple. A user may
// hold any number of clients at once, one per device or tab.
type Client struct {
	conn     *websocket.Conn
	gateway  *Gateway
	log      *log.Logger
	user     types.User
	roomId   string
	send     chan *ServerFrame
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, roomId string, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		conn:    conn,
		gateway: gw,
		log:     l,
		user:    user,
		roomId:  roomId,
		send:    make(chan *ServerFrame, 256),
		stop:    make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeFrame(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.gateway.Unregister(c)
		c.stopClient()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// a malformed frame is dropped, the session stays up
			c.log.Println("error parsing frame:", err)
			continue
		}

		switch frame.Type {
		case FrameChatMessage:
			c.gateway.publish(c, &frame)
		default:
			// unrecognized frame kinds are a forward-compatible no-op
		}
	}
}

func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Println("failed to queue frame, send buffer is full")
		return false
	}

	return true
}

func serializeFrame(frame *ServerFrame) ([]byte, error) {
	return json.Marshal(frame)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
