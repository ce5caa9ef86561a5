package gateway

import (
	"context"
	"log"
	"sync"

	"github.com/tbuckley/go-chat-gateway/internal/database"
	"github.com/tbuckley/go-chat-gateway/internal/stats"
)

// Gateway is the connection registry: the authoritative mapping of room id
// to live connections. Connections are handed to it only after the
// authentication and authorization checks have passed.
//
// A connection moves through Connecting, Authenticating and Authorizing in
// the HTTP handler before the upgrade; once registered here it is Open, and
// Unregister is its single, idempotent transition to Closed.
type Gateway struct {
	log    *log.Logger
	db     database.ChatRepository
	stats  stats.StatsProvider
	bridge *Bridge

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	rooms     map[string]*room
	roomsLock sync.Mutex

	wg sync.WaitGroup
}

// NewGateway creates a gateway. bridge may be nil, in which case broadcast
// stays within this process.
func NewGateway(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider, bridge *Bridge) (*Gateway, error) {
	g := &Gateway{
		log:     logger,
		db:      db,
		stats:   su,
		bridge:  bridge,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]*room),
	}

	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumActiveRooms")
	su.RegisterMetric("MessagesPersisted")
	su.RegisterMetric("BroadcastsDelivered")

	return g, nil
}

// Register adds an accepted connection under its room, starting the room's
// fan-out loop if this is the room's first connection.
func (g *Gateway) Register(c *Client) {
	g.clientsLock.Lock()
	g.clients[c] = struct{}{}
	g.clientsLock.Unlock()
	g.wg.Add(1)
	g.stats.Incr("NumActiveClients")

	g.roomsLock.Lock()
	r, ok := g.rooms[c.roomId]
	if !ok {
		r = newRoom(c.roomId, g)
		g.rooms[c.roomId] = r
		go r.start()
		g.stats.Incr("NumActiveRooms")
	}
	r.addClient(c)
	g.roomsLock.Unlock()

	// the bridge subscribe is a network call, keep it off the registry lock
	if !ok && g.bridge != nil {
		unsubscribe, err := g.bridge.Subscribe(c.roomId, r.deliver)
		if err != nil {
			g.log.Printf("bridge subscribe for room %q: %v", c.roomId, err)
		} else {
			r.setUnsubscribe(unsubscribe)
		}
	}

	g.log.Printf("user %s connected to room %q", c.user.Id, c.roomId)
}

// Unregister removes exactly this connection; other connections of the same
// user are untouched. Calling it again for an already-removed connection is
// a no-op.
func (g *Gateway) Unregister(c *Client) {
	g.clientsLock.Lock()
	if _, ok := g.clients[c]; !ok {
		g.clientsLock.Unlock()
		return
	}
	delete(g.clients, c)
	g.clientsLock.Unlock()

	g.roomsLock.Lock()
	var unloaded *room
	if r, ok := g.rooms[c.roomId]; ok {
		if empty := r.removeClient(c); empty {
			delete(g.rooms, c.roomId)
			unloaded = r
			g.stats.Decr("NumActiveRooms")
		}
	}
	g.roomsLock.Unlock()

	// the shutdown wait can span an in-flight store write; the room is out
	// of the map already, so other rooms keep processing in the meantime
	if unloaded != nil {
		unloaded.shutdown()
	}

	g.stats.Decr("NumActiveClients")
	g.wg.Done()
	g.log.Printf("user %s disconnected from room %q", c.user.Id, c.roomId)
}

// publish queues an inbound chat message for the connection's room. Frames
// from one connection keep their receipt order; rooms never block each
// other.
func (g *Gateway) publish(c *Client, frame *ClientFrame) {
	g.roomsLock.Lock()
	r, ok := g.rooms[c.roomId]
	g.roomsLock.Unlock()
	if !ok {
		return
	}

	select {
	case r.publishChan <- &publishReq{client: c, frame: frame}:
	default:
		g.log.Printf("publish channel full for room %q, dropping frame", c.roomId)
	}
}

func (g *Gateway) getRoom(id string) (*room, bool) {
	g.roomsLock.Lock()
	defer g.roomsLock.Unlock()

	r, ok := g.rooms[id]
	return r, ok
}

func (g *Gateway) numClients() int {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	return len(g.clients)
}

// Shutdown stops every connection and waits for their rooms to unload.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.clientsLock.Lock()
	for c := range g.clients {
		c.stopClient()
		c.closeConn()
	}
	g.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
