package gateway

import (
	"log"
	"sync"

	"github.com/tbuckley/go-chat-gateway/internal/database"
	"github.com/tbuckley/go-chat-gateway/internal/types"
)

type publishReq struct {
	client *Client
	frame  *ClientFrame
}

// room owns fan-out for one room id. All persist and broadcast work runs on
// the room's goroutine, so delivery order always matches the store's append
// order.
type room struct {
	id          string
	gw          *Gateway
	log         *log.Logger
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	publishChan chan *publishReq
	deliverChan chan *ServerFrame
	stop        chan struct{}
	done        chan struct{}
	// stateLock guards unsubscribe and stopped, which the register and
	// teardown paths touch outside the registry lock
	stateLock sync.Mutex
	// unsubscribe detaches the room from the broadcast bridge, set only
	// when a bridge is configured
	unsubscribe func()
	stopped     bool
}

func newRoom(id string, gw *Gateway) *room {
	return &room{
		id:          id,
		gw:          gw,
		log:         gw.log,
		clients:     make(map[*Client]struct{}),
		publishChan: make(chan *publishReq, 256),
		deliverChan: make(chan *ServerFrame, 256),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *room) start() {
	for {
		select {
		case req := <-r.publishChan:
			r.saveAndBroadcast(req)
		case frame := <-r.deliverChan:
			r.fanOut(frame)
		case <-r.stop:
			close(r.done)
			return
		}
	}
}

// shutdown detaches the room from the bridge and waits for the fan-out
// goroutine to drain its current work. The wait can span an in-flight store
// write, so callers must not hold the registry lock.
func (r *room) shutdown() {
	r.stateLock.Lock()
	r.stopped = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.stateLock.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(r.stop)
	<-r.done
}

// setUnsubscribe attaches the bridge detach hook. If the room shut down
// while the subscribe call was in flight, the hook runs immediately so the
// subscription never leaks.
func (r *room) setUnsubscribe(unsubscribe func()) {
	r.stateLock.Lock()
	if r.stopped {
		r.stateLock.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.stateLock.Unlock()
}

// deliver hands a bridge frame to the room's goroutine without blocking the
// bridge's delivery thread.
func (r *room) deliver(frame *ServerFrame) {
	select {
	case r.deliverChan <- frame:
	default:
		r.log.Printf("deliver channel full for room %q, dropping frame", r.id)
	}
}

func (r *room) saveAndBroadcast(req *publishReq) {
	messageType := req.frame.MessageType
	if messageType == "" {
		messageType = defaultMessageType
	}

	msg, err := r.gw.db.CreateMessage(database.CreateMessageParams{
		RoomId:      r.id,
		SenderId:    req.client.user.Id,
		Content:     req.frame.Content,
		MessageType: messageType,
	})
	if err != nil {
		// per-message failure: nothing is broadcast, the sender gets no
		// failure frame, the connection stays up
		r.log.Println("error saving message:", err)
		return
	}
	r.gw.stats.Incr("MessagesPersisted")

	frame := NewMessageFrame(&types.Message{
		Id:          msg.Id,
		RoomId:      msg.RoomId,
		SenderId:    msg.SenderId,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
		Sender: types.Profile{
			FullName:  msg.Sender.FullName,
			Username:  msg.Sender.Username,
			AvatarUrl: msg.Sender.AvatarUrl,
		},
	})

	r.fanOut(frame)

	if r.gw.bridge != nil {
		if err := r.gw.bridge.Publish(r.id, frame); err != nil {
			r.log.Printf("bridge publish for room %q: %v", r.id, err)
		}
	}
}

func (r *room) fanOut(frame *ServerFrame) {
	r.clientsLock.Lock()
	var failed []*Client
	for c := range r.clients {
		if c.queueFrame(frame) {
			r.gw.stats.Incr("BroadcastsDelivered")
		} else {
			failed = append(failed, c)
		}
	}
	r.clientsLock.Unlock()

	// a connection that can't keep up is dropped, delivery to the rest of
	// the room is unaffected
	for _, c := range failed {
		r.log.Printf("closing connection for user %s in room %q: send buffer full", c.user.Id, r.id)
		c.closeConn()
	}
}

func (r *room) addClient(c *Client) {
	r.clientsLock.Lock()
	defer r.clientsLock.Unlock()

	r.clients[c] = struct{}{}
}

// removeClient reports whether the room is empty afterwards. Removing a
// client that is not in the room is a no-op.
func (r *room) removeClient(c *Client) bool {
	r.clientsLock.Lock()
	defer r.clientsLock.Unlock()

	delete(r.clients, c)
	return len(r.clients) == 0
}

func (r *room) numClients() int {
	r.clientsLock.Lock()
	defer r.clientsLock.Unlock()

	return len(r.clients)
}
