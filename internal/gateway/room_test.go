package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tbuckley/go-chat-gateway/internal/database"
	"github.com/tbuckley/go-chat-gateway/internal/stats"
)

func TestRoom_saveAndBroadcast(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", "MessagesPersisted").Once()
	su.On("Incr", "BroadcastsDelivered").Twice()
	defer su.AssertExpectations(t)

	g := newTestGateway(t, db, su)
	r := newRoom("room-1", g)

	sender := newTestClient(g, "user-1", "room-1")
	peer := newTestClient(g, "user-2", "room-1")
	r.addClient(sender)
	r.addClient(peer)

	created := time.Now().UTC().Round(time.Millisecond)
	db.On("CreateMessage", database.CreateMessageParams{
		RoomId:      "room-1",
		SenderId:    "user-1",
		Content:     "hi",
		MessageType: "text",
	}).Return(database.Message{
		Id:          "msg-1",
		RoomId:      "room-1",
		SenderId:    "user-1",
		Content:     "hi",
		MessageType: "text",
		CreatedAt:   created,
		Sender:      database.Profile{Username: "alice"},
	}, nil).Once()

	r.saveAndBroadcast(&publishReq{
		client: sender,
		frame:  &ClientFrame{Type: FrameChatMessage, Content: "hi"},
	})

	// the sender and every other connection in the room receive the event
	for _, c := range []*Client{sender, peer} {
		select {
		case frame := <-c.send:
			assert.Equal(t, FrameNewMessage, frame.Type, "expected a new_message frame")
			assert.Equal(t, "msg-1", frame.Message.Id, "expected the store-assigned id")
			assert.Equal(t, created, frame.Message.CreatedAt, "expected the store-assigned timestamp")
			assert.Equal(t, "alice", frame.Message.Sender.Username, "expected sender display fields")
		default:
			t.Error("expected a frame to be queued for client")
		}
	}
}

func TestRoom_saveAndBroadcast_defaultMessageType(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	defer su.AssertExpectations(t)

	g := newTestGateway(t, db, su)
	r := newRoom("room-1", g)
	sender := newTestClient(g, "user-1", "room-1")
	r.addClient(sender)

	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.MessageType == "text"
	})).Return(database.Message{Id: "msg-1"}, nil).Once()

	r.saveAndBroadcast(&publishReq{
		client: sender,
		frame:  &ClientFrame{Type: FrameChatMessage, Content: "hi"},
	})

	db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
		return p.MessageType == "image"
	})).Return(database.Message{Id: "msg-2"}, nil).Once()

	r.saveAndBroadcast(&publishReq{
		client: sender,
		frame:  &ClientFrame{Type: FrameChatMessage, Content: "hi", MessageType: "image"},
	})
}

func TestRoom_saveAndBroadcast_persistFailure(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	g := newTestGateway(t, db, su)
	r := newRoom("room-1", g)

	sender := newTestClient(g, "user-1", "room-1")
	peer := newTestClient(g, "user-2", "room-1")
	r.addClient(sender)
	r.addClient(peer)

	db.On("CreateMessage", mock.Anything).Return(database.Message{}, errors.New("connection reset")).Once()

	r.saveAndBroadcast(&publishReq{
		client: sender,
		frame:  &ClientFrame{Type: FrameChatMessage, Content: "hi"},
	})

	// nothing is broadcast and no failure frame goes back to the sender
	assert.Empty(t, sender.send, "expected no frame queued for sender")
	assert.Empty(t, peer.send, "expected no frame queued for peer")
	assert.Equal(t, 2, r.numClients(), "expected both connections to stay registered")
}

func TestRoom_broadcastOrder(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	defer su.AssertExpectations(t)

	g := newTestGateway(t, db, su)
	r := newRoom("room-1", g)
	receiver := newTestClient(g, "user-2", "room-1")
	sender := newTestClient(g, "user-1", "room-1")
	r.addClient(receiver)
	r.addClient(sender)

	for i, content := range []string{"first", "second", "third"} {
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.Content == content
		})).Return(database.Message{
			Id:        content,
			RoomId:    "room-1",
			Content:   content,
			CreatedAt: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		}, nil).Once()

		r.saveAndBroadcast(&publishReq{
			client: sender,
			frame:  &ClientFrame{Type: FrameChatMessage, Content: content},
		})
	}

	// delivery order matches the store's append order
	for _, want := range []string{"first", "second", "third"} {
		select {
		case frame := <-receiver.send:
			assert.Equal(t, want, frame.Message.Content, "expected frames in persistence order")
		default:
			t.Fatal("expected a queued frame")
		}
	}
}

func TestRoom_fanOut_slowClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", "BroadcastsDelivered").Once()
	defer su.AssertExpectations(t)

	g := newTestGateway(t, &database.MockChatRepository{}, su)
	r := newRoom("room-1", g)

	healthy := newTestClient(g, "user-1", "room-1")
	slow := newTestClient(g, "user-2", "room-1")
	slow.send = make(chan *ServerFrame) // unbuffered and never drained
	r.addClient(healthy)
	r.addClient(slow)

	r.fanOut(&ServerFrame{Type: FrameNewMessage})

	select {
	case <-healthy.send:
	default:
		t.Error("expected delivery to the healthy client")
	}
}

func TestRoom_deliver_fullChannel(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	g := newTestGateway(t, &database.MockChatRepository{}, su)
	r := newRoom("room-1", g)
	r.deliverChan = make(chan *ServerFrame, 1)

	// second deliver must not block even though nothing drains the channel
	r.deliver(&ServerFrame{Type: FrameNewMessage})
	r.deliver(&ServerFrame{Type: FrameNewMessage})
	assert.Len(t, r.deliverChan, 1, "expected overflow frame to be dropped")
}
