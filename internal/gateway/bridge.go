package gateway

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const bridgeSubjectPrefix = "chat.room"

// Bridge fans broadcasts out across gateway instances over NATS subjects,
// one subject per room. Delivery is at-most-once, same as the in-process
// registry: a frame lost on the wire is not retried.
type Bridge struct {
	nc       *nats.Conn
	log      *log.Logger
	originId string
}

type bridgeEnvelope struct {
	Origin string       `json:"origin"`
	Frame  *ServerFrame `json:"frame"`
}

func NewBridge(url string, logger *log.Logger) (*Bridge, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bridge{
		nc:       nc,
		log:      logger,
		originId: uuid.NewString(),
	}, nil
}

func (b *Bridge) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

func subjectForRoom(roomId string) string {
	return fmt.Sprintf("%s.%s", bridgeSubjectPrefix, roomId)
}

func (b *Bridge) Publish(roomId string, frame *ServerFrame) error {
	data, err := json.Marshal(bridgeEnvelope{Origin: b.originId, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return b.nc.Publish(subjectForRoom(roomId), data)
}

// Subscribe delivers frames published for roomId by other instances. The
// returned function detaches the subscription.
func (b *Bridge) Subscribe(roomId string, deliver func(*ServerFrame)) (func(), error) {
	subject := subjectForRoom(roomId)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		if frame, ok := b.decodeEnvelope(m.Data); ok {
			deliver(frame)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.log.Printf("unsubscribe from %q: %v", subject, err)
		}
	}, nil
}

// decodeEnvelope drops frames this instance published itself, which it
// already delivered locally in persistence order.
func (b *Bridge) decodeEnvelope(data []byte) (*ServerFrame, bool) {
	var env bridgeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Println("bridge: decode envelope:", err)
		return nil, false
	}

	if env.Origin == b.originId || env.Frame == nil {
		return nil, false
	}

	return env.Frame, true
}
