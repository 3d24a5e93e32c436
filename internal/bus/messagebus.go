package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is one delivery on a MessageBus channel.
type Message struct {
	Channel string
	Data    []byte
}

// Unmarshal decodes the message payload as JSON into v.
func (m Message) Unmarshal(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Handler processes one Message. A Handler must never be allowed to take
// down its publisher: MessageBus recovers panics around every call.
type Handler func(msg Message)

// MessageBus is a topic-keyed pub/sub primitive. Publish never fails
// because a handler errored or panicked — subscriber failures are
// logged and swallowed so publishers stay isolated from subscribers.
type MessageBus struct {
	conn *nats.Conn
}

// New connects a MessageBus to an in-process embedded Server.
func New(server *Server) (*MessageBus, error) {
	return NewFromURL(server.ClientURL())
}

// NewFromURL connects a MessageBus to an arbitrary NATS URL.
func NewFromURL(url string) (*MessageBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	return &MessageBus{conn: conn}, nil
}

func wrapHandler(channel string, h Handler) nats.MsgHandler {
	return func(m *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("bus: subscriber panic recovered", "channel", channel, "panic", r)
			}
		}()
		h(Message{Channel: m.Subject, Data: m.Data})
	}
}

// Subscribe registers handler on channel, returning a function that
// unsubscribes it.
func (b *MessageBus) Subscribe(channel string, handler Handler) (func() error, error) {
	sub, err := b.conn.Subscribe(channel, wrapHandler(channel, handler))
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", channel, err)
	}
	return sub.Unsubscribe, nil
}

// Once registers handler on channel and unsubscribes it after the first
// delivery.
func (b *MessageBus) Once(channel string, handler Handler) (func() error, error) {
	var sub *nats.Subscription
	var err error
	sub, err = b.conn.Subscribe(channel, func(m *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("bus: subscriber panic recovered", "channel", channel, "panic", r)
			}
			_ = sub.Unsubscribe()
		}()
		handler(Message{Channel: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("bus: once %s: %w", channel, err)
	}
	return sub.Unsubscribe, nil
}

// Publish encodes payload as JSON and publishes it on channel. A
// marshalling failure is the only error returned; transport failures on
// an embedded, in-process server are not expected in practice.
func (b *MessageBus) Publish(channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload for %s: %w", channel, err)
	}
	if err := b.conn.Publish(channel, data); err != nil {
		slog.Error("bus: publish failed", "channel", channel, "error", err)
	}
	return nil
}

// Request performs a request/reply round trip, used for synchronous
// routing queries where the orchestrator needs an immediate answer.
func (b *MessageBus) Request(channel string, payload any, timeout time.Duration) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("bus: marshal request for %s: %w", channel, err)
	}
	msg, err := b.conn.Request(channel, data, timeout)
	if err != nil {
		return Message{}, fmt.Errorf("bus: request %s: %w", channel, err)
	}
	return Message{Channel: msg.Subject, Data: msg.Data}, nil
}

// Flush blocks until all buffered publishes have been sent.
func (b *MessageBus) Flush() error {
	return b.conn.Flush()
}

// Close disconnects the bus client.
func (b *MessageBus) Close() {
	b.conn.Close()
}
