package broker

import "time"

// Session is the interface to a live broker session, provided by a broker
// client library. The agent core drives it but never implements the wire
// protocol itself.
type Session interface {
	// Connect issues the connect request. The outcome is reported through
	// the Up/ConnectFailed handler slots, not the return value; a non-nil
	// error means the request could not even be issued.
	Connect() error
	// Disconnect tears the session down. No events fire after it returns.
	Disconnect() error
	// Subscribe issues an acknowledged subscription request, waiting at
	// most ackWait for the broker to confirm.
	Subscribe(topic string, ackWait time.Duration) error
	// Unsubscribe removes a subscription, waiting at most ackWait.
	Unsubscribe(topic string, ackWait time.Duration) error
	// Send delivers an outbound message to the broker.
	Send(msg *OutboundMessage) error
	// CreateConsumer builds a consumer bound to a named queue or topic
	// endpoint. The consumer is not connected yet.
	CreateConsumer(props ConsumerProperties) (Consumer, error)
	// SetHandlers installs the event handler slots, replacing any
	// previously installed set.
	SetHandlers(h SessionHandlers)
	// ClearHandlers detaches all handler slots. No handler fires afterwards.
	ClearHandlers()
}

// SessionHandlers holds exactly one handler per session event category.
// Nil slots are ignored.
type SessionHandlers struct {
	OnUp            func()
	OnConnectFailed func(reason string)
	OnDisconnected  func(reason string)
	OnMessage       func(raw *RawMessage)
}

// Consumer is a message consumer bound to a queue or topic endpoint.
type Consumer interface {
	Connect() error
	Disconnect() error
	SetHandlers(h ConsumerHandlers)
}

// ConsumerHandlers holds the consumer-level event handler slots.
type ConsumerHandlers struct {
	OnConnectFailed func(reason string)
	OnMessage       func(raw *RawMessage)
}

// SessionFactory creates broker sessions from connection parameters.
type SessionFactory interface {
	NewSession(cfg Config) (Session, error)
}

// QueueType is the kind of durable object a consumer binds to.
type QueueType string

const (
	QueueTypeQueue         QueueType = "queue"
	QueueTypeTopicEndpoint QueueType = "topic_endpoint"
)

// ConsumerProperties describes the durable object a consumer binds to.
// TopicSubscription is only meaningful for topic endpoints.
type ConsumerProperties struct {
	QueueName         string
	QueueType         QueueType
	TopicSubscription string
}
