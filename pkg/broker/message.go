package broker

import (
	"errors"
	"time"
)

// ErrNoSession is raised when an operation requires a live session and none
// exists.
var ErrNoSession = errors.New("no active broker session")

// Config holds the connection parameters for a broker session. It is
// immutable once a connect attempt starts and may be replaced on reconnect.
type Config struct {
	URL      string `json:"url"`
	VPN      string `json:"vpn"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// DeliveryMode is the reliability class of a message.
type DeliveryMode string

const (
	DeliveryModeDirect     DeliveryMode = "direct"
	DeliveryModePersistent DeliveryMode = "persistent"
)

// DestinationType selects between topic fan-out and point-to-point queue
// delivery.
type DestinationType string

const (
	DestinationTopic DestinationType = "topic"
	DestinationQueue DestinationType = "queue"
)

// MessageType selects the outbound payload encoding.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeBinary MessageType = "binary"
)

// Property is a typed user-property value carried alongside a message.
type Property struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Metadata is the broker-level metadata of a delivered message. Every field
// is populated on every delivery; zero values stand in for fields the broker
// did not supply, except ReceiverTimestamp which defaults to the local
// receive time.
type Metadata struct {
	DeliveryMode      DeliveryMode `json:"delivery_mode"`
	DMQEligible       bool         `json:"dmq_eligible"`
	TTLMillis         int64        `json:"ttl_ms"`
	Priority          int          `json:"priority"`
	ReplyTo           string       `json:"reply_to"`
	SenderID          string       `json:"sender_id"`
	CorrelationID     string       `json:"correlation_id"`
	Redelivered       bool         `json:"redelivered"`
	SenderTimestamp   time.Time    `json:"sender_timestamp"`
	ReceiverTimestamp time.Time    `json:"receiver_timestamp"`
}

// Message is the normalized inbound message handed to the host application.
type Message struct {
	Topic          string              `json:"topic"`
	Payload        string              `json:"payload"`
	UserProperties map[string]Property `json:"user_properties,omitempty"`
	Metadata       Metadata            `json:"metadata"`
	UniqueID       string              `json:"unique_id"`
}

// RawMessage is the unprocessed inbound unit as delivered by the session
// library, before normalization. Zero timestamps mean the broker did not
// supply one.
type RawMessage struct {
	Destination       string
	Payload           []byte
	UserProperties    map[string]Property
	DeliveryMode      DeliveryMode
	DMQEligible       bool
	TTLMillis         int64
	Priority          int
	ReplyTo           string
	SenderID          string
	CorrelationID     string
	Redelivered       bool
	SenderTimestamp   time.Time
	ReceiverTimestamp time.Time
}

// OutboundMessage is the wire unit handed to Session.Send. Nil optional
// fields leave the broker/library default untouched. Exactly one of
// BinaryAttachment and StructuredString carries the payload.
type OutboundMessage struct {
	Destination      string
	DestinationType  DestinationType
	BinaryAttachment []byte
	StructuredString *string
	DeliveryMode     *DeliveryMode
	DMQEligible      *bool
	ReplyTo          *string
	Priority         *int
	TTLMillis        *int64
	CorrelationID    *string
	UserProperties   map[string]Property
}

// PublishOptions are the structured options for building an outbound
// message. All fields are optional; absence means "leave broker default".
type PublishOptions struct {
	DestinationType DestinationType     `json:"destination_type,omitempty"`
	DeliveryMode    *DeliveryMode       `json:"delivery_mode,omitempty"`
	DMQEligible     *bool               `json:"dmq_eligible,omitempty"`
	ReplyToTopic    *string             `json:"reply_to_topic,omitempty"`
	Priority        *int                `json:"priority,omitempty"`
	TimeToLive      *int64              `json:"time_to_live,omitempty"` // seconds
	CorrelationID   *string             `json:"correlation_id,omitempty"`
	MessageType     MessageType         `json:"message_type,omitempty"`
	UserProperties  map[string]Property `json:"user_properties,omitempty"`
}
