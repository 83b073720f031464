package mqtt

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// envelopeVersion marks a payload as a ClearMesh envelope. Inbound payloads
// without the marker are treated as plain attachments from foreign clients.
const envelopeVersion = 1

// envelope carries the message fields MQTT 3.1.1 has no native slot for.
type envelope struct {
	Version        int                        `json:"cm"`
	Topic          string                     `json:"topic,omitempty"`
	Attachment     []byte                     `json:"attachment,omitempty"`
	Text           *string                    `json:"text,omitempty"`
	UserProperties map[string]broker.Property `json:"user_properties,omitempty"`
	DeliveryMode   broker.DeliveryMode        `json:"delivery_mode,omitempty"`
	DMQEligible    bool                       `json:"dmq_eligible,omitempty"`
	TTLMillis      int64                      `json:"ttl_ms,omitempty"`
	Priority       int                        `json:"priority,omitempty"`
	ReplyTo        string                     `json:"reply_to,omitempty"`
	SenderID       string                     `json:"sender_id,omitempty"`
	CorrelationID  string                     `json:"correlation_id,omitempty"`
	SenderTSMillis int64                      `json:"sender_ts_ms,omitempty"`
}

func encodeOutbound(msg *broker.OutboundMessage, senderID string) (topic string, payload []byte, err error) {
	env := envelope{
		Version:        envelopeVersion,
		Topic:          msg.Destination,
		Attachment:     msg.BinaryAttachment,
		Text:           msg.StructuredString,
		UserProperties: msg.UserProperties,
		SenderID:       senderID,
		SenderTSMillis: time.Now().UnixNano() / int64(time.Millisecond),
	}
	if msg.DeliveryMode != nil {
		env.DeliveryMode = *msg.DeliveryMode
	}
	if msg.DMQEligible != nil {
		env.DMQEligible = *msg.DMQEligible
	}
	if msg.TTLMillis != nil {
		env.TTLMillis = *msg.TTLMillis
	}
	if msg.Priority != nil {
		env.Priority = *msg.Priority
	}
	if msg.ReplyTo != nil {
		env.ReplyTo = *msg.ReplyTo
	}
	if msg.CorrelationID != nil {
		env.CorrelationID = *msg.CorrelationID
	}

	payload, err = json.Marshal(env)
	if err != nil {
		return "", nil, err
	}

	topic = msg.Destination
	if msg.DestinationType == broker.DestinationQueue {
		topic = queueTopic(msg.Destination)
	}
	return topic, payload, nil
}

func decodeInbound(msg mqtt.Message) *broker.RawMessage {
	raw := &broker.RawMessage{
		Destination: msg.Topic(),
		Redelivered: msg.Duplicate(),
	}

	var env envelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil || env.Version == 0 {
		// Foreign payload; best effort, bytes as-is.
		raw.Payload = msg.Payload()
		return raw
	}

	if env.Topic != "" {
		raw.Destination = env.Topic
	}
	if env.Text != nil {
		raw.Payload = []byte(*env.Text)
	} else {
		raw.Payload = env.Attachment
	}
	raw.UserProperties = env.UserProperties
	raw.DeliveryMode = env.DeliveryMode
	raw.DMQEligible = env.DMQEligible
	raw.TTLMillis = env.TTLMillis
	raw.Priority = env.Priority
	raw.ReplyTo = env.ReplyTo
	raw.SenderID = env.SenderID
	raw.CorrelationID = env.CorrelationID
	if env.SenderTSMillis > 0 {
		raw.SenderTimestamp = time.Unix(0, env.SenderTSMillis*int64(time.Millisecond))
	}
	return raw
}
