package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// topicUnknown is the topic reported for inbound messages that carry no
// destination.
const topicUnknown = "unknown"

// normalizer converts raw broker messages into the normalized Message shape
// and gates delivery on the ignore-pattern list.
type normalizer struct {
	matcher  *TopicMatcher
	counters *counters

	// activity resets the inactivity timer; every inbound message counts,
	// even ignored ones.
	activity func()

	// now and newID are swappable for tests.
	now   func() time.Time
	newID func() string

	onMessage func(broker.Message)
}

func newNormalizer(matcher *TopicMatcher, counters *counters, activity func(), onMessage func(broker.Message)) *normalizer {
	return &normalizer{
		matcher:   matcher,
		counters:  counters,
		activity:  activity,
		now:       time.Now,
		newID:     uuid.NewString,
		onMessage: onMessage,
	}
}

// handle processes one inbound raw message. Malformed payloads never raise
// an error; decoding is best effort.
func (n *normalizer) handle(raw *broker.RawMessage) {
	n.activity()

	atomic.AddUint64(&n.counters.received, 1)
	atomic.AddUint64(&n.counters.bytesIn, uint64(len(raw.Payload)))

	topic := raw.Destination
	if topic == "" {
		topic = topicUnknown
	}

	if n.matcher.ShouldIgnore(topic) {
		atomic.AddUint64(&n.counters.ignored, 1)
		return
	}

	receiverTS := raw.ReceiverTimestamp
	if receiverTS.IsZero() {
		receiverTS = n.now()
	}

	var props map[string]broker.Property
	if len(raw.UserProperties) > 0 {
		props = make(map[string]broker.Property, len(raw.UserProperties))
		for name, p := range raw.UserProperties {
			props[name] = p
		}
	}

	msg := broker.Message{
		Topic:          topic,
		Payload:        string(raw.Payload),
		UserProperties: props,
		Metadata: broker.Metadata{
			DeliveryMode:      raw.DeliveryMode,
			DMQEligible:       raw.DMQEligible,
			TTLMillis:         raw.TTLMillis,
			Priority:          raw.Priority,
			ReplyTo:           raw.ReplyTo,
			SenderID:          raw.SenderID,
			CorrelationID:     raw.CorrelationID,
			Redelivered:       raw.Redelivered,
			SenderTimestamp:   raw.SenderTimestamp,
			ReceiverTimestamp: receiverTS,
		},
		UniqueID: n.newID(),
	}

	atomic.AddUint64(&n.counters.delivered, 1)
	if n.onMessage != nil {
		n.onMessage(msg)
	}
}
