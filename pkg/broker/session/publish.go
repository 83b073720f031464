package session

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// Publish builds an outbound message from the structured options and sends
// it on the active session. It never panics; every failure, including a
// missing session, comes back as the returned error.
func (m *Manager) Publish(destination, content string, opts *broker.PublishOptions) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return broker.ErrNoSession
	}
	if opts == nil {
		opts = &broker.PublishOptions{}
	}

	out := &broker.OutboundMessage{
		Destination:     destination,
		DestinationType: broker.DestinationTopic,
	}
	if opts.DestinationType == broker.DestinationQueue {
		out.DestinationType = broker.DestinationQueue
	}

	// Binary messages carry the content as a structured string-typed field;
	// everything else goes out as a raw binary attachment.
	if opts.MessageType == broker.MessageTypeBinary {
		s := content
		out.StructuredString = &s
	} else {
		out.BinaryAttachment = []byte(content)
	}

	if opts.DeliveryMode != nil {
		mode := *opts.DeliveryMode
		out.DeliveryMode = &mode
	}
	if opts.DMQEligible != nil {
		dmq := *opts.DMQEligible
		out.DMQEligible = &dmq
	}
	if opts.ReplyToTopic != nil {
		replyTo := *opts.ReplyToTopic
		out.ReplyTo = &replyTo
	}
	if opts.Priority != nil {
		priority := *opts.Priority
		out.Priority = &priority
	}
	if opts.CorrelationID != nil {
		correlationID := *opts.CorrelationID
		out.CorrelationID = &correlationID
	}
	if opts.TimeToLive != nil {
		// TimeToLive is in seconds; the wire wants milliseconds.
		ttlMillis := *opts.TimeToLive * 1000
		out.TTLMillis = &ttlMillis
	}
	if len(opts.UserProperties) > 0 {
		if out.UserProperties == nil {
			out.UserProperties = make(map[string]broker.Property, len(opts.UserProperties))
		}
		for name, p := range opts.UserProperties {
			out.UserProperties[name] = p
		}
	}

	m.monitor.Reset()
	if err := sess.Send(out); err != nil {
		m.logger.Error("publish failed",
			zap.String("destination", destination), zap.Error(err))
		return err
	}

	atomic.AddUint64(&m.counters.published, 1)
	atomic.AddUint64(&m.counters.bytesOut, uint64(len(content)))
	return nil
}
