package server

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

const (
	eventPing          = "ping"
	eventStatusRequest = "status_request"

	eventPong = "pong"
)

// ErrUnknownEventType is raised when receiving an unhandled control event
// from the broker.
var ErrUnknownEventType = errors.New("unknown event type")

// controlMessage is the control event format carried in message payloads on
// the agent's control topics.
type controlMessage struct {
	EventType string `json:"event_type"`
}

// handleBrokerMessage is the manager's message callback. Control events get
// dispatched; everything else is only logged.
func (s *Server) handleBrokerMessage(msg broker.Message) {
	s.logger.Debug("got broker message",
		zap.String("topic", msg.Topic),
		zap.String("unique_id", msg.UniqueID))

	var cm controlMessage
	if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil || cm.EventType == "" {
		return
	}

	switch cm.EventType {
	case eventPing:
		s.reply(msg, map[string]string{"event_type": eventPong})
	case eventStatusRequest:
		s.reply(msg, s.statusResponse())
	default:
		s.logger.Warn("unhandled control event",
			zap.String("event_type", cm.EventType),
			zap.Error(ErrUnknownEventType))
	}
}

// reply publishes a response to the message's reply-to topic, echoing the
// correlation id when present.
func (s *Server) reply(msg broker.Message, body interface{}) {
	if msg.Metadata.ReplyTo == "" {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	var opts *broker.PublishOptions
	if corr := msg.Metadata.CorrelationID; corr != "" {
		opts = &broker.PublishOptions{CorrelationID: &corr}
	}
	if err := s.mgr.Publish(msg.Metadata.ReplyTo, string(payload), opts); err != nil {
		s.logger.Warn("failed to reply to control event",
			zap.String("reply_to", msg.Metadata.ReplyTo), zap.Error(err))
	}
}
