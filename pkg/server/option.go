package server

import (
	"errors"

	"go.uber.org/zap"
)

type Option func(s *Server) error

// WithAddr returns an Option which set the server listening address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.Addr = addr
		return nil
	}
}

// WithManager returns an Option which set the broker session manager the
// server drives.
func WithManager(m Manager) Option {
	return func(s *Server) error {
		if m == nil {
			return errors.New("nil manager")
		}
		s.mgr = m
		return nil
	}
}

// WithSubscribeTopics returns an Option which set the topics the server
// subscribes to once the session is up.
func WithSubscribeTopics(topics ...string) Option {
	return func(s *Server) error {
		s.subscribeTopics = topics
		return nil
	}
}

// WithHeartbeat returns an Option which enables periodic status publishes to
// topic on a cron schedule.
func WithHeartbeat(topic, schedule string) Option {
	return func(s *Server) error {
		s.heartbeatTopic = topic
		s.heartbeatSchedule = schedule
		return nil
	}
}

// WithLogger returns an Option which set the logger for Server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}
