package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// Option provides mechanism to configure Manager.
type Option func(m *Manager) error

// WithSessionFactory returns an Option which sets the factory used to open
// broker sessions. Required.
func WithSessionFactory(f broker.SessionFactory) Option {
	return func(m *Manager) error {
		if f == nil {
			return errors.New("nil session factory")
		}
		m.factory = f
		return nil
	}
}

// WithConfig returns an Option which sets the initial broker config.
func WithConfig(cfg broker.Config) Option {
	return func(m *Manager) error {
		m.cfg = cfg
		return nil
	}
}

// WithLogger returns an Option which sets the logger for Manager.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// WithInactivityTimeout returns an Option which sets the idle period after
// which the session is disconnected. Zero disables idle disconnection.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d < 0 {
			return errors.New("negative inactivity timeout")
		}
		m.inactivityTimeout = d
		return nil
	}
}

// WithIgnorePatterns returns an Option which sets the initial topic ignore
// patterns.
func WithIgnorePatterns(patterns ...string) Option {
	return func(m *Manager) error {
		m.matcher.SetIgnorePatterns(patterns)
		return nil
	}
}

// WithOnMessage returns an Option which sets the callback invoked for every
// non-ignored inbound message.
func WithOnMessage(fn func(broker.Message)) Option {
	return func(m *Manager) error {
		m.onMessage = fn
		return nil
	}
}

// WithOnStateChange returns an Option which sets the callback invoked on
// every connectivity transition. The reason is empty on clean disconnects.
func WithOnStateChange(fn func(connected bool, reason string)) Option {
	return func(m *Manager) error {
		m.onStateChange = fn
		return nil
	}
}
