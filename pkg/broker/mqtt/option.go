package mqtt

import (
	"errors"

	"go.uber.org/zap"
)

type Option func(f *Factory) error

// WithClientID returns an Option which sets the mqtt client id.
func WithClientID(id string) Option {
	return func(f *Factory) error {
		if id == "" {
			return errors.New("empty client id")
		}
		f.clientID = id
		return nil
	}
}

// WithQoS returns an Option which sets the default quality of service for
// subscriptions and direct publishes.
func WithQoS(qos byte) Option {
	return func(f *Factory) error {
		if qos > 2 {
			return errors.New("invalid qos")
		}
		f.qos = qos
		return nil
	}
}

// WithLogger returns an Option which sets the logger for Factory and the
// sessions it creates.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Factory) error {
		f.logger = logger
		return nil
	}
}
