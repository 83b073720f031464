package session

import (
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// consumerCreateRetries bounds the retry attempts around consumer creation.
const consumerCreateRetries = 3

// Subscribe issues an acknowledged subscribe request for the topic and
// tracks it for restoration on reconnect. Failures are logged and returned.
func (m *Manager) Subscribe(topic string) error {
	m.mu.Lock()
	sess := m.sess
	if sess == nil {
		m.mu.Unlock()
		m.logger.Warn("subscribe without active session", zap.String("topic", topic))
		return broker.ErrNoSession
	}
	m.subs[topic] = struct{}{}
	m.mu.Unlock()

	if err := sess.Subscribe(topic, m.ackWait); err != nil {
		m.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

// Unsubscribe issues an acknowledged unsubscribe request for the topic and
// stops tracking it. Failures are logged and returned.
func (m *Manager) Unsubscribe(topic string) error {
	m.mu.Lock()
	sess := m.sess
	delete(m.subs, topic)
	m.mu.Unlock()
	if sess == nil {
		m.logger.Warn("unsubscribe without active session", zap.String("topic", topic))
		return broker.ErrNoSession
	}

	if err := sess.Unsubscribe(topic, m.ackWait); err != nil {
		m.logger.Error("unsubscribe failed", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

// Subscriptions returns the tracked topic subscriptions, sorted.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.subs))
	for topic := range m.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ConsumeQueue creates and connects a consumer for the named queue. For
// topic endpoints a non-empty topic attaches the endpoint subscription.
// Inbound consumer messages flow through the same normalization path as
// session messages. Post-setup connect failures invoke onError and then
// disconnect the consumer. On setup failure no handle is returned.
func (m *Manager) ConsumeQueue(name string, queueType broker.QueueType, topic string, onError func(error)) (broker.Consumer, error) {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		m.logger.Warn("consume queue without active session", zap.String("queue", name))
		return nil, broker.ErrNoSession
	}

	props := broker.ConsumerProperties{
		QueueName: name,
		QueueType: queueType,
	}
	if queueType == broker.QueueTypeTopicEndpoint && topic != "" {
		props.TopicSubscription = topic
	}

	var consumer broker.Consumer
	create := func() error {
		c, err := sess.CreateConsumer(props)
		if err != nil {
			return err
		}
		consumer = c
		return nil
	}
	if err := backoff.Retry(create, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), consumerCreateRetries)); err != nil {
		m.logger.Error("failed to create consumer", zap.String("queue", name), zap.Error(err))
		return nil, err
	}

	consumer.SetHandlers(broker.ConsumerHandlers{
		OnMessage: m.norm.handle,
		OnConnectFailed: func(reason string) {
			err := fmt.Errorf("consumer for queue %q: connect failed: %s", name, reason)
			m.logger.Error("consumer connect failed",
				zap.String("queue", name), zap.String("reason", reason))
			if onError != nil {
				onError(err)
			}
			if derr := consumer.Disconnect(); derr != nil {
				m.logger.Warn("consumer disconnect failed",
					zap.String("queue", name), zap.Error(derr))
			}
		},
	})

	if err := consumer.Connect(); err != nil {
		m.logger.Error("failed to connect consumer", zap.String("queue", name), zap.Error(err))
		return nil, err
	}
	return consumer, nil
}
