package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// defaultAckWait is the fixed ack-wait budget for subscribe, unsubscribe and
// consumer requests.
const defaultAckWait = 10 * time.Second

// Manager owns one broker session and its lifecycle: it opens and tears down
// sessions, wires the four session event handlers, normalizes inbound
// messages, and disconnects idle sessions. One Manager owns one session at a
// time; all methods are safe for concurrent use.
type Manager struct {
	factory broker.SessionFactory
	ackWait time.Duration

	mu        sync.Mutex
	cfg       broker.Config
	sess      broker.Session
	connected bool
	subs      map[string]struct{}

	matcher  *TopicMatcher
	monitor  *inactivityMonitor
	norm     *normalizer
	counters counters

	inactivityTimeout time.Duration
	onMessage         func(broker.Message)
	onStateChange     func(connected bool, reason string)

	logger *zap.Logger
}

// NewManager creates a Manager with given options. WithSessionFactory is
// required.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		ackWait: defaultAckWait,
		subs:    make(map[string]struct{}),
		matcher: &TopicMatcher{},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.factory == nil {
		return nil, errors.New("session factory is required")
	}
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		m.logger = l
	}

	m.monitor = newInactivityMonitor(m.inactivityTimeout, m.idleDisconnect)
	m.norm = newNormalizer(m.matcher, &m.counters, m.monitor.Reset, m.deliver)
	return m, nil
}

// Connect opens a new session using the current config and issues the
// connect request. A non-nil cfg replaces the stored config first. This is
// the only operation that returns session-creation errors; all later
// failures surface through the state-change callback.
func (m *Manager) Connect(cfg *broker.Config) error {
	m.mu.Lock()
	if old := m.sess; old != nil {
		// Replace a still-open session quietly; the explicit state-change
		// callback belongs to Disconnect.
		old.ClearHandlers()
		if err := old.Disconnect(); err != nil {
			m.logger.Warn("failed to disconnect previous session", zap.Error(err))
		}
		m.sess = nil
		m.connected = false
		// The timer armed by the old session's activity must not fire
		// against the replacement while it is still connecting.
		m.monitor.Stop()
	}
	if cfg != nil {
		m.cfg = *cfg
	}
	sess, err := m.factory.NewSession(m.cfg)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	// Handlers close over the session they were installed on, so an event
	// dispatched just before ClearHandlers cannot act against a replacement
	// session.
	sess.SetHandlers(broker.SessionHandlers{
		OnUp:            func() { m.handleUp(sess) },
		OnConnectFailed: func(reason string) { m.teardown(sess, reason) },
		OnDisconnected:  func(reason string) { m.teardown(sess, reason) },
		OnMessage:       m.norm.handle,
	})
	m.sess = sess
	m.mu.Unlock()

	if err := sess.Connect(); err != nil {
		m.mu.Lock()
		if m.sess == sess {
			sess.ClearHandlers()
			m.sess = nil
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect tears the session down: detaches all listeners, requests
// session disconnect, cancels the inactivity timer and fires the
// state-change callback. It is idempotent; with no session it is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	sess := m.sess
	if sess == nil {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.connected = false
	cb := m.onStateChange
	m.mu.Unlock()

	sess.ClearHandlers()
	if err := sess.Disconnect(); err != nil {
		m.logger.Warn("session disconnect failed", zap.Error(err))
	}
	m.monitor.Stop()
	if cb != nil {
		cb(false, "")
	}
}

// IsConnected returns current boolean connectivity.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Config returns the last-applied broker config.
func (m *Manager) Config() broker.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Stats returns a snapshot of the message counters.
func (m *Manager) Stats() Stats {
	return m.counters.snapshot()
}

// SetIgnorePatterns replaces the topic ignore patterns. The list only gates
// delivery to the message callback; explicit subscriptions are unaffected.
func (m *Manager) SetIgnorePatterns(patterns []string) {
	m.matcher.SetIgnorePatterns(patterns)
}

// SetOnMessage replaces the message callback.
func (m *Manager) SetOnMessage(fn func(broker.Message)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// SetOnStateChange replaces the state-change callback.
func (m *Manager) SetOnStateChange(fn func(connected bool, reason string)) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

func (m *Manager) handleUp(sess broker.Session) {
	m.mu.Lock()
	if m.sess != sess {
		m.mu.Unlock()
		return
	}
	m.connected = true
	cb := m.onStateChange
	m.mu.Unlock()

	m.monitor.Reset()
	m.restoreSubscriptions()
	if cb != nil {
		cb(true, "")
	}
}

// teardown releases the session after a broker-driven failure or drop and
// surfaces the reason through the state-change callback. Events from a
// session that is no longer current are dropped.
func (m *Manager) teardown(sess broker.Session, reason string) {
	m.mu.Lock()
	if m.sess != sess {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.connected = false
	cb := m.onStateChange
	m.mu.Unlock()

	sess.ClearHandlers()
	m.monitor.Stop()
	m.logger.Warn("session down", zap.String("reason", reason))
	if cb != nil {
		cb(false, reason)
	}
}

// idleDisconnect fires when the inactivity timer elapses.
func (m *Manager) idleDisconnect() {
	m.logger.Info("disconnecting idle session",
		zap.Duration("inactivity_timeout", m.inactivityTimeout))
	m.Disconnect()
}

// deliver hands a normalized message to the host callback.
func (m *Manager) deliver(msg broker.Message) {
	m.mu.Lock()
	cb := m.onMessage
	m.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// restoreSubscriptions re-issues all tracked subscriptions after the session
// comes up.
func (m *Manager) restoreSubscriptions() {
	m.mu.Lock()
	sess := m.sess
	topics := make([]string, 0, len(m.subs))
	for topic := range m.subs {
		topics = append(topics, topic)
	}
	m.mu.Unlock()

	if sess == nil {
		return
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if err := sess.Subscribe(topic, m.ackWait); err != nil {
			m.logger.Error("failed to restore subscription",
				zap.String("topic", topic), zap.Error(err))
		}
	}
}
