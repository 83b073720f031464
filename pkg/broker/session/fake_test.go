package session

import (
	"sync"
	"time"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

// fakeSession is a scripted broker.Session for driving the manager in tests.
type fakeSession struct {
	mu       sync.Mutex
	handlers broker.SessionHandlers

	connectErr         error
	subscribeErr       error
	unsubscribeErr     error
	sendErr            error
	createErr          error
	consumerConnectErr error

	sent         []*broker.OutboundMessage
	subscribed   []string
	unsubscribed []string
	connects     int
	disconnects  int
	consumers    []*fakeConsumer
	lastProps    broker.ConsumerProperties
}

func (f *fakeSession) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSession) Subscribe(topic string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeSession) Unsubscribe(topic string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubscribeErr != nil {
		return f.unsubscribeErr
	}
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeSession) Send(msg *broker.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSession) CreateConsumer(props broker.ConsumerProperties) (broker.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastProps = props
	c := &fakeConsumer{connectErr: f.consumerConnectErr}
	f.consumers = append(f.consumers, c)
	return c, nil
}

func (f *fakeSession) SetHandlers(h broker.SessionHandlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeSession) ClearHandlers() {
	f.SetHandlers(broker.SessionHandlers{})
}

func (f *fakeSession) currentHandlers() broker.SessionHandlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers
}

func (f *fakeSession) fireUp() {
	if h := f.currentHandlers().OnUp; h != nil {
		h()
	}
}

func (f *fakeSession) fireConnectFailed(reason string) {
	if h := f.currentHandlers().OnConnectFailed; h != nil {
		h(reason)
	}
}

func (f *fakeSession) fireDisconnected(reason string) {
	if h := f.currentHandlers().OnDisconnected; h != nil {
		h(reason)
	}
}

func (f *fakeSession) fireMessage(raw *broker.RawMessage) {
	if h := f.currentHandlers().OnMessage; h != nil {
		h(raw)
	}
}

func (f *fakeSession) sentMessages() []*broker.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*broker.OutboundMessage(nil), f.sent...)
}

func (f *fakeSession) subscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeSession) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type fakeConsumer struct {
	mu          sync.Mutex
	handlers    broker.ConsumerHandlers
	connectErr  error
	connects    int
	disconnects int
}

func (c *fakeConsumer) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeConsumer) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConsumer) SetHandlers(h broker.ConsumerHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *fakeConsumer) currentHandlers() broker.ConsumerHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *fakeConsumer) fireMessage(raw *broker.RawMessage) {
	if h := c.currentHandlers().OnMessage; h != nil {
		h(raw)
	}
}

func (c *fakeConsumer) fireConnectFailed(reason string) {
	if h := c.currentHandlers().OnConnectFailed; h != nil {
		h(reason)
	}
}

// fakeFactory hands out scripted sessions and records the config used. With
// a queue set, each NewSession call pops the next session.
type fakeFactory struct {
	mu      sync.Mutex
	sess    *fakeSession
	queue   []*fakeSession
	err     error
	created int
	lastCfg broker.Config
}

func (f *fakeFactory) NewSession(cfg broker.Config) (broker.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		return next, nil
	}
	return f.sess, nil
}
