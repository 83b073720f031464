package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
	"github.com/clearmesh/clearmesh-agent/pkg/broker/session"
)

type publishedMessage struct {
	destination string
	content     string
	opts        *broker.PublishOptions
}

// fakeManager is an in-process Manager double; no broker involved.
type fakeManager struct {
	mu             sync.Mutex
	connected      bool
	cfg            broker.Config
	subs           []string
	published      []publishedMessage
	ignorePatterns []string
	consumed       []string

	publishErr   error
	subscribeErr error
	consumeErr   error

	onMessage     func(broker.Message)
	onStateChange func(connected bool, reason string)
}

func (f *fakeManager) Connect(cfg *broker.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg != nil {
		f.cfg = *cfg
	}
	f.connected = true
	return nil
}

func (f *fakeManager) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeManager) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeManager) Config() broker.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeManager) Stats() session.Stats {
	return session.Stats{Received: 3, Delivered: 2, Ignored: 1, Published: 4, BytesIn: 1024, BytesOut: 2048}
}

func (f *fakeManager) Publish(destination, content string, opts *broker.PublishOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{destination, content, opts})
	return nil
}

func (f *fakeManager) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subs = append(f.subs, topic)
	return nil
}

func (f *fakeManager) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.subs {
		if t == topic {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeManager) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs...)
}

func (f *fakeManager) SetIgnorePatterns(patterns []string) {
	f.mu.Lock()
	f.ignorePatterns = patterns
	f.mu.Unlock()
}

func (f *fakeManager) ConsumeQueue(name string, queueType broker.QueueType, topic string, onError func(error)) (broker.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.consumed = append(f.consumed, name)
	return &nopConsumer{}, nil
}

func (f *fakeManager) SetOnMessage(fn func(broker.Message)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakeManager) SetOnStateChange(fn func(connected bool, reason string)) {
	f.mu.Lock()
	f.onStateChange = fn
	f.mu.Unlock()
}

func (f *fakeManager) publishedMessages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

type nopConsumer struct{}

func (*nopConsumer) Connect() error                        { return nil }
func (*nopConsumer) Disconnect() error                     { return nil }
func (*nopConsumer) SetHandlers(_ broker.ConsumerHandlers) {}

func newTestServer(t *testing.T, fm *fakeManager, opts ...Option) *Server {
	t.Helper()
	base := []Option{WithManager(fm), WithLogger(zap.NewNop())}
	s, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestNewRequiresManager(t *testing.T) {
	_, err := New(WithLogger(zap.NewNop()))
	require.Error(t, err)
}

func TestServerStatus(t *testing.T) {
	fm := &fakeManager{connected: true, cfg: broker.Config{URL: "tcp://broker:55555", VPN: "default"}, subs: []string{"orders/*"}}
	s := newTestServer(t, fm)

	w := doRequest(s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Connected)
	assert.Equal(t, "tcp://broker:55555", resp.BrokerURL)
	assert.Equal(t, "default", resp.VPN)
	assert.Equal(t, []string{"orders/*"}, resp.Subscriptions)
	assert.Equal(t, uint64(2), resp.Stats.Delivered)
	assert.NotEmpty(t, resp.BytesInHuman)
	assert.NotEmpty(t, resp.BytesOutHuman)
}

func TestServerPublishMessage(t *testing.T) {
	fm := &fakeManager{}
	s := newTestServer(t, fm)

	ttl := int64(5)
	w := doRequest(s, http.MethodPost, "/messages", PublishRequest{
		Destination: "orders/created",
		Content:     "hello",
		Options:     &broker.PublishOptions{TimeToLive: &ttl},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	published := fm.publishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "orders/created", published[0].destination)
	assert.Equal(t, "hello", published[0].content)
	require.NotNil(t, published[0].opts)
	require.NotNil(t, published[0].opts.TimeToLive)
	assert.Equal(t, int64(5), *published[0].opts.TimeToLive)
}

func TestServerPublishMessageErrors(t *testing.T) {
	fm := &fakeManager{}
	s := newTestServer(t, fm)

	// Empty destination.
	w := doRequest(s, http.MethodPost, "/messages", PublishRequest{Content: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No session behind the manager.
	fm.publishErr = broker.ErrNoSession
	w = doRequest(s, http.MethodPost, "/messages", PublishRequest{Destination: "a", Content: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerSubscriptions(t *testing.T) {
	fm := &fakeManager{}
	s := newTestServer(t, fm)

	w := doRequest(s, http.MethodPost, "/subscriptions", SubscriptionRequest{Topic: "orders/*"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(s, http.MethodGet, "/subscriptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var topics []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&topics))
	assert.Equal(t, []string{"orders/*"}, topics)

	w = doRequest(s, http.MethodDelete, "/subscriptions", SubscriptionRequest{Topic: "orders/*"})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, fm.Subscriptions())

	// Empty topic is rejected before reaching the manager.
	w = doRequest(s, http.MethodPost, "/subscriptions", SubscriptionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerUpdateIgnorePatterns(t *testing.T) {
	fm := &fakeManager{}
	s := newTestServer(t, fm)

	w := doRequest(s, http.MethodPut, "/ignore-patterns", IgnorePatternsRequest{Patterns: []string{"audit/>"}})
	require.Equal(t, http.StatusNoContent, w.Code)

	fm.mu.Lock()
	defer fm.mu.Unlock()
	assert.Equal(t, []string{"audit/>"}, fm.ignorePatterns)
}

func TestServerStartConsumer(t *testing.T) {
	fm := &fakeManager{}
	s := newTestServer(t, fm)

	w := doRequest(s, http.MethodPost, "/queues/work/consumers", ConsumerRequest{})
	require.Equal(t, http.StatusCreated, w.Code)

	fm.mu.Lock()
	assert.Equal(t, []string{"work"}, fm.consumed)
	fm.mu.Unlock()

	s.consumerMu.Lock()
	assert.Len(t, s.consumers, 1)
	s.consumerMu.Unlock()

	fm.consumeErr = broker.ErrNoSession
	w = doRequest(s, http.MethodPost, "/queues/work/consumers", ConsumerRequest{Type: broker.QueueTypeTopicEndpoint, Topic: "orders/>"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerControlPing(t *testing.T) {
	fm := &fakeManager{}
	newTestServer(t, fm)
	require.NotNil(t, fm.onMessage)

	fm.onMessage(broker.Message{
		Topic:   "agent/agent1",
		Payload: `{"event_type":"ping"}`,
		Metadata: broker.Metadata{
			ReplyTo:       "replies/1",
			CorrelationID: "corr-1",
		},
	})

	published := fm.publishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "replies/1", published[0].destination)
	assert.JSONEq(t, `{"event_type":"pong"}`, published[0].content)
	require.NotNil(t, published[0].opts)
	require.NotNil(t, published[0].opts.CorrelationID)
	assert.Equal(t, "corr-1", *published[0].opts.CorrelationID)
}

func TestServerControlStatusRequest(t *testing.T) {
	fm := &fakeManager{connected: true}
	newTestServer(t, fm)

	fm.onMessage(broker.Message{
		Payload:  `{"event_type":"status_request"}`,
		Metadata: broker.Metadata{ReplyTo: "replies/2"},
	})

	published := fm.publishedMessages()
	require.Len(t, published, 1)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal([]byte(published[0].content), &resp))
	assert.True(t, resp.Connected)
}

func TestServerControlIgnoresNonControlPayloads(t *testing.T) {
	fm := &fakeManager{}
	newTestServer(t, fm)

	fm.onMessage(broker.Message{Payload: "plain text", Metadata: broker.Metadata{ReplyTo: "replies/3"}})
	fm.onMessage(broker.Message{Payload: `{"event_type":"bogus"}`, Metadata: broker.Metadata{ReplyTo: "replies/3"}})

	assert.Empty(t, fm.publishedMessages())
}

func TestServerRun(t *testing.T) {
	sock := filepath.Join(os.TempDir(), "clearmesh-agent-test-server.sock")
	_ = os.Remove(sock)
	tests := []struct {
		addr string
	}{
		{"unix://" + sock},
		{":1810"},
	}
	for _, tc := range tests {
		fm := &fakeManager{}
		s := newTestServer(t, fm, WithAddr(tc.addr), WithSubscribeTopics("agent/default"))
		s.testSignalCh = make(chan os.Signal, 1)
		var serverError error
		done := make(chan struct{})
		go func() {
			serverError = s.Run()
			close(done)
		}()
		time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)
		s.testSignalCh <- syscall.SIGTERM
		<-done
		assert.IsType(t, http.ErrServerClosed, serverError)
	}
}
