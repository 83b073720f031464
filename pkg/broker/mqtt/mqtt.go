package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

const (
	clientDisconnectWaitTimeout = 250
	defaultQoS                  = 1
	defaultClientID             = "clearmesh-agent"
)

var _ broker.SessionFactory = (*Factory)(nil)
var _ broker.Session = (*session)(nil)

var ErrNoConnection = errors.New("no connection to broker server")

var tokenWaitTimeout = 3 * time.Second

// initOnce guards the process-wide paho library initialization; it runs
// exactly once regardless of how many factories or sessions exist.
var initOnce sync.Once

func ensureInitialized(logger *zap.Logger) {
	initOnce.Do(func() {
		std := zap.NewStdLog(logger.Named("paho"))
		mqtt.ERROR = std
		mqtt.CRITICAL = std
	})
}

// Factory creates broker sessions backed by MQTT.
type Factory struct {
	clientID string
	qos      byte
	logger   *zap.Logger
}

// NewFactory creates a new mqtt session factory.
func NewFactory(opts ...Option) (*Factory, error) {
	f := &Factory{qos: defaultQoS, clientID: defaultClientID}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		f.logger = l
	}
	return f, nil
}

// NewSession creates a session for the given broker config. The session is
// not connected yet.
func (f *Factory) NewSession(cfg broker.Config) (broker.Session, error) {
	ensureInitialized(f.logger)
	if cfg.URL == "" {
		return nil, errors.New("empty broker url")
	}
	uri, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:      cfg,
		uri:      uri,
		clientID: f.clientID,
		qos:      f.qos,
		logger:   f.logger,
	}, nil
}

// session implements broker.Session over paho. ClearMesh metadata and user
// properties that MQTT 3.1.1 cannot carry natively travel in a JSON envelope.
type session struct {
	cfg      broker.Config
	uri      *url.URL
	clientID string
	qos      byte
	logger   *zap.Logger

	hmu      sync.RWMutex
	handlers broker.SessionHandlers

	cmu    sync.RWMutex
	client mqtt.Client
}

func (s *session) opts() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + s.uri.Host)

	username := s.cfg.Username
	if u := s.uri.User.Username(); u != "" {
		username = u
	}
	// The broker selects the message VPN from the "user@vpn" form.
	if s.cfg.VPN != "" {
		username = username + "@" + s.cfg.VPN
	}
	opts.SetUsername(username)

	password := s.cfg.Password
	if p, isSet := s.uri.User.Password(); isSet {
		password = p
	}
	opts.SetPassword(password)

	opts.SetClientID(s.clientID)
	opts.SetCleanSession(false)
	// Reconnection is the host's decision, driven by the disconnected event.
	opts.SetAutoReconnect(false)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		if h := s.currentHandlers().OnUp; h != nil {
			h()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if h := s.currentHandlers().OnDisconnected; h != nil {
			h(err.Error())
		}
	})
	opts.SetDefaultPublishHandler(s.onMessage)
	return opts
}

// Connect issues the connect request. The outcome surfaces through the
// Up/ConnectFailed handler slots.
func (s *session) Connect() error {
	client := mqtt.NewClient(s.opts())
	s.cmu.Lock()
	s.client = client
	s.cmu.Unlock()

	token := client.Connect()
	go func() {
		for !token.WaitTimeout(tokenWaitTimeout) {
		}
		if err := token.Error(); err != nil {
			if h := s.currentHandlers().OnConnectFailed; h != nil {
				h(err.Error())
			}
		}
	}()
	return nil
}

func (s *session) Disconnect() error {
	s.cmu.Lock()
	client := s.client
	s.client = nil
	s.cmu.Unlock()
	if client == nil {
		return ErrNoConnection
	}
	client.Disconnect(clientDisconnectWaitTimeout)
	return nil
}

func (s *session) Subscribe(topic string, ackWait time.Duration) error {
	client := s.currentClient()
	if client == nil {
		return ErrNoConnection
	}
	token := client.Subscribe(FilterToMQTT(topic), s.qos, s.onMessage)
	if !token.WaitTimeout(ackWait) {
		return fmt.Errorf("subscribe %q: ack wait elapsed", topic)
	}
	return token.Error()
}

func (s *session) Unsubscribe(topic string, ackWait time.Duration) error {
	client := s.currentClient()
	if client == nil {
		return ErrNoConnection
	}
	token := client.Unsubscribe(FilterToMQTT(topic))
	if !token.WaitTimeout(ackWait) {
		return fmt.Errorf("unsubscribe %q: ack wait elapsed", topic)
	}
	return token.Error()
}

func (s *session) Send(msg *broker.OutboundMessage) error {
	client := s.currentClient()
	if client == nil {
		return ErrNoConnection
	}
	topic, payload, err := encodeOutbound(msg, s.clientID)
	if err != nil {
		return err
	}
	qos := s.qos
	if msg.DeliveryMode != nil {
		if *msg.DeliveryMode == broker.DeliveryModePersistent {
			qos = 1
		} else {
			qos = 0
		}
	}
	token := client.Publish(topic, qos, false, payload)
	for !token.WaitTimeout(tokenWaitTimeout) {
	}
	return token.Error()
}

// CreateConsumer builds a consumer over a shared subscription so that
// instances bound to the same queue split the message stream.
func (s *session) CreateConsumer(props broker.ConsumerProperties) (broker.Consumer, error) {
	if props.QueueName == "" {
		return nil, errors.New("empty queue name")
	}
	return newConsumer(s, props), nil
}

func (s *session) SetHandlers(h broker.SessionHandlers) {
	s.hmu.Lock()
	s.handlers = h
	s.hmu.Unlock()
}

func (s *session) ClearHandlers() {
	s.SetHandlers(broker.SessionHandlers{})
}

func (s *session) currentHandlers() broker.SessionHandlers {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handlers
}

func (s *session) currentClient() mqtt.Client {
	s.cmu.RLock()
	defer s.cmu.RUnlock()
	return s.client
}

func (s *session) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if h := s.currentHandlers().OnMessage; h != nil {
		h(decodeInbound(msg))
	}
}

func (s *session) String() string {
	return fmt.Sprintf("Session [%s]", s.clientID)
}
