package mqtt

import (
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

var _ broker.Consumer = (*consumer)(nil)

// consumer binds to a named queue or topic endpoint through a shared
// subscription, so every consumer in the same group takes messages off the
// same stream instead of each receiving a copy.
type consumer struct {
	sess   *session
	filter string

	hmu      sync.RWMutex
	handlers broker.ConsumerHandlers
}

func newConsumer(s *session, props broker.ConsumerProperties) *consumer {
	base := queueTopic(props.QueueName)
	if props.QueueType == broker.QueueTypeTopicEndpoint && props.TopicSubscription != "" {
		base = FilterToMQTT(props.TopicSubscription)
	}
	group := strings.ReplaceAll(props.QueueName, "/", ".")
	return &consumer{
		sess:   s,
		filter: "$share/" + group + "/" + base,
	}
}

// Connect attaches the shared subscription. Request failures surface through
// the connect-failed handler slot, not the return value.
func (c *consumer) Connect() error {
	client := c.sess.currentClient()
	if client == nil {
		return ErrNoConnection
	}
	token := client.Subscribe(c.filter, c.sess.qos, c.onMessage)
	go func() {
		for !token.WaitTimeout(tokenWaitTimeout) {
		}
		if err := token.Error(); err != nil {
			if h := c.currentHandlers().OnConnectFailed; h != nil {
				h(err.Error())
			}
		}
	}()
	return nil
}

func (c *consumer) Disconnect() error {
	client := c.sess.currentClient()
	if client == nil {
		return ErrNoConnection
	}
	token := client.Unsubscribe(c.filter)
	for !token.WaitTimeout(tokenWaitTimeout) {
	}
	return token.Error()
}

func (c *consumer) SetHandlers(h broker.ConsumerHandlers) {
	c.hmu.Lock()
	c.handlers = h
	c.hmu.Unlock()
}

func (c *consumer) currentHandlers() broker.ConsumerHandlers {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return c.handlers
}

func (c *consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if h := c.currentHandlers().OnMessage; h != nil {
		h(decodeInbound(msg))
	}
}
