package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
)

func TestPublishNoSession(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)

	err := m.Publish("orders/created", "x", nil)
	assert.Equal(t, broker.ErrNoSession, err)
	assert.Empty(t, sess.sentMessages())
}

func TestPublishTextDefaults(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	require.NoError(t, m.Publish("orders/created", "hello", nil))

	sent := sess.sentMessages()
	require.Len(t, sent, 1)
	out := sent[0]
	assert.Equal(t, "orders/created", out.Destination)
	assert.Equal(t, broker.DestinationTopic, out.DestinationType)
	assert.Equal(t, []byte("hello"), out.BinaryAttachment)
	assert.Nil(t, out.StructuredString)

	// Nothing set means every broker default stays untouched.
	assert.Nil(t, out.DeliveryMode)
	assert.Nil(t, out.DMQEligible)
	assert.Nil(t, out.ReplyTo)
	assert.Nil(t, out.Priority)
	assert.Nil(t, out.TTLMillis)
	assert.Nil(t, out.CorrelationID)
	assert.Nil(t, out.UserProperties)
}

func TestPublishBinaryContent(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	require.NoError(t, m.Publish("orders/created", "payload", &broker.PublishOptions{
		MessageType: broker.MessageTypeBinary,
	}))

	sent := sess.sentMessages()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].StructuredString)
	assert.Equal(t, "payload", *sent[0].StructuredString)
	assert.Nil(t, sent[0].BinaryAttachment)
}

func TestPublishQueueDestination(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	require.NoError(t, m.Publish("work-queue", "job", &broker.PublishOptions{
		DestinationType: broker.DestinationQueue,
	}))

	sent := sess.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, broker.DestinationQueue, sent[0].DestinationType)
}

func TestPublishTTLSecondsToMillis(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	ttl := int64(5)
	require.NoError(t, m.Publish("orders/created", "x", &broker.PublishOptions{
		TimeToLive: &ttl,
	}))

	sent := sess.sentMessages()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].TTLMillis)
	assert.Equal(t, int64(5000), *sent[0].TTLMillis)
}

func TestPublishFullOptions(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	mode := broker.DeliveryModePersistent
	dmq := true
	replyTo := "replies/1"
	priority := 7
	corrID := "corr-42"
	require.NoError(t, m.Publish("orders/created", "x", &broker.PublishOptions{
		DeliveryMode:  &mode,
		DMQEligible:   &dmq,
		ReplyToTopic:  &replyTo,
		Priority:      &priority,
		CorrelationID: &corrID,
		UserProperties: map[string]broker.Property{
			"region": {Type: "string", Value: "eu"},
		},
	}))

	sent := sess.sentMessages()
	require.Len(t, sent, 1)
	out := sent[0]
	require.NotNil(t, out.DeliveryMode)
	assert.Equal(t, broker.DeliveryModePersistent, *out.DeliveryMode)
	require.NotNil(t, out.DMQEligible)
	assert.True(t, *out.DMQEligible)
	require.NotNil(t, out.ReplyTo)
	assert.Equal(t, "replies/1", *out.ReplyTo)
	require.NotNil(t, out.Priority)
	assert.Equal(t, 7, *out.Priority)
	require.NotNil(t, out.CorrelationID)
	assert.Equal(t, "corr-42", *out.CorrelationID)
	assert.Equal(t, broker.Property{Type: "string", Value: "eu"}, out.UserProperties["region"])
}

func TestPublishSendErrorReturned(t *testing.T) {
	sendErr := errors.New("send boom")
	sess := &fakeSession{sendErr: sendErr}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	assert.Equal(t, sendErr, m.Publish("orders/created", "x", nil))
	assert.Equal(t, uint64(0), m.Stats().Published)
}

func TestPublishCounters(t *testing.T) {
	sess := &fakeSession{}
	m := newTestManager(t, sess)
	require.NoError(t, m.Connect(nil))

	require.NoError(t, m.Publish("a", "12345", nil))
	require.NoError(t, m.Publish("b", "678", nil))

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(8), stats.BytesOut)
}
