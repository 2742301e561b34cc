package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"stress-detect-go/config"
	"stress-detect-go/internal/core/models"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	published  []published
	subscribed []string
	handler    pahomqtt.MessageHandler
}

func (f *fakeClient) IsConnected() bool      { return true }
func (f *fakeClient) IsConnectionOpen() bool { return true }
func (f *fakeClient) Connect() pahomqtt.Token {
	return doneToken{}
}
func (f *fakeClient) Disconnect(uint) {}
func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}
func (f *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	f.handler = cb
	return doneToken{}
}
func (f *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return doneToken{}
}
func (f *fakeClient) Unsubscribe(...string) pahomqtt.Token {
	return doneToken{}
}
func (f *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {
}
func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakeClient) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestClient(t *testing.T, ingest IngestFunc) (*Client, *fakeClient) {
	t.Helper()
	fake := &fakeClient{}
	orig := NewClientFunc
	NewClientFunc = func(*pahomqtt.ClientOptions) pahomqtt.Client { return fake }
	t.Cleanup(func() { NewClientFunc = orig })

	c, err := NewMQTTClient(config.MQTTConfig{
		Enabled:     true,
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "test",
		TopicPrefix: "stress",
		Ingest:      true,
	}, 75, ingest)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c, fake
}

func successResult(score float64) *models.DetectionResult {
	return &models.DetectionResult{
		Success:       true,
		FacesDetected: 1,
		Faces:         []models.FaceResult{{Region: models.Region{W: 40, H: 40}, Score: score, Category: models.CategoryHigh}},
	}
}

func TestDisabledClient(t *testing.T) {
	c, err := NewMQTTClient(config.MQTTConfig{Enabled: false}, 75, nil)
	assert.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, c.PublishResult("x", "", successResult(90)))
	c.Stop()

	_, err = NewMQTTClient(config.MQTTConfig{Enabled: true}, 75, nil)
	assert.Error(t, err)
}

func TestPublishResultWithoutAlert(t *testing.T) {
	c, fake := newTestClient(t, nil)
	require.NoError(t, c.PublishResult("alice", "rec-1", successResult(50)))

	msgs := fake.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "stress/results/alice", msgs[0].topic)

	var got ResultMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, 50.0, got.StressScore)
	assert.True(t, got.Success)
}

func TestPublishResultWithAlert(t *testing.T) {
	c, fake := newTestClient(t, nil)
	require.NoError(t, c.PublishResult("a/b+c", "", successResult(75)))

	msgs := fake.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "stress/results/a_b_c", msgs[0].topic)
	assert.Equal(t, "stress/alerts", msgs[1].topic)

	var alert AlertMessage
	require.NoError(t, json.Unmarshal(msgs[1].payload, &alert))
	assert.Equal(t, 75.0, alert.Threshold)
	assert.Equal(t, models.CategoryHigh, alert.StressLevel)
}

func TestIngestSubscriptionAndHandling(t *testing.T) {
	var gotSubject string
	var gotData []byte
	var calls int
	var mu sync.Mutex
	ingest := func(_ context.Context, subject string, data []byte) (*models.DetectionResult, error) {
		mu.Lock()
		defer mu.Unlock()
		gotSubject, gotData = subject, data
		calls++
		return successResult(20), nil
	}
	c, fake := newTestClient(t, ingest)

	c.onConnectHandler(fake)
	assert.True(t, c.IsConnected())
	require.Equal(t, []string{"stress/ingest"}, fake.subscribed)

	fake.handler(fake, fakeMessage{topic: "stress/ingest", payload: []byte(`{"subject_id":"cam-1","image_data":"data:image/png;base64,AAAA"}`)})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotSubject == "cam-1"
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "data:image/png;base64,AAAA", string(gotData))
	mu.Unlock()

	// kaputte Nachrichten werden ignoriert
	fake.handler(fake, fakeMessage{topic: "stress/ingest", payload: []byte(`{`)})
	fake.handler(fake, fakeMessage{topic: "stress/ingest", payload: []byte(`{"subject_id":"x"}`)})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	// das Verteilen übernimmt die Ingest-Funktion, der Client veröffentlicht nichts selbst
	assert.Empty(t, fake.messages())

	c.connectionLostHandler(fake, assert.AnError)
	assert.False(t, c.IsConnected())
}

func TestTopicSegment(t *testing.T) {
	assert.Equal(t, "anonymous", topicSegment(""))
	assert.Equal(t, "user_1", topicSegment("user#1"))
}
