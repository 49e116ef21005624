package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rtsp-kiosk/internal/kiosk"
	"rtsp-kiosk/internal/platform/config"
	"rtsp-kiosk/internal/platform/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *fakeClient) last() message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

var status = kiosk.Status{
	Phase:      kiosk.PhasePlaying,
	SessionID:  "0b6a1f1e-7d8a-4cc5-9a36-1f4ad1f7b9f1",
	Endpoint:   "rtsp://cam.local/live",
	Starts:     3,
	Reconnects: 2,
	LastEvent:  "opening",
	UpdatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func newTestPublisher(t *testing.T, format string, c *fakeClient) *Publisher {
	t.Helper()
	p := NewPublisher(config.MQTTConfig{Topic: "kiosk/status", Format: format}, logger.Discard())
	p.setConnected(true)
	p.start(c)
	t.Cleanup(p.Close)
	return p
}

func TestEncode_json(t *testing.T) {
	b, err := Encode(status, "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "PLAYING", got["phase"])
	assert.Equal(t, float64(2), got["reconnects"])
}

func TestEncode_msgpack_uses_json_names(t *testing.T) {
	b, err := Encode(status, "msgpack")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(b, &got))
	assert.Equal(t, "PLAYING", got["phase"])
	assert.Equal(t, status.SessionID, got["session_id"])
}

func TestEncode_unknown(t *testing.T) {
	_, err := Encode(status, "xml")
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestPublisher_Notify_publishes_retained(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(t, "json", c)

	p.Notify(status)

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 5*time.Millisecond)
	msg := c.last()
	assert.Equal(t, "kiosk/status", msg.topic)
	assert.True(t, msg.retained)
	assert.EqualValues(t, 1, msg.qos)
	assert.Contains(t, string(msg.payload), `"phase":"PLAYING"`)
	assert.Equal(t, uint64(1), p.Stats().Published)
}

func TestPublisher_publish_errors_counted(t *testing.T) {
	c := &fakeClient{err: errors.New("broker gone")}
	p := newTestPublisher(t, "json", c)

	p.Notify(status)

	require.Eventually(t, func() bool { return p.Stats().Errors == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Stats().Published)
}

func TestPublisher_not_connected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(t, "json", c)
	p.setConnected(false)

	p.Notify(status)

	require.Eventually(t, func() bool { return p.Stats().Errors == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.count())
}

func TestPublisher_Close_flushes(t *testing.T) {
	c := &fakeClient{}
	p := NewPublisher(config.MQTTConfig{Topic: "kiosk/status", Format: "msgpack"}, logger.Discard())
	p.setConnected(true)

	for i := 0; i < 5; i++ {
		p.Notify(status)
	}
	p.start(c)
	p.Close()
	p.Close()

	assert.Equal(t, 5, c.count())
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://broker.local:1883", brokerURL("broker.local:1883"))
	assert.Equal(t, "ssl://broker.local:8883", brokerURL("ssl://broker.local:8883"))
}
