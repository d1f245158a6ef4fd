package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-plclink/config"
	"github.com/arloliu/go-plclink/logger"
)

// mockClient overrides the pahomqtt.Client methods the publisher uses.
type mockClient struct {
	pahomqtt.Client
	mock.Mock
}

func (c *mockClient) IsConnected() bool {
	return c.Called().Bool(0)
}

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	args := c.Called(topic, qos, retained, payload)
	return args.Get(0).(pahomqtt.Token) //nolint:forcetypeassert
}

func (c *mockClient) Disconnect(quiesce uint) {
	c.Called(quiesce)
}

// doneToken is a completed token.
type doneToken struct{ err error }

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

func newTestMQTT(client *mockClient) *MQTT {
	cfg := config.Default().MQTT
	return newMQTT(client, cfg, logger.NewMockLogger().AllowAll())
}

var sampleTime = time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

func TestMQTT_Publish(t *testing.T) {
	client := &mockClient{}
	client.On("IsConnected").Return(true)

	client.On("Publish", "plclink/press/speed", byte(1), false, mock.MatchedBy(func(p []byte) bool {
		var msg PointMessage
		return json.Unmarshal(p, &msg) == nil &&
			msg.Device == "press" && msg.Point == "speed" &&
			msg.Value == float64(12) && msg.Timestamp == "2026-03-01T08:30:00Z"
	})).Return(&doneToken{}).Once()

	client.On("Publish", "plclink/press", byte(1), false, mock.MatchedBy(func(p []byte) bool {
		var msg DeviceMessage
		return json.Unmarshal(p, &msg) == nil && msg.Values["speed"] == float64(12)
	})).Return(&doneToken{}).Once()

	m := newTestMQTT(client)
	err := m.Publish(context.Background(), Sample{
		Device: "press",
		Values: map[string]any{"speed": int16(12)},
		Time:   sampleTime,
	})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestMQTT_PublishErrors(t *testing.T) {
	client := &mockClient{}
	client.On("IsConnected").Return(false).Once()

	m := newTestMQTT(client)
	err := m.Publish(context.Background(), Sample{Device: "d", Time: sampleTime})
	require.ErrorIs(t, err, ErrNotConnected)

	client.On("IsConnected").Return(true)
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&doneToken{err: errors.New("broker gone")})

	err = m.Publish(context.Background(), Sample{Device: "d", Time: sampleTime})
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorContains(t, err, "plclink/d")
}

func TestMQTT_Topics(t *testing.T) {
	m := newMQTT(&mockClient{}, config.MQTTConfig{TopicPrefix: "site/"}, logger.NewMockLogger().AllowAll())
	assert.Equal(t, "site/press/speed", m.PointTopic("press", "speed"))

	m = newMQTT(&mockClient{}, config.MQTTConfig{}, logger.NewMockLogger().AllowAll())
	assert.Equal(t, "press", m.DeviceTopic("press"))
}

func TestMQTT_Close(t *testing.T) {
	client := &mockClient{}
	client.On("Disconnect", uint(disconnectQuiesce)).Once()

	require.NoError(t, newTestMQTT(client).Close())
	client.AssertExpectations(t)
}

// --- Multi ---

type recordPublisher struct {
	samples []Sample
	err     error
	closed  bool
}

func (r *recordPublisher) Publish(_ context.Context, s Sample) error {
	r.samples = append(r.samples, s)
	return r.err
}

func (r *recordPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recordPublisher{}
	bad := &recordPublisher{err: errors.New("sink down")}

	m := Multi{bad, ok}
	err := m.Publish(context.Background(), Sample{Device: "d"})
	require.ErrorContains(t, err, "sink down")
	assert.Len(t, ok.samples, 1, "later publishers still run")

	require.Error(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}
