package mqttsink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/testutil"

	mqtt "github.com/eclipse/paho.mqtt.golang"
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

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	err          error
	published    []message
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, message{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestSavePublishesRetainedEvent(t *testing.T) {
	client := &fakeClient{}
	s := newSink(client, "narwhal/", "spring#1", 1, testutil.Logger())
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := s.Save(domain.ItemResult{
		Code:     "WEB/01",
		Status:   domain.ItemFlagFound,
		Attempts: 2,
		Outcome:  &domain.MissionOutcome{Flag: "flag{x}", Steps: 4},
	})
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	m := client.published[0]
	assert.Equal(t, "narwhal/spring_1/missions/WEB_01", m.topic)
	assert.Equal(t, byte(1), m.qos)
	assert.True(t, m.retained)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(m.payload, &ev))
	assert.Equal(t, "flag_found", ev["status"])
	assert.Equal(t, "flag{x}", ev["flag"])
	assert.EqualValues(t, 4, ev["steps"])
	assert.Equal(t, "2026-01-02T03:04:05Z", ev["timestamp"])

	s.Close()
	assert.True(t, client.disconnected)
}

func TestSaveReportsPublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	s := newSink(client, "narwhal", "c1", 0, nil)
	err := s.Save(domain.ItemResult{Code: "A", Status: domain.ItemError, Error: "boom"})
	assert.ErrorContains(t, err, "not connected")
}
