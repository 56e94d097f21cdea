// Package mqttsink publishes mission results to an MQTT broker.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink implements domain.ResultRepo. Every result becomes one retained
// message on <prefix>/<campaign>/missions/<code>.
type Sink struct {
	client   publisher
	prefix   string
	campaign string
	qos      byte
	log      *log.Entry
	now      func() time.Time
}

type event struct {
	Campaign  string            `json:"campaign"`
	Code      string            `json:"code"`
	Status    domain.ItemStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	Flag      string            `json:"flag,omitempty"`
	Steps     int               `json:"steps,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Connect dials the broker and returns a ready sink.
func Connect(opts config.MQTTOpts, campaign string, l *log.Entry) (*Sink, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(co)
	tok := client.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return newSink(client, opts.TopicPrefix, campaign, opts.QoS, l), nil
}

func newSink(client publisher, prefix, campaign string, qos byte, l *log.Entry) *Sink {
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Sink{client: client, prefix: prefix, campaign: campaign, qos: qos, log: l, now: time.Now}
}

func (s *Sink) Topic(code string) string {
	parts := []string{strings.Trim(s.prefix, "/"), topicSafe(s.campaign), "missions", topicSafe(code)}
	return strings.Join(parts, "/")
}

func (s *Sink) Save(res domain.ItemResult) error {
	ev := event{
		Campaign:  s.campaign,
		Code:      res.Code,
		Status:    res.Status,
		Attempts:  res.Attempts,
		Error:     res.Error,
		Timestamp: s.now().UTC(),
	}
	if res.Outcome != nil {
		ev.Flag = res.Outcome.Flag
		ev.Steps = res.Outcome.Steps
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	topic := s.Topic(res.Code)
	tok := s.client.Publish(topic, s.qos, true, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	s.log.WithFields(log.Fields{
		"topic":  topic,
		"status": res.Status,
	}).Debug("Published mission result")
	return nil
}

func (s *Sink) Close() {
	s.client.Disconnect(250)
}

// topicSafe strips MQTT wildcards and separators from a topic level.
func topicSafe(level string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, level)
}

var _ domain.ResultRepo = (*Sink)(nil)
