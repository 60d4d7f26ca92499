// Package mqtt publishes controller state to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
	"github.com/thatsimonsguy/manifold-controller/internal/status"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

type Config struct {
	Broker      string `json:"broker" yaml:"broker"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
}

type client struct {
	mutex sync.Mutex
	mqtt  paho.Client
}

// Connect returns a publisher for broker. The connection is retried in the
// background so a missing broker never blocks startup.
func Connect(broker string) Publisher {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("manifold-" + uuid.New().String())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c paho.Client) {
		or := c.OptionsReader()
		log.Info().Str("client_id", or.ClientID()).Msg("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("Connection to MQTT broker lost")
	}

	c := paho.NewClient(opts)
	c.Connect()

	return &client{mqtt: c}
}

func (c *client) Publish(topic string, retained bool, payload []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	token := c.mqtt.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.mqtt.Disconnect(250)
}

// StatusExporter publishes controller state under a topic prefix.
type StatusExporter struct {
	pub    Publisher
	prefix string
}

func NewStatusExporter(pub Publisher, prefix string) *StatusExporter {
	if prefix == "" {
		prefix = "manifold"
	}
	return &StatusExporter{pub: pub, prefix: prefix}
}

// PublishStatus sends the full status document, retained, to <prefix>/status.
func (e *StatusExporter) PublishStatus(st status.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return e.pub.Publish(e.prefix+"/status", true, payload)
}

// PublishValve sends a zone's valve state, retained, to <prefix>/zones/<id>/valve.
func (e *StatusExporter) PublishValve(z model.ZoneRecord) error {
	payload, err := json.Marshal(struct {
		Open bool            `json:"open"`
		Mode model.ValveMode `json:"mode"`
		Pin  int             `json:"pin"`
	}{z.ValveOpen, z.ValveMode, z.Pin})
	if err != nil {
		return fmt.Errorf("failed to marshal valve state: %w", err)
	}
	return e.pub.Publish(e.prefix+"/zones/"+strconv.Itoa(z.ID)+"/valve", true, payload)
}

// Message is one publish captured by FakePublisher.
type Message struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// FakePublisher records publishes in memory.
type FakePublisher struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
	Closed   bool
}

func (f *FakePublisher) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Messages = append(f.Messages, Message{Topic: topic, Retained: retained, Payload: append([]byte(nil), payload...)})
	return nil
}

func (f *FakePublisher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
}

// Last returns the most recent message on topic.
func (f *FakePublisher) Last(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Messages) - 1; i >= 0; i-- {
		if f.Messages[i].Topic == topic {
			return f.Messages[i], true
		}
	}
	return Message{}, false
}
