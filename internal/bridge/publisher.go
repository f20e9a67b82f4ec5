package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Broker is the part of mqtt.Client the publisher uses.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload of an event.
type Message struct {
	Type      string          `json:"type"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Snapshot  mirror.Snapshot `json:"snapshot"`
	Published time.Time       `json:"published"`
}

// Publisher forwards events from its channel to the broker, one QoS 1
// message per event on <prefix>/events/<type>.
type Publisher struct {
	broker  Broker
	prefix  string
	timeout time.Duration

	// Events is read by Start.
	Events chan mirror.Event
}

// NewPublisher creates a publisher with a channel of the given capacity.
func NewPublisher(broker Broker, topicPrefix string, buffer int) *Publisher {
	return &Publisher{
		broker:  broker,
		prefix:  strings.TrimSuffix(topicPrefix, "/"),
		timeout: 5 * time.Second,
		Events:  make(chan mirror.Event, buffer),
	}
}

// HandleEvent queues ev for publication, dropping it when the channel is
// full.
func (p *Publisher) HandleEvent(ev mirror.Event) {
	select {
	case p.Events <- ev:
	default:
		log.Printf("MQTT: publisher backlog full, dropping %s event", ev.Type)
	}
}

// Start publishes queued events until ctx is cancelled or Events is closed.
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT: publisher starting")
	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT: publisher stopping")
			return
		case ev, ok := <-p.Events:
			if !ok {
				return
			}
			if err := p.publish(ev); err != nil {
				log.Printf("MQTT: %v", err)
			}
		}
	}
}

// Topic returns the topic an event of type t is published on.
func (p *Publisher) Topic(t mirror.EventType) string {
	return fmt.Sprintf("%s/events/%s", p.prefix, t)
}

func (p *Publisher) publish(ev mirror.Event) error {
	msg := Message{
		Type:      ev.Type.String(),
		Snapshot:  ev.Snapshot,
		Published: time.Now().UTC(),
	}
	if ev.Err != nil {
		msg.Code = mirror.ErrorForStatus(mirror.StatusOf(ev.Err)).Error()
		msg.Error = ev.Err.Error()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	topic := p.Topic(ev.Type)
	token := p.broker.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
