// Package mqtt mirrors device and scene power state to an MQTT broker as retained topics.
package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/poller"
)

const (
	payloadOn      = "ON"
	payloadOff     = "OFF"
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Client is the part of paho_mqtt.Client the publisher uses
type Client interface {
	Connect() paho_mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
}

// NewClient builds a paho client with the availability topic as last will
func NewClient(cfg config.MQTTConfig) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout.Duration()).
		SetWill(StatusTopic(cfg.TopicPrefix), payloadOffline, cfg.QoS, true)
	return paho_mqtt.NewClient(opts)
}

// Publisher publishes retained power state, skipping values that did not change.
type Publisher struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration

	mu   sync.Mutex
	last map[string]string // topic -> payload

	latest poller.Latest
}

// NewPublisher creates a publisher over an unconnected client
func NewPublisher(client Client, prefix string, qos byte, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: timeout,
		last:    make(map[string]string),
	}
}

// Connect connects and announces availability
func (p *Publisher) Connect() error {
	if err := p.wait(p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	log.Info().Str("prefix", p.prefix).Msg("Connected to MQTT broker")
	return p.publish(StatusTopic(p.prefix), payloadOnline)
}

// Close announces unavailability and disconnects
func (p *Publisher) Close() {
	if err := p.publish(StatusTopic(p.prefix), payloadOffline); err != nil {
		log.Warn().Err(err).Msg("Failed to publish offline status")
	}
	p.client.Disconnect(250)
}

// HandleEvent publishes devices and scenes snapshots; other events are ignored.
// A snapshot older than one already published is dropped.
func (p *Publisher) HandleEvent(event eventbus.Event) {
	view, ok := event.Data.(poller.View)
	if !ok {
		return
	}
	switch view.Data.(type) {
	case []api.Device, []api.Scene:
	default:
		return
	}

	applied := p.latest.Apply(view, func(v poller.View) {
		var err error
		switch data := v.Data.(type) {
		case []api.Device:
			err = p.PublishDevices(data)
		case []api.Scene:
			err = p.PublishScenes(data)
		}
		if err != nil {
			log.Warn().Err(err).Str("resource", event.Resource).Msg("Failed to publish MQTT state")
		}
	})
	if !applied {
		log.Debug().Str("resource", event.Resource).Uint64("seq", view.Seq).Msg("Skipping stale snapshot")
	}
}

// PublishDevices publishes the power state of every device
func (p *Publisher) PublishDevices(devices []api.Device) error {
	var errs []error
	for _, d := range devices {
		errs = append(errs, p.publishChanged(DeviceTopic(p.prefix, d), power(d.On)))
	}
	return errors.Join(errs...)
}

// PublishScenes publishes whether each scene is active
func (p *Publisher) PublishScenes(scenes []api.Scene) error {
	var errs []error
	for _, s := range scenes {
		errs = append(errs, p.publishChanged(SceneTopic(p.prefix, s), power(s.Active)))
	}
	return errors.Join(errs...)
}

func (p *Publisher) publishChanged(topic, payload string) error {
	p.mu.Lock()
	if p.last[topic] == payload {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.publish(topic, payload); err != nil {
		return err
	}

	p.mu.Lock()
	p.last[topic] = payload
	p.mu.Unlock()
	return nil
}

func (p *Publisher) publish(topic, payload string) error {
	if err := p.wait(p.client.Publish(topic, p.qos, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Str("payload", payload).Msg("Published MQTT state")
	return nil
}

func (p *Publisher) wait(token paho_mqtt.Token) error {
	if !token.WaitTimeout(p.timeout) {
		return errors.New("timed out")
	}
	return token.Error()
}

func power(on bool) string {
	if on {
		return payloadOn
	}
	return payloadOff
}

// StatusTopic is the availability topic
func StatusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

// DeviceTopic is {prefix}/device/{slug}-{id}/state
func DeviceTopic(prefix string, d api.Device) string {
	return fmt.Sprintf("%s/device/%s/state", strings.TrimSuffix(prefix, "/"), objectID(d.Name, d.ID))
}

// SceneTopic is {prefix}/scene/{slug}-{id}/state
func SceneTopic(prefix string, s api.Scene) string {
	return fmt.Sprintf("%s/scene/%s/state", strings.TrimSuffix(prefix, "/"), objectID(s.Name, s.ID))
}

// objectID keeps topics stable across renames of same-named entities
func objectID(name string, id int64) string {
	s := slug.Make(name)
	if s == "" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s-%d", s, id)
}
