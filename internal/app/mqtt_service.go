package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/mqtt"
)

// MQTTService wraps the optional MQTT state publisher.
type MQTTService struct {
	cfg       *config.Config
	publisher *mqtt.Publisher
	connected bool
}

// NewMQTTService creates a new MQTTService. The client is not connected yet.
func NewMQTTService(cfg *config.Config) *MQTTService {
	s := &MQTTService{cfg: cfg}
	if cfg.MQTT.Enabled {
		s.publisher = mqtt.NewPublisher(mqtt.NewClient(cfg.MQTT), cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, cfg.MQTT.Timeout.Duration())
	}
	return s
}

// Connect connects to the broker and subscribes to snapshot events if enabled.
func (s *MQTTService) Connect(bus *eventbus.Bus) error {
	if s.publisher == nil {
		log.Debug().Msg("MQTT publisher disabled")
		return nil
	}
	if err := s.publisher.Connect(); err != nil {
		return err
	}
	s.connected = true
	bus.Subscribe(eventbus.EventTypeSnapshot, s.publisher.HandleEvent)
	return nil
}

// Close publishes offline status and disconnects.
func (s *MQTTService) Close() {
	if s.connected {
		s.publisher.Close()
	}
}
