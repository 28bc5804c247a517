package api

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/mqtt"
)

// Event is an auth or session event fanned out to WebSocket clients and,
// when a broker is configured, to MQTT. It never carries tokens or passwords.
type Event struct {
	Type      string         `json:"type"`
	Username  string         `json:"username,omitempty"`
	UserUUID  string         `json:"user_uuid,omitempty"`
	Role      string         `json:"role,omitempty"`
	Origin    string         `json:"origin,omitempty"` // MQTT client id of the emitting instance
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// emit broadcasts ev locally and publishes it to the broker. Publish
// failures are logged; the request that raised the event still succeeds.
func (s *Server) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if s.mqtt != nil {
		ev.Origin = s.mqtt.ClientID()
	}

	s.hub.Broadcast(ev)

	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	if err := s.mqtt.PublishEvent(ev.Type, payload); err != nil {
		s.logger.Warn("failed to publish event", "type", ev.Type, "error", err)
	}
}

// subscribeRemoteEvents relays events published by other instances to this
// instance's WebSocket clients. Events carrying our own origin are skipped
// since emit already broadcast them.
func (s *Server) subscribeRemoteEvents() error {
	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return nil
	}

	topic := mqtt.Topics{}.AllCoreEvents()
	s.logger.Info("subscribing to remote events for WebSocket relay", "topic", topic)

	return s.mqtt.Subscribe(topic, 1, s.relayRemoteEvent)
}

// relayRemoteEvent is the MQTT handler behind subscribeRemoteEvents.
func (s *Server) relayRemoteEvent(topic string, payload []byte) error {
	eventType, ok := mqtt.EventType(topic)
	if !ok {
		return nil
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Warn("failed to parse remote event", "topic", topic, "error", err)
		return nil
	}
	if s.mqtt != nil && ev.Origin == s.mqtt.ClientID() {
		return nil
	}
	if ev.Type == "" {
		ev.Type = eventType
	}

	s.hub.Broadcast(ev)
	return nil
}
