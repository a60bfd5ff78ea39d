package mqtt

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Client defines the interface for the shared MQTT connection used by
// the tracking services.
type Client interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect(quiesce uint)
	IsConnected() bool
}

// subscription is a registry entry replayed after a reconnect.
type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Service wraps a paho MQTT client and keeps a registry of active
// subscriptions. Broker-side topic membership does not survive a
// reconnect, so the registry is replayed on every connect.
type Service struct {
	client        mqtt.Client
	subscriptions cmap.ConcurrentMap[string, subscription]
	logger        zerolog.Logger
}

// NewService creates a new Service instance.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		subscriptions: cmap.New[subscription](),
		logger:        logger,
	}
}

// Initialize prepares the underlying paho client with auto-reconnect
// enabled. The connection itself is opened by the first Connect call,
// which lets the owning service connect lazily.
func (s *Service) Initialize(broker, clientID string) error {
	if broker == "" {
		return fmt.Errorf("mqtt broker address is empty")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost, waiting for auto-reconnect")
	})

	s.client = mqtt.NewClient(opts)
	return nil
}

// onConnect replays every registered subscription. It runs on the
// initial connect (registry is empty then) and on every reconnect.
func (s *Service) onConnect(client mqtt.Client) {
	for entry := range s.subscriptions.IterBuffered() {
		token := client.Subscribe(entry.Key, entry.Val.qos, entry.Val.handler)
		if token.Wait() && token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", entry.Key).Msg("Failed to re-join topic after reconnect")
			continue
		}
		s.logger.Debug().Str("topic", entry.Key).Msg("Re-joined topic")
	}
}

// Connect opens the connection to the MQTT broker.
func (s *Service) Connect() error {
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return nil
}

// Publish sends a message to the specified topic.
func (s *Service) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Subscribe subscribes to the specified topic and records it for replay
// after reconnects.
func (s *Service) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	s.subscriptions.Set(topic, subscription{qos: qos, handler: callback})

	token := s.client.Subscribe(topic, qos, callback)
	if token.Wait() && token.Error() != nil {
		s.subscriptions.Remove(topic)
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe unsubscribes from the specified topics and drops them from
// the replay registry.
func (s *Service) Unsubscribe(topics ...string) error {
	for _, topic := range topics {
		s.subscriptions.Remove(topic)
	}

	token := s.client.Unsubscribe(topics...)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect gracefully disconnects the MQTT client.
func (s *Service) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}

// IsConnected reports whether the client currently holds a connection.
func (s *Service) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}
