package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/swiftcart/delivery-tracker/internal/models"
	"github.com/swiftcart/delivery-tracker/pkg/location"
	"github.com/swiftcart/delivery-tracker/pkg/mqtt"
)

// CourierLocationService periodically reads the courier device's
// position and publishes it upstream for the tracked order. Invalid GPS
// fixes are dropped before they can reach the wire.
type CourierLocationService struct {
	// Configuration fields
	topic    string
	orderID  string
	interval time.Duration
	qos      int

	// Dependencies
	mqttClient       mqtt.Client
	locationProvider location.Provider
	logger           zerolog.Logger

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewCourierLocationService creates a new CourierLocationService instance.
func NewCourierLocationService(topic, orderID string, interval time.Duration, qos int,
	mqttClient mqtt.Client, locationProvider location.Provider, logger zerolog.Logger) *CourierLocationService {
	return &CourierLocationService{
		topic:            topic,
		orderID:          orderID,
		interval:         interval,
		qos:              qos,
		mqttClient:       mqttClient,
		locationProvider: locationProvider,
		logger:           logger,
		running:          false,
	}
}

// Start initiates the service, periodically publishing position reports.
func (c *CourierLocationService) Start() error {
	if c.running {
		c.logger.Warn().Msg("CourierLocationService is already running")
		return errors.New("courier location service is already running")
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.publishCurrentPosition(); err != nil {
					c.logger.Error().Err(err).Msg("Failed to publish courier position")
				}
			case <-c.ctx.Done():
				c.logger.Info().Msg("CourierLocationService is stopping")
				c.running = false
				return
			}
		}
	}()

	c.logger.Info().
		Str("topic", c.topic).
		Str("order_id", c.orderID).
		Dur("interval", c.interval).
		Msg("CourierLocationService started")
	return nil
}

// Stop gracefully stops the service and closes the location provider.
func (c *CourierLocationService) Stop() error {
	if !c.running {
		c.logger.Warn().Msg("CourierLocationService is not running")
		return errors.New("courier location service is not running")
	}

	c.cancel()
	c.wg.Wait()

	if err := c.locationProvider.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to close location provider")
		return err
	}

	c.running = false
	c.logger.Info().Msg("CourierLocationService stopped")
	return nil
}

// publishCurrentPosition reads one fix and publishes it when valid.
func (c *CourierLocationService) publishCurrentPosition() error {
	fix, err := c.locationProvider.GetLocation()
	if err != nil {
		return err
	}

	coordinate := models.Coordinate{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
	}
	if !coordinate.Valid() {
		// A bad fix is routine sensor noise, not a service failure.
		c.logger.Warn().
			Float64("latitude", fix.Latitude).
			Float64("longitude", fix.Longitude).
			Msg("Dropping invalid GPS fix")
		return nil
	}

	position := models.CourierPosition{
		OrderID:   c.orderID,
		Location:  models.NewGeoPoint(coordinate),
		Accuracy:  fix.Accuracy,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(position)
	if err != nil {
		return err
	}

	if err := c.mqttClient.Publish(c.topic+"/"+c.orderID, byte(c.qos), false, payload); err != nil {
		c.logger.Error().Err(err).Str("topic", c.topic).Msg("Failed to publish position to MQTT")
		return err
	}

	c.logger.Debug().
		Str("order_id", c.orderID).
		Float64("latitude", coordinate.Latitude).
		Float64("longitude", coordinate.Longitude).
		Msg("Courier position published")
	return nil
}
