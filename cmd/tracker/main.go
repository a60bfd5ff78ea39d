package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/swiftcart/delivery-tracker/internal/models"
	"github.com/swiftcart/delivery-tracker/internal/services"
	"github.com/swiftcart/delivery-tracker/internal/utils"
	"github.com/swiftcart/delivery-tracker/pkg/auth"
	"github.com/swiftcart/delivery-tracker/pkg/file"
	"github.com/swiftcart/delivery-tracker/pkg/location"
	"github.com/swiftcart/delivery-tracker/pkg/mqtt"
	"github.com/swiftcart/delivery-tracker/pkg/orderapi"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	// Prepare the shared MQTT connection; the hub opens it lazily
	mqttClient := mqtt.NewService(logger)
	if err := mqttClient.Initialize(config.MQTT.Broker, config.MQTT.ClientID); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT client")
	}

	// Directions/distance-matrix/geocoding provider
	mapsClient, err := maps.NewClient(maps.WithAPIKey(config.Maps.APIKey))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create maps client")
	}
	geoService := services.NewGeoRouteService(mapsClient, logger)

	// Bearer-authenticated snapshot API client
	tokens := auth.NewFileTokenProvider(config.API.TokenFile, fileClient)
	apiClient := orderapi.NewHTTPClient(config.API.BaseURL, tokens,
		time.Duration(config.API.TimeoutSeconds)*time.Second, logger)

	hub := services.NewTrackingHub(
		config.Services.Tracking.TopicPrefix,
		config.Services.Tracking.QOS,
		mqttClient,
		apiClient,
		geoService,
		logger,
	)

	// Courier mode: publish this device's position for the active order
	if config.Services.CourierLocation.Enabled {
		courierCfg := config.Services.CourierLocation

		var provider location.Provider
		if courierCfg.SensorBased {
			provider = location.NewSerialGPSProvider(courierCfg.GPSDevicePort, courierCfg.GPSDeviceBaudRate)
		} else {
			provider, err = location.NewGoogleGeolocationProvider(config.Maps.APIKey)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to create geolocation provider")
			}
		}

		courier := services.NewCourierLocationService(
			courierCfg.Topic,
			courierCfg.OrderID,
			time.Duration(courierCfg.IntervalSeconds)*time.Second,
			courierCfg.QOS,
			mqttClient,
			provider,
			logger,
		)
		if err := courier.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start courier location service")
		}
		defer func() {
			if err := courier.Stop(); err != nil {
				logger.Error().Err(err).Msg("Failed to stop courier location service")
			}
		}()
	}

	// Track the configured orders: pull an initial snapshot, then follow
	// push updates until shutdown
	ctx := context.Background()
	for _, orderID := range config.Services.Tracking.OrderIDs {
		orderID := orderID

		snapshot, err := hub.FetchSnapshot(ctx, orderID)
		if err != nil {
			logger.Error().Err(err).Str("order_id", orderID).Msg("Initial snapshot fetch failed")
		} else {
			logTrackingUpdate(logger, hub, *snapshot)
		}

		unsubscribe, err := hub.Subscribe(orderID, func(s models.OrderTrackingSnapshot) {
			logTrackingUpdate(logger, hub, s)
		})
		if err != nil {
			logger.Fatal().Err(err).Str("order_id", orderID).Msg("Failed to subscribe to order tracking")
		}
		defer unsubscribe()
	}

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	hub.Shutdown()
}

// logTrackingUpdate resolves the snapshot's route and logs the live view.
func logTrackingUpdate(logger zerolog.Logger, hub *services.TrackingHub, snapshot models.OrderTrackingSnapshot) {
	details := hub.ResolveRoute(context.Background(), &snapshot)
	logger.Info().
		Str("order_id", snapshot.ID).
		Str("order_number", snapshot.OrderNumber).
		Str("status", string(snapshot.Status)).
		Str("eta", details.ETA).
		Str("distance", details.Distance).
		Int("route_points", len(details.Route)).
		Msg("Tracking update")
}
