package utils

import (
	"github.com/swiftcart/delivery-tracker/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker   string `yaml:"broker"`    // MQTT broker address
		ClientID string `yaml:"client_id"` // MQTT client ID prefix
	} `yaml:"mqtt"`

	API struct {
		BaseURL        string `yaml:"base_url"`        // Storefront API base URL
		TokenFile      string `yaml:"token_file"`      // Path to the bearer token file
		TimeoutSeconds int    `yaml:"timeout_seconds"` // HTTP request timeout (in seconds)
	} `yaml:"api"`

	Maps struct {
		APIKey string `yaml:"api_key"` // Google Maps API key
	} `yaml:"maps"`

	Services struct {
		Tracking struct {
			TopicPrefix string   `yaml:"topic_prefix"` // MQTT topic prefix for tracking rooms
			QOS         int      `yaml:"qos"`          // MQTT QoS level for tracking updates
			OrderIDs    []string `yaml:"order_ids"`    // Orders to track at startup
		} `yaml:"tracking"`

		CourierLocation struct {
			Enabled           bool   `yaml:"enabled"`          // Enable/disable courier position publishing
			Topic             string `yaml:"topic"`            // MQTT topic prefix for position reports
			OrderID           string `yaml:"order_id"`         // Order the courier is currently delivering
			IntervalSeconds   int    `yaml:"interval_seconds"` // Interval between position reports (in seconds)
			QOS               int    `yaml:"qos"`              // MQTT QoS level for position reports
			SensorBased       bool   `yaml:"sensor_based"`     // Use GPS sensor or geolocation api
			GPSDevicePort     string `yaml:"gps_device_port"`  // UNIX port where the GPS sensor is mounted
			GPSDeviceBaudRate int    `yaml:"gps_baud_rate"`    // Baud rate for the GPS sensor
		} `yaml:"courier_location"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
