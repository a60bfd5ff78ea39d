package location

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider resolves a coarse position through the
// Google Geolocation API. Used on devices without GPS hardware; accuracy
// is whatever the provider reports, typically network-level.
type GoogleGeolocationProvider struct {
	client *maps.Client
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{client: c}, nil
}

// GetLocation retrieves the device's position from the Geolocation API.
func (g *GoogleGeolocationProvider) GetLocation() (Location, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := g.client.Geolocate(ctx, &maps.GeolocationRequest{
		ConsiderIP: true,
	})
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}

// Close is a no-op; the maps client holds no persistent connection.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
