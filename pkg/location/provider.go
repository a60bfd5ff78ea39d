package location

// Location represents the geographical position of the courier device.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Provider interface defines the methods for location providers.
type Provider interface {
	GetLocation() (Location, error)
	Close() error
}
