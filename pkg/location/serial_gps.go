package location

import (
	"bufio"
	"errors"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// SerialGPSProvider reads the courier device's position from a GPS
// receiver attached to a serial port.
type SerialGPSProvider struct {
	port     string
	baudRate int
}

// NewSerialGPSProvider creates a provider for the given port and baud rate.
func NewSerialGPSProvider(port string, baudRate int) *SerialGPSProvider {
	return &SerialGPSProvider{
		port:     port,
		baudRate: baudRate,
	}
}

// GetLocation reads NMEA sentences from the receiver until a GGA fix
// sentence arrives and returns the position it carries.
func (p *SerialGPSProvider) GetLocation() (Location, error) {
	cfg := &serial.Config{Name: p.port, Baud: p.baudRate}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return Location{}, err
	}
	defer port.Close()

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "$GPGGA") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			return Location{}, err
		}

		if gga, ok := sentence.(nmea.GGA); ok {
			return Location{
				Latitude:  gga.Latitude,
				Longitude: gga.Longitude,
				Accuracy:  float64(gga.HDOP), // HDOP as a proxy for accuracy
			}, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return Location{}, err
	}

	return Location{}, errors.New("no valid GPS data found")
}

// Close is a no-op; the serial port is opened and closed per read.
func (p *SerialGPSProvider) Close() error {
	return nil
}
