package agent

import (
	"context"
	"errors"

	"courierlink/protocol"
)

// ErrNoLocation is returned when no location capability is available on
// this device.
var ErrNoLocation = errors.New("no location provider available")

// LocationProvider abstracts the device's geolocation capability. Builds
// without one get NoLocationProvider at startup instead of probing the
// environment at call sites.
type LocationProvider interface {
	Current(ctx context.Context) (protocol.Location, error)
}

// NoLocationProvider is the typed fallback for builds without geolocation.
type NoLocationProvider struct{}

func (NoLocationProvider) Current(context.Context) (protocol.Location, error) {
	return protocol.Location{}, ErrNoLocation
}
