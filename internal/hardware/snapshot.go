package hardware

import (
	"errors"
	"fmt"
)

// Sentinel errors for probe and setter failures.
var (
	// ErrUnsupported means the capability is absent on this host.
	ErrUnsupported = errors.New("not supported on this host")
	// ErrInvalidArgument means a setter rejected its input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Power is an ON/OFF state as published to Home Assistant.
type Power string

// Power states.
const (
	PowerOn  Power = "ON"
	PowerOff Power = "OFF"
)

// ParsePower accepts exactly "ON" or "OFF".
func ParsePower(s string) (Power, error) {
	switch Power(s) {
	case PowerOn, PowerOff:
		return Power(s), nil
	}
	return "", fmt.Errorf("%w: power must be ON or OFF, got %q", ErrInvalidArgument, s)
}

// PowerOf converts a boolean into ON/OFF.
func PowerOf(on bool) Power {
	if on {
		return PowerOn
	}
	return PowerOff
}

// Snapshot is the current hardware state shared by the poller (the only
// writer) and the MQTT publisher. A nil field means the last probe
// failed or the capability is absent; it is never published.
//
// Snapshot is owned by the bridge event loop and is not safe for
// concurrent use.
type Snapshot struct {
	DisplayPower *Power
	Brightness   *int
	Keyboard     *Power
	Metrics      Metrics
}

// Metrics are the point-in-time system measurements refreshed on the
// slow cadence.
type Metrics struct {
	UpTime               *float64 // minutes
	MemorySize           *float64 // GiB
	MemoryUsage          *float64 // percent
	ProcessorUsage       *float64 // percent
	ProcessorTemperature *float64 // degrees Celsius
}

// optional returns a pointer to v when ok, nil otherwise.
func optional[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}
