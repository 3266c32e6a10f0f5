// Package window controls the kiosk browser window: its display mode,
// content reloads, termination and the time of the last user input.
package window

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode is the window presentation state exposed as the kiosk select.
type Mode string

// Window modes, in the order they are offered to Home Assistant.
const (
	Framed     Mode = "Framed"
	Fullscreen Mode = "Fullscreen"
	Maximized  Mode = "Maximized"
	Minimized  Mode = "Minimized"
	Terminated Mode = "Terminated"
)

// Modes lists every valid mode.
var Modes = []Mode{Framed, Fullscreen, Maximized, Minimized, Terminated}

// ErrInvalidMode is returned by [ParseMode] for anything outside [Modes].
var ErrInvalidMode = errors.New("invalid window mode")

// ParseMode accepts exactly one of the mode names.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Strings returns the mode names, for the select options list.
func Strings() []string {
	out := make([]string, len(Modes))
	for i, m := range Modes {
		out[i] = string(m)
	}
	return out
}

// Controller is the window-control surface the MQTT bridge drives.
type Controller interface {
	// Mode returns the current presentation mode.
	Mode() Mode
	// SetMode switches presentation. Terminated is equivalent to
	// calling Terminate.
	SetMode(ctx context.Context, mode Mode) error
	// Reload refreshes the displayed content.
	Reload(ctx context.Context) error
	// Terminate closes the window and ends the application.
	Terminate()
	// LastInput reports when the user last interacted with the screen.
	LastInput(ctx context.Context) time.Time
}
