// Package poller detects hardware state changes by sampling the host
// probe on a fixed interval and comparing against the shared snapshot.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/kioskbridge/internal/events"
	"github.com/nugget/kioskbridge/internal/hardware"
)

// Interval is how often display and keyboard state are sampled.
const Interval = 500 * time.Millisecond

// Source is the subset of the host probe the poller samples.
type Source interface {
	Capabilities() hardware.Capabilities
	DisplayStatus(ctx context.Context) (hardware.Power, bool)
	Brightness() (int, bool)
	KeyboardVisible() (hardware.Power, bool)
	SampleMetrics() hardware.Metrics
}

// Config configures a [Poller].
type Config struct {
	Source   Source
	Snapshot *hardware.Snapshot
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Poller writes fresh samples into the snapshot and publishes one event
// per changed group. It is driven by the caller's event loop through
// [Poller.Tick] and is not safe for concurrent use.
type Poller struct {
	source   Source
	caps     hardware.Capabilities
	snapshot *hardware.Snapshot
	bus      *events.Bus
	logger   *slog.Logger

	// primed is false until the first Tick. Before that every field
	// counts as changed so the initial state is always announced.
	primed bool
}

// New creates a Poller. A nil Snapshot allocates a fresh one.
func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Snapshot == nil {
		cfg.Snapshot = &hardware.Snapshot{}
	}
	return &Poller{
		source:   cfg.Source,
		caps:     cfg.Source.Capabilities(),
		snapshot: cfg.Snapshot,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
}

// Snapshot returns the snapshot the poller writes into.
func (p *Poller) Snapshot() *hardware.Snapshot {
	return p.snapshot
}

// Tick samples display power, brightness and keyboard visibility once.
// Changed fields are grouped: at most one DisplayChanged and one
// KeyboardChanged event per tick. It returns the number of events
// published.
func (p *Poller) Tick(ctx context.Context) int {
	first := !p.primed
	p.primed = true

	var display []string
	if p.caps.Has(hardware.CapDisplayStatus) {
		next := optionalOf(p.source.DisplayStatus(ctx))
		if first || !equal(p.snapshot.DisplayPower, next) {
			p.logger.Debug("display status changed", "from", deref(p.snapshot.DisplayPower), "to", deref(next))
			p.snapshot.DisplayPower = next
			display = append(display, "display_power")
		}
	}
	if p.caps.Has(hardware.CapDisplayBrightness) {
		next := optionalOf(p.source.Brightness())
		if first || !equal(p.snapshot.Brightness, next) {
			p.logger.Debug("display brightness changed", "from", deref(p.snapshot.Brightness), "to", deref(next))
			p.snapshot.Brightness = next
			display = append(display, "brightness")
		}
	}

	var keyboard []string
	if p.caps.Has(hardware.CapKeyboardVisibility) {
		next := optionalOf(p.source.KeyboardVisible())
		if first || !equal(p.snapshot.Keyboard, next) {
			p.logger.Debug("keyboard visibility changed", "from", deref(p.snapshot.Keyboard), "to", deref(next))
			p.snapshot.Keyboard = next
			keyboard = append(keyboard, "keyboard")
		}
	}

	return p.publish(events.DisplayChanged, display) + p.publish(events.KeyboardChanged, keyboard)
}

// RefreshMetrics replaces the snapshot metrics with a fresh sample.
func (p *Poller) RefreshMetrics() hardware.Metrics {
	p.snapshot.Metrics = p.source.SampleMetrics()
	return p.snapshot.Metrics
}

// publish emits one event for the changed fields, if any.
func (p *Poller) publish(ch events.Channel, fields []string) int {
	if len(fields) == 0 {
		return 0
	}
	p.bus.Publish(events.Event{Channel: ch, Fields: fields})
	return 1
}

func optionalOf[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

func equal[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// deref renders an optional for logging.
func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
