package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Keyboard is an on-screen keyboard daemon. Visibility is learned from
// signals pushed by the daemon, so Visible returns the last known state
// instead of querying synchronously.
type Keyboard interface {
	Visible() (Power, bool)
	SetVisible(ctx context.Context, visible bool) <-chan Result
	Close() error
}

// squeekboard D-Bus coordinates.
const (
	oskService   = "sm.puri.OSK0"
	oskPath      = dbus.ObjectPath("/sm/puri/OSK0")
	oskInterface = "sm.puri.OSK0"
)

// Squeekboard talks to the squeekboard daemon on the session bus.
type Squeekboard struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	signals chan *dbus.Signal
	logger  *slog.Logger

	mu      sync.Mutex
	visible *bool

	done chan struct{}
}

// NewSqueekboard connects to the session bus, reads the current
// visibility and subscribes to PropertiesChanged for updates.
func NewSqueekboard(logger *slog.Logger) (*Squeekboard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	k := &Squeekboard{
		conn:    conn,
		obj:     conn.Object(oskService, oskPath),
		signals: make(chan *dbus.Signal, 16),
		logger:  logger,
		done:    make(chan struct{}),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(oskPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe keyboard signals: %w", err)
	}
	conn.Signal(k.signals)

	if v, err := k.obj.GetProperty(oskInterface + ".Visible"); err == nil {
		if b, ok := v.Value().(bool); ok {
			k.store(b)
		}
	} else {
		logger.Warn("keyboard visibility unknown", "error", err)
	}

	go k.watch()
	return k, nil
}

// watch consumes PropertiesChanged signals until the connection closes.
func (k *Squeekboard) watch() {
	defer close(k.done)
	for sig := range k.signals {
		if sig.Path != oskPath || len(sig.Body) < 2 {
			continue
		}
		if iface, _ := sig.Body[0].(string); iface != oskInterface {
			continue
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		v, ok := changed["Visible"]
		if !ok {
			continue
		}
		if b, ok := v.Value().(bool); ok {
			k.logger.Debug("keyboard visibility signal", "visible", b)
			k.store(b)
		}
	}
}

func (k *Squeekboard) store(visible bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.visible = &visible
}

// Visible returns the last visibility pushed by the daemon.
func (k *Squeekboard) Visible() (Power, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.visible == nil {
		return "", false
	}
	return PowerOf(*k.visible), true
}

// SetVisible asks the daemon to show or hide the panel. The call runs
// in its own goroutine; the new state arrives later as a signal.
func (k *Squeekboard) SetVisible(ctx context.Context, visible bool) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		call := k.obj.CallWithContext(context.WithoutCancel(ctx), oskInterface+".SetVisible", 0, visible)
		if call.Err != nil {
			done <- Result{Err: fmt.Errorf("squeekboard SetVisible: %w", call.Err)}
			return
		}
		done <- Result{Output: string(PowerOf(visible))}
	}()
	return done
}

// Close unsubscribes and closes the bus connection.
func (k *Squeekboard) Close() error {
	k.conn.RemoveSignal(k.signals)
	close(k.signals)
	<-k.done
	return k.conn.Close()
}

// KeyboardVisible returns the last known keyboard visibility.
func (p *Probe) KeyboardVisible() (Power, bool) {
	if p.keyboard == nil {
		return "", p.unsupported("keyboard_visibility")
	}
	return p.keyboard.Visible()
}

// SetKeyboardVisible shows or hides the on-screen keyboard.
func (p *Probe) SetKeyboardVisible(ctx context.Context, visible bool) <-chan Result {
	if p.keyboard == nil {
		return resultOf(Result{Err: fmt.Errorf("keyboard visibility: %w", ErrUnsupported)})
	}
	p.logger.Info("set keyboard visibility", "visible", visible)
	return p.keyboard.SetVisible(ctx, visible)
}
