package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nugget/kioskbridge/internal/buildinfo"
	"github.com/nugget/kioskbridge/internal/config"
	"github.com/nugget/kioskbridge/internal/events"
	"github.com/nugget/kioskbridge/internal/hardware"
	"github.com/nugget/kioskbridge/internal/identity"
	"github.com/nugget/kioskbridge/internal/mqtt"
	"github.com/nugget/kioskbridge/internal/poller"
	"github.com/nugget/kioskbridge/internal/window"
)

// offlineTimeout bounds the final "offline" publish on shutdown.
const offlineTimeout = 5 * time.Second

// serveDeps are the host seams of the serve command. The zero value
// uses the real system.
type serveDeps struct {
	// Root is prefixed to sysfs/procfs paths.
	Root string
	// Resolver overrides capability detection.
	Resolver *hardware.Resolver
	// Runner executes shell tools for the probe and the browser.
	Runner hardware.Runner
	// Launch starts the browser process.
	Launch window.Launcher
	// Dial opens the broker connection.
	Dial mqtt.Dialer
	// Keyboard replaces the D-Bus keyboard backend.
	Keyboard func(*slog.Logger) (hardware.Keyboard, error)
}

func (d *serveDeps) defaults(logger *slog.Logger) {
	if d.Resolver == nil {
		d.Resolver = &hardware.Resolver{Root: d.Root}
	}
	if d.Resolver.Logger == nil {
		d.Resolver.Logger = logger
	}
	if d.Runner == nil {
		d.Runner = hardware.NewExecRunner(logger)
	}
	if d.Keyboard == nil {
		d.Keyboard = func(l *slog.Logger) (hardware.Keyboard, error) {
			return hardware.NewSqueekboard(l)
		}
	}
}

// runServe starts the kiosk browser and, when a broker is configured,
// the hardware bridge. It returns when ctx is cancelled or the browser
// exits.
func runServe(ctx context.Context, stdout io.Writer, flags *config.Flags, deps serveDeps) error {
	cfg, cfgPath, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, cfg)
	info := buildinfo.Info()
	logger.Info("starting kioskbridge",
		"version", info["version"],
		"commit", info["git_commit"],
		"branch", info["git_branch"],
		"built", info["build_time"],
	)
	logger.Info("config loaded",
		"path", cfgPath,
		"web_url", cfg.Web.URL,
		"web_theme", cfg.Web.Theme,
		"web_zoom", cfg.Web.Zoom,
		"mqtt_configured", cfg.MQTT.Configured(),
	)
	deps.defaults(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// --- Kiosk window ---
	// The browser is the process: when it exits, everything stops.
	browser := window.NewBrowser(window.BrowserConfig{
		Command: cfg.Web.Browser,
		URL:     cfg.Web.URL,
		Theme:   cfg.Web.Theme,
		Zoom:    cfg.Web.Zoom,
		Runner:  deps.Runner,
		Launch:  deps.Launch,
		OnExit:  cancel,
		Logger:  logger,
	})
	if err := browser.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer browser.Terminate()

	// --- Hardware bridge ---
	// Optional. Without a broker, or on a host we cannot probe, the
	// kiosk runs as a plain browser.
	if !cfg.MQTT.Configured() {
		logger.Info("mqtt not configured, hardware integration disabled")
		<-ctx.Done()
		return nil
	}

	if err := runBridge(ctx, cfg, browser, deps, logger); err != nil {
		logger.Warn("hardware integration disabled", "error", err)
		<-ctx.Done()
	}
	logger.Info("kioskbridge stopped")
	return nil
}

// runBridge wires the probe, poller and MQTT publisher and runs the
// publisher until ctx is cancelled.
func runBridge(ctx context.Context, cfg *config.Config, win window.Controller, deps serveDeps, logger *slog.Logger) error {
	caps, err := deps.Resolver.Resolve()
	if err != nil {
		return err
	}

	var kb hardware.Keyboard
	if caps.Has(hardware.CapKeyboardVisibility) {
		k, err := deps.Keyboard(logger)
		if err != nil {
			logger.Warn("on-screen keyboard unavailable", "error", err)
			caps = caps.Without(hardware.CapKeyboardVisibility)
		} else {
			kb = k
		}
	}

	probe := hardware.NewProbe(hardware.ProbeConfig{
		Root:     deps.Root,
		Caps:     caps,
		Runner:   deps.Runner,
		Keyboard: kb,
		Logger:   logger,
	})
	defer func() {
		if err := probe.Close(); err != nil {
			logger.Warn("close hardware probe", "error", err)
		}
	}()
	probe.LogSummary(ctx)

	if machineID, ok := probe.MachineID(); ok {
		if err := cfg.UnsealPassword(machineID, buildinfo.AppName); err != nil {
			return fmt.Errorf("unseal mqtt password: %w", err)
		}
	} else if config.IsSealed(cfg.MQTT.Password) {
		return errors.New("mqtt password is sealed but no machine id is available")
	}

	id := identity.Build(identity.Facts{
		Model:           probe.Model(),
		Vendor:          probe.Vendor(),
		SerialNumber:    probe.SerialNumber(),
		HostName:        probe.HostName(),
		SoftwareVersion: buildinfo.SoftwareVersion(),
	})
	logger.Info("device identity", "node_id", id.NodeID, "name", id.DisplayName, "model", id.Model)

	bus := events.New(logger)
	pl := poller.New(poller.Config{Source: probe, Bus: bus, Logger: logger})

	pub, err := mqtt.New(mqtt.Config{
		MQTT:     cfg.MQTT,
		Identity: id,
		Hardware: probe,
		Poller:   pl,
		Bus:      bus,
		Window:   win,
		Dial:     deps.Dial,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	runErr := pub.Run(ctx)

	offlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), offlineTimeout)
	defer cancel()
	if err := pub.Stop(offlineCtx); err != nil {
		logger.Warn("mqtt disconnect", "error", err)
	}
	return runErr
}
