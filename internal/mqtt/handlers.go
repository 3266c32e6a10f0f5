package mqtt

import (
	"context"

	"github.com/nugget/kioskbridge/internal/hardware"
	"github.com/nugget/kioskbridge/internal/window"
)

// handleMessage parses and dispatches one inbound message. Rejected
// payloads are logged and dropped; the message is consumed either way.
func (p *Publisher) handleMessage(ctx context.Context, topic string, payload []byte) {
	if p.terminated {
		return
	}
	cmd, err := p.router.Parse(topic, payload)
	if err != nil {
		p.logger.Warn("mqtt command rejected", "topic", topic, "payload", string(payload), "error", err)
		return
	}
	p.dispatch(ctx, cmd)
}

func (p *Publisher) dispatch(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case PressCommand:
		p.press(ctx, c.Action)
	case KioskCommand:
		p.setKioskMode(ctx, c.Mode)
	case DisplayPowerCommand:
		p.logger.Info("set display status", "status", c.Power)
		p.await(ctx, "display_status", p.hw.SetDisplayStatus(ctx, c.Power), p.resample)
	case BrightnessCommand:
		p.logger.Info("set display brightness", "percent", c.Percent)
		p.await(ctx, "display_brightness", p.hw.SetBrightness(ctx, c.Percent), p.resample)
	case KeyboardCommand:
		p.setKeyboard(ctx, c.Visible)
	}
}

func (p *Publisher) press(ctx context.Context, action Action) {
	p.logger.Info("button pressed", "action", action)
	p.wakeDisplay(ctx)

	switch action {
	case ActionShutdown:
		p.await(ctx, "shutdown", p.hw.Shutdown(ctx), nil)
	case ActionReboot:
		p.await(ctx, "reboot", p.hw.Reboot(ctx), nil)
	case ActionRefresh:
		if err := p.cfg.Window.Reload(ctx); err != nil {
			p.logger.Warn("refresh failed", "error", err)
		}
	}
}

// setKioskMode applies a window mode. Terminated publishes its status
// once and then silences the bridge for the rest of the process. The
// display is left alone since the window is going away.
func (p *Publisher) setKioskMode(ctx context.Context, mode window.Mode) {
	p.logger.Info("set kiosk mode", "mode", mode)
	p.keyboardDropped = false

	if mode == window.Terminated {
		p.publishString(ctx, p.topics.Status(DomainSelect, objKiosk), string(window.Terminated))
		p.terminated = true
		p.cfg.Window.Terminate()
		return
	}

	p.wakeDisplay(ctx)

	if err := p.cfg.Window.SetMode(ctx, mode); err != nil {
		p.logger.Warn("set kiosk mode failed", "mode", mode, "error", err)
	}
	p.publishKiosk(ctx)
}

// setKeyboard toggles the keyboard. Showing it takes a Fullscreen window
// to Maximized so the panel does not cover content; hiding it restores
// Fullscreen only if showing it was what left Fullscreen.
func (p *Publisher) setKeyboard(ctx context.Context, visible bool) {
	p.logger.Info("set keyboard visibility", "visible", visible)
	p.await(ctx, "keyboard_visibility", p.hw.SetKeyboardVisible(ctx, visible), p.resample)

	mode := p.cfg.Window.Mode()
	switch {
	case visible && mode == window.Fullscreen:
		if err := p.cfg.Window.SetMode(ctx, window.Maximized); err != nil {
			p.logger.Warn("leave fullscreen for keyboard failed", "error", err)
			return
		}
		p.keyboardDropped = true
	case !visible && p.keyboardDropped:
		p.keyboardDropped = false
		if mode != window.Maximized {
			return
		}
		if err := p.cfg.Window.SetMode(ctx, window.Fullscreen); err != nil {
			p.logger.Warn("restore fullscreen after keyboard failed", "error", err)
			return
		}
	default:
		return
	}
	p.publishKiosk(ctx)
}

// wakeDisplay turns the display on so the user sees a remote action
// take effect.
func (p *Publisher) wakeDisplay(ctx context.Context) {
	if !p.hw.Capabilities().Has(hardware.CapDisplayStatus) {
		return
	}
	if s := p.snapshot.DisplayPower; s != nil && *s == hardware.PowerOn {
		return
	}
	p.await(ctx, "display_status", p.hw.SetDisplayStatus(ctx, hardware.PowerOn), p.resample)
}

// resample polls right after a hardware command so the new state is
// published without waiting for the next tick.
func (p *Publisher) resample(ctx context.Context, _ hardware.Result) {
	p.cfg.Poller.Tick(ctx)
}

// await collects an asynchronous hardware result off the loop and
// hands it back to the loop. Failures are logged; then, if set, runs on
// success only.
func (p *Publisher) await(ctx context.Context, op string, ch <-chan hardware.Result, then func(context.Context, hardware.Result)) {
	handle := func(ctx context.Context, res hardware.Result) {
		if res.Err != nil {
			p.logger.Warn("hardware command failed", "operation", op, "error", res.Err)
			return
		}
		p.logger.Debug("hardware command completed", "operation", op, "output", res.Output)
		if then != nil {
			then(ctx, res)
		}
	}

	// Completed results are handled inline, which keeps ordering
	// deterministic for immediate outcomes.
	select {
	case res, ok := <-ch:
		if ok {
			handle(ctx, res)
		}
		return
	default:
	}

	go func() {
		res, ok := <-ch
		if !ok {
			return
		}
		p.enqueue("result", func(ctx context.Context) { handle(ctx, res) })
	}()
}
