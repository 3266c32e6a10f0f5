package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nugget/kioskbridge/internal/hardware"
)

// Process is a running browser instance.
type Process interface {
	// Pid returns the OS process id.
	Pid() int
	// Done is closed when the process exits.
	Done() <-chan struct{}
	// Stop terminates the process and waits for it to exit.
	Stop()
}

// Launcher starts a browser process.
type Launcher func(ctx context.Context, cmd hardware.Command) (Process, error)

// BrowserConfig configures a [Browser].
type BrowserConfig struct {
	// Command is the browser executable.
	Command string
	URL     string
	// Theme is "dark" or "light".
	Theme string
	Zoom  float64

	// Runner executes helper tools (xdotool, xprintidle).
	Runner hardware.Runner
	// Launch starts the browser. Defaults to os/exec.
	Launch Launcher
	// OnExit is called once when the browser exits on its own or is
	// terminated. The serve command cancels its context here.
	OnExit func()

	Logger *slog.Logger
}

// Browser runs a Chromium-family browser as the kiosk window. Mode
// changes that the browser cannot apply to a live window are applied by
// relaunching it with the matching command-line flags.
type Browser struct {
	cfg BrowserConfig

	mu         sync.Mutex
	mode       Mode
	proc       Process
	restarting bool
	lastInput  time.Time
	terminated bool
	exitOnce   sync.Once
}

// NewBrowser returns a browser controller. Call Start to launch it.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Launch == nil {
		cfg.Launch = execLaunch
	}
	if cfg.Runner == nil {
		cfg.Runner = hardware.NewExecRunner(cfg.Logger)
	}
	if cfg.OnExit == nil {
		cfg.OnExit = func() {}
	}
	return &Browser{cfg: cfg, mode: Fullscreen, lastInput: time.Now()}
}

// Start launches the browser in Fullscreen mode.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launchLocked(ctx, Fullscreen)
}

// Args returns the browser command line for mode.
func (b *Browser) Args(mode Mode) []string {
	args := []string{
		"--noerrdialogs",
		"--disable-infobars",
		"--no-first-run",
		"--ozone-platform-hint=auto",
	}
	if b.cfg.Zoom > 0 {
		args = append(args, "--force-device-scale-factor="+strconv.FormatFloat(b.cfg.Zoom, 'f', -1, 64))
	}
	if b.cfg.Theme == "dark" {
		args = append(args, "--force-dark-mode")
	}
	switch mode {
	case Fullscreen:
		args = append(args, "--kiosk")
	case Maximized, Minimized:
		args = append(args, "--start-maximized")
	}
	return append(args, b.cfg.URL)
}

func (b *Browser) launchLocked(ctx context.Context, mode Mode) error {
	if b.terminated {
		return fmt.Errorf("browser terminated")
	}
	cmd := hardware.Command{Name: b.cfg.Command, Args: b.Args(mode)}
	proc, err := b.cfg.Launch(ctx, cmd)
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	b.proc = proc
	b.mode = mode
	b.cfg.Logger.Info("browser started", "mode", mode, "pid", proc.Pid(), "url", b.cfg.URL)
	go b.watch(proc)
	return nil
}

// watch treats an exit that was not requested by a relaunch as the
// user closing the kiosk.
func (b *Browser) watch(proc Process) {
	<-proc.Done()
	b.mu.Lock()
	current := b.proc == proc
	restarting := b.restarting
	if current && !restarting {
		b.mode = Terminated
		b.terminated = true
	}
	b.mu.Unlock()

	if current && !restarting {
		b.cfg.Logger.Warn("browser exited", "pid", proc.Pid())
		b.exit()
	}
}

func (b *Browser) exit() {
	b.exitOnce.Do(b.cfg.OnExit)
}

// Mode returns the last applied mode.
func (b *Browser) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// SetMode applies mode. Minimized is handed to xdotool on the running
// window; the other modes relaunch the browser with matching flags.
func (b *Browser) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	if mode == Terminated {
		b.Terminate()
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastInput = time.Now()
	if b.mode == mode {
		return nil
	}
	if mode == Minimized {
		if b.proc == nil {
			return errors.New("browser not running")
		}
		res := b.cfg.Runner.Run(ctx, hardware.Command{
			Name: "xdotool",
			Args: []string{"search", "--pid", strconv.Itoa(b.proc.Pid()), "windowminimize"},
		})
		if res.Err != nil {
			return fmt.Errorf("minimize window: %w", res.Err)
		}
		b.mode = Minimized
		return nil
	}
	return b.relaunchLocked(ctx, mode)
}

// Reload restarts the browser in its current mode, which drops every
// cached page.
func (b *Browser) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastInput = time.Now()
	mode := b.mode
	if mode == Minimized {
		mode = Maximized
	}
	b.cfg.Logger.Info("reloading browser", "mode", mode)
	return b.relaunchLocked(ctx, mode)
}

func (b *Browser) relaunchLocked(ctx context.Context, mode Mode) error {
	if b.proc != nil {
		b.restarting = true
		proc := b.proc
		b.mu.Unlock()
		proc.Stop()
		b.mu.Lock()
		b.restarting = false
	}
	return b.launchLocked(ctx, mode)
}

// Terminate stops the browser and fires OnExit once.
func (b *Browser) Terminate() {
	b.mu.Lock()
	b.mode = Terminated
	b.terminated = true
	proc := b.proc
	b.mu.Unlock()

	b.cfg.Logger.Info("terminating browser")
	if proc != nil {
		proc.Stop()
	}
	b.exit()
}

// LastInput asks xprintidle for the session idle time and falls back to
// the last remote interaction when it is unavailable.
func (b *Browser) LastInput(ctx context.Context) time.Time {
	res := b.cfg.Runner.Run(ctx, hardware.Command{Name: "xprintidle"})
	if res.Err == nil {
		if ms, err := strconv.ParseInt(strings.TrimSpace(res.Output), 10, 64); err == nil {
			return time.Now().Add(-time.Duration(ms) * time.Millisecond)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastInput
}

// execProcess wraps an os/exec child.
type execProcess struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

func execLaunch(ctx context.Context, c hardware.Command) (Process, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	p := &execProcess{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Stop() {
	p.cancel()
	<-p.done
}
