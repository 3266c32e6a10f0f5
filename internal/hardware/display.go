package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// displayBackend reads and switches display power through exactly one
// display-server specific tool.
type displayBackend interface {
	status(ctx context.Context) (Power, error)
	setStatus(ctx context.Context, power Power) <-chan Result
}

func newDisplayBackend(session SessionType, runner Runner) displayBackend {
	switch session {
	case SessionWayland:
		return &wlopmBackend{runner: runner}
	case SessionX11:
		return &xsetBackend{runner: runner}
	}
	return nil
}

// wlopmBackend drives wlr-output-power-management through wlopm. The
// first output listed is treated as the kiosk display.
type wlopmBackend struct {
	runner Runner
}

// output returns the first "NAME on|off" line of wlopm.
func (b *wlopmBackend) output(ctx context.Context) (name string, power Power, err error) {
	res := b.runner.Run(ctx, Command{Name: "wlopm"})
	if res.Err != nil {
		return "", "", res.Err
	}
	first, _, _ := strings.Cut(res.Output, "\n")
	fields := strings.Fields(first)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("unexpected wlopm output %q", first)
	}
	return fields[0], Power(strings.ToUpper(fields[len(fields)-1])), nil
}

func (b *wlopmBackend) status(ctx context.Context) (Power, error) {
	_, power, err := b.output(ctx)
	if err != nil {
		return "", err
	}
	return ParsePower(string(power))
}

func (b *wlopmBackend) setStatus(ctx context.Context, power Power) <-chan Result {
	name, _, err := b.output(ctx)
	if err != nil {
		return resultOf(Result{Err: err})
	}
	return b.runner.Start(ctx, Command{Name: "wlopm", Args: []string{"--" + strings.ToLower(string(power)), name}})
}

// xsetBackend drives DPMS through xset.
type xsetBackend struct {
	runner Runner
}

func (b *xsetBackend) status(ctx context.Context) (Power, error) {
	res := b.runner.Run(ctx, Command{Name: "xset", Args: []string{"q"}})
	if res.Err != nil {
		return "", res.Err
	}
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Monitor is "); ok {
			if strings.EqualFold(rest, "On") {
				return PowerOn, nil
			}
			// Off, in Standby and in Suspend all mean a dark panel.
			return PowerOff, nil
		}
	}
	return "", errors.New("xset q reported no monitor state (is DPMS enabled?)")
}

func (b *xsetBackend) setStatus(ctx context.Context, power Power) <-chan Result {
	return b.runner.Start(ctx, Command{Name: "xset", Args: []string{"dpms", "force", strings.ToLower(string(power))}})
}

// DisplayStatus returns the display power state.
func (p *Probe) DisplayStatus(ctx context.Context) (Power, bool) {
	if p.display == nil {
		return "", p.unsupported("display_status")
	}
	power, err := p.display.status(ctx)
	if err != nil {
		p.failed("display_status", err, "session_type", p.caps.Session)
		return "", false
	}
	return power, true
}

// SetDisplayStatus switches display power. An unrecognized state is
// rejected with ErrInvalidArgument before any command runs.
func (p *Probe) SetDisplayStatus(ctx context.Context, power Power) <-chan Result {
	if _, err := ParsePower(string(power)); err != nil {
		p.logger.Error("display status rejected", "status", power, "error", err)
		return resultOf(Result{Err: err})
	}
	if p.display == nil {
		return resultOf(Result{Err: fmt.Errorf("display status: %w", ErrUnsupported)})
	}
	p.logger.Info("set display status", "status", power, "session_type", p.caps.Session)
	return p.display.setStatus(ctx, power)
}

// backlight is a sysfs backlight device.
type backlight struct {
	dir      string
	runner   Runner
	elevated bool
}

func (b *backlight) max() (int, error) {
	raw, err := readTrimmed(filepath.Join(b.dir, "max_brightness"))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse max_brightness: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("max_brightness is %d", n)
	}
	return n, nil
}

func (b *backlight) raw() (int, error) {
	raw, err := readTrimmed(filepath.Join(b.dir, "brightness"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// ParseBrightness validates an inbound brightness value: an integer
// string within [1,100]. Anything else is ErrInvalidArgument.
func ParseBrightness(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: brightness must be an integer, got %q", ErrInvalidArgument, s)
	}
	if n < 1 || n > 100 {
		return 0, fmt.Errorf("%w: brightness must be between 1 and 100, got %d", ErrInvalidArgument, n)
	}
	return n, nil
}

// ClampBrightness limits a percentage to [1,100].
func ClampBrightness(percent int) int {
	return min(max(percent, 1), 100)
}

// ToNative maps a percentage onto the native range [1,max].
func ToNative(percent, maxNative int) int {
	v := int(math.Round(float64(ClampBrightness(percent)) / 100 * float64(maxNative)))
	return min(max(v, 1), maxNative)
}

// ToPercent maps a native value onto [0,100].
func ToPercent(native, maxNative int) int {
	return int(math.Round(float64(native) / float64(maxNative) * 100))
}

// Brightness returns the backlight level as a percentage.
func (p *Probe) Brightness() (int, bool) {
	if p.light == nil {
		return 0, p.unsupported("display_brightness")
	}
	maxNative, err := p.light.max()
	if err != nil {
		p.failed("display_brightness", err, "path", p.light.dir)
		return 0, false
	}
	raw, err := p.light.raw()
	if err != nil {
		p.failed("display_brightness", err, "path", p.light.dir)
		return 0, false
	}
	return ToPercent(raw, maxNative), true
}

// SetBrightness clamps percent to [1,100], maps it onto the native
// range and writes it. The file is written directly when the process
// may write it, otherwise through `sudo tee`.
func (p *Probe) SetBrightness(ctx context.Context, percent int) <-chan Result {
	if p.light == nil {
		return resultOf(Result{Err: fmt.Errorf("display brightness: %w", ErrUnsupported)})
	}
	maxNative, err := p.light.max()
	if err != nil {
		p.failed("display_brightness", err, "path", p.light.dir)
		return resultOf(Result{Err: err})
	}
	value := strconv.Itoa(ToNative(percent, maxNative))
	path := filepath.Join(p.light.dir, "brightness")
	p.logger.Info("set display brightness", "percent", ClampBrightness(percent), "native", value)

	if unix.Access(path, unix.W_OK) == nil {
		if err := os.WriteFile(path, []byte(value), 0); err != nil {
			return resultOf(Result{Err: fmt.Errorf("write brightness: %w", err)})
		}
		return resultOf(Result{Output: value})
	}
	if !p.light.elevated {
		return resultOf(Result{Err: fmt.Errorf("write brightness: %w", unix.EACCES)})
	}
	return p.runner.Start(ctx, Command{Name: "tee", Args: []string{path}, Stdin: value}.Elevated())
}
