package hardware

import (
	"context"
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// ProbeConfig configures a [Probe].
type ProbeConfig struct {
	// Root is prefixed to every sysfs/procfs path (default "/").
	Root string

	// Caps is the resolved capability set gating every probe.
	Caps Capabilities

	// Runner executes shell tools. Defaults to an [ExecRunner].
	Runner Runner

	// Keyboard is the on-screen keyboard backend. Nil when the
	// keyboard capability is absent.
	Keyboard Keyboard

	Logger *slog.Logger
}

// Probe is the host probe. Getters return (value, ok); they never
// return raw failures. Setters return a channel that receives exactly
// one [Result].
type Probe struct {
	root     string
	caps     Capabilities
	runner   Runner
	display  displayBackend
	light    *backlight
	keyboard Keyboard
	logger   *slog.Logger

	// Metric sources, replaced in tests.
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	uptime        func() (uint64, error)
	loadAvg       func() (*load.AvgStat, error)
	cpuCount      func() (int, error)
	hostname      func() (string, error)
}

// NewProbe creates a Probe for the given capability set. Exactly one
// display backend is chosen from the session type.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Root == "" {
		cfg.Root = "/"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner(cfg.Logger)
	}

	p := &Probe{
		root:          cfg.Root,
		caps:          cfg.Caps,
		runner:        cfg.Runner,
		keyboard:      cfg.Keyboard,
		logger:        cfg.Logger,
		virtualMemory: mem.VirtualMemory,
		uptime:        host.Uptime,
		loadAvg:       load.Avg,
		cpuCount:      func() (int, error) { return cpu.Counts(true) },
		hostname:      os.Hostname,
	}

	if cfg.Caps.Has(CapDisplayStatus) {
		p.display = newDisplayBackend(cfg.Caps.Session, cfg.Runner)
	}
	if cfg.Caps.Has(CapDisplayBrightness) {
		p.light = &backlight{
			dir:      cfg.Caps.BacklightDir,
			runner:   cfg.Runner,
			elevated: cfg.Caps.Has(CapElevation),
		}
	}
	if !cfg.Caps.Has(CapKeyboardVisibility) {
		p.keyboard = nil
	}
	return p
}

// Capabilities returns the capability set the probe was built with.
func (p *Probe) Capabilities() Capabilities {
	return p.caps
}

// Close releases the keyboard backend, if any.
func (p *Probe) Close() error {
	if p.keyboard != nil {
		return p.keyboard.Close()
	}
	return nil
}

// LogSummary writes the current identity, metrics and display state
// at info level, as a startup banner for operators.
func (p *Probe) LogSummary(ctx context.Context) {
	m := p.SampleMetrics()
	attrs := []any{
		"model", p.Model(),
		"vendor", p.Vendor(),
		"serial_number", p.SerialNumber(),
		"host_name", p.HostName(),
	}
	attrs = append(attrs, metricAttrs(m)...)
	if power, ok := p.DisplayStatus(ctx); ok {
		attrs = append(attrs, "display_status", power)
	}
	if brightness, ok := p.Brightness(); ok {
		attrs = append(attrs, "display_brightness", brightness)
	}
	p.logger.Info("hardware initialized", attrs...)
}

// unsupported logs a gated probe at debug level and returns false.
func (p *Probe) unsupported(probe string) bool {
	p.logger.Debug("probe skipped", "probe", probe, "error", ErrUnsupported)
	return false
}

// failed logs a transient probe failure.
func (p *Probe) failed(probe string, err error, attrs ...any) {
	p.logger.Warn("probe failed", append([]any{"probe", probe, "error", err}, attrs...)...)
}

// resultOf wraps an immediate outcome in a completed Result channel.
func resultOf(r Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- r
	close(ch)
	return ch
}

func metricAttrs(m Metrics) []any {
	var attrs []any
	add := func(key string, v *float64) {
		if v != nil {
			attrs = append(attrs, key, *v)
		}
	}
	add("up_time", m.UpTime)
	add("memory_size", m.MemorySize)
	add("memory_usage", m.MemoryUsage)
	add("processor_usage", m.ProcessorUsage)
	add("processor_temperature", m.ProcessorTemperature)
	return attrs
}
