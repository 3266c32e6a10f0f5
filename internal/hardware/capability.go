package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Capability names a host facility that may or may not be present.
type Capability string

// Capabilities reported by [Resolver.Resolve].
const (
	CapDisplayStatus        Capability = "display_status"
	CapDisplayBrightness    Capability = "display_brightness"
	CapKeyboardVisibility   Capability = "keyboard_visibility"
	CapProcessorTemperature Capability = "processor_temperature"
	CapPackageUpgrades      Capability = "package_upgrades"
	CapElevation            Capability = "elevation"
)

// SessionType is the display-server family of the running session.
type SessionType string

// Supported session types.
const (
	SessionUnknown SessionType = "unknown"
	SessionWayland SessionType = "wayland"
	SessionX11     SessionType = "x11"
)

// Errors returned by [Resolver.Resolve]. Both are soft failures: the
// caller runs without device integration.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrMissingSubsystem    = errors.New("required subsystem missing")
)

// requiredPaths must all exist for hardware integration to start.
var requiredPaths = []string{
	"sys/class/drm",
	"proc/meminfo",
}

// keyboardDaemon is the on-screen keyboard process the keyboard
// capability depends on.
const keyboardDaemon = "squeekboard"

// thermalTypes are the thermal-zone type labels accepted as the CPU
// temperature source, in preference order.
var thermalTypes = []string{
	"cpu-thermal",
	"cpu_thermal",
	"soc_thermal",
	"x86_pkg_temp",
	"coretemp",
	"k10temp",
}

// Capabilities is the read-only result of host probing. It gates which
// entities are registered and which setters do anything.
type Capabilities struct {
	Session SessionType

	// BacklightDir is the sysfs backlight device directory, empty when
	// brightness is unsupported.
	BacklightDir string

	// ThermalZone is the sysfs thermal zone directory used for the CPU
	// temperature, empty when none matched.
	ThermalZone string

	flags map[Capability]bool
}

// NewCapabilities builds a capability set by hand. Used by tests and
// by callers that already know the host layout.
func NewCapabilities(session SessionType, caps ...Capability) Capabilities {
	c := Capabilities{Session: session, flags: make(map[Capability]bool, len(caps))}
	for _, name := range caps {
		c.flags[name] = true
	}
	return c
}

// Has reports whether name is supported on this host.
func (c Capabilities) Has(name Capability) bool {
	return c.flags[name]
}

// Without returns a copy of c with name cleared.
func (c Capabilities) Without(name Capability) Capabilities {
	out := c
	out.flags = make(map[Capability]bool, len(c.flags))
	for k, v := range c.flags {
		if k != name {
			out.flags[k] = v
		}
	}
	return out
}

// Names returns the supported capability names, sorted.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c.flags))
	for name, ok := range c.flags {
		if ok {
			names = append(names, string(name))
		}
	}
	sort.Strings(names)
	return names
}

// Map returns every known capability with its support flag, plus the
// session type under "session_type".
func (c Capabilities) Map() map[string]string {
	m := map[string]string{"session_type": string(c.Session)}
	for _, name := range []Capability{
		CapDisplayStatus, CapDisplayBrightness, CapKeyboardVisibility,
		CapProcessorTemperature, CapPackageUpgrades, CapElevation,
	} {
		m[string(name)] = fmt.Sprint(c.flags[name])
	}
	return m
}

// Resolver determines the capability set of the host. The zero value
// probes the real system; tests override the function fields.
type Resolver struct {
	// Root is prefixed to every sysfs/procfs path (default "/").
	Root string

	// GOOS overrides runtime.GOOS.
	GOOS string

	Getenv         func(string) string
	LookPath       func(string) (string, error)
	ProcessRunning func(name string) bool

	Logger *slog.Logger
}

// Resolve runs the platform check, the required subsystem checks and
// optional-subsystem detection. It returns ErrUnsupportedPlatform or
// ErrMissingSubsystem (wrapped) when device integration cannot run.
func (r *Resolver) Resolve() (Capabilities, error) {
	r.defaults()

	if r.GOOS != "linux" {
		return Capabilities{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, r.GOOS)
	}

	for _, p := range requiredPaths {
		if _, err := os.Stat(filepath.Join(r.Root, p)); err != nil {
			return Capabilities{}, fmt.Errorf("%w: /%s", ErrMissingSubsystem, p)
		}
	}

	caps := NewCapabilities(r.sessionType())

	switch caps.Session {
	case SessionWayland:
		caps.flags[CapDisplayStatus] = r.hasTool("wlopm")
	case SessionX11:
		caps.flags[CapDisplayStatus] = r.hasTool("xset")
	}

	if dir := r.findBacklight(); dir != "" {
		caps.BacklightDir = dir
		caps.flags[CapDisplayBrightness] = true
	}

	if zone := r.findThermalZone(); zone != "" {
		caps.ThermalZone = zone
		caps.flags[CapProcessorTemperature] = true
	}

	caps.flags[CapKeyboardVisibility] = caps.Session == SessionWayland && r.ProcessRunning(keyboardDaemon)
	caps.flags[CapPackageUpgrades] = r.hasTool("apt")
	caps.flags[CapElevation] = r.hasTool("sudo")

	r.Logger.Info("hardware capabilities resolved",
		"session_type", caps.Session,
		"capabilities", strings.Join(caps.Names(), ","),
		"backlight", caps.BacklightDir,
		"thermal_zone", caps.ThermalZone,
	)
	return caps, nil
}

func (r *Resolver) defaults() {
	if r.Root == "" {
		r.Root = "/"
	}
	if r.GOOS == "" {
		r.GOOS = runtime.GOOS
	}
	if r.Getenv == nil {
		r.Getenv = os.Getenv
	}
	if r.LookPath == nil {
		r.LookPath = exec.LookPath
	}
	if r.ProcessRunning == nil {
		r.ProcessRunning = processRunning
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
}

// sessionType prefers XDG_SESSION_TYPE and falls back to the display
// socket variables.
func (r *Resolver) sessionType() SessionType {
	switch strings.ToLower(r.Getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return SessionWayland
	case "x11":
		return SessionX11
	}
	if r.Getenv("WAYLAND_DISPLAY") != "" {
		return SessionWayland
	}
	if r.Getenv("DISPLAY") != "" {
		return SessionX11
	}
	return SessionUnknown
}

func (r *Resolver) hasTool(name string) bool {
	_, err := r.LookPath(name)
	if err != nil {
		r.Logger.Debug("optional tool not found", "tool", name)
	}
	return err == nil
}

// findBacklight returns the first backlight device exposing both
// brightness and max_brightness.
func (r *Resolver) findBacklight() string {
	base := filepath.Join(r.Root, "sys", "class", "backlight")
	entries, err := os.ReadDir(base)
	if err != nil {
		r.Logger.Debug("no backlight subsystem", "path", base, "error", err)
		return ""
	}
	for _, e := range entries {
		dir := filepath.Join(base, e.Name())
		if fileExists(filepath.Join(dir, "brightness")) && fileExists(filepath.Join(dir, "max_brightness")) {
			return dir
		}
	}
	return ""
}

// findThermalZone returns the zone whose type matches the earliest
// entry of thermalTypes.
func (r *Resolver) findThermalZone() string {
	zones, err := filepath.Glob(filepath.Join(r.Root, "sys", "class", "thermal", "thermal_zone*"))
	if err != nil || len(zones) == 0 {
		return ""
	}
	sort.Strings(zones)
	byType := make(map[string]string, len(zones))
	for _, zone := range zones {
		kind, err := readTrimmed(filepath.Join(zone, "type"))
		if err != nil {
			continue
		}
		if _, seen := byType[kind]; !seen {
			byType[kind] = zone
		}
	}
	for _, kind := range thermalTypes {
		if zone, ok := byType[kind]; ok {
			return zone
		}
	}
	return ""
}

// processRunning scans the process table for an executable name.
func processRunning(name string) bool {
	procs, err := process.Processes()
	if err != nil {
		return false
	}
	for _, p := range procs {
		if n, err := p.Name(); err == nil && n == name {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return cleanOutput(string(data)), nil
}
