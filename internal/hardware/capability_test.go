package hardware

import (
	"errors"
	"path/filepath"
	"testing"
)

func kioskRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "sys/class/drm/card0/status", "connected")
	writeFile(t, root, "proc/meminfo", "MemTotal: 1 kB")
	return root
}

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func tools(names ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range names {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestResolve_UnsupportedPlatform(t *testing.T) {
	r := &Resolver{GOOS: "darwin", Logger: testLogger()}
	_, err := r.Resolve()
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestResolve_MissingSubsystem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "proc/meminfo", "")

	r := &Resolver{Root: root, GOOS: "linux", Getenv: env(nil), LookPath: tools(), Logger: testLogger()}
	_, err := r.Resolve()
	if !errors.Is(err, ErrMissingSubsystem) {
		t.Fatalf("error = %v, want ErrMissingSubsystem", err)
	}
}

func TestResolve_WaylandKiosk(t *testing.T) {
	root := kioskRoot(t)
	writeFile(t, root, "sys/class/backlight/10-0045/brightness", "128")
	writeFile(t, root, "sys/class/backlight/10-0045/max_brightness", "255")
	writeFile(t, root, "sys/class/thermal/thermal_zone0/type", "gpu-thermal")
	writeFile(t, root, "sys/class/thermal/thermal_zone1/type", "cpu-thermal")

	r := &Resolver{
		Root:           root,
		GOOS:           "linux",
		Getenv:         env(map[string]string{"XDG_SESSION_TYPE": "wayland"}),
		LookPath:       tools("wlopm", "sudo"),
		ProcessRunning: func(name string) bool { return name == "squeekboard" },
		Logger:         testLogger(),
	}
	caps, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if caps.Session != SessionWayland {
		t.Errorf("Session = %q, want wayland", caps.Session)
	}
	for _, c := range []Capability{CapDisplayStatus, CapDisplayBrightness, CapKeyboardVisibility, CapProcessorTemperature, CapElevation} {
		if !caps.Has(c) {
			t.Errorf("missing capability %s", c)
		}
	}
	if caps.Has(CapPackageUpgrades) {
		t.Error("package_upgrades should be absent without apt")
	}
	if want := filepath.Join(root, "sys/class/backlight/10-0045"); caps.BacklightDir != want {
		t.Errorf("BacklightDir = %q, want %q", caps.BacklightDir, want)
	}
	if want := filepath.Join(root, "sys/class/thermal/thermal_zone1"); caps.ThermalZone != want {
		t.Errorf("ThermalZone = %q, want %q", caps.ThermalZone, want)
	}
}

func TestResolve_X11WithoutOptionalSubsystems(t *testing.T) {
	root := kioskRoot(t)
	writeFile(t, root, "sys/class/backlight/broken/brightness", "1")

	r := &Resolver{
		Root:           root,
		GOOS:           "linux",
		Getenv:         env(map[string]string{"DISPLAY": ":0"}),
		LookPath:       tools("xset", "apt"),
		ProcessRunning: func(string) bool { return true },
		Logger:         testLogger(),
	}
	caps, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if caps.Session != SessionX11 {
		t.Errorf("Session = %q, want x11", caps.Session)
	}
	if !caps.Has(CapDisplayStatus) || !caps.Has(CapPackageUpgrades) {
		t.Errorf("capabilities = %v", caps.Names())
	}
	if caps.Has(CapDisplayBrightness) {
		t.Error("backlight without max_brightness should not count")
	}
	if caps.Has(CapKeyboardVisibility) {
		t.Error("keyboard requires a wayland session")
	}
	if caps.Has(CapElevation) {
		t.Error("elevation requires sudo")
	}
}

func TestCapabilities_Map(t *testing.T) {
	caps := NewCapabilities(SessionX11, CapDisplayStatus)
	m := caps.Map()
	if m["session_type"] != "x11" {
		t.Errorf("session_type = %q", m["session_type"])
	}
	if m["display_status"] != "true" || m["display_brightness"] != "false" {
		t.Errorf("map = %v", m)
	}
	if got := caps.Names(); len(got) != 1 || got[0] != "display_status" {
		t.Errorf("Names = %v", got)
	}
}

func TestCapabilities_Without(t *testing.T) {
	c := NewCapabilities(SessionWayland, CapKeyboardVisibility, CapDisplayStatus)
	w := c.Without(CapKeyboardVisibility)

	if w.Has(CapKeyboardVisibility) || !w.Has(CapDisplayStatus) {
		t.Errorf("Without = %v", w.Names())
	}
	if !c.Has(CapKeyboardVisibility) {
		t.Error("Without modified the original set")
	}
	if w.Session != SessionWayland {
		t.Errorf("Session = %q", w.Session)
	}
}
