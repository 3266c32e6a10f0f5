package hardware

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

func metricsProbe(t *testing.T, caps Capabilities) *Probe {
	t.Helper()
	p := NewProbe(ProbeConfig{Root: t.TempDir(), Caps: caps, Runner: newFakeRunner(), Logger: testLogger()})
	p.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 8 * gib, Free: 2 * gib}, nil
	}
	p.uptime = func() (uint64, error) { return 5400, nil }
	p.loadAvg = func() (*load.AvgStat, error) { return &load.AvgStat{Load1: 9, Load5: 2, Load15: 1}, nil }
	p.cpuCount = func() (int, error) { return 4, nil }
	return p
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMetrics(t *testing.T) {
	p := metricsProbe(t, Capabilities{})

	if v, ok := p.MemoryUsage(); !ok || !near(v, 75) {
		t.Errorf("MemoryUsage = %v, %v; want 75", v, ok)
	}
	if v, ok := p.MemorySize(); !ok || !near(v, 8) {
		t.Errorf("MemorySize = %v, %v; want 8", v, ok)
	}
	if v, ok := p.UpTime(); !ok || !near(v, 90) {
		t.Errorf("UpTime = %v, %v; want 90", v, ok)
	}
	if v, ok := p.ProcessorUsage(); !ok || !near(v, 50) {
		t.Errorf("ProcessorUsage = %v, %v; want 50", v, ok)
	}
	if _, ok := p.ProcessorTemperature(); ok {
		t.Error("ProcessorTemperature should be gated off")
	}
}

func TestProcessorTemperature(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "thermal_zone0/temp", "48312\n")

	caps := NewCapabilities(SessionWayland, CapProcessorTemperature)
	caps.ThermalZone = filepath.Join(root, "thermal_zone0")
	p := metricsProbe(t, caps)

	v, ok := p.ProcessorTemperature()
	if !ok || !near(v, 48.312) {
		t.Errorf("ProcessorTemperature = %v, %v; want 48.312", v, ok)
	}
}

func TestSampleMetrics_FailedReadsAreNil(t *testing.T) {
	p := metricsProbe(t, Capabilities{})
	p.virtualMemory = func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("no meminfo") }
	p.cpuCount = func() (int, error) { return 0, nil }

	m := p.SampleMetrics()
	if m.MemorySize != nil || m.MemoryUsage != nil {
		t.Errorf("memory metrics should be nil, got %v %v", m.MemorySize, m.MemoryUsage)
	}
	if m.ProcessorUsage != nil {
		t.Errorf("ProcessorUsage should be nil with zero cpus, got %v", *m.ProcessorUsage)
	}
	if m.UpTime == nil || !near(*m.UpTime, 90) {
		t.Errorf("UpTime = %v", m.UpTime)
	}
}
