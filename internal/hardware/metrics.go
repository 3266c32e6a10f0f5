package hardware

import (
	"errors"
	"path/filepath"
	"strconv"
)

const gib = 1024 * 1024 * 1024

// UpTime returns the system uptime in minutes.
func (p *Probe) UpTime() (float64, bool) {
	secs, err := p.uptime()
	if err != nil {
		p.failed("up_time", err)
		return 0, false
	}
	return float64(secs) / 60, true
}

// MemorySize returns the total memory in GiB.
func (p *Probe) MemorySize() (float64, bool) {
	vm, err := p.virtualMemory()
	if err != nil {
		p.failed("memory_size", err)
		return 0, false
	}
	return float64(vm.Total) / gib, true
}

// MemoryUsage returns the used share of memory in percent, computed as
// (total - free) / total.
func (p *Probe) MemoryUsage() (float64, bool) {
	vm, err := p.virtualMemory()
	if err != nil {
		p.failed("memory_usage", err)
		return 0, false
	}
	if vm.Total == 0 {
		p.failed("memory_usage", errors.New("total memory is zero"))
		return 0, false
	}
	return float64(vm.Total-vm.Free) / float64(vm.Total) * 100, true
}

// ProcessorUsage returns the 5-minute load average per logical CPU in
// percent.
func (p *Probe) ProcessorUsage() (float64, bool) {
	avg, err := p.loadAvg()
	if err != nil {
		p.failed("processor_usage", err)
		return 0, false
	}
	n, err := p.cpuCount()
	if err != nil || n <= 0 {
		p.failed("processor_usage", errors.Join(errors.New("cpu count unavailable"), err))
		return 0, false
	}
	return avg.Load5 / float64(n) * 100, true
}

// ProcessorTemperature returns the CPU temperature in degrees Celsius
// from the thermal zone chosen at startup.
func (p *Probe) ProcessorTemperature() (float64, bool) {
	if !p.caps.Has(CapProcessorTemperature) {
		return 0, p.unsupported("processor_temperature")
	}
	path := filepath.Join(p.caps.ThermalZone, "temp")
	raw, err := readTrimmed(path)
	if err != nil {
		p.failed("processor_temperature", err, "path", path)
		return 0, false
	}
	milli, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.failed("processor_temperature", err, "path", path)
		return 0, false
	}
	return milli / 1000, true
}

// SampleMetrics reads every metric once. Failed reads are left nil.
func (p *Probe) SampleMetrics() Metrics {
	return Metrics{
		UpTime:               optional(p.UpTime()),
		MemorySize:           optional(p.MemorySize()),
		MemoryUsage:          optional(p.MemoryUsage()),
		ProcessorUsage:       optional(p.ProcessorUsage()),
		ProcessorTemperature: optional(p.ProcessorTemperature()),
	}
}
