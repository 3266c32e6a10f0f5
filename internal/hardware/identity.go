package hardware

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// Fallback identity values for hosts exposing neither device-tree nor
// DMI information.
const (
	DefaultModel        = "Generic"
	DefaultVendor       = "Generic"
	DefaultSerialNumber = "123456"
)

const (
	deviceTreeDir = "sys/firmware/devicetree/base"
	dmiDir        = "sys/class/dmi/id"
)

// vendorNames maps device-tree compatible vendor prefixes to
// manufacturer names.
var vendorNames = map[string]string{
	"raspberrypi": "Raspberry Pi Ltd",
	"brcm":        "Broadcom",
	"rockchip":    "Rockchip",
	"allwinner":   "Allwinner",
	"nvidia":      "NVIDIA",
}

// Model returns the board or product name: device tree first, DMI
// second, [DefaultModel] last.
func (p *Probe) Model() string {
	return p.identityFile("model", DefaultModel,
		filepath.Join(deviceTreeDir, "model"),
		filepath.Join(dmiDir, "product_name"),
	)
}

// Vendor returns the manufacturer: the vendor prefix of the first
// device-tree compatible string, then DMI sys_vendor, then
// [DefaultVendor].
func (p *Probe) Vendor() string {
	if compatible, err := readTrimmed(p.path(filepath.Join(deviceTreeDir, "compatible"))); err == nil {
		// compatible is a NUL separated list; cleanOutput already
		// dropped the separators, so split on the first comma.
		if vendor, _, ok := strings.Cut(compatible, ","); ok && vendor != "" {
			if name, known := vendorNames[vendor]; known {
				return name
			}
			return vendor
		}
	}
	return p.identityFile("vendor", DefaultVendor, filepath.Join(dmiDir, "sys_vendor"))
}

// SerialNumber returns the hardware serial: device tree first, DMI
// product_serial second (root-only on most hosts, read through sudo
// when direct access is denied), [DefaultSerialNumber] last.
func (p *Probe) SerialNumber() string {
	return p.identityFile("serial_number", DefaultSerialNumber,
		filepath.Join(deviceTreeDir, "serial-number"),
		filepath.Join(dmiDir, "product_serial"),
	)
}

// HostName returns the system host name, or "localhost" if it cannot
// be read.
func (p *Probe) HostName() string {
	name, err := p.hostname()
	if err != nil || name == "" {
		p.failed("host_name", err)
		return "localhost"
	}
	return name
}

// MachineID returns the systemd machine id, used to derive the key for
// sealed configuration secrets.
func (p *Probe) MachineID() (string, bool) {
	id, err := readTrimmed(p.path("etc/machine-id"))
	if err != nil || id == "" {
		p.failed("machine_id", err)
		return "", false
	}
	return id, true
}

// identityFile walks paths in order and returns the first non-empty
// value, or fallback.
func (p *Probe) identityFile(probe, fallback string, paths ...string) string {
	for _, rel := range paths {
		full := p.path(rel)
		value, err := readTrimmed(full)
		if errors.Is(err, fs.ErrPermission) && p.caps.Has(CapElevation) {
			res := p.runner.Run(context.Background(), Command{Name: "cat", Args: []string{full}}.Elevated())
			value, err = res.Output, res.Err
		}
		if err == nil && value != "" {
			return value
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.failed(probe, err, "path", full)
		}
	}
	p.logger.Debug("identity fallback used", "probe", probe, "value", fallback)
	return fallback
}

func (p *Probe) path(rel string) string {
	return filepath.Join(p.root, rel)
}
