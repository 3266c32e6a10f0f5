package mqtt

import (
	"github.com/nugget/kioskbridge/internal/hardware"
	"github.com/nugget/kioskbridge/internal/identity"
	"github.com/nugget/kioskbridge/internal/window"
)

// Domain is a Home Assistant entity platform.
type Domain string

// Entity domains used by the kiosk.
const (
	DomainButton Domain = "button"
	DomainSelect Domain = "select"
	DomainLight  Domain = "light"
	DomainSwitch Domain = "switch"
	DomainSensor Domain = "sensor"
)

// Entity object ids.
const (
	objShutdown             = "shutdown"
	objReboot               = "reboot"
	objRefresh              = "refresh"
	objKiosk                = "kiosk"
	objDisplay              = "display"
	objKeyboard             = "keyboard"
	objModel                = "model"
	objSerialNumber         = "serial_number"
	objHostName             = "host_name"
	objUpTime               = "up_time"
	objMemorySize           = "memory_size"
	objMemoryUsage          = "memory_usage"
	objProcessorUsage       = "processor_usage"
	objProcessorTemperature = "processor_temperature"
	objPackageUpgrades      = "package_upgrades"
	objHeartbeat            = "heartbeat"
	objLastActive           = "last_active"
)

// Topics builds topic names under the discovery prefix for one node.
type Topics struct {
	Prefix string
	Node   string
}

// Root returns {prefix}/{domain}/{node}/{object}.
func (t Topics) Root(d Domain, object string) string {
	return t.Prefix + "/" + string(d) + "/" + t.Node + "/" + object
}

// Config returns the discovery config topic of an entity.
func (t Topics) Config(d Domain, object string) string {
	return t.Root(d, object) + "/config"
}

// Status returns the state topic of an entity.
func (t Topics) Status(d Domain, object string) string {
	return t.Root(d, object) + "/status"
}

// Set returns the command topic of a settable entity.
func (t Topics) Set(d Domain, object string) string {
	return t.Root(d, object) + "/set"
}

// Execute returns the command topic of a button.
func (t Topics) Execute(object string) string {
	return t.Root(DomainButton, object) + "/execute"
}

// BrightnessSet returns the display brightness command topic.
func (t Topics) BrightnessSet() string {
	return t.Root(DomainLight, objDisplay) + "/brightness/set"
}

// BrightnessStatus returns the display brightness state topic.
func (t Topics) BrightnessStatus() string {
	return t.Root(DomainLight, objDisplay) + "/brightness/status"
}

// Attributes returns the JSON attributes topic of a sensor.
func (t Topics) Attributes(object string) string {
	return t.Root(DomainSensor, object) + "/attributes"
}

// Availability returns the node availability topic.
func (t Topics) Availability() string {
	return t.Prefix + "/" + t.Node + "/availability"
}

// Entity is one discovery registration.
type Entity struct {
	Domain Domain
	Object string
	Config EntityConfig
}

// ConfigTopic returns where the entity's discovery payload is published.
func (e Entity) ConfigTopic(t Topics) string {
	return t.Config(e.Domain, e.Object)
}

// Entities returns the discovery registrations for the host, in a fixed
// order. Entities backed by an absent capability are omitted entirely.
func Entities(caps hardware.Capabilities, id identity.Identity, t Topics) []Entity {
	device := NewDeviceInfo(id)
	avail := t.Availability()

	base := func(d Domain, object, name, icon string) Entity {
		return Entity{
			Domain: d,
			Object: object,
			Config: EntityConfig{
				Name:              name,
				UniqueID:          id.UniqueID(object),
				ObjectID:          id.UniqueID(object),
				AvailabilityTopic: avail,
				Icon:              icon,
				Device:            device,
			},
		}
	}
	button := func(object, name, icon string) Entity {
		e := base(DomainButton, object, name, icon)
		e.Config.CommandTopic = t.Execute(object)
		return e
	}
	sensor := func(object, name, icon, template, unit string) Entity {
		e := base(DomainSensor, object, name, icon)
		e.Config.StateTopic = t.Status(DomainSensor, object)
		e.Config.ValueTemplate = template
		e.Config.UnitOfMeasurement = unit
		return e
	}

	var out []Entity

	if caps.Has(hardware.CapElevation) {
		out = append(out,
			button(objShutdown, "Shutdown", "mdi:power"),
			button(objReboot, "Reboot", "mdi:restart"),
		)
	}
	out = append(out, button(objRefresh, "Refresh", "mdi:web-refresh"))

	kiosk := base(DomainSelect, objKiosk, "Kiosk", "mdi:overscan")
	kiosk.Config.CommandTopic = t.Set(DomainSelect, objKiosk)
	kiosk.Config.StateTopic = t.Status(DomainSelect, objKiosk)
	kiosk.Config.ValueTemplate = "{{ value }}"
	kiosk.Config.Options = window.Strings()
	out = append(out, kiosk)

	// The light needs readable power; brightness alone is only logged.
	if caps.Has(hardware.CapDisplayStatus) {
		display := base(DomainLight, objDisplay, "Display", "mdi:monitor-shimmer")
		display.Config.CommandTopic = t.Set(DomainLight, objDisplay)
		display.Config.StateTopic = t.Status(DomainLight, objDisplay)
		if caps.Has(hardware.CapDisplayBrightness) {
			display.Config.BrightnessCommandTopic = t.BrightnessSet()
			display.Config.BrightnessStateTopic = t.BrightnessStatus()
			display.Config.BrightnessScale = 100
		}
		out = append(out, display)
	}

	if caps.Has(hardware.CapKeyboardVisibility) {
		kb := base(DomainSwitch, objKeyboard, "Keyboard", "mdi:keyboard-close-outline")
		kb.Config.CommandTopic = t.Set(DomainSwitch, objKeyboard)
		kb.Config.StateTopic = t.Status(DomainSwitch, objKeyboard)
		kb.Config.ValueTemplate = "{{ value }}"
		out = append(out, kb)
	}

	out = append(out,
		sensor(objModel, "Model", "mdi:raspberry-pi", "{{ value }}", ""),
		sensor(objSerialNumber, "Serial Number", "mdi:hexadecimal", "{{ value }}", ""),
		sensor(objHostName, "Host Name", "mdi:console-network", "{{ value }}", ""),
		sensor(objUpTime, "Up Time", "mdi:timeline-clock", "{{ (value | float) | round(0) }}", "min"),
		sensor(objMemorySize, "Memory Size", "mdi:memory", "{{ (value | float) | round(2) }}", "GiB"),
		sensor(objMemoryUsage, "Memory Usage", "mdi:memory-arrow-down", "{{ (value | float) | round(0) }}", "%"),
		sensor(objProcessorUsage, "Processor Usage", "mdi:cpu-64-bit", "{{ (value | float) | round(0) }}", "%"),
	)
	if caps.Has(hardware.CapProcessorTemperature) {
		out = append(out, sensor(objProcessorTemperature, "Processor Temperature", "mdi:radiator", "{{ (value | float) | round(0) }}", "°C"))
	}
	if caps.Has(hardware.CapPackageUpgrades) {
		pkg := sensor(objPackageUpgrades, "Package Upgrades", "mdi:package-down", "{{ value | int }}", "")
		pkg.Config.JSONAttributesTopic = t.Attributes(objPackageUpgrades)
		out = append(out, pkg)
	}
	out = append(out,
		sensor(objHeartbeat, "Heartbeat", "mdi:heart-flash", "{{ value }}", ""),
		sensor(objLastActive, "Last Active", "mdi:gesture-tap-hold", "{{ (value | float) | round(0) }}", "min"),
	)
	return out
}
