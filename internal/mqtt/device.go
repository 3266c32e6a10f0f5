package mqtt

import "github.com/nugget/kioskbridge/internal/identity"

// DeviceInfo holds the Home Assistant device registry fields shared
// across all MQTT discovery config payloads. Every entity published by
// this kiosk references the same device block so HA groups them under
// a single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SerialNumber string   `json:"serial_number,omitempty"`
	SWVersion    string   `json:"sw_version"`
}

// EntityConfig is the JSON payload for an HA MQTT discovery message.
// One struct covers every domain used here; fields that do not apply to
// a domain are left empty and omitted.
type EntityConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id,omitempty"`
	CommandTopic      string     `json:"command_topic,omitempty"`
	StateTopic        string     `json:"state_topic,omitempty"`
	AvailabilityTopic string     `json:"availability_topic"`
	ValueTemplate     string     `json:"value_template,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
	Device            DeviceInfo `json:"device"`

	// select
	Options []string `json:"options,omitempty"`

	// light
	BrightnessCommandTopic string `json:"brightness_command_topic,omitempty"`
	BrightnessStateTopic   string `json:"brightness_state_topic,omitempty"`
	BrightnessScale        int    `json:"brightness_scale,omitempty"`

	// sensor
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
}

// NewDeviceInfo builds the device block from the kiosk identity. The
// node id is the primary HA device identifier, so it must stay stable
// across restarts.
func NewDeviceInfo(id identity.Identity) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{id.NodeID},
		Name:         id.DisplayName,
		Manufacturer: id.Vendor,
		Model:        id.Model,
		SerialNumber: id.SerialNumber,
		SWVersion:    id.SoftwareVersion,
	}
}
