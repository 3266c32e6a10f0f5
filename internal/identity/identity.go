// Package identity derives the stable device identity that namespaces
// every MQTT topic and fills the Home Assistant device block.
package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NodePrefix is the namespace tag prepended to every node id.
const NodePrefix = "rpi_"

// suffixLen is how many trailing serial characters form the node id.
const suffixLen = 6

// Identity is the immutable identity of one kiosk device.
type Identity struct {
	NodeID          string
	DisplayName     string
	Model           string
	Vendor          string
	SerialNumber    string
	HostName        string
	SoftwareVersion string
}

// Facts are the hardware inputs an [Identity] is built from.
type Facts struct {
	Model           string
	Vendor          string
	SerialNumber    string
	HostName        string
	SoftwareVersion string
}

// Build derives an Identity from hardware facts. It is a pure function:
// the same facts always produce the same node id and display name.
func Build(f Facts) Identity {
	return Identity{
		NodeID:          NodeID(f.SerialNumber),
		DisplayName:     DisplayName(f.HostName),
		Model:           f.Model,
		Vendor:          f.Vendor,
		SerialNumber:    f.SerialNumber,
		HostName:        f.HostName,
		SoftwareVersion: f.SoftwareVersion,
	}
}

// NodeID returns NodePrefix followed by the last six characters of
// serial, uppercased, with anything outside [A-Z0-9] removed.
func NodeID(serial string) string {
	runes := []rune(serial)
	if len(runes) > suffixLen {
		runes = runes[len(runes)-suffixLen:]
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(string(runes)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return NodePrefix + b.String()
}

// DisplayName uppercases the first letter of hostname.
func DisplayName(hostname string) string {
	r, size := utf8.DecodeRuneInString(hostname)
	if r == utf8.RuneError {
		return hostname
	}
	return string(unicode.ToUpper(r)) + hostname[size:]
}

// UniqueID returns the entity unique id for objectID on this node.
func (id Identity) UniqueID(objectID string) string {
	return id.NodeID + "_" + objectID
}
