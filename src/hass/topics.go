package hass

import (
	"strings"

	"github.com/a529987659852/openwbmqtt/src/openwb"
)

// Topics configures MQTT topic generation.
type Topics struct {
	DiscoveryPrefix string
	Prefix          string
}

// Config topic for an entity's discovery message.
func (t Topics) Config(c openwb.Component, uid string) string {
	// Format: <discovery_prefix>/<component>/<object_id>/config
	return mkTopic(t.DiscoveryPrefix, string(c), uid, "config")
}

// State topic Home Assistant reads an entity's value from.
func (t Topics) State(c openwb.Component, uid string) string {
	return mkTopic(t.Prefix, string(c), uid, "state")
}

// Command topic Home Assistant writes to for writable entities.
func (t Topics) Command(c openwb.Component, uid string) string {
	return mkTopic(t.Prefix, string(c), uid, "set")
}

// Availability topic, also used for the MQTT will.
func (t Topics) Availability() string {
	return mkTopic(t.Prefix, "status")
}

// Service topic for a legacy service call.
func (t Topics) Service(name string) string {
	return mkTopic(t.Prefix, "service", name)
}

// ServiceFilter matches every service topic.
func (t Topics) ServiceFilter() string {
	return t.Service("+")
}

// ServiceName extracts the service name from a service topic.
func (t Topics) ServiceName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, mkTopic(t.Prefix, "service")+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func mkTopic(parts ...string) string {
	return strings.Join(parts, "/")
}
