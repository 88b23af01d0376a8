package openwb

import (
	"strconv"
	"strings"
)

type registryKey struct {
	version    Version
	deviceType DeviceType
}

// Registry holds the entity tables of every supported version and device type
type Registry struct {
	tables map[registryKey][]Description
}

// DefaultRegistry returns the registry of the built-in openWB tables
func DefaultRegistry() *Registry {
	return &Registry{
		tables: map[registryKey][]Description{
			{VersionV2, Controller}:            v2Controller(),
			{VersionV2, ChargePoint}:           v2ChargePoint(),
			{VersionV2, Counter}:               v2Counter(),
			{VersionV2, Battery}:               v2Battery(),
			{VersionV2, PV}:                    v2PV(),
			{VersionLegacy, LegacyGlobal}:      legacyGlobal(),
			{VersionLegacy, LegacyChargePoint}: legacyChargePoint(),
		},
	}
}

// Descriptions returns the table for a version and device type
func (r *Registry) Descriptions(v Version, t DeviceType) []Description {
	return r.tables[registryKey{v, t}]
}

// Lookup returns every description bound to key. Several entities may read
// the same topic (one per phase, or one per JSON field).
func (r *Registry) Lookup(v Version, t DeviceType, key string) []Description {
	var out []Description
	for _, d := range r.tables[registryKey{v, t}] {
		if d.Key == key {
			out = append(out, d)
		}
	}
	return out
}

// DevicePath returns the topic prefix for a device below the root
func DevicePath(v Version, t DeviceType, root string, id int) string {
	switch {
	case v == VersionLegacy && t == LegacyChargePoint:
		return root + "/lp/" + strconv.Itoa(id)
	case t == Controller, t == LegacyGlobal:
		return root
	case t == ChargePoint:
		return root + "/chargepoint/" + strconv.Itoa(id)
	default:
		return root + "/" + string(t) + "/" + strconv.Itoa(id) + "/get"
	}
}

// ConfigurationURL returns the web interface address of a controller at host
func ConfigurationURL(v Version, host string) string {
	if v == VersionLegacy {
		return "http://" + host + "/openWB/web/index.php"
	}
	return "http://" + host
}

// expandID replaces the {id} placeholder of a relative topic template
func expandID(tmpl string, id int) string {
	return strings.ReplaceAll(tmpl, "{id}", strconv.Itoa(id))
}

// StateTopic composes the topic an entity reads from
func StateTopic(d *Description, v Version, t DeviceType, root string, id int) string {
	if d.StateTopic != "" {
		return root + "/" + expandID(d.StateTopic, id)
	}
	return DevicePath(v, t, root, id) + "/" + d.Key
}

// CommandTopic composes the topic an entity writes to, still carrying any
// runtime placeholders
func CommandTopic(d *Description, root string, id int) string {
	if d.CommandTopic == "" {
		return ""
	}
	return root + "/" + expandID(d.CommandTopic, id)
}
