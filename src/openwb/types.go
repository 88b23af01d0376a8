package openwb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Version selects the openWB topic layout generation
type Version string

const (
	// VersionV2 is the openWB 2.x layout (<root>/<devicetype>/<id>/get/<metric>)
	VersionV2 Version = "v2"
	// VersionLegacy is the openWB 1.9 layout (<root>/lp/<n>/<metric>, <root>/global/...)
	VersionLegacy Version = "legacy"
)

// DeviceType identifies which description table applies to a device
type DeviceType string

const (
	Controller  DeviceType = "controller"
	Counter     DeviceType = "counter"
	ChargePoint DeviceType = "chargepoint"
	PV          DeviceType = "pv"
	Battery     DeviceType = "bat"

	// Legacy tables are split into installation-wide and per charge point metrics
	LegacyGlobal      DeviceType = "global"
	LegacyChargePoint DeviceType = "lp"
)

// Component is the Home Assistant platform an entity belongs to
type Component string

const (
	Sensor       Component = "sensor"
	BinarySensor Component = "binary_sensor"
	Select       Component = "select"
	Number       Component = "number"
	Switch       Component = "switch"
)

// Entity categories
const (
	CategoryDiagnostic = "diagnostic"
	CategoryConfig     = "config"
)

// Manufacturer and model reported for every device
const (
	Manufacturer = "openWB"
	Model        = "openWB"
)

// DefaultRoot is the MQTT root topic used when none is configured
const DefaultRoot = "openWB"

// Unknown is the state value reported when an entity has no usable value
const Unknown = ""

var (
	ErrInvalidConfig      = errors.New("invalid device configuration")
	ErrAlreadyConfigured  = errors.New("already configured")
	ErrUnknownEntity      = errors.New("unknown entity")
	ErrNotCommandable     = errors.New("entity does not accept commands")
	ErrUnknownOption      = errors.New("unknown option")
	ErrOutOfRange         = errors.New("value out of range")
	ErrMissingPlaceholder = errors.New("placeholder value not available")
	ErrUnknownService     = errors.New("unknown service")

	// ErrNoValue is returned by a transform when the payload carries no value;
	// the entity state becomes unknown instead of keeping the previous value.
	ErrNoValue = errors.New("no value")
)

// ParseVersion parses a configured version string, empty means v2
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v2", "2", "2.x":
		return VersionV2, nil
	case "legacy", "1.9", "v1":
		return VersionLegacy, nil
	}
	return "", fmt.Errorf("%w: unknown version %q", ErrInvalidConfig, s)
}

// ParseDeviceType parses a v2 device type as offered by the setup wizard
func ParseDeviceType(s string) (DeviceType, error) {
	switch t := DeviceType(strings.ToLower(strings.TrimSpace(s))); t {
	case Controller, Counter, ChargePoint, PV, Battery:
		return t, nil
	case "battery":
		return Battery, nil
	}
	return "", fmt.Errorf("%w: unknown device type %q", ErrInvalidConfig, s)
}

// Transform converts a raw payload into the entity state
type Transform func(raw string) (string, error)

// DeviceAttr names a device registry attribute fed by a sensor value
type DeviceAttr int

const (
	DeviceAttrNone DeviceAttr = iota
	DeviceAttrConfigurationURL
	DeviceAttrSWVersion
	DeviceAttrName
)

// Description is one row of a declarative entity table. Descriptions are
// templates: they never change after the registry is built.
type Description struct {
	Key       string // topic suffix below the device path
	Name      string
	Component Component

	DeviceClass    string
	StateClass     string
	Unit           string
	Icon           string
	EntityCategory string
	Disabled       bool // not enabled by default
	Precision      *int // suggested display precision

	Transform Transform
	ValueMap  *ValueMap

	// StateTopic overrides <device path>/<Key>. Relative to the root, {id} is
	// replaced with the device id.
	StateTopic string

	// CommandTopic is relative to the root. {id} is replaced at build time,
	// any other {name} placeholder is looked up in Placeholders at command time.
	CommandTopic string
	CommandMap   CommandMap
	Options      []string
	Placeholders map[string]string // placeholder -> Name of a sibling entity

	Min, Max, Step float64

	IconFn     func(value string) string
	DeviceAttr DeviceAttr
}

// Writable reports whether the description accepts commands
func (d *Description) Writable() bool {
	return d.CommandTopic != ""
}

// Device is the Home Assistant device an entity is attached to
type Device struct {
	ID               string
	Name             string
	Manufacturer     string
	Model            string
	SWVersion        string
	ConfigurationURL string
}

// Entity is a description bound to one configured device instance
type Entity struct {
	ID           string // <component>.<unique id>
	UniqueID     string
	Name         string
	DeviceID     string
	StateTopic   string
	CommandTopic string
	Placeholders map[string]string // placeholder -> entity ID
	Description  *Description
}

// Component returns the entity's platform
func (e *Entity) Component() Component {
	return e.Description.Component
}

// Metadata is what an entity sink needs to expose an entity
type Metadata struct {
	Entity *Entity
	Device Device
	Icon   string
}

var slugUmlauts = strings.NewReplacer("ä", "a", "ö", "o", "ü", "u", "Ä", "a", "Ö", "o", "Ü", "u", "ß", "ss")

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and collapses everything but letters and digits into
// single underscores
func Slugify(s string) string {
	s = strings.ToLower(slugUmlauts.Replace(s))
	return strings.Trim(slugRe.ReplaceAllString(s, "_"), "_")
}

func intPtr(n int) *int {
	return &n
}
