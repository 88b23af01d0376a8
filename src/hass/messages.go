package hass

// Documentation:
// https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery

// EntityConfig is the discovery payload shared by every component. Fields a
// component does not know are left empty and omitted.
type EntityConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	ObjectID            string `json:"object_id,omitempty"`
	StateTopic          string `json:"state_topic"`
	CommandTopic        string `json:"command_topic,omitempty"`
	AvailabilityTopic   string `json:"availability_topic,omitempty"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`

	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	Icon              string `json:"icon,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`
	EnabledByDefault  *bool  `json:"enabled_by_default,omitempty"`
	DisplayPrecision  *int   `json:"suggested_display_precision,omitempty"`

	// select
	Options []string `json:"options,omitempty"`

	// number
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	// binary_sensor and switch
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
	StateOn    string `json:"state_on,omitempty"`
	StateOff   string `json:"state_off,omitempty"`

	QOS    int    `json:"qos"`
	Device Device `json:"device"`
}

// Device ties entities into the Home Assistant device registry.
type Device struct {
	Identifiers      []string `json:"identifiers"`
	Name             string   `json:"name,omitempty"`
	Manufacturer     string   `json:"manufacturer,omitempty"`
	Model            string   `json:"model,omitempty"`
	SWVersion        string   `json:"sw_version,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}
