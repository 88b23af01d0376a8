package openwb

// EntitySink exposes entities to the host. Register may be called again for
// an entity whose metadata changed (device rename, dynamic icon). An Update
// value of Unknown means the entity has no usable state.
type EntitySink interface {
	Register(meta Metadata) error
	Update(entityID, value string) error
}

// DeviceUpdater is implemented by sinks that can refresh device attributes
type DeviceUpdater interface {
	UpdateDevice(dev Device) error
}

// Publisher sends one MQTT message. Commands are fire-and-forget.
type Publisher interface {
	Publish(topic string, qos byte, retain bool, payload []byte)
}
