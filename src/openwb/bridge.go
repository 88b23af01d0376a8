package openwb

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"
)

// Bridge binds configured instances to an entity sink. It is not safe for
// concurrent use: one goroutine owns it and feeds it messages and commands.
type Bridge struct {
	logger    *zap.Logger
	sink      EntitySink
	publisher Publisher

	instances []*Instance
	order     []*Entity
	entities  map[string]*Entity
	byTopic   map[string][]*Entity

	states   map[string]string // absent means unknown
	icons    map[string]string
	devices  map[string]Device
	versions map[string]Version // by device ID
}

// NewBridge indexes the entities of every instance
func NewBridge(logger *zap.Logger, sink EntitySink, publisher Publisher, instances ...*Instance) *Bridge {
	b := &Bridge{
		logger:    logger,
		sink:      sink,
		publisher: publisher,
		instances: instances,
		entities:  make(map[string]*Entity),
		byTopic:   make(map[string][]*Entity),
		states:    make(map[string]string),
		icons:     make(map[string]string),
		devices:   make(map[string]Device),
		versions:  make(map[string]Version),
	}
	for _, inst := range instances {
		for _, dev := range inst.Devices() {
			b.devices[dev.ID] = dev
			b.versions[dev.ID] = inst.Config().Version
		}
		for _, e := range inst.Entities() {
			b.order = append(b.order, e)
			b.entities[e.ID] = e
			b.byTopic[e.StateTopic] = append(b.byTopic[e.StateTopic], e)
		}
	}
	return b
}

// Entity returns the entity with the given ID
func (b *Bridge) Entity(id string) (*Entity, bool) {
	e, ok := b.entities[id]
	return e, ok
}

// Entities returns every entity in configuration order
func (b *Bridge) Entities() []*Entity {
	return b.order
}

// Topics returns the sorted read topics of all instances
func (b *Bridge) Topics() []string {
	var topics []string
	for _, inst := range b.instances {
		topics = append(topics, inst.Topics()...)
	}
	sort.Strings(topics)
	return slices.Compact(topics)
}

// Register announces every entity to the sink
func (b *Bridge) Register() error {
	var errs []error
	for _, e := range b.order {
		if err := b.sink.Register(b.metadata(e)); err != nil {
			errs = append(errs, fmt.Errorf("failed to register %s: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh registers every entity again and resends the known states, for a
// host that lost its entity registry
func (b *Bridge) Refresh() error {
	if err := b.Register(); err != nil {
		return err
	}
	for _, e := range b.order {
		v, ok := b.states[e.ID]
		if !ok {
			continue
		}
		if err := b.sink.Update(e.ID, v); err != nil {
			return fmt.Errorf("failed to resend %s: %w", e.ID, err)
		}
	}
	return nil
}

func (b *Bridge) metadata(e *Entity) Metadata {
	icon := e.Description.Icon
	if i, ok := b.icons[e.ID]; ok {
		icon = i
	}
	return Metadata{Entity: e, Device: b.devices[e.DeviceID], Icon: icon}
}

// HandleMessage resolves a payload for every entity reading topic and returns
// how many entity states were written. Payloads that fail to convert leave the
// entity at its previous value.
func (b *Bridge) HandleMessage(topic, payload string) int {
	entities := b.byTopic[topic]
	if len(entities) == 0 {
		return 0
	}
	if payload == "" {
		// Cleared retained message
		return 0
	}

	updated := 0
	for _, e := range entities {
		value, err := Resolve(e.Description, payload)
		switch {
		case errors.Is(err, ErrNoValue):
			value = Unknown
		case err != nil:
			b.logger.Debug("Keeping previous value",
				zap.String("entity", e.ID),
				zap.String("payload", payload),
				zap.Error(err))
			continue
		}
		b.setState(e, value)
		updated++
	}
	return updated
}

func (b *Bridge) setState(e *Entity, value string) {
	if value == Unknown {
		delete(b.states, e.ID)
	} else {
		b.states[e.ID] = value
	}

	if fn := e.Description.IconFn; fn != nil && value != Unknown {
		if icon := fn(value); icon != b.metadata(e).Icon {
			b.icons[e.ID] = icon
			if err := b.sink.Register(b.metadata(e)); err != nil {
				b.logger.Warn("Failed to update icon", zap.String("entity", e.ID), zap.Error(err))
			}
		}
	}

	if e.Description.DeviceAttr != DeviceAttrNone && value != Unknown {
		b.updateDevice(e, value)
	}

	if err := b.sink.Update(e.ID, value); err != nil {
		b.logger.Warn("Failed to update entity", zap.String("entity", e.ID), zap.Error(err))
	}
}

func (b *Bridge) updateDevice(e *Entity, value string) {
	dev, ok := b.devices[e.DeviceID]
	if !ok {
		return
	}
	prev := dev
	switch e.Description.DeviceAttr {
	case DeviceAttrConfigurationURL:
		dev.ConfigurationURL = ConfigurationURL(b.versions[dev.ID], value)
	case DeviceAttrSWVersion:
		dev.SWVersion = value
	case DeviceAttrName:
		dev.Name = value
	}
	if dev == prev {
		return
	}
	b.devices[dev.ID] = dev
	b.logger.Info("Device updated",
		zap.String("device", dev.ID),
		zap.String("name", dev.Name),
		zap.String("sw_version", dev.SWVersion),
		zap.String("configuration_url", dev.ConfigurationURL))

	if du, ok := b.sink.(DeviceUpdater); ok {
		if err := du.UpdateDevice(dev); err != nil {
			b.logger.Warn("Failed to update device", zap.String("device", dev.ID), zap.Error(err))
		}
	}
}

// State returns the last value of an entity; false while unknown
func (b *Bridge) State(id string) (string, bool) {
	v, ok := b.states[id]
	return v, ok
}

// Device returns the current attributes of a device
func (b *Bridge) Device(id string) (Device, bool) {
	d, ok := b.devices[id]
	return d, ok
}

// EntityState is one row of a Snapshot
type EntityState struct {
	ID         string
	Name       string
	Device     string
	Component  Component
	StateTopic string
	Value      string
	Known      bool
}

// Snapshot is a copy of every entity state, safe to hand to other goroutines
type Snapshot struct {
	Entities []EntityState
}

// Lookup finds an entity state by ID
func (s Snapshot) Lookup(id string) (EntityState, bool) {
	for _, es := range s.Entities {
		if es.ID == id {
			return es, true
		}
	}
	return EntityState{}, false
}

// Snapshot copies the current state of every entity
func (b *Bridge) Snapshot() Snapshot {
	out := make([]EntityState, 0, len(b.order))
	for _, e := range b.order {
		v, ok := b.states[e.ID]
		out = append(out, EntityState{
			ID:         e.ID,
			Name:       e.Name,
			Device:     b.devices[e.DeviceID].Name,
			Component:  e.Component(),
			StateTopic: e.StateTopic,
			Value:      v,
			Known:      ok,
		})
	}
	return Snapshot{Entities: out}
}
