package hass

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/a529987659852/openwbmqtt/src/openwb"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	// PayloadNone makes Home Assistant show the entity as unknown
	PayloadNone = "None"
)

// MQTT QoS Values.
const (
	qosAtMostOnce  = 0x00
	qosAtLeastOnce = 0x01
)

// Sink exposes bridge entities through MQTT discovery. It is owned by the
// bridge worker and is not safe for concurrent use.
type Sink struct {
	logger    *zap.Logger
	publisher openwb.Publisher
	topics    Topics

	order     []string
	metas     map[string]openwb.Metadata
	byCommand map[string]string
}

// NewSink creates a discovery sink publishing through publisher
func NewSink(logger *zap.Logger, publisher openwb.Publisher, topics Topics) *Sink {
	return &Sink{
		logger:    logger,
		publisher: publisher,
		topics:    topics,
		metas:     make(map[string]openwb.Metadata),
		byCommand: make(map[string]string),
	}
}

// WithPublisher returns a sink that shares the topic configuration but
// publishes through p. Registered entities are not carried over.
func (s *Sink) WithPublisher(p openwb.Publisher) *Sink {
	return NewSink(s.logger, p, s.topics)
}

// Topics returns the topic configuration
func (s *Sink) Topics() Topics {
	return s.topics
}

// Register publishes the retained discovery message for an entity
func (s *Sink) Register(meta openwb.Metadata) error {
	e := meta.Entity
	payload, err := json.Marshal(s.entityConfig(meta))
	if err != nil {
		return fmt.Errorf("failed to encode discovery for %s: %w", e.ID, err)
	}

	if _, ok := s.metas[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.metas[e.ID] = meta
	if e.Description.Writable() {
		s.byCommand[s.topics.Command(e.Component(), e.UniqueID)] = e.ID
	}

	s.publisher.Publish(s.topics.Config(e.Component(), e.UniqueID), qosAtLeastOnce, true, payload)
	return nil
}

func (s *Sink) entityConfig(meta openwb.Metadata) EntityConfig {
	e := meta.Entity
	d := e.Description

	cfg := EntityConfig{
		Name:                e.Name,
		UniqueID:            e.UniqueID,
		ObjectID:            e.UniqueID,
		StateTopic:          s.topics.State(e.Component(), e.UniqueID),
		AvailabilityTopic:   s.topics.Availability(),
		PayloadAvailable:    StatusOnline,
		PayloadNotAvailable: StatusOffline,
		DeviceClass:         d.DeviceClass,
		StateClass:          d.StateClass,
		UnitOfMeasurement:   d.Unit,
		Icon:                meta.Icon,
		EntityCategory:      d.EntityCategory,
		DisplayPrecision:    d.Precision,
		QOS:                 qosAtLeastOnce,
		Device: Device{
			Identifiers:      []string{meta.Device.ID},
			Name:             meta.Device.Name,
			Manufacturer:     meta.Device.Manufacturer,
			Model:            meta.Device.Model,
			SWVersion:        meta.Device.SWVersion,
			ConfigurationURL: meta.Device.ConfigurationURL,
		},
	}
	if d.Disabled {
		enabled := false
		cfg.EnabledByDefault = &enabled
	}
	if d.Writable() {
		cfg.CommandTopic = s.topics.Command(e.Component(), e.UniqueID)
	}

	switch e.Component() {
	case openwb.BinarySensor:
		cfg.PayloadOn = openwb.StateOn
		cfg.PayloadOff = openwb.StateOff
	case openwb.Switch:
		cfg.PayloadOn = openwb.StateOn
		cfg.PayloadOff = openwb.StateOff
		cfg.StateOn = openwb.StateOn
		cfg.StateOff = openwb.StateOff
	case openwb.Select:
		cfg.Options = d.Options
	case openwb.Number:
		lo, hi, step := d.Min, d.Max, d.Step
		cfg.Min, cfg.Max, cfg.Step = &lo, &hi, &step
		cfg.Mode = "box"
	}
	return cfg
}

// Update publishes an entity state, retained so Home Assistant picks it up
// after a restart
func (s *Sink) Update(entityID, value string) error {
	meta, ok := s.metas[entityID]
	if !ok {
		return fmt.Errorf("%w: %s", openwb.ErrUnknownEntity, entityID)
	}
	if value == openwb.Unknown {
		value = PayloadNone
	}
	e := meta.Entity
	s.publisher.Publish(s.topics.State(e.Component(), e.UniqueID), qosAtMostOnce, true, []byte(value))
	return nil
}

// UpdateDevice republishes discovery for every entity of dev
func (s *Sink) UpdateDevice(dev openwb.Device) error {
	for _, id := range s.order {
		meta := s.metas[id]
		if meta.Device.ID != dev.ID {
			continue
		}
		meta.Device = dev
		if err := s.Register(meta); err != nil {
			return err
		}
	}
	s.logger.Debug("Republished device discovery", zap.String("device", dev.ID))
	return nil
}

// CommandTopics returns the sorted command topics of registered writable entities
func (s *Sink) CommandTopics() []string {
	topics := make([]string, 0, len(s.byCommand))
	for t := range s.byCommand {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// EntityForCommand maps a command topic back to its entity
func (s *Sink) EntityForCommand(topic string) (string, bool) {
	id, ok := s.byCommand[topic]
	return id, ok
}

// Online publishes the retained online status
func (s *Sink) Online() {
	s.publisher.Publish(s.topics.Availability(), qosAtLeastOnce, true, []byte(StatusOnline))
}

// Offline publishes the retained offline status, matching the will
func (s *Sink) Offline() {
	s.publisher.Publish(s.topics.Availability(), qosAtLeastOnce, true, []byte(StatusOffline))
}
