package openwb

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Config is the per-device-instance configuration record
type Config struct {
	Root         string
	Version      Version
	Type         DeviceType // v2 only
	ID           int        // v2 only, ignored for the controller
	ChargePoints int        // legacy only
}

// Validate applies defaults and checks the record the way the setup wizard does
func (c *Config) Validate() error {
	c.Root = strings.TrimSuffix(strings.TrimSpace(c.Root), "/")
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.Version == "" {
		c.Version = VersionV2
	}

	switch c.Version {
	case VersionV2:
		t, err := ParseDeviceType(string(c.Type))
		if err != nil {
			return err
		}
		c.Type = t
		if c.Type != Controller && c.ID < 0 {
			return fmt.Errorf("%w: %s id must not be negative, got %d", ErrInvalidConfig, c.Type, c.ID)
		}
	case VersionLegacy:
		if c.ChargePoints <= 0 {
			return fmt.Errorf("%w: chargepoints must be positive, got %d", ErrInvalidConfig, c.ChargePoints)
		}
	default:
		return fmt.Errorf("%w: unknown version %q", ErrInvalidConfig, c.Version)
	}
	return nil
}

// Title is the unique name of the instance: <root>-controller,
// <root>-<type>-<id>, or <root> for a legacy installation
func (c *Config) Title() string {
	switch {
	case c.Version == VersionLegacy:
		return c.Root
	case c.Type == Controller:
		return c.Root + "-" + string(Controller)
	default:
		return c.Root + "-" + string(c.Type) + "-" + strconv.Itoa(c.ID)
	}
}

// kindName is used in "already configured" errors
func (c *Config) kindName() string {
	switch {
	case c.Version == VersionLegacy:
		return "installation"
	case c.Type == Battery:
		return "battery"
	default:
		return string(c.Type)
	}
}

// Instance is the immutable set of entities built for one configuration record
type Instance struct {
	config   Config
	title    string
	devices  []Device
	entities []*Entity
}

// Config returns a copy of the configuration record
func (i *Instance) Config() Config {
	return i.config
}

// Title returns the unique instance title
func (i *Instance) Title() string {
	return i.title
}

// Root returns the MQTT root topic
func (i *Instance) Root() string {
	return i.config.Root
}

// Devices returns the devices created for the instance
func (i *Instance) Devices() []Device {
	return append([]Device(nil), i.devices...)
}

// Entities returns the bound entities in table order
func (i *Instance) Entities() []*Entity {
	return i.entities
}

// Topics returns the sorted, deduplicated read topics
func (i *Instance) Topics() []string {
	seen := make(map[string]bool)
	var topics []string
	for _, e := range i.entities {
		if !seen[e.StateTopic] {
			seen[e.StateTopic] = true
			topics = append(topics, e.StateTopic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Build validates cfg and binds the registry templates to it
func Build(reg *Registry, cfg Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inst := &Instance{config: cfg, title: cfg.Title()}

	if cfg.Version == VersionLegacy {
		dev := Device{
			ID:           deviceID(inst.title),
			Name:         cfg.Root,
			Manufacturer: Manufacturer,
			Model:        Model,
		}
		inst.devices = append(inst.devices, dev)
		inst.bind(reg, LegacyGlobal, 0, dev, "", "")
		for n := 1; n <= cfg.ChargePoints; n++ {
			inst.bind(reg, LegacyChargePoint, n, dev,
				fmt.Sprintf("-CP%d", n), fmt.Sprintf(" (LP%d)", n))
		}
	} else {
		dev := Device{
			ID:           deviceID(inst.title),
			Name:         deviceName(cfg.Type, cfg.ID),
			Manufacturer: Manufacturer,
			Model:        Model,
		}
		inst.devices = append(inst.devices, dev)
		inst.bind(reg, cfg.Type, cfg.ID, dev, "", "")
	}
	return inst, nil
}

// BuildAll builds every record, rejecting a second record with the same title
func BuildAll(reg *Registry, cfgs []Config) ([]*Instance, error) {
	titles := make(map[string]bool, len(cfgs))
	instances := make([]*Instance, 0, len(cfgs))
	for _, cfg := range cfgs {
		inst, err := Build(reg, cfg)
		if err != nil {
			return nil, err
		}
		if titles[inst.title] {
			return nil, fmt.Errorf("%w: %s %s", ErrAlreadyConfigured, inst.config.kindName(), inst.title)
		}
		titles[inst.title] = true
		instances = append(instances, inst)
	}
	return instances, nil
}

func (i *Instance) bind(reg *Registry, t DeviceType, id int, dev Device, idSuffix, nameSuffix string) {
	descs := reg.Descriptions(i.config.Version, t)
	bound := make([]*Entity, 0, len(descs))
	byName := make(map[string]*Entity, len(descs))

	for n := range descs {
		d := &descs[n]
		uid := Slugify(i.title + idSuffix + "-" + d.Name)
		e := &Entity{
			ID:           string(d.Component) + "." + uid,
			UniqueID:     uid,
			Name:         d.Name + nameSuffix,
			DeviceID:     dev.ID,
			StateTopic:   StateTopic(d, i.config.Version, t, i.config.Root, id),
			CommandTopic: CommandTopic(d, i.config.Root, id),
			Description:  d,
		}
		bound = append(bound, e)
		if d.Component == Sensor {
			byName[d.Name] = e
		}
	}

	// Placeholders point at sensors of the same device
	for _, e := range bound {
		if len(e.Description.Placeholders) == 0 {
			continue
		}
		e.Placeholders = make(map[string]string, len(e.Description.Placeholders))
		for ph, name := range e.Description.Placeholders {
			if ref, ok := byName[name]; ok {
				e.Placeholders[ph] = ref.ID
			}
		}
	}
	i.entities = append(i.entities, bound...)
}

var deviceIDRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func deviceID(title string) string {
	return "openwb_" + deviceIDRe.ReplaceAllString(title, "_")
}

func deviceName(t DeviceType, id int) string {
	switch t {
	case Controller:
		return Manufacturer
	case ChargePoint:
		return fmt.Sprintf("Chargepoint %d", id)
	case Counter:
		return fmt.Sprintf("Counter %d", id)
	case Battery:
		return fmt.Sprintf("Battery %d", id)
	case PV:
		return fmt.Sprintf("PV %d", id)
	}
	return string(t)
}
