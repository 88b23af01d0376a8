package openwb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := DefaultRegistry()

	currents := reg.Lookup(VersionV2, ChargePoint, "get/currents")
	require.Len(t, currents, 3)
	assert.Equal(t, "Strom (L1)", currents[0].Name)
	assert.Equal(t, "Strom (L3)", currents[2].Name)

	vehicle := reg.Lookup(VersionV2, ChargePoint, "get/connected_vehicle/config")
	require.Len(t, vehicle, 3)
	assert.Equal(t, Select, vehicle[2].Component)

	assert.Empty(t, reg.Lookup(VersionV2, ChargePoint, "get/nonexistent"))
	assert.Empty(t, reg.Lookup(VersionLegacy, ChargePoint, "get/power"))
}

func TestRegistryTablesAreConsistent(t *testing.T) {
	reg := DefaultRegistry()
	for key, table := range reg.tables {
		seen := make(map[string]bool)
		for _, d := range table {
			id := string(d.Component) + "/" + d.Name
			assert.False(t, seen[id], "%v: duplicate %s", key, id)
			seen[id] = true
			assert.NotEmpty(t, d.Key, "%v: %s has no key", key, d.Name)

			switch d.Component {
			case Select:
				require.True(t, d.Writable(), "%v: %s", key, d.Name)
				for _, opt := range d.Options {
					_, ok := d.CommandMap.Payload(opt)
					assert.True(t, ok, "%v: %s option %q has no payload", key, d.Name, opt)
				}
			case Number:
				assert.True(t, d.Writable(), "%v: %s", key, d.Name)
				assert.Less(t, d.Min, d.Max, "%v: %s", key, d.Name)
				assert.Positive(t, d.Step, "%v: %s", key, d.Name)
			case Switch:
				_, on := d.CommandMap.Payload(StateOn)
				_, off := d.CommandMap.Payload(StateOff)
				assert.True(t, on && off, "%v: %s", key, d.Name)
			case Sensor, BinarySensor:
				assert.False(t, d.Writable(), "%v: %s", key, d.Name)
			}
		}
	}
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "openWB", DevicePath(VersionV2, Controller, "openWB", 0))
	assert.Equal(t, "openWB/chargepoint/3", DevicePath(VersionV2, ChargePoint, "openWB", 3))
	assert.Equal(t, "openWB/counter/0/get", DevicePath(VersionV2, Counter, "openWB", 0))
	assert.Equal(t, "garage/bat/2/get", DevicePath(VersionV2, Battery, "garage", 2))
	assert.Equal(t, "openWB/pv/1/get", DevicePath(VersionV2, PV, "openWB", 1))
	assert.Equal(t, "openWB", DevicePath(VersionLegacy, LegacyGlobal, "openWB", 0))
	assert.Equal(t, "openWB/lp/2", DevicePath(VersionLegacy, LegacyChargePoint, "openWB", 2))
}

func TestStateAndCommandTopic(t *testing.T) {
	reg := DefaultRegistry()

	limit := reg.Lookup(VersionLegacy, LegacyChargePoint, "chargeLimitation")
	require.Len(t, limit, 1)
	assert.Equal(t, "openWB/config/get/sofort/lp/2/chargeLimitation",
		StateTopic(&limit[0], VersionLegacy, LegacyChargePoint, "openWB", 2))
	assert.Equal(t, "openWB/config/set/sofort/lp/2/chargeLimitation",
		CommandTopic(&limit[0], "openWB", 2))

	power := reg.Lookup(VersionV2, PV, "power")
	require.Len(t, power, 1)
	assert.Equal(t, "openWB/pv/4/get/power", StateTopic(&power[0], VersionV2, PV, "openWB", 4))
	assert.Empty(t, CommandTopic(&power[0], "openWB", 4))
}

func TestConfigurationURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.7", ConfigurationURL(VersionV2, "10.0.0.7"))
	assert.Equal(t, "http://10.0.0.7/openWB/web/index.php", ConfigurationURL(VersionLegacy, "10.0.0.7"))
}

// Every bound entity reads <root>/<device path>/<key> unless its description
// carries its own topic
func TestEntityTopicComposition(t *testing.T) {
	type part struct {
		deviceType DeviceType
		id         int
	}
	tests := []struct {
		cfg   Config
		parts []part
	}{
		{Config{Type: Controller}, []part{{Controller, 0}}},
		{Config{Type: ChargePoint, ID: 0}, []part{{ChargePoint, 0}}},
		{Config{Root: "garage/openWB/", Type: ChargePoint, ID: 7}, []part{{ChargePoint, 7}}},
		{Config{Type: Counter, ID: 0}, []part{{Counter, 0}}},
		{Config{Type: Battery, ID: 1}, []part{{Battery, 1}}},
		{Config{Type: PV, ID: 2}, []part{{PV, 2}}},
		{Config{Root: "legacy", Version: VersionLegacy, ChargePoints: 3}, []part{
			{LegacyGlobal, 0}, {LegacyChargePoint, 1}, {LegacyChargePoint, 2}, {LegacyChargePoint, 3},
		}},
	}

	reg := DefaultRegistry()
	cfgs := make([]Config, 0, len(tests))
	for _, tt := range tests {
		cfgs = append(cfgs, tt.cfg)
	}
	insts, err := BuildAll(reg, cfgs)
	require.NoError(t, err)

	composed := 0
	for n, tt := range tests {
		inst := insts[n]
		v := inst.Config().Version
		entities := inst.Entities()
		for _, p := range tt.parts {
			descs := reg.Descriptions(v, p.deviceType)
			require.GreaterOrEqual(t, len(entities), len(descs), inst.Title())
			for k := range descs {
				e := entities[k]
				require.Same(t, &descs[k], e.Description, e.ID)
				if e.Description.StateTopic != "" {
					assert.Equal(t, inst.Root()+"/"+expandID(e.Description.StateTopic, p.id), e.StateTopic, e.ID)
					continue
				}
				assert.Equal(t, DevicePath(v, p.deviceType, inst.Root(), p.id)+"/"+e.Description.Key, e.StateTopic, e.ID)
				composed++
			}
			entities = entities[len(descs):]
		}
		assert.Empty(t, entities, inst.Title())
	}
	assert.Positive(t, composed)

	// Spot checks of the composed form
	topics := make(map[string]bool)
	for _, inst := range insts {
		for _, e := range inst.Entities() {
			topics[e.StateTopic] = true
		}
	}
	assert.True(t, topics["openWB/counter/0/get/power"])
	assert.True(t, topics["garage/openWB/chargepoint/7/get/power"])
	assert.True(t, topics["legacy/lp/3/W"])
}
