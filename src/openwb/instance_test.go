package openwb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findEntity(t *testing.T, inst *Instance, id string) *Entity {
	t.Helper()
	for _, e := range inst.Entities() {
		if e.ID == id {
			return e
		}
	}
	require.FailNow(t, "entity not found", id)
	return nil
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := Config{Type: "chargepoint", ID: 3}
		require.NoError(t, c.Validate())
		assert.Equal(t, "openWB", c.Root)
		assert.Equal(t, VersionV2, c.Version)
		assert.Equal(t, "openWB-chargepoint-3", c.Title())
	})

	t.Run("controller ignores id", func(t *testing.T) {
		c := Config{Root: "openWB/", Type: Controller}
		require.NoError(t, c.Validate())
		assert.Equal(t, "openWB-controller", c.Title())
	})

	t.Run("battery alias", func(t *testing.T) {
		c := Config{Type: "battery", ID: 1}
		require.NoError(t, c.Validate())
		assert.Equal(t, Battery, c.Type)
		assert.Equal(t, "openWB-bat-1", c.Title())
	})

	t.Run("device id zero", func(t *testing.T) {
		c := Config{Type: Counter, ID: 0}
		require.NoError(t, c.Validate())
		assert.Equal(t, "openWB-counter-0", c.Title())
	})

	t.Run("legacy title is the root", func(t *testing.T) {
		c := Config{Root: "wallbox", Version: VersionLegacy, ChargePoints: 2}
		require.NoError(t, c.Validate())
		assert.Equal(t, "wallbox", c.Title())
	})

	invalid := []Config{
		{Type: Counter, ID: -1},
		{Type: "inverter", ID: 1},
		{Version: VersionLegacy},
		{Version: "v3", Type: Counter, ID: 1},
	}
	for _, c := range invalid {
		assert.ErrorIs(t, c.Validate(), ErrInvalidConfig, "%+v", c)
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, VersionV2, v)

	v, err = ParseVersion("1.9")
	require.NoError(t, err)
	assert.Equal(t, VersionLegacy, v)

	_, err = ParseVersion("3")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "openwb_chargepoint_3_strom_l1", Slugify("openWB-chargepoint-3-Strom (L1)"))
	assert.Equal(t, "openwb_pv_1_zahlerstand_heute", Slugify("openWB-pv-1-Zählerstand (Heute)"))
	assert.Equal(t, "openwb_cp1_soc", Slugify("openWB-CP1-SoC"))
}

func TestBuildV2ChargePoint(t *testing.T) {
	inst, err := Build(DefaultRegistry(), Config{Type: ChargePoint, ID: 3})
	require.NoError(t, err)

	require.Len(t, inst.Devices(), 1)
	dev := inst.Devices()[0]
	assert.Equal(t, "Chargepoint 3", dev.Name)
	assert.Equal(t, "openwb_openWB-chargepoint-3", dev.ID)

	power := findEntity(t, inst, "sensor.openwb_chargepoint_3_ladeleistung")
	assert.Equal(t, "openWB/chargepoint/3/get/power", power.StateTopic)
	assert.Equal(t, dev.ID, power.DeviceID)

	sel := findEntity(t, inst, "select.openwb_chargepoint_3_lademodus")
	assert.Equal(t, "openWB/chargepoint/3/get/connected_vehicle/config", sel.StateTopic)
	assert.Equal(t, "openWB/set/vehicle/template/charge_template/{charge_template}/chargemode/selected", sel.CommandTopic)
	assert.Equal(t, map[string]string{"charge_template": "sensor.openwb_chargepoint_3_lade_profil"}, sel.Placeholders)

	assert.Len(t, inst.Entities(), len(DefaultRegistry().Descriptions(VersionV2, ChargePoint)))
	assert.Contains(t, inst.Topics(), "openWB/chargepoint/3/config")
}

func TestBuildV2Controller(t *testing.T) {
	inst, err := Build(DefaultRegistry(), Config{Type: Controller})
	require.NoError(t, err)
	assert.Equal(t, "openWB", inst.Devices()[0].Name)

	ip := findEntity(t, inst, "sensor.openwb_controller_ip_adresse")
	assert.Equal(t, "openWB/system/ip_address", ip.StateTopic)

	// One topic feeds all live value projections
	assert.Equal(t, []string{
		"openWB/system/ip_address",
		"openWB/system/lastlivevaluesJson",
		"openWB/system/version",
	}, inst.Topics())
}

func TestBuildLegacy(t *testing.T) {
	inst, err := Build(DefaultRegistry(), Config{Version: VersionLegacy, ChargePoints: 2})
	require.NoError(t, err)

	require.Len(t, inst.Devices(), 1)
	assert.Equal(t, "openWB", inst.Devices()[0].Name)

	reg := DefaultRegistry()
	want := len(reg.Descriptions(VersionLegacy, LegacyGlobal)) + 2*len(reg.Descriptions(VersionLegacy, LegacyChargePoint))
	assert.Len(t, inst.Entities(), want)

	w := findEntity(t, inst, "sensor.openwb_cp1_ladeleistung")
	assert.Equal(t, "Ladeleistung (LP1)", w.Name)
	assert.Equal(t, "openWB/lp/1/W", w.StateTopic)

	mode := findEntity(t, inst, "select.openwb_lademodus")
	assert.Equal(t, "openWB/global/ChargeMode", mode.StateTopic)
	assert.Equal(t, "openWB/set/ChargeMode", mode.CommandTopic)

	minPV := findEntity(t, inst, "number.openwb_mindestladestrom_modus_min_pv_laden")
	assert.Equal(t, "openWB/config/get/pv/minCurrentMinPv", minPV.StateTopic)

	sw := findEntity(t, inst, "switch.openwb_cp2_ladepunkt_aktiv")
	assert.Equal(t, "openWB/lp/2/ChargePointEnabled", sw.StateTopic)
	assert.Equal(t, "openWB/set/lp/2/ChargePointEnabled", sw.CommandTopic)
}

func TestBuildAll(t *testing.T) {
	reg := DefaultRegistry()

	insts, err := BuildAll(reg, []Config{
		{Type: Controller},
		{Type: ChargePoint, ID: 1},
		{Type: ChargePoint, ID: 2},
		{Root: "openWB", Version: VersionLegacy, ChargePoints: 1},
	})
	require.NoError(t, err)
	assert.Len(t, insts, 4)

	_, err = BuildAll(reg, []Config{{Type: Controller}, {Type: Controller, ID: 7}})
	require.ErrorIs(t, err, ErrAlreadyConfigured)
	assert.Contains(t, err.Error(), "controller")

	_, err = BuildAll(reg, []Config{{Type: "battery", ID: 1}, {Type: Battery, ID: 1}})
	require.ErrorIs(t, err, ErrAlreadyConfigured)
	assert.Contains(t, err.Error(), "battery")

	_, err = BuildAll(reg, []Config{{Type: Counter}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
