package openwb

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitListFloat(t *testing.T) {
	v, err := SplitListFloat(1)("[230.1, 231.5, 229.0]")
	require.NoError(t, err)
	assert.Equal(t, "231.5", v)

	v, err = SplitListFloat(2)("[230.1, 231.5, 229.0]")
	require.NoError(t, err)
	assert.Equal(t, "229.0", v)

	v, err = SplitListFloat(2)("[1.0,2.0,3.0]")
	require.NoError(t, err)
	assert.Equal(t, "3.0", v)

	v, err = SplitListFloat(0)("[-4, 0]")
	require.NoError(t, err)
	assert.Equal(t, "-4.0", v)

	_, err = SplitListFloat(2)("[1.0, 2.0]")
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = SplitListFloat(0)("[a, 2]")
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = SplitListFloat(0)("[NaN, 2]")
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = SplitListFloat(0)("[]")
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestScaleRound(t *testing.T) {
	v, err := ScaleRound(0.001, 3)("12345.6")
	require.NoError(t, err)
	assert.Equal(t, "12.346", v)

	v, err = ScaleRound(1000, 0)("1.2346")
	require.NoError(t, err)
	assert.Equal(t, "1235", v)

	_, err = ScaleRound(1, 0)("n/a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoValue)
}

func TestNegateAbsNumber(t *testing.T) {
	v, err := Negate("-1234.4")
	require.NoError(t, err)
	assert.Equal(t, "1234", v)

	v, err = Abs("-500")
	require.NoError(t, err)
	assert.Equal(t, "500", v)

	v, err = ParseNumber(" 16.0 ")
	require.NoError(t, err)
	assert.Equal(t, "16", v)
}

func TestTrimFault(t *testing.T) {
	v, err := TrimFault(`"Kein Fehler."`)
	require.NoError(t, err)
	assert.Equal(t, "Kein Fehler", v)

	v, err = TrimFault(strings.Repeat("ä", 300))
	require.NoError(t, err)
	assert.Len(t, []rune(v), 255)
}

func TestJSONField(t *testing.T) {
	payload := `{"soc": 56, "range_charged": 12.5, "name": "\"Garage\"", "fault": null, "ok": true}`

	v, err := JSONField("soc")(payload)
	require.NoError(t, err)
	assert.Equal(t, "56", v)

	v, err = JSONField("ok")(payload)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	v, err = JSONName(payload)
	require.NoError(t, err)
	assert.Equal(t, "Garage", v)

	_, err = JSONField("fault")(payload)
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = JSONField("missing")(payload)
	assert.ErrorIs(t, err, ErrNoValue)

	_, err = JSONField("soc")("not json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoValue)
}

func TestUnixTimestamp(t *testing.T) {
	v, err := UnixTimestamp("timestamp")(`{"timestamp": 1700000000, "grid": 1.2}`)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14T22:13:20Z", v)
}

func TestLocalTimestamp(t *testing.T) {
	v, err := LocalTimestamp("timestamp", SoCTimestampLayout, time.UTC)(`{"timestamp": "01/02/2024, 15:29:12"}`)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T15:29:12Z", v)

	_, err = LocalTimestamp("timestamp", SoCTimestampLayout, time.UTC)(`{"timestamp": "yesterday"}`)
	assert.Error(t, err)
}

func TestTimeRemaining(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	tr := TimeRemaining(now)

	v, err := tr("2 H 15 Min")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T14:15:00Z", v)

	v, err = tr("40 Min")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T12:40:00Z", v)

	for _, raw := range []string{"", "---", "Ladung beendet"} {
		_, err = tr(raw)
		assert.ErrorIs(t, err, ErrNoValue, raw)
	}
}

func TestParseBinary(t *testing.T) {
	cases := map[string]string{
		"1":     StateOn,
		"2":     StateOn,
		"0":     StateOff,
		"true":  StateOn,
		"false": StateOff,
	}
	for raw, want := range cases {
		v, err := ParseBinary(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v, raw)
	}

	_, err := ParseBinary("maybe")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoValue)
}

func TestParseSwitch(t *testing.T) {
	v, err := ParseSwitch("1")
	require.NoError(t, err)
	assert.Equal(t, StateOn, v)

	v, err = ParseSwitch("0")
	require.NoError(t, err)
	assert.Equal(t, StateOff, v)

	_, err = ParseSwitch("2")
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestPhasesIcon(t *testing.T) {
	assert.Equal(t, "mdi:numeric-0-circle-outline", PhasesIcon("0"))
	assert.Equal(t, "mdi:numeric-1-circle-outline", PhasesIcon("1"))
	assert.Equal(t, "mdi:numeric-3-circle-outline", PhasesIcon("3"))
	assert.Equal(t, "mdi:numeric", PhasesIcon("2"))
}

func TestResolve(t *testing.T) {
	t.Run("value map after transform", func(t *testing.T) {
		d := &Description{Transform: JSONField("chargemode"), ValueMap: StringMap(chargeModeLabels)}
		v, err := Resolve(d, `{"chargemode": "pv_charging"}`)
		require.NoError(t, err)
		assert.Equal(t, "PV Charging", v)
	})

	t.Run("integer value map", func(t *testing.T) {
		d := &Description{ValueMap: IntMap(legacyChargeModes)}
		v, err := Resolve(d, "2")
		require.NoError(t, err)
		assert.Equal(t, "PV-Laden", v)

		v, err = Resolve(d, "7")
		require.NoError(t, err)
		assert.Equal(t, "7", v)
	})

	t.Run("raw passthrough", func(t *testing.T) {
		v, err := Resolve(&Description{}, "1500")
		require.NoError(t, err)
		assert.Equal(t, "1500", v)
	})

	t.Run("chain stops at first error", func(t *testing.T) {
		d := &Description{Transform: Chain(JSONField("grid"), ScaleRound(1000, 0))}
		v, err := Resolve(d, `{"grid": 1.5}`)
		require.NoError(t, err)
		assert.Equal(t, "1500", v)

		_, err = Resolve(d, `{}`)
		assert.ErrorIs(t, err, ErrNoValue)
	})
}
