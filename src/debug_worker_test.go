package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/a529987659852/openwbmqtt/src/openwb"
)

func testSnapshot() openwb.Snapshot {
	return openwb.Snapshot{Entities: []openwb.EntityState{
		{ID: "sensor.openwb_chargepoint_3_ladeleistung", Value: "1500", Known: true},
		{ID: "select.openwb_chargepoint_3_lademodus", Value: "PV Charging", Known: true},
		{ID: "sensor.openwb_chargepoint_3_strom_l1"},
	}}
}

func newTestDebugState(t *testing.T) (*DebugState, *[]string) {
	t.Helper()
	var lines []string
	state := NewDebugState(zaptest.NewLogger(t))
	state.out = func(line string) { lines = append(lines, line) }
	return state, &lines
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "chargepoint_3_ladeleistung", shortName("sensor.openwb_chargepoint_3_ladeleistung"))
	assert.Equal(t, "plain", shortName("plain"))
}

func TestDebugStateWatches(t *testing.T) {
	state, lines := newTestDebugState(t)
	state.UpdateData(testSnapshot())

	state.AddWatch("sensor.openwb_chargepoint_3_ladeleistung")
	state.AddWatch("sensor.openwb_chargepoint_3_ladeleistung")
	state.AddWatch("sensor.unknown")
	state.AddWatch("sensor.openwb_chargepoint_3_strom_l1")
	assert.Equal(t, []string{
		"sensor.openwb_chargepoint_3_ladeleistung",
		"sensor.openwb_chargepoint_3_strom_l1",
	}, state.watches)

	state.PrintRow(testSnapshot())
	require.Len(t, *lines, 2)
	assert.Contains(t, (*lines)[0], "chargepoint_3_ladeleistung")
	assert.Contains(t, (*lines)[1], "1500")
	assert.Contains(t, (*lines)[1], ansiYellow)

	// Unchanged values print nothing
	state.PrintRow(testSnapshot())
	assert.Len(t, *lines, 2)

	assert.False(t, state.RemoveWatch("chargepoint_3"))
	assert.True(t, state.RemoveWatch("strom_l1"))
	assert.Equal(t, []string{"sensor.openwb_chargepoint_3_ladeleistung"}, state.watches)

	state.RemoveAll()
	assert.Empty(t, state.watches)
}

func TestDebugStateList(t *testing.T) {
	state, lines := newTestDebugState(t)
	state.UpdateData(testSnapshot())

	state.ListEntities("sensor.")
	require.Len(t, *lines, 3)
	assert.Equal(t, "Entities (2):", (*lines)[0])
	assert.True(t, strings.HasSuffix((*lines)[2], " -"))
}

func TestParseDebugAction(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		a, err := parseDebugAction(strings.Fields("set select.openwb_lademodus Min+PV-Laden"))
		require.NoError(t, err)
		require.NotNil(t, a.Request)
		assert.Equal(t, &openwb.Command{EntityID: "select.openwb_lademodus", Payload: "Min+PV-Laden"}, a.Request.Command)
	})

	t.Run("set keeps spaces in the value", func(t *testing.T) {
		a, err := parseDebugAction(strings.Fields("set select.openwb_chargepoint_1_lademodus PV Charging"))
		require.NoError(t, err)
		assert.Equal(t, "PV Charging", a.Request.Command.Payload)
	})

	t.Run("service", func(t *testing.T) {
		a, err := parseDebugAction(strings.Fields(`service change_global_charge_mode {"global_charge_mode": "Nur PV-Laden"}`))
		require.NoError(t, err)
		require.NotNil(t, a.Request.Service)
		assert.Equal(t, openwb.ServiceChangeGlobalChargeMode, a.Request.Service.Service)
		assert.Equal(t, "Nur PV-Laden", a.Request.Service.GlobalChargeMode)
	})

	t.Run("readonly", func(t *testing.T) {
		a, err := parseDebugAction([]string{"readonly", "off"})
		require.NoError(t, err)
		require.NotNil(t, a.ReadOnly)
		assert.False(t, *a.ReadOnly)
	})

	for _, line := range []string{"set x", "service", "service x {bad", "readonly maybe", "frobnicate"} {
		_, err := parseDebugAction(strings.Fields(line))
		assert.Error(t, err, line)
	}
}

func TestHandleDebugCommandSendsRequest(t *testing.T) {
	state, _ := newTestDebugState(t)
	requests := make(chan bridgeRequest, 1)
	readOnly := make(chan bool, 1)
	chans := debugChannels{Requests: requests, ReadOnly: readOnly}

	go func() {
		req := <-requests
		req.Result <- nil
	}()
	handleDebugCommand(context.Background(), "set switch.openwb_cp1_ladepunkt_aktiv ON", state, chans)

	handleDebugCommand(context.Background(), "readonly on", state, chans)
	assert.True(t, <-readOnly)
}
