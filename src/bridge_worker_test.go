package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/a529987659852/openwbmqtt/src/hass"
	"github.com/a529987659852/openwbmqtt/src/openwb"
)

func newTestRouter(t *testing.T) (*messageRouter, chan MQTTMessage) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	insts, err := openwb.BuildAll(openwb.DefaultRegistry(), []openwb.Config{
		{Version: openwb.VersionLegacy, ChargePoints: 1},
	})
	require.NoError(t, err)

	out := make(chan MQTTMessage, 4096)
	sender := NewMQTTSender(out)
	sink := hass.NewSink(logger, sender, hass.Topics{DiscoveryPrefix: "homeassistant", Prefix: "openwbmqtt"})
	bridge := openwb.NewBridge(logger, sink, sender, insts...)
	require.NoError(t, bridge.Register())
	drain(out)

	return newMessageRouter(logger, bridge, sink, "homeassistant/status"), out
}

func drain(ch chan MQTTMessage) []MQTTMessage {
	var msgs []MQTTMessage
	for {
		select {
		case m := <-ch:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func TestRouteCommand(t *testing.T) {
	router, out := newTestRouter(t)

	changed := router.route(SensorMessage{Topic: "openwbmqtt/select/openwb_lademodus/set", Value: "PV-Laden"})
	assert.False(t, changed)
	assert.Equal(t, []MQTTMessage{
		{Topic: "openWB/set/ChargeMode", Payload: []byte("2")},
	}, drain(out))

	// Rejected command publishes nothing
	router.route(SensorMessage{Topic: "openwbmqtt/select/openwb_lademodus/set", Value: "Turbo"})
	assert.Empty(t, drain(out))
}

func TestRouteService(t *testing.T) {
	router, out := newTestRouter(t)

	router.route(SensorMessage{
		Topic: "openwbmqtt/service/change_global_charge_mode",
		Value: `{"global_charge_mode": "Stop"}`,
	})
	assert.Equal(t, []MQTTMessage{
		{Topic: "openWB/set/ChargeMode", Payload: []byte("3")},
	}, drain(out))

	router.route(SensorMessage{
		Topic: "openwbmqtt/service/change_charge_current_per_cp",
		Value: `{"charge_point_id": 1, "target_current": 16}`,
	})
	assert.Equal(t, []MQTTMessage{
		{Topic: "openWB/config/set/sofort/lp/1/current", Payload: []byte("16")},
	}, drain(out))

	t.Run("invalid arguments", func(t *testing.T) {
		router.route(SensorMessage{Topic: "openwbmqtt/service/enable_disable_cp", Value: "{nope"})
		assert.Empty(t, drain(out))
	})

	t.Run("unknown service", func(t *testing.T) {
		router.route(SensorMessage{Topic: "openwbmqtt/service/reboot", Value: ""})
		assert.Empty(t, drain(out))
	})
}

func TestRouteState(t *testing.T) {
	router, out := newTestRouter(t)

	e, ok := router.bridge.Entity("select.openwb_lademodus")
	require.True(t, ok)
	assert.Contains(t, router.missing(), e.StateTopic)

	changed := router.route(SensorMessage{Topic: e.StateTopic, Value: "2"})
	assert.True(t, changed)
	assert.Contains(t, drain(out), MQTTMessage{
		Topic:   "openwbmqtt/select/openwb_lademodus/state",
		Payload: []byte("PV-Laden"),
		Retain:  true,
	})
	assert.NotContains(t, router.missing(), e.StateTopic)

	assert.False(t, router.route(SensorMessage{Topic: "openWB/unrelated", Value: "1"}))
}

func TestRouteHomeAssistantBirth(t *testing.T) {
	router, out := newTestRouter(t)

	router.route(SensorMessage{Topic: "homeassistant/status", Value: "offline"})
	assert.Empty(t, drain(out))

	router.route(SensorMessage{Topic: "homeassistant/status", Value: "online"})
	msgs := drain(out)
	require.Greater(t, len(msgs), len(router.bridge.Entities()))
	topics := make([]string, 0, len(msgs))
	for _, m := range msgs {
		topics = append(topics, m.Topic)
	}
	assert.Contains(t, topics, "homeassistant/select/openwb_lademodus/config")
	assert.Equal(t, MQTTMessage{
		Topic:   "openwbmqtt/status",
		Payload: []byte(hass.StatusOnline),
		QoS:     qosAtLeastOnce,
		Retain:  true,
	}, msgs[len(msgs)-1])
}

func TestBridgeWorker(t *testing.T) {
	router, out := newTestRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgChan := make(chan SensorMessage)
	requestChan := make(chan bridgeRequest)
	snapshots := make(chan openwb.Snapshot, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		bridgeWorker(ctx, zaptest.NewLogger(t), router, msgChan, requestChan, snapshots)
	}()

	e, _ := router.bridge.Entity("select.openwb_lademodus")
	msgChan <- SensorMessage{Topic: e.StateTopic, Value: "3"}

	select {
	case snap := <-snapshots:
		es, ok := snap.Lookup("select.openwb_lademodus")
		require.True(t, ok)
		assert.Equal(t, "Stop", es.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
	}

	result := make(chan error, 1)
	requestChan <- bridgeRequest{
		Command: &openwb.Command{EntityID: "switch.openwb_cp1_ladepunkt_aktiv", Payload: openwb.StateOff},
		Result:  result,
	}
	require.NoError(t, <-result)

	requestChan <- bridgeRequest{Result: result}
	assert.ErrorIs(t, <-result, errEmptyRequest)

	cancel()
	<-done

	assert.Contains(t, drain(out), MQTTMessage{Topic: "openWB/set/lp/1/ChargePointEnabled", Payload: []byte("0")})
}
