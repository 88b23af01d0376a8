package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/a529987659852/openwbmqtt/src/hass"
	"github.com/a529987659852/openwbmqtt/src/openwb"
)

// SensorMessage represents an MQTT message with topic and value
type SensorMessage struct {
	Topic string
	Value string
}

var errEmptyRequest = errors.New("empty bridge request")

// bridgeRequest asks the bridge worker to run a command or a service call.
// Exactly one of Command and Service is set.
type bridgeRequest struct {
	Command *openwb.Command
	Service *openwb.ServiceCall
	Result  chan<- error
}

// messageRouter dispatches incoming MQTT messages to the bridge. It is owned
// by the bridge worker goroutine.
type messageRouter struct {
	logger        *zap.Logger
	bridge        *openwb.Bridge
	sink          *hass.Sink
	hassStatus    string
	expected      map[string]bool
	receivedTopic map[string]bool
}

func newMessageRouter(logger *zap.Logger, bridge *openwb.Bridge, sink *hass.Sink, hassStatusTopic string) *messageRouter {
	expected := make(map[string]bool)
	for _, t := range bridge.Topics() {
		expected[t] = true
	}
	return &messageRouter{
		logger:        logger,
		bridge:        bridge,
		sink:          sink,
		hassStatus:    hassStatusTopic,
		expected:      expected,
		receivedTopic: make(map[string]bool),
	}
}

// decodeServiceCall parses the JSON arguments of a service; an empty payload
// is a call without arguments
func decodeServiceCall(name, payload string) (openwb.ServiceCall, error) {
	var call openwb.ServiceCall
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &call); err != nil {
			return openwb.ServiceCall{}, fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	call.Service = name
	return call, nil
}

// route handles one message and reports whether any entity state changed
func (r *messageRouter) route(msg SensorMessage) bool {
	if id, ok := r.sink.EntityForCommand(msg.Topic); ok {
		if err := r.bridge.Execute(openwb.Command{EntityID: id, Payload: msg.Value}); err != nil {
			r.logger.Warn("Rejected command",
				zap.String("entity", id),
				zap.String("payload", msg.Value),
				zap.Error(err))
		}
		return false
	}

	if name, ok := r.sink.Topics().ServiceName(msg.Topic); ok {
		call, err := decodeServiceCall(name, msg.Value)
		if err == nil {
			err = r.bridge.Service(call)
		}
		if err != nil {
			r.logger.Warn("Rejected service call", zap.String("service", name), zap.Error(err))
		}
		return false
	}

	if msg.Topic == r.hassStatus {
		if msg.Value == hass.StatusOnline {
			r.logger.Info("Home Assistant came online, republishing discovery")
			if err := r.bridge.Refresh(); err != nil {
				r.logger.Warn("Failed to republish discovery", zap.Error(err))
			}
			r.sink.Online()
		}
		return false
	}

	if r.expected[msg.Topic] {
		r.receivedTopic[msg.Topic] = true
	}
	return r.bridge.HandleMessage(msg.Topic, msg.Value) > 0
}

// missing returns the read topics that have not delivered a message yet
func (r *messageRouter) missing() []string {
	var out []string
	for _, t := range r.bridge.Topics() {
		if !r.receivedTopic[t] {
			out = append(out, t)
		}
	}
	return out
}

// bridgeWorker owns the bridge: it applies incoming messages and requests and
// sends debounced snapshots downstream
func bridgeWorker(
	ctx context.Context,
	logger *zap.Logger,
	router *messageRouter,
	msgChan <-chan SensorMessage,
	requestChan <-chan bridgeRequest,
	outputChan chan<- openwb.Snapshot,
) {
	logger.Info("Bridge worker started", zap.Int("entities", len(router.bridge.Entities())))

	// Ready state tracking
	allTopicsReceived := false
	startupCheckTicker := time.NewTicker(30 * time.Second)
	defer startupCheckTicker.Stop()

	// Debouncing state
	var lastSendTime time.Time
	var debounceTimer *time.Timer
	var debounceTimerC <-chan time.Time

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	// Non-blocking: the consumer may itself be waiting on a request
	send := func() {
		if outputChan == nil {
			return
		}
		select {
		case outputChan <- router.bridge.Snapshot():
			lastSendTime = time.Now()
		default:
			logger.Debug("Snapshot channel full, dropping update")
		}
	}

	for {
		select {
		case msg := <-msgChan:
			changed := router.route(msg)

			if !allTopicsReceived && len(router.receivedTopic) == len(router.expected) {
				allTopicsReceived = true
				startupCheckTicker.Stop()
				logger.Info("Bridge ready: received data for all topics", zap.Int("topics", len(router.expected)))
			}
			if !changed {
				continue
			}

			// Debounce: send immediately if enough time has passed, otherwise schedule
			timeSinceLastSend := time.Since(lastSendTime)
			if timeSinceLastSend >= time.Second {
				send()
			} else if debounceTimer == nil {
				debounceTimer = time.NewTimer(time.Second - timeSinceLastSend)
				debounceTimerC = debounceTimer.C
			}

		case req := <-requestChan:
			var err error
			switch {
			case req.Command != nil:
				err = router.bridge.Execute(*req.Command)
			case req.Service != nil:
				err = router.bridge.Service(*req.Service)
			default:
				err = errEmptyRequest
			}
			if req.Result != nil {
				req.Result <- err
			}

		case <-debounceTimerC:
			send()
			debounceTimer = nil
			debounceTimerC = nil

		case <-startupCheckTicker.C:
			missing := router.missing()
			logger.Info("Startup check",
				zap.Int("received", len(router.receivedTopic)),
				zap.Int("expected", len(router.expected)))
			logger.Debug("Topics without data", zap.Strings("topics", missing))

		case <-ctx.Done():
			logger.Info("Bridge worker stopped")
			return
		}
	}
}
