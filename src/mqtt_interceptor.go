package main

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// commandGuard recognises publishes that would change wallbox settings
type commandGuard struct {
	roots []string
}

func newCommandGuard(roots []string) commandGuard {
	return commandGuard{roots: roots}
}

// isCommand reports whether topic is a set topic below one of the roots
func (g commandGuard) isCommand(topic string) bool {
	for _, root := range g.roots {
		rel, ok := strings.CutPrefix(topic, root+"/")
		if !ok {
			continue
		}
		if strings.HasPrefix(rel, "set/") || strings.HasPrefix(rel, "config/set/") {
			return true
		}
	}
	return false
}

// mqttInterceptorWorker forwards outgoing messages, dropping wallbox commands
// while read-only mode is on. Discovery and state messages always pass.
func mqttInterceptorWorker(
	ctx context.Context,
	logger *zap.Logger,
	guard commandGuard,
	readOnly bool,
	inputChan <-chan MQTTMessage,
	outputChan chan<- MQTTMessage,
	readOnlyChan <-chan bool,
) {
	logger.Info("MQTT interceptor started", zap.Bool("read_only", readOnly))

	for {
		select {
		case ro := <-readOnlyChan:
			if ro != readOnly {
				logger.Info("Read-only mode changed", zap.Bool("read_only", ro))
				readOnly = ro
			}

		case msg := <-inputChan:
			if readOnly && guard.isCommand(msg.Topic) {
				logger.Warn("Read-only, dropping command",
					zap.String("topic", msg.Topic),
					zap.ByteString("payload", msg.Payload))
				continue
			}
			select {
			case outputChan <- msg:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			logger.Info("MQTT interceptor stopped")
			return
		}
	}
}
