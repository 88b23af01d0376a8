package main

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages. It satisfies
// openwb.Publisher so the bridge and the discovery sink never see a client.
type MQTTSender struct {
	ch chan<- MQTTMessage
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// Publish queues a message for the sender worker
func (s *MQTTSender) Publish(topic string, qos byte, retain bool, payload []byte) {
	s.Send(MQTTMessage{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	})
}

// mqttSenderWorker publishes outgoing messages, queuing them until a
// connected client is available
func mqttSenderWorker(
	ctx context.Context,
	logger *zap.Logger,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
) {
	logger.Info("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	publish := func(msg MQTTMessage) {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		if err := tokenWait(ctx, token, "publish "+msg.Topic); err != nil {
			logger.Warn("Failed to publish", zap.String("topic", msg.Topic), zap.Error(err))
		}
	}

	for {
		select {
		case newClient := <-clientChan:
			logger.Info("MQTT sender worker received new client")
			client = newClient

			// Process any queued messages now that we have a client
			if client != nil && client.IsConnected() {
				queuedCount := len(messageQueue)
				for _, msg := range messageQueue {
					publish(msg)
				}
				messageQueue = nil
				if queuedCount > 0 {
					logger.Info("MQTT sender worker processed queued messages", zap.Int("count", queuedCount))
				}
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				publish(msg)
			} else {
				// No client yet, queue the message
				messageQueue = append(messageQueue, msg)
				logger.Debug("MQTT sender worker queued message",
					zap.String("topic", msg.Topic),
					zap.Int("queued", len(messageQueue)))
			}

		case <-ctx.Done():
			logger.Info("MQTT sender worker stopped")
			return
		}
	}
}
