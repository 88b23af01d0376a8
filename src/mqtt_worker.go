package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/a529987659852/openwbmqtt/src/hass"
	"github.com/a529987659852/openwbmqtt/src/openwb"
)

const defaultMQTTPort = "1883"

// qosAtLeastOnce is used for subscriptions, the will and availability
const qosAtLeastOnce = 0x01

// mqttOptions configures the MQTT connection
type mqttOptions struct {
	Broker   string // URL, host or host:port
	ClientID string
	Username string
	Password string

	// StatusTopic carries the retained online/offline availability and the will
	StatusTopic string

	// OnShutdown runs before a clean disconnect with a publisher bound to
	// the live client; the sender worker may already be gone by then
	OnShutdown func(openwb.Publisher)
}

// clientPublisher publishes straight to a client and waits for each token
type clientPublisher struct {
	ctx    context.Context
	logger *zap.Logger
	client mqtt.Client
}

func (p clientPublisher) Publish(topic string, qos byte, retain bool, payload []byte) {
	tkn := p.client.Publish(topic, qos, retain, payload)
	if err := tokenWait(p.ctx, tkn, "publish "+topic); err != nil {
		p.logger.Warn("Failed to publish", zap.String("topic", topic), zap.Error(err))
	}
}

// brokerURL normalises a configured broker address into a paho URL
func brokerURL(broker string) string {
	broker = strings.TrimSpace(broker)
	if strings.Contains(broker, "://") {
		return broker
	}
	if _, _, err := net.SplitHostPort(broker); err == nil {
		return "tcp://" + broker
	}
	return "tcp://" + net.JoinHostPort(strings.Trim(broker, "[]"), defaultMQTTPort)
}

// tokenWait waits for an MQTT token to complete, otherwise returning an error.
func tokenWait(ctx context.Context, tkn mqtt.Token, description string) error {
	select {
	case <-tkn.Done():
		if err := tkn.Error(); err != nil {
			return fmt.Errorf("mqtt token error (%s): %w", description, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("mqtt cancelled waiting for token completion (%s): %w", description, ctx.Err())
	case <-time.After(10 * time.Second):
		return fmt.Errorf("mqtt timeout waiting for token completion (%s)", description)
	}
	return nil
}

// mqttWorker manages the MQTT connection and forwards messages to a channel
func mqttWorker(
	ctx context.Context,
	logger *zap.Logger,
	opts mqttOptions,
	topics []string,
	msgChan chan<- SensorMessage,
	clientChan chan<- mqtt.Client,
) {
	broker := brokerURL(opts.Broker)

	o := mqtt.NewClientOptions()
	o.AddBroker(broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" || opts.Password != "" {
		o.SetUsername(opts.Username)
		o.SetPassword(opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetWill(opts.StatusTopic, hass.StatusOffline, qosAtLeastOnce, true)

	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	o.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("Reconnecting to MQTT broker", zap.String("broker", broker))
	})

	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		filters[topic] = qosAtLeastOnce
	}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		sensorMsg := SensorMessage{
			Topic: msg.Topic(),
			Value: string(msg.Payload()),
		}
		select {
		case msgChan <- sensorMsg:
		case <-ctx.Done():
		}
	}

	o.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", broker))

		tkn := client.Publish(opts.StatusTopic, qosAtLeastOnce, true, hass.StatusOnline)
		if err := tokenWait(ctx, tkn, "publish status"); err != nil {
			logger.Warn("Failed to publish online status", zap.Error(err))
		}

		// Send the new client to the sender worker
		select {
		case clientChan <- client:
		case <-ctx.Done():
			return
		}

		// Subscriptions are resent on every connect; the session is clean
		if err := tokenWait(ctx, client.SubscribeMultiple(filters, onMessage), "subscribe"); err != nil {
			logger.Error("Failed to subscribe", zap.Int("topics", len(filters)), zap.Error(err))
			return
		}
		logger.Info("Subscribed to topics", zap.Int("topics", len(filters)))
	})

	client := mqtt.NewClient(o)

	// With ConnectRetry the token only completes once connected, so it is not awaited
	logger.Info("Connecting to MQTT broker", zap.String("broker", broker))
	client.Connect()

	// Keep worker alive until context is done
	<-ctx.Done()

	if client.IsConnected() {
		if opts.OnShutdown != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			opts.OnShutdown(clientPublisher{ctx: shutdownCtx, logger: logger, client: client})
			cancel()
		}
		client.Disconnect(250)
		logger.Info("Disconnected from MQTT broker")
	}
}
