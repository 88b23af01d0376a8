package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/a529987659852/openwbmqtt/src/config"
	"github.com/a529987659852/openwbmqtt/src/hass"
	"github.com/a529987659852/openwbmqtt/src/openwb"
)

// settings holds the environment configuration
type settings struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	ConfigPath      string
	DiscoveryPrefix string
	TopicPrefix     string
	ReadOnly        bool
	Debug           bool
	MDNSTimeout     time.Duration
}

// getenv returns the variable or def when unset or empty
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvBool parses a boolean variable, def when unset
func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

// loadSettings reads the environment
func loadSettings() (settings, error) {
	s := settings{
		Broker:          os.Getenv("MQTT_BROKER"),
		Username:        os.Getenv("MQTT_USERNAME"),
		Password:        os.Getenv("MQTT_PASSWORD"),
		ClientID:        getenv("MQTT_CLIENT_ID", "openwbmqtt-"+uuid.NewString()),
		ConfigPath:      getenv("OPENWB_CONFIG", "openwbmqtt.yaml"),
		DiscoveryPrefix: getenv("HA_DISCOVERY_PREFIX", "homeassistant"),
		TopicPrefix:     getenv("BRIDGE_TOPIC_PREFIX", "openwbmqtt"),
	}

	var err error
	if s.ReadOnly, err = getenvBool("READ_ONLY", false); err != nil {
		return settings{}, err
	}
	if s.Debug, err = getenvBool("DEBUG", false); err != nil {
		return settings{}, err
	}
	s.MDNSTimeout = 5 * time.Second
	if v := os.Getenv("MDNS_TIMEOUT"); v != "" {
		if s.MDNSTimeout, err = time.ParseDuration(v); err != nil {
			return settings{}, fmt.Errorf("invalid MDNS_TIMEOUT %q: %w", v, err)
		}
	}
	return s, nil
}

// newLogger returns a production logger, or a console logger that plays
// nicely with the debug prompt
func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewProduction()
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, rlWriter, zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller()), nil
}

// SafeGo launches fn in the group with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, returns an error so the group shuts down.
func SafeGo(
	ctx context.Context,
	g *errgroup.Group,
	logger *zap.Logger,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	logger = logger.Named(name)

	g.Go(func() error {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// Returned normally, covers both cancellation and completion
			if panicValue == nil {
				return nil
			}

			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			logger.Error("Worker panicked",
				zap.Int("attempt", retries),
				zap.Int("max_retries", maxRetries),
				zap.Any("panic", panicValue))

			if retries >= maxRetries {
				return fmt.Errorf("%s failed after %d retries", name, maxRetries)
			}

			logger.Info("Worker will retry", zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// resolveBroker picks the broker from the environment, the config file or mDNS
func resolveBroker(ctx context.Context, logger *zap.Logger, s settings, file *config.File) (string, error) {
	switch {
	case s.Broker != "":
		return s.Broker, nil
	case file.MQTT.Broker != "":
		return file.MQTT.Broker, nil
	}
	addr, err := discoverBroker(ctx, logger, s.MDNSTimeout)
	if err != nil {
		return "", fmt.Errorf("set MQTT_BROKER or mqtt.broker: %w", err)
	}
	return addr, nil
}

func main() {
	// Load .env file before anything reads the environment
	envErr := godotenv.Load()

	s, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(s.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("Error loading .env file", zap.Error(envErr))
	}

	if err := run(logger, s); err != nil {
		logger.Error("Exiting", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, s settings) error {
	logger.Info("Starting openwbmqtt",
		zap.String("config", s.ConfigPath),
		zap.Bool("read_only", s.ReadOnly),
		zap.Bool("debug", s.Debug))

	file, err := config.Load(logger, s.ConfigPath)
	if err != nil {
		return err
	}
	cfgs, err := file.Configs()
	if err != nil {
		return err
	}
	instances, err := openwb.BuildAll(openwb.DefaultRegistry(), cfgs)
	if err != nil {
		return err
	}

	// Create context for lifecycle management
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker, err := resolveBroker(ctx, logger, s, file)
	if err != nil {
		return err
	}
	if s.Username == "" {
		s.Username = file.MQTT.Username
	}
	if s.Password == "" {
		s.Password = file.MQTT.Password
	}

	g, gctx := errgroup.WithContext(ctx)

	// Create channels for communication between workers
	msgChan := make(chan SensorMessage, 10)
	snapshotChan := make(chan openwb.Snapshot, 10)
	requestChan := make(chan bridgeRequest)
	readOnlyChan := make(chan bool, 1)
	interceptChan := make(chan MQTTMessage, 100) // Larger buffer for queuing
	mqttOutgoingChan := make(chan MQTTMessage, 100)
	mqttClientChan := make(chan mqtt.Client, 1) // Buffered to prevent blocking onConnect

	SafeGo(gctx, g, logger, "mqtt-sender-worker", func(ctx context.Context) {
		mqttSenderWorker(ctx, logger, mqttOutgoingChan, mqttClientChan)
	})

	guard := newCommandGuard(file.Roots())
	SafeGo(gctx, g, logger, "mqtt-interceptor", func(ctx context.Context) {
		mqttInterceptorWorker(ctx, logger, guard, s.ReadOnly, interceptChan, mqttOutgoingChan, readOnlyChan)
	})

	sender := NewMQTTSender(interceptChan)
	topics := hass.Topics{DiscoveryPrefix: s.DiscoveryPrefix, Prefix: s.TopicPrefix}
	sink := hass.NewSink(logger.Named("hass"), sender, topics)
	bridge := openwb.NewBridge(logger.Named("bridge"), sink, sender, instances...)

	logger.Info("Registering entities", zap.Int("instances", len(instances)), zap.Int("entities", len(bridge.Entities())))
	if err := bridge.Register(); err != nil {
		return err
	}

	hassStatus := s.DiscoveryPrefix + "/status"
	subscriptions := slices.Concat(bridge.Topics(), sink.CommandTopics(), []string{topics.ServiceFilter(), hassStatus})

	var output chan<- openwb.Snapshot
	if s.Debug {
		output = snapshotChan
	}
	router := newMessageRouter(logger.Named("bridge"), bridge, sink, hassStatus)
	SafeGo(gctx, g, logger, "bridge-worker", func(ctx context.Context) {
		bridgeWorker(ctx, logger, router, msgChan, requestChan, output)
	})

	if s.Debug {
		chans := debugChannels{Requests: requestChan, ReadOnly: readOnlyChan}
		SafeGo(gctx, g, logger, "debug-worker", func(ctx context.Context) {
			debugWorker(ctx, cancel, logger, snapshotChan, chans)
		})
	}

	opts := mqttOptions{
		Broker:      broker,
		ClientID:    s.ClientID,
		Username:    s.Username,
		Password:    s.Password,
		StatusTopic: topics.Availability(),
		OnShutdown: func(p openwb.Publisher) {
			sink.WithPublisher(p).Offline()
		},
	}
	SafeGo(gctx, g, logger, "mqtt-worker", func(ctx context.Context) {
		mqttWorker(ctx, logger, opts, subscriptions, msgChan, mqttClientChan)
	})

	<-gctx.Done()
	logger.Info("Shutting down...")
	cancel()
	return g.Wait()
}
