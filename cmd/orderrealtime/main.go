/*
File: cmd/orderrealtime/main.go
Description: Main entrypoint for the order realtime service.
Handles config loading, dependency injection, and starting the application.
*/
package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-order-realtime-service/internal/app"
	"github.com/tinywideclouds/go-order-realtime-service/internal/platform/presence"
	psub "github.com/tinywideclouds/go-order-realtime-service/internal/platform/pubsub"
	corepresence "github.com/tinywideclouds/go-order-realtime-service/internal/presence"
	"github.com/tinywideclouds/go-order-realtime-service/internal/realtime"
	"github.com/tinywideclouds/go-order-realtime-service/orderservice"
	"github.com/tinywideclouds/go-order-realtime-service/orderservice/config"
)

//go:embed config.yaml
var configFile []byte

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (defaults to the embedded config)")
	logLevelFlag := pflag.String("log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
	pflag.Parse()

	// --- 1. Setup structured logging ---
	level := *logLevelFlag
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	zerolog.SetGlobalLevel(parseLevel(level))
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "go-order-realtime-service").Logger()

	// --- 2. Load Configuration (Stage 0: Unmarshal) ---
	raw := configFile
	if *configPath != "" {
		b, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to read config file")
		}
		raw = b
	}
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to unmarshal yaml config")
	}

	// --- 3. Build Base Config (Stage 1: YAML to Base Struct) ---
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build base configuration from YAML")
	}

	// --- 4. Apply Overrides & Validate (Stage 2: Env Vars) ---
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to finalize configuration with environment overrides")
	}

	// --- 5. Create dependencies ---
	ctx := context.Background()

	presenceStore, err := newPresenceStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize presence store")
	}
	defer func() {
		if err := presenceStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close presence store")
		}
	}()

	registry := realtime.NewRegistry()
	publisher := realtime.NewPublisher(registry, logger)

	consumer, closeConsumer, err := newOrderEventConsumer(ctx, cfg, publisher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize order event consumer")
	}
	defer closeConsumer()

	reauthPolicy, err := realtime.ParseReauthPolicy(cfg.WebSocket.ReauthPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid reauth policy")
	}

	// --- 6. Create the two main services ---
	deps := orderservice.Dependencies{
		Publisher: publisher,
		Presence:  presenceStore,
	}
	if consumer != nil {
		deps.Consumer = consumer
	}
	apiService, err := orderservice.New(cfg, deps, logger.With().Str("component", "ApiService").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API service")
	}

	connManager, err := realtime.NewConnectionManager(
		cfg.WebSocketPort,
		registry,
		publisher,
		presenceStore,
		realtime.Options{
			AllowedOrigins:  cfg.AllowedOrigins,
			SendBufferSize:  cfg.WebSocket.SendBufferSize,
			WriteTimeout:    cfg.WebSocket.WriteTimeout,
			PingInterval:    cfg.WebSocket.PingInterval,
			PongWait:        cfg.WebSocket.PongWait,
			AuthTimeout:     cfg.WebSocket.AuthTimeout,
			MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
			ReauthPolicy:    reauthPolicy,
		},
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Connection Manager")
	}

	// --- 7. Run the application ---
	app.Run(ctx, logger, apiService, connManager)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// newPresenceStore creates the pluggable presence store based on config.
func newPresenceStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (corepresence.Store, error) {
	storeLogger := logger.With().Str("component", "Presence").Logger()
	logger.Info().Str("type", cfg.Presence.Type).Msg("Initializing presence store...")

	switch cfg.Presence.Type {
	case config.PresenceRedis:
		addr := cfg.Presence.Redis.Addr
		logger.Debug().Str("addr", addr).Msg("Connecting to Redis presence store")
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
		}
		logger.Info().Str("addr", addr).Msg("Connected to Redis presence store")
		return presence.NewRedisStore(rdb, cfg.Presence.TTL, storeLogger)

	case config.PresenceFirestore:
		logger.Debug().Str("project_id", cfg.ProjectID).Msg("Connecting to Firestore")
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to firestore: %w", err)
		}
		return presence.NewFirestoreStore(fsClient, cfg.Presence.Firestore.CollectionName, storeLogger)

	default:
		return corepresence.Nop{}, nil
	}
}

// newOrderEventConsumer connects the Pub/Sub ingress when enabled. The
// returned close func is always safe to call.
func newOrderEventConsumer(ctx context.Context, cfg *config.AppConfig, publisher *realtime.Publisher, logger zerolog.Logger) (*psub.Consumer, func(), error) {
	noop := func() {}
	if !cfg.OrderEvents.Enabled {
		logger.Info().Msg("Order event Pub/Sub ingress disabled")
		return nil, noop, nil
	}

	logger.Debug().Str("project_id", cfg.ProjectID).Msg("Connecting to PubSub")
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to connect to pubsub: %w", err)
	}
	closeClient := func() {
		if err := psClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close pubsub client")
		}
	}

	topicName := psub.ResourceName(cfg.ProjectID, cfg.OrderEvents.TopicID, psub.Pub)
	subName := psub.ResourceName(cfg.ProjectID, cfg.OrderEvents.SubscriptionID, psub.Sub)
	if err := psub.EnsureTopicAndSubscription(ctx, psClient, topicName, subName, logger); err != nil {
		closeClient()
		return nil, noop, err
	}

	consumer, err := psub.NewConsumer(psClient.Subscriber(subName), publisher, logger.With().Str("component", "OrderEventConsumer").Logger())
	if err != nil {
		closeClient()
		return nil, noop, err
	}
	return consumer, closeClient, nil
}
