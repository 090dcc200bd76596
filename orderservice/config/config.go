// Package config loads the service configuration: an embedded or supplied
// YAML file (Stage 1) finalized by environment overrides (Stage 2).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Presence backends.
const (
	PresenceNone      = "none"
	PresenceRedis     = "redis"
	PresenceFirestore = "firestore"
)

// AppConfig is the canonical, validated configuration object used throughout the application.
type AppConfig struct {
	ProjectID      string
	APIPort        string
	WebSocketPort  string
	AllowedOrigins []string
	Presence       YamlPresenceConfig
	OrderEvents    YamlOrderEventsConfig
	WebSocket      YamlWebSocketConfig
}

// envOverrides lists every environment variable that may override YAML.
type envOverrides struct {
	ProjectID      string        `env:"GCP_PROJECT_ID"`
	APIPort        string        `env:"API_PORT"`
	WebSocketPort  string        `env:"WEBSOCKET_PORT"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	PresenceType   string        `env:"PRESENCE_TYPE"`
	CorsOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	SubscriptionID string        `env:"ORDER_EVENTS_SUBSCRIPTION_ID"`
	ReauthPolicy   string        `env:"REAUTH_POLICY"`
	AuthTimeout    time.Duration `env:"AUTH_TIMEOUT"`
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
// This function completes "Stage 2" of configuration loading.
func UpdateConfigWithEnvOverrides(cfg *AppConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	override := func(key string, target *string, value string) {
		if value != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
			*target = value
		}
	}
	override("GCP_PROJECT_ID", &cfg.ProjectID, ov.ProjectID)
	override("API_PORT", &cfg.APIPort, ov.APIPort)
	override("WEBSOCKET_PORT", &cfg.WebSocketPort, ov.WebSocketPort)
	override("REDIS_ADDR", &cfg.Presence.Redis.Addr, ov.RedisAddr)
	override("PRESENCE_TYPE", &cfg.Presence.Type, ov.PresenceType)
	override("ORDER_EVENTS_SUBSCRIPTION_ID", &cfg.OrderEvents.SubscriptionID, ov.SubscriptionID)
	override("REAUTH_POLICY", &cfg.WebSocket.ReauthPolicy, ov.ReauthPolicy)

	if len(ov.CorsOrigins) > 0 {
		logger.Debug().Str("key", "CORS_ALLOWED_ORIGINS").Str("source", "env").Msg("Overriding config value")
		var cleanOrigins []string
		for _, o := range ov.CorsOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.AllowedOrigins = cleanOrigins
	}

	// "0s" disables the timeout, so any set value applies.
	if _, ok := os.LookupEnv("AUTH_TIMEOUT"); ok {
		logger.Debug().Str("key", "AUTH_TIMEOUT").Str("source", "env").Msg("Overriding config value")
		cfg.WebSocket.AuthTimeout = ov.AuthTimeout
	}

	if err := validate(cfg); err != nil {
		logger.Error().Err(err).Msg("Final config validation failed")
		return nil, err
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}

func validate(cfg *AppConfig) error {
	var errs []error
	if cfg.APIPort == "" {
		errs = append(errs, errors.New("API_PORT is not set in config or env var"))
	}
	if cfg.WebSocketPort == "" {
		errs = append(errs, errors.New("WEBSOCKET_PORT is not set in config or env var"))
	}

	switch cfg.Presence.Type {
	case "", PresenceNone:
		cfg.Presence.Type = PresenceNone
	case PresenceRedis:
		if cfg.Presence.Redis.Addr == "" {
			errs = append(errs, errors.New("presence type is redis but no address is configured (check REDIS_ADDR env var)"))
		}
	case PresenceFirestore:
		if cfg.Presence.Firestore.CollectionName == "" {
			errs = append(errs, errors.New("presence type is firestore but no collection name is configured"))
		}
		if cfg.ProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is not set but firestore presence needs it"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid presence type: %s (must be 'none', 'redis' or 'firestore')", cfg.Presence.Type))
	}

	if cfg.OrderEvents.Enabled {
		if cfg.ProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is not set but order_events is enabled"))
		}
		if cfg.OrderEvents.TopicID == "" || cfg.OrderEvents.SubscriptionID == "" {
			errs = append(errs, errors.New("order_events is enabled but topic_id or subscription_id is missing"))
		}
	}

	switch cfg.WebSocket.ReauthPolicy {
	case "", "replace", "additive":
	default:
		errs = append(errs, fmt.Errorf("invalid reauth_policy: %s (must be 'replace' or 'additive')", cfg.WebSocket.ReauthPolicy))
	}
	if ws := cfg.WebSocket; ws.PingInterval > 0 && ws.PongWait > 0 && ws.PingInterval >= ws.PongWait {
		errs = append(errs, fmt.Errorf("ping_interval (%s) must be shorter than pong_wait (%s)", ws.PingInterval, ws.PongWait))
	}
	if cfg.WebSocket.AuthTimeout < 0 {
		errs = append(errs, errors.New("auth_timeout cannot be negative"))
	}
	return errors.Join(errs...)
}
