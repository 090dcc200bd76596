package config

import (
	"time"

	"github.com/rs/zerolog"
)

// --- YAML-Specific Structs ---

type YamlRedisConfig struct {
	Addr string `yaml:"addr"`
}

type YamlFirestoreConfig struct {
	CollectionName string `yaml:"collection_name"`
}

// YamlPresenceConfig selects the presence backend.
type YamlPresenceConfig struct {
	Type      string              `yaml:"type"` // "none", "redis" or "firestore"
	TTL       time.Duration       `yaml:"ttl"`
	Redis     YamlRedisConfig     `yaml:"redis"`
	Firestore YamlFirestoreConfig `yaml:"firestore"`
}

// YamlOrderEventsConfig configures the Pub/Sub ingress from the Order Service.
type YamlOrderEventsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TopicID        string `yaml:"topic_id"`
	SubscriptionID string `yaml:"subscription_id"`
}

// YamlWebSocketConfig tunes the realtime transport.
type YamlWebSocketConfig struct {
	SendBufferSize  int           `yaml:"send_buffer_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	ReauthPolicy    string        `yaml:"reauth_policy"`
}

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// YamlConfig defines the structure for unmarshaling the config.yaml file.
type YamlConfig struct {
	ProjectID     string                `yaml:"project_id"`
	APIPort       string                `yaml:"api_port"`
	WebSocketPort string                `yaml:"websocket_port"`
	Cors          YamlCorsConfig        `yaml:"cors"`
	Presence      YamlPresenceConfig    `yaml:"presence"`
	OrderEvents   YamlOrderEventsConfig `yaml:"order_events"`
	WebSocket     YamlWebSocketConfig   `yaml:"websocket"`
}

// --- Stage 1 Function ---

// NewConfigFromYaml converts the raw unmarshaled data (YamlConfig) into a clean, base AppConfig struct.
// Stage 1 complete: The AppConfig struct now exists, but without environment overrides.
func NewConfigFromYaml(yamlCfg *YamlConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Mapping YAML config to base config struct")

	appCfg := &AppConfig{
		ProjectID:      yamlCfg.ProjectID,
		APIPort:        yamlCfg.APIPort,
		WebSocketPort:  yamlCfg.WebSocketPort,
		AllowedOrigins: yamlCfg.Cors.AllowedOrigins,
		Presence:       yamlCfg.Presence,
		OrderEvents:    yamlCfg.OrderEvents,
		WebSocket:      yamlCfg.WebSocket,
	}
	if appCfg.Presence.Type == "" {
		appCfg.Presence.Type = PresenceNone
	}

	logger.Debug().
		Str("project_id", appCfg.ProjectID).
		Str("api_port", appCfg.APIPort).
		Str("websocket_port", appCfg.WebSocketPort).
		Str("presence_type", appCfg.Presence.Type).
		Bool("order_events_enabled", appCfg.OrderEvents.Enabled).
		Msg("YAML config mapping complete")

	return appCfg, nil
}
