package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-order-realtime-service/orderservice/config"
)

const sampleYaml = `
project_id: yaml-project
api_port: "8080"
websocket_port: "8081"
cors:
  allowed_origins:
    - http://yaml-origin.com
presence:
  type: redis
  ttl: 2h
  redis:
    addr: yaml-redis:6379
order_events:
  enabled: true
  topic_id: order-events
  subscription_id: order-events-realtime
websocket:
  send_buffer_size: 128
  write_timeout: 5s
  ping_interval: 20s
  pong_wait: 45s
  auth_timeout: 30s
  max_message_bytes: 4096
  reauth_policy: additive
`

func TestNewConfigFromYaml(t *testing.T) {
	t.Run("Success - maps all fields correctly from YAML", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, newTestLogger())

		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, "8080", cfg.APIPort)
		assert.Equal(t, "8081", cfg.WebSocketPort)
		assert.Equal(t, []string{"http://yaml-origin.com"}, cfg.AllowedOrigins)
		assert.Equal(t, config.PresenceRedis, cfg.Presence.Type)
		assert.Equal(t, 2*time.Hour, cfg.Presence.TTL)
		assert.Equal(t, "yaml-redis:6379", cfg.Presence.Redis.Addr)
		assert.True(t, cfg.OrderEvents.Enabled)
		assert.Equal(t, "order-events", cfg.OrderEvents.TopicID)
		assert.Equal(t, "order-events-realtime", cfg.OrderEvents.SubscriptionID)
		assert.Equal(t, 128, cfg.WebSocket.SendBufferSize)
		assert.Equal(t, 5*time.Second, cfg.WebSocket.WriteTimeout)
		assert.Equal(t, 20*time.Second, cfg.WebSocket.PingInterval)
		assert.Equal(t, 45*time.Second, cfg.WebSocket.PongWait)
		assert.Equal(t, 30*time.Second, cfg.WebSocket.AuthTimeout)
		assert.Equal(t, int64(4096), cfg.WebSocket.MaxMessageBytes)
		assert.Equal(t, "additive", cfg.WebSocket.ReauthPolicy)
	})

	t.Run("Success - defaults presence to none", func(t *testing.T) {
		cfg, err := config.NewConfigFromYaml(&config.YamlConfig{APIPort: "1", WebSocketPort: "2"}, newTestLogger())

		require.NoError(t, err)
		assert.Equal(t, config.PresenceNone, cfg.Presence.Type)
	})

	t.Run("Success - quoted durations parse", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte("presence:\n  ttl: \"24h\"\n"), &yamlCfg))
		assert.Equal(t, 24*time.Hour, yamlCfg.Presence.TTL)
	})
}
