package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort          = 18790
	DefaultSendQueue     = 64
	DefaultCallTimeoutMs = 5000
	DefaultRedisChannel  = "chatdesk:rooms"
	DefaultKafkaTopic    = "chatdesk.events"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:      DefaultPort,
			Bind:      "loopback",
			SendQueue: DefaultSendQueue,
		},
		Store: StoreConfig{
			CallTimeoutMs: DefaultCallTimeoutMs,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Channel:  DefaultRedisChannel,
		},
		Kafka: KafkaConfig{
			Topic: DefaultKafkaTopic,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
