package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
		EventBus: EventBusConfig{
			MaxRetries:   3,
			RetryDelayMs: 1000,
			Channels:     []string{"plugin", "config"},
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Format:  "yaml",
			Redis: RedisConfig{
				Prefix: "trellis",
			},
		},
		Encryption: EncryptionConfig{
			Algorithm:  "aes-256-gcm",
			Passphrase: "${TRELLIS_SECRET}",
		},
		Bridge: BridgeConfig{
			Backend:  "none",
			Channels: []string{"plugin", "config"},
			Exchange: "trellis.events",
			Prefix:   "trellis",
		},
		Plugins: PluginsConfig{
			Enabled: []string{"calendar"},
		},
	}
}
