package config

// Config is the root configuration for the trellis host.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	EventBus   EventBusConfig   `yaml:"eventBus,omitempty"`
	Storage    StorageConfig    `yaml:"storage,omitempty"`
	Encryption EncryptionConfig `yaml:"encryption,omitempty"`
	Bridge     BridgeConfig     `yaml:"bridge,omitempty"`
	Theme      ThemeConfig      `yaml:"theme,omitempty"`
	Plugins    PluginsConfig    `yaml:"plugins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}

// EventBusConfig controls event delivery.
type EventBusConfig struct {
	MaxRetries   int      `yaml:"maxRetries,omitempty"`
	RetryDelayMs int      `yaml:"retryDelayMs,omitempty"`
	Channels     []string `yaml:"channels,omitempty"` // registered at startup
}

// StorageConfig selects where plugin configs are persisted.
type StorageConfig struct {
	Backend string      `yaml:"backend,omitempty"` // "memory" | "file" | "sqlite" | "mysql" | "redis"
	Path    string      `yaml:"path,omitempty"`    // directory (file) or database file (sqlite)
	Format  string      `yaml:"format,omitempty"`  // "yaml" | "toml", file backend only
	DSN     string      `yaml:"dsn,omitempty"`     // mysql
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures a redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// EncryptionConfig controls encryption of sensitive plugin config fields.
type EncryptionConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Algorithm  string `yaml:"algorithm,omitempty"` // "aes-256-gcm" | "chacha20-poly1305"
	Passphrase string `yaml:"passphrase,omitempty"`
}

// BridgeConfig forwards bus events to an external broker.
type BridgeConfig struct {
	Backend  string   `yaml:"backend,omitempty"` // "none" | "redis" | "amqp"
	URL      string   `yaml:"url,omitempty"`
	Channels []string `yaml:"channels,omitempty"`
	Exchange string   `yaml:"exchange,omitempty"` // amqp only
	Prefix   string   `yaml:"prefix,omitempty"`   // topic prefix
}

// ThemeConfig points at a theme file applied at startup.
type ThemeConfig struct {
	File string `yaml:"file,omitempty"`
}

// PluginsConfig lists the builtin plugins to install.
type PluginsConfig struct {
	Enabled []string `yaml:"enabled,omitempty"`
}
