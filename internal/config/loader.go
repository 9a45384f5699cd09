package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Encryption.Passphrase = expandEnvVars(cfg.Encryption.Passphrase)
	cfg.Storage.DSN = expandEnvVars(cfg.Storage.DSN)
	cfg.Storage.Redis.Password = expandEnvVars(cfg.Storage.Redis.Password)
	cfg.Bridge.URL = expandEnvVars(cfg.Bridge.URL)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			expandSensitiveFields(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// Decode builds a Config from a raw map, the way Load would from a file
// holding the same content. Env overrides are not applied.
func Decode(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid config: " + err.Error()}
	}
	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
	if cfg.EventBus.MaxRetries == 0 {
		cfg.EventBus.MaxRetries = d.EventBus.MaxRetries
	}
	if cfg.EventBus.RetryDelayMs == 0 {
		cfg.EventBus.RetryDelayMs = d.EventBus.RetryDelayMs
	}
	if len(cfg.EventBus.Channels) == 0 {
		cfg.EventBus.Channels = d.EventBus.Channels
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.Storage.Format == "" {
		cfg.Storage.Format = d.Storage.Format
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = d.Storage.Redis.Prefix
	}
	if cfg.Encryption.Algorithm == "" {
		cfg.Encryption.Algorithm = d.Encryption.Algorithm
	}
	if cfg.Bridge.Backend == "" {
		cfg.Bridge.Backend = d.Bridge.Backend
	}
	if cfg.Bridge.Exchange == "" {
		cfg.Bridge.Exchange = d.Bridge.Exchange
	}
	if cfg.Bridge.Prefix == "" {
		cfg.Bridge.Prefix = d.Bridge.Prefix
	}
}

// applyEnvOverrides reads TRELLIS_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRELLIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRELLIS_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRELLIS_EVENTBUS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBus.MaxRetries = n
		}
	}
	if v := os.Getenv("TRELLIS_EVENTBUS_RETRY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBus.RetryDelayMs = n
		}
	}
}
