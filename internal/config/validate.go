package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/trellis/internal/logging"
	"github.com/soyeahso/trellis/internal/secure"
	"github.com/soyeahso/trellis/internal/storage"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Logging validation
	if cfg.Logging.Level != "" && !logging.ValidLevel(cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", logging.Levels(), cfg.Logging.Level),
		})
	}
	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	// Event bus validation
	if cfg.EventBus.MaxRetries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "eventBus.maxRetries",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.EventBus.MaxRetries),
		})
	}
	if cfg.EventBus.RetryDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "eventBus.retryDelayMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.EventBus.RetryDelayMs),
		})
	}
	seen := make(map[string]bool)
	for i, ch := range cfg.EventBus.Channels {
		path := fmt.Sprintf("eventBus.channels.%d", i)
		switch {
		case strings.TrimSpace(ch) == "":
			issues = append(issues, ValidationIssue{Path: path, Message: "channel name is required"})
		case seen[ch]:
			issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf("duplicate channel %q", ch)})
		}
		seen[ch] = true
	}

	// Storage validation
	if cfg.Storage.Backend != "" && !slices.Contains(storage.Backends(), cfg.Storage.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "storage.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", storage.Backends(), cfg.Storage.Backend),
		})
	}
	validFormats := []string{storage.FormatYAML, storage.FormatTOML}
	if cfg.Storage.Format != "" && !slices.Contains(validFormats, cfg.Storage.Format) {
		issues = append(issues, ValidationIssue{
			Path:    "storage.format",
			Message: fmt.Sprintf("must be one of %v, got %q", validFormats, cfg.Storage.Format),
		})
	}
	if cfg.Storage.Backend == storage.BackendMySQL && cfg.Storage.DSN == "" {
		issues = append(issues, ValidationIssue{
			Path:    "storage.dsn",
			Message: "required when backend is mysql",
		})
	}
	if cfg.Storage.Backend == storage.BackendRedis && cfg.Storage.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{
			Path:    "storage.redis.addr",
			Message: "required when backend is redis",
		})
	}

	// Encryption validation
	if cfg.Encryption.Algorithm != "" && !secure.SupportedAlgorithm(cfg.Encryption.Algorithm) {
		issues = append(issues, ValidationIssue{
			Path:    "encryption.algorithm",
			Message: fmt.Sprintf("must be one of %v, got %q", secure.Algorithms(), cfg.Encryption.Algorithm),
		})
	}
	if cfg.Encryption.Enabled && (cfg.Encryption.Passphrase == "" || envVarPattern.MatchString(cfg.Encryption.Passphrase)) {
		issues = append(issues, ValidationIssue{
			Path:    "encryption.passphrase",
			Message: "required when encryption is enabled",
		})
	}

	// Bridge validation
	validBridges := []string{"none", "redis", "amqp"}
	if cfg.Bridge.Backend != "" && !slices.Contains(validBridges, cfg.Bridge.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "bridge.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBridges, cfg.Bridge.Backend),
		})
	}
	if cfg.Bridge.Backend == "redis" || cfg.Bridge.Backend == "amqp" {
		if cfg.Bridge.URL == "" {
			issues = append(issues, ValidationIssue{
				Path:    "bridge.url",
				Message: "required when bridge is enabled",
			})
		}
		for i, ch := range cfg.Bridge.Channels {
			if !seen[ch] {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("bridge.channels.%d", i),
					Message: fmt.Sprintf("channel %q is not registered on the event bus", ch),
				})
			}
		}
	}

	return issues
}
