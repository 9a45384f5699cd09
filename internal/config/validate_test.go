package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "logging.level", issues[0].Path)
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}
}

func TestValidate_InvalidStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Style = "compact"
	assert.Equal(t, []string{"logging.style"}, issuePaths(Validate(&cfg)))
}

func TestValidate_EventBus(t *testing.T) {
	cfg := Defaults()
	cfg.EventBus.MaxRetries = -1
	cfg.EventBus.RetryDelayMs = -5
	cfg.EventBus.Channels = []string{"plugin", "", "plugin"}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "eventBus.maxRetries")
	assert.Contains(t, paths, "eventBus.retryDelayMs")
	assert.Contains(t, paths, "eventBus.channels.1")
	assert.Contains(t, paths, "eventBus.channels.2")
}

func TestValidate_StorageBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "etcd"
	assert.Equal(t, []string{"storage.backend"}, issuePaths(Validate(&cfg)))
}

func TestValidate_StorageFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Format = "ini"
	assert.Equal(t, []string{"storage.format"}, issuePaths(Validate(&cfg)))
}

func TestValidate_MySQLRequiresDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "mysql"
	assert.Equal(t, []string{"storage.dsn"}, issuePaths(Validate(&cfg)))

	cfg.Storage.DSN = "user:pw@tcp(localhost:3306)/trellis"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_RedisRequiresAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "redis"
	assert.Equal(t, []string{"storage.redis.addr"}, issuePaths(Validate(&cfg)))
}

func TestValidate_EncryptionAlgorithm(t *testing.T) {
	cfg := Defaults()
	cfg.Encryption.Algorithm = "des"
	assert.Equal(t, []string{"encryption.algorithm"}, issuePaths(Validate(&cfg)))
}

func TestValidate_EncryptionNeedsResolvedPassphrase(t *testing.T) {
	cfg := Defaults()
	cfg.Encryption.Enabled = true
	assert.Equal(t, []string{"encryption.passphrase"}, issuePaths(Validate(&cfg)))

	cfg.Encryption.Passphrase = "resolved"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Bridge(t *testing.T) {
	cfg := Defaults()
	cfg.Bridge.Backend = "kafka"
	assert.Equal(t, []string{"bridge.backend"}, issuePaths(Validate(&cfg)))

	cfg = Defaults()
	cfg.Bridge.Backend = "redis"
	cfg.Bridge.Channels = []string{"plugin", "metrics"}
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "bridge.url")
	assert.Contains(t, paths, "bridge.channels.1")
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "bad"
	cfg.Storage.Backend = "bad"
	cfg.Bridge.Backend = "bad"
	assert.Len(t, Validate(&cfg), 3)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "storage.backend", Message: "must be one of [memory]"}
	assert.Equal(t, "storage.backend: must be one of [memory]", issue.String())
}
