package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const defaultBaseDir = ".trellis"

// Paths holds resolved filesystem paths for trellis data.
type Paths struct {
	Base    string // ~/.trellis
	Config  string // ~/.trellis/config.yaml
	Data    string // ~/.trellis/data
	DB      string // ~/.trellis/data/configs.db
	Configs string // ~/.trellis/configs, file storage
	Themes  string // ~/.trellis/themes
	Logs    string // ~/.trellis/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If TRELLIS_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("TRELLIS_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		Data:    filepath.Join(base, "data"),
		DB:      filepath.Join(base, "data", "configs.db"),
		Configs: filepath.Join(base, "configs"),
		Themes:  filepath.Join(base, "themes"),
		Logs:    filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Configs, p.Themes, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// sections are the top-level keys of the config file.
var sections = []string{"logging", "eventBus", "storage", "encryption", "bridge", "theme", "plugins"}

// secretPaths hold credentials and are masked when printed.
var secretPaths = []string{
	"encryption.passphrase",
	"storage.dsn",
	"storage.redis.password",
	"bridge.url",
}

// Sections returns the known top-level config keys.
func Sections() []string {
	return slices.Clone(sections)
}

// IsSecretPath reports whether path is, or contains, a credential.
func IsSecretPath(path []string) bool {
	joined := strings.Join(path, ".")
	for _, s := range secretPaths {
		if s == joined || strings.HasPrefix(s, joined+".") {
			return true
		}
	}
	return false
}

// ParseConfigPath splits a dot-separated config path into segments.
// The first segment must name a config section and no segment may be empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	if !slices.Contains(sections, parts[0]) {
		return nil, &ConfigError{Message: "unknown config section: " + parts[0]}
	}
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value at the given path. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			return false
		}
		m, ok := next.(map[string]any)
		if !ok {
			return false
		}
		current = m
	}
	last := path[len(path)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	delete(current, last)
	return true
}
