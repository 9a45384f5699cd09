// Package theme manages the host's current theme.
package theme

import (
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"gopkg.in/yaml.v3"
)

// Theme is a set of design tokens.
type Theme struct {
	Name       string            `yaml:"name,omitempty" json:"name,omitempty"`
	Colors     map[string]string `yaml:"colors" json:"colors"`
	Typography map[string]string `yaml:"typography,omitempty" json:"typography,omitempty"`
	Extra      map[string]any    `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// Default returns the empty starting theme.
func Default() Theme {
	return Theme{
		Colors:     map[string]string{},
		Typography: map[string]string{},
	}
}

// Clone returns a copy of t whose maps are not shared with t.
func (t Theme) Clone() Theme {
	c := Theme{
		Name:       t.Name,
		Colors:     cloneStrings(t.Colors),
		Typography: cloneStrings(t.Typography),
	}
	if t.Extra != nil {
		c.Extra = maps.Clone(t.Extra)
	}
	return c
}

// Manager holds the current theme.
type Manager struct {
	mu      sync.RWMutex
	current Theme
	log     *logging.Logger
}

// NewManager creates a manager holding the default theme.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		current: Default(),
		log:     log.Sub("theme"),
	}
}

// SetTheme replaces the current theme. The theme must define colors.
func (m *Manager) SetTheme(t Theme) error {
	if t.Colors == nil {
		return fault.New(fault.KindInvalidArgument, "invalid theme: colors are required")
	}
	next := t.Clone()
	if next.Typography == nil {
		next.Typography = map[string]string{}
	}
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	m.log.Info().Str("theme", t.Name).Int("colors", len(t.Colors)).Msg("theme set")
	return nil
}

// ExtendTheme merges partial over the current theme. Colors and typography
// are merged key by key; Extra keys replace existing top-level entries.
func (m *Manager) ExtendTheme(partial Theme) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if partial.Name != "" {
		m.current.Name = partial.Name
	}
	maps.Copy(m.current.Colors, partial.Colors)
	maps.Copy(m.current.Typography, partial.Typography)
	if len(partial.Extra) > 0 {
		if m.current.Extra == nil {
			m.current.Extra = make(map[string]any, len(partial.Extra))
		}
		maps.Copy(m.current.Extra, partial.Extra)
	}
	m.log.Debug().Int("colors", len(partial.Colors)).Int("typography", len(partial.Typography)).Msg("theme extended")
}

// CurrentTheme returns a copy of the current theme.
func (m *Manager) CurrentTheme() Theme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// LoadFile reads a theme from a YAML file and makes it current.
func (m *Manager) LoadFile(path string) error {
	t, err := LoadFile(path)
	if err != nil {
		return err
	}
	return m.SetTheme(t)
}

// LoadFile reads a theme from a YAML file.
func LoadFile(path string) (Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Theme{}, fmt.Errorf("reading theme %s: %w", path, err)
	}
	var t Theme
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Theme{}, fmt.Errorf("parsing theme %s: %w", path, err)
	}
	return t, nil
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
