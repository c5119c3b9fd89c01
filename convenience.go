package configman

import (
	"fmt"
	"io"
	"strings"
)

// Configuration resolves defs against sources and returns the nested result.
// With no sources the file, environment and command-line defaults apply.
// Admin options and auto help are disabled.
func Configuration(defs []any, sources ...any) (map[string]any, error) {
	b := NewBuilder().
		WithDefinitions(defs...).
		WithAdminControls(false).
		WithAutoHelp(false)
	if len(sources) > 0 {
		b.WithSources(sources...)
	}
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	return m.GetConfig(Nested), nil
}

// Quick creates a fully resolved Manager with a single call
// This is the recommended way to initialize configuration for most applications
func Quick(structDefaults any, envPrefix, configFile string) (*Manager, error) {
	return NewBuilder().
		WithDefinitions(structDefaults).
		WithEnvPrefix(envPrefix).
		WithDefaultConfigPath(configFile).
		Build()
}

// MustQuick is like Quick but panics on error
func MustQuick(structDefaults any, envPrefix, configFile string) *Manager {
	m, err := Quick(structDefaults, envPrefix, configFile)
	if err != nil {
		panic(fmt.Sprintf("config initialization failed: %v", err))
	}
	return m
}

// Validate checks that all required configuration values are set
// A value is considered "set" if some value source assigned it
func (m *Manager) Validate(required ...string) error {
	var missing []string

	for _, path := range required {
		opt, ok := m.tree.Lookup(path)
		if !ok {
			missing = append(missing, path+" (not registered)")
			continue
		}
		if opt.source == "" {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// Dump writes the current configuration to w in TOML format
func (m *Manager) Dump(w io.Writer) error {
	return m.WriteConf(&TOMLWriter{}, WriterOpener(w))
}
