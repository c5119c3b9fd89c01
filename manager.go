package configman

import (
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
)

// Manager holds a resolved configuration: the expanded tree with its final
// values and evaluated aggregations. It is read-only once built.
type Manager struct {
	tree           *Namespace
	definitions    *Namespace
	config         *Config
	sources        []ValueSource
	cli            *CommandLineSource
	admin          AdminSettings
	appName        string
	appDescription string
	logger         *slog.Logger
}

// Config returns the resolved values, aggregations included.
func (m *Manager) Config() *Config {
	return m.config
}

// GetConfig materializes the resolved values as nested maps or as a flat
// dotted-key map.
func (m *Manager) GetConfig(kind ContainerType) map[string]any {
	return m.config.Map(kind)
}

// WalkConfig iterates the expanded tree depth-first. Each call starts a new
// walk.
func (m *Manager) WalkConfig() iter.Seq[WalkEntry] {
	return m.tree.Walk()
}

// WriteConf serializes the resolved tree with w into the destination from
// open. The destination is closed on every path.
func (m *Manager) WriteConf(w ConfWriter, open Opener) error {
	if err := writeTo(w, m.tree, open); err != nil {
		return err
	}
	m.logger.Debug("config written", "writer", fmt.Sprintf("%T", w))
	return nil
}

// Option returns the Option at a dotted path.
func (m *Manager) Option(path string) (*Option, error) {
	opt, ok := m.tree.Lookup(path)
	if !ok {
		return nil, &NotAnOptionError{Path: path}
	}
	return opt, nil
}

// Definitions returns a copy of the merged definitions before expansion and
// resolution.
func (m *Manager) Definitions() *Namespace {
	return m.definitions.Copy()
}

// Args returns the positional command-line arguments not bound to Options.
func (m *Manager) Args() []string {
	return m.cli.Extra()
}

// Admin returns the values of the administrative options.
func (m *Manager) Admin() AdminSettings {
	return m.admin
}

// Sources returns the identities of the applied value sources in order.
func (m *Manager) Sources() []string {
	ids := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		ids = append(ids, src.Identity())
	}
	return ids
}

// Debug returns a dump of every Option with its value and the source that
// set it.
func (m *Manager) Debug() string {
	type entry struct {
		Value  any
		Source string
	}
	dump := make(map[string]entry)
	for e := range m.tree.Walk() {
		if opt, ok := e.Node.(*Option); ok {
			dump[e.Path] = entry{Value: opt.Value, Source: opt.Source()}
		}
	}
	cfg := spew.ConfigState{
		Indent:                  "  ",
		SortKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	return cfg.Sdump(dump)
}

// WriteHelp writes the usage text for every Option of the tree.
func (m *Manager) WriteHelp(w io.Writer) error {
	if err := writeHelp(w, m.appName, m.appDescription, m.tree); err != nil {
		return fmt.Errorf("failed to write help: %w", err)
	}
	return nil
}
