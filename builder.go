package configman

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ValidatorFunc defines the signature for a function that can validate a resolved configuration.
// It receives the final *Config and should return an error if validation fails.
type ValidatorFunc func(c *Config) error

// Builder provides a fluent interface for building a Manager
type Builder struct {
	defs           []any
	sources        []any
	args           []string
	argsSet        bool
	environ        []string
	envPrefix      string
	envTransform   EnvTransformFunc
	adminControls  bool
	autoHelp       bool
	configOptional bool
	defaultConfig  string
	discovery      *FileDiscoveryOptions
	tagName        string
	registry       *Registry
	logger         *slog.Logger
	helpOut        io.Writer
	appName        string
	appDescription string
	validators     []ValidatorFunc
}

// NewBuilder creates a new configuration builder
func NewBuilder() *Builder {
	return &Builder{
		adminControls: true,
		autoHelp:      true,
		tagName:       "toml",
		helpOut:       os.Stdout,
		appName:       filepath.Base(os.Args[0]),
	}
}

// WithDefinitions appends schema definitions: *Namespace, RequiredConfig
// values, map[string]any, JSON strings or structs with defaults. Later
// definitions of a key override earlier ones.
func (b *Builder) WithDefinitions(defs ...any) *Builder {
	b.defs = append(b.defs, defs...)
	return b
}

// WithSources sets the value sources in ascending precedence. Besides any
// value accepted by NewValueSource, the Source constants mark where the
// config file, the environment and the command line are applied.
func (b *Builder) WithSources(sources ...any) *Builder {
	b.sources = sources
	return b
}

// WithArgs sets the command-line arguments, without the program name
func (b *Builder) WithArgs(args []string) *Builder {
	b.args = args
	b.argsSet = true
	return b
}

// WithEnviron sets the environment snapshot as KEY=VALUE pairs
func (b *Builder) WithEnviron(environ []string) *Builder {
	b.environ = environ
	return b
}

// WithEnvPrefix sets the environment variable prefix
func (b *Builder) WithEnvPrefix(prefix string) *Builder {
	b.envPrefix = prefix
	return b
}

// WithEnvTransform sets a custom environment variable transformer
func (b *Builder) WithEnvTransform(fn EnvTransformFunc) *Builder {
	b.envTransform = fn
	return b
}

// WithAdminControls toggles the admin.conf, admin.dump_conf,
// admin.print_conf and admin.strict options
func (b *Builder) WithAdminControls(enabled bool) *Builder {
	b.adminControls = enabled
	return b
}

// WithAutoHelp toggles the --help/-h option
func (b *Builder) WithAutoHelp(enabled bool) *Builder {
	b.autoHelp = enabled
	return b
}

// WithConfigOptional makes an explicitly requested config file optional
func (b *Builder) WithConfigOptional(optional bool) *Builder {
	b.configOptional = optional
	return b
}

// WithDefaultConfigPath sets the config file used when admin.conf is not
// given. The file may be absent.
func (b *Builder) WithDefaultConfigPath(path string) *Builder {
	b.defaultConfig = path
	return b
}

// WithFileDiscovery enables automatic config file discovery
func (b *Builder) WithFileDiscovery(opts FileDiscoveryOptions) *Builder {
	b.discovery = &opts
	return b
}

// WithTagName sets the struct tag used for struct definitions and Scan
func (b *Builder) WithTagName(tagName string) *Builder {
	if tagName != "" {
		b.tagName = tagName
	}
	return b
}

// WithRegistry sets the registry consulted by map and JSON definitions and
// by class options whose converter was inferred from their default.
func (b *Builder) WithRegistry(reg *Registry) *Builder {
	b.registry = reg
	return b
}

// WithLogger sets the logger for resolution diagnostics
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHelpOutput sets where help and admin.print_conf are written
func (b *Builder) WithHelpOutput(w io.Writer) *Builder {
	b.helpOut = w
	return b
}

// WithApp sets the application name and description shown in help
func (b *Builder) WithApp(name, description string) *Builder {
	b.appName = name
	b.appDescription = description
	return b
}

// WithValidator adds a validation function that runs at the end of the build process
// Multiple validators can be added and are executed in the order they are added
func (b *Builder) WithValidator(fn ValidatorFunc) *Builder {
	if fn != nil {
		b.validators = append(b.validators, fn)
	}
	return b
}

// Build merges the definitions, resolves every source and evaluates the
// aggregations. When help is requested the help text is written and the
// returned error is ErrHelpRequested, together with a usable Manager.
func (b *Builder) Build() (*Manager, error) {
	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	reader := &definitionReader{registry: b.registry, tagName: b.tagName}
	tree, err := mergeDefinitions(reader, b.defs)
	if err != nil {
		return nil, fmt.Errorf("failed to merge definitions: %w", err)
	}
	definitions := tree.Copy()

	added, err := addAdminOptions(tree, b.adminControls, b.autoHelp, b.defaultConfig)
	if err != nil {
		return nil, err
	}

	args := b.args
	if !b.argsSet {
		args = os.Args[1:]
	}
	env := NewEnvSource(b.envPrefix, b.environ)
	env.Transform = b.envTransform
	cli := NewCommandLineSource(args)

	raw := b.sources
	if raw == nil {
		raw = DefaultSources
	}
	var (
		sources  []ValueSource
		fileSlot = -1
	)
	for _, s := range raw {
		switch s {
		case SourceFile:
			if fileSlot < 0 {
				fileSlot = len(sources)
				sources = append(sources, nil)
			}
		case SourceEnv:
			sources = append(sources, env)
		case SourceCLI:
			sources = append(sources, cli)
		default:
			src, err := NewValueSource(s)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		}
	}

	admin := prescanAdmin(tree, added, sources, logger)
	sources = b.placeConfigFile(sources, fileSlot, admin, env, logger)

	r := &resolver{
		tree:     tree,
		sources:  sources,
		expander: newExpander(logger),
		registry: b.registry,
		strict:   admin.Strict,
		logger:   logger,
	}
	resolveErr := r.resolve()

	m := &Manager{
		tree:           tree,
		definitions:    definitions,
		sources:        sources,
		cli:            cli,
		admin:          admin,
		appName:        b.appName,
		appDescription: b.appDescription,
		logger:         logger,
	}

	if admin.Help {
		m.config = configFromTree(tree, b.tagName)
		if err := m.WriteHelp(b.helpOut); err != nil {
			return nil, err
		}
		return m, ErrHelpRequested
	}
	if resolveErr != nil {
		return nil, resolveErr
	}

	m.admin = readAdmin(tree)
	detachAdmin(tree, added)

	if err := validateOptions(tree); err != nil {
		return nil, err
	}
	if err := aggregate(tree, b.tagName); err != nil {
		return nil, err
	}
	m.config = configFromTree(tree, b.tagName)

	if path := m.admin.DumpConf; path != "" {
		w, err := WriterFor(path)
		if err != nil {
			return nil, err
		}
		if err := m.WriteConf(w, FileOpener(path)); err != nil {
			return nil, fmt.Errorf("failed to dump config to '%s': %w", path, err)
		}
		logger.Debug("config dumped", "path", path)
	}
	if format := m.admin.PrintConf; format != "" {
		w, err := WriterFor(format)
		if err != nil {
			return nil, err
		}
		if err := m.WriteConf(w, WriterOpener(b.helpOut)); err != nil {
			return nil, fmt.Errorf("failed to print config: %w", err)
		}
	}

	// Run validators
	for _, validator := range b.validators {
		if err := validator(m.config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return m, nil
}

// placeConfigFile fills the config file slot of sources. admin.conf names a
// required file; the default path and discovered files are optional. Without
// a slot, a requested file is applied first.
func (b *Builder) placeConfigFile(sources []ValueSource, slot int, admin AdminSettings, env *EnvSource, logger *slog.Logger) []ValueSource {
	var file *FileSource
	switch {
	case admin.confRequested && admin.Conf != "":
		file = &FileSource{Path: admin.Conf, Optional: b.configOptional}
	case b.defaultConfig != "":
		file = &FileSource{Path: b.defaultConfig, Optional: true}
	case b.discovery != nil:
		if path := b.discovery.discover(env.Lookup); path != "" {
			file = &FileSource{Path: path, Optional: true}
		}
	}
	if file != nil {
		logger.Debug("config file selected", "path", file.Path, "optional", file.Optional)
	}

	switch {
	case slot >= 0 && file != nil:
		sources[slot] = file
	case slot >= 0:
		sources = append(sources[:slot], sources[slot+1:]...)
	case file != nil && admin.Conf != "":
		sources = append([]ValueSource{file}, sources...)
	}
	return sources
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Manager {
	m, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("config build failed: %v", err))
	}
	return m
}

// BuildAndScan builds and unmarshals the final configuration into the provided target struct pointer
func (b *Builder) BuildAndScan(target any) error {
	m, err := b.Build()
	if err != nil {
		return err
	}
	if err := m.Config().Scan("", target); err != nil {
		return fmt.Errorf("failed to scan final config into target: %w", err)
	}
	return nil
}

// AdminSettings are the values of the administrative options.
type AdminSettings struct {
	Conf      string
	DumpConf  string
	PrintConf string
	Strict    bool
	Help      bool

	// confRequested is set when a source assigned admin.conf.
	confRequested bool
}

const (
	adminNamespace = "admin"
	adminConf      = "admin.conf"
	adminDumpConf  = "admin.dump_conf"
	adminPrintConf = "admin.print_conf"
	adminStrict    = "admin.strict"
	helpOption     = "help"
)

// addAdminOptions adds the enabled administrative options that the
// definitions do not already declare and returns their paths.
func addAdminOptions(tree *Namespace, controls, help bool, defaultConf string) ([]string, error) {
	type adminOption struct {
		path string
		def  any
		doc  string
		opts []OptionSetting
	}
	var wanted []adminOption
	if controls {
		wanted = append(wanted,
			adminOption{path: adminConf, def: defaultConf, doc: "the pathname of the config file"},
			adminOption{path: adminDumpConf, def: "", doc: "a pathname to which to write the current config"},
			adminOption{path: adminPrintConf, def: "", doc: "write the current config to the help output in this format (json, yaml, ini, toml, hcl)"},
			adminOption{path: adminStrict, def: false, doc: "treat every value source as strict"},
		)
	}
	if help {
		wanted = append(wanted, adminOption{path: helpOption, def: false, doc: "print this message and exit", opts: []OptionSetting{WithShortForm("h")}})
	}

	var added []string
	for _, a := range wanted {
		if _, exists := tree.Get(a.path); exists {
			continue
		}
		parent, local, err := tree.parentFor(a.path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", a.path, err)
		}
		settings := append([]OptionSetting{WithDoc(a.doc), WithExcludeFromDump()}, a.opts...)
		opt, err := NewOption(local, a.def, settings...)
		if err != nil {
			return nil, err
		}
		if err := parent.AddOption(opt); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", a.path, err)
		}
		added = append(added, a.path)
	}
	if controls {
		if node, ok := tree.Get(adminNamespace); ok {
			if ns, isNs := node.(*Namespace); isNs && ns.Doc == "" {
				ns.Doc = "administrative controls"
			}
		}
	}
	return added, nil
}

// prescanAdmin reads the administrative options from sources before the
// config file is known. Sources that fail here are reported by the real pass.
func prescanAdmin(tree *Namespace, added []string, sources []ValueSource, logger *slog.Logger) AdminSettings {
	if len(added) == 0 {
		return AdminSettings{}
	}
	admin := NewNamespace()
	for _, path := range added {
		opt, _ := tree.Lookup(path)
		parent, _, _ := admin.parentFor(path, true)
		parent.AddOption(opt.Copy())
	}
	r := &resolver{tree: admin, expander: newExpander(logger), logger: logger}
	for _, src := range sources {
		if src == nil {
			continue
		}
		if err := r.apply(src, nil); err != nil {
			logger.Debug("admin pre-scan skipped source", "source", src.Identity(), "error", err)
		}
	}
	return readAdmin(admin)
}

func readAdmin(tree *Namespace) AdminSettings {
	text := func(path string) string {
		if opt, ok := tree.Lookup(path); ok {
			if s, ok := opt.Value.(string); ok {
				return s
			}
		}
		return ""
	}
	flag := func(path string) bool {
		if opt, ok := tree.Lookup(path); ok {
			b, _ := opt.Value.(bool)
			return b
		}
		return false
	}
	requested := false
	if opt, ok := tree.Lookup(adminConf); ok {
		requested = opt.source != ""
	}
	return AdminSettings{
		confRequested: requested,
		Conf:          text(adminConf),
		DumpConf:      text(adminDumpConf),
		PrintConf:     text(adminPrintConf),
		Strict:        flag(adminStrict),
		Help:          flag(helpOption),
	}
}

// detachAdmin removes the added administrative options so they do not
// appear in the resolved configuration.
func detachAdmin(tree *Namespace, added []string) {
	for _, path := range added {
		if parent, local, err := tree.parentFor(path, false); err == nil {
			parent.Delete(local)
		}
	}
	if node, ok := tree.Get(adminNamespace); ok {
		if ns, isNs := node.(*Namespace); isNs && ns.Len() == 0 {
			tree.Delete(adminNamespace)
		}
	}
}

// discardLogger returns a logger that drops every record.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
