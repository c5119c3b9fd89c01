// Package configman builds an application's configuration from a declarative
// schema and an ordered list of value sources.
//
// A schema is a tree of Namespaces holding Options (typed, documented leaves
// with a default and a string converter) and Aggregations (values derived
// after resolution). A value that implements RequiredConfig contributes its
// own sub-schema to the Namespace holding it; the tree is expanded until no
// such value adds anything new.
//
// Features:
//   - Schema definitions from Namespaces, maps, JSON strings, structs and RequiredConfig values
//   - Value sources for mappings, structs, environment, command line and INI, JSON, YAML, TOML and HCL files
//   - Class registry and class lists whose selection grows the schema at resolution time
//   - Type conversion from strings and native values, with per-option converters
//   - Aggregations evaluated bottom-up over the resolved tree
//   - Writers for every supported file format and a JSON Schema export
//   - Builder pattern with admin options (--admin.conf, --admin.dump_conf, --admin.print_conf) and --help
//   - Source tracking to see where values originated
//
// Quick Start:
//
//	ns := configman.NewNamespace()
//	ns.Option("server.host", "localhost", configman.WithDoc("listen address"))
//	ns.Option("server.port", 8080, configman.WithShortForm("p"))
//
//	m, err := configman.NewBuilder().
//	    WithDefinitions(ns).
//	    WithEnvPrefix("MYAPP_").
//	    WithDefaultConfigPath("myapp.ini").
//	    Build()
//	if errors.Is(err, configman.ErrHelpRequested) {
//	    os.Exit(0)
//	}
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	host, _ := m.Config().String("server.host")
//	port, _ := m.Config().Int("server.port")
//
// Default Precedence (highest to lowest):
//  1. Command-line arguments (--server.port=9090, -p 9090)
//  2. Environment variables (MYAPP_SERVER_PORT=9090 or server__port=9090)
//  3. Configuration file (admin.conf, the default path, or a discovered file)
//  4. Default values
//
// Custom Precedence:
//
//	m, err := configman.NewBuilder().
//	    WithDefinitions(ns).
//	    WithSources(
//	        map[string]any{"server.port": 9000},
//	        configman.SourceEnv,
//	        configman.SourceFile, // file overrides environment
//	        configman.SourceCLI,
//	    ).
//	    Build()
//
// A resolved Manager is read-only and safe for concurrent readers.
package configman
