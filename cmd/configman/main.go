package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lixenwraith/configman"
)

// main is the entrypoint for the configman demo application.
func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:], os.Environ()); err != nil {
		if errors.Is(err, configman.ErrHelpRequested) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run resolves the configuration and reports the storage connections it selects.
func run(outW, logW io.Writer, args, environ []string) error {
	reg := configman.DefaultRegistry
	registerStorage(reg)

	m, err := configman.NewBuilder().
		WithApp("configman", "copies a crash between storage systems").
		WithDefinitions(definitions(reg)).
		WithArgs(args).
		WithEnviron(environ).
		WithEnvPrefix("CONFIGMAN_").
		WithFileDiscovery(configman.DefaultDiscoveryOptions("configman")).
		WithHelpOutput(outW).
		Build()
	if err != nil {
		return err
	}

	cfg := m.Config()
	level, _ := cfg.String("log.level")
	format, _ := cfg.String("log.format")
	logger := newLogger(level, format, logW)
	logger.Debug("configuration resolved", "sources", m.Sources())
	logger.Debug("option values", "dump", m.Debug())

	crashID, _ := cfg.String("crash_id")
	if crashID == "" {
		return fmt.Errorf("a crash id is required, see --help")
	}
	src, _ := cfg.Get("source.connection")
	dst, _ := cfg.Get("destination.connection")
	fmt.Fprintf(outW, "copying %s from %v to %v\n", crashID, src, dst)

	for entry := range m.WalkConfig() {
		if agg, ok := entry.Node.(*configman.Aggregation); ok && entry.Key == "storage_instance" {
			fmt.Fprintf(outW, "  also to %v (%s)\n", agg.Value, entry.Path)
		}
	}
	if extra := m.Args(); len(extra) > 0 {
		logger.Warn("ignoring extra arguments", "args", extra)
	}
	return nil
}

func definitions(reg *configman.Registry) *configman.Namespace {
	ns := configman.NewNamespace()
	ns.Option("crash_id", "", configman.AsArgument(), configman.WithDoc("the crash to copy"))

	ns.Namespace("log", "logging")
	ns.Option("log.level", "info", configman.WithDoc("log level (debug, info, warn, error)"),
		configman.WithValidation("oneof=debug info warn error"))
	ns.Option("log.format", "text", configman.WithDoc("log format (text, json)"),
		configman.WithValidation("oneof=text json"))

	source := ns.Namespace("source", "where the crash is read from")
	source.Option("storage", mustClass(reg, "postgres"), configman.WithShortForm("s"),
		configman.WithDoc("the storage class to read from"), configman.WithFromString(reg.ClassConverter()))
	source.AddAggregation("connection", configman.Instantiate, "storage")

	destination := ns.Namespace("destination", "where the crash is written to")
	destination.Option("storage", mustClass(reg, "hbase"), configman.WithShortForm("d"),
		configman.WithDoc("the storage class to write to"), configman.WithFromString(reg.ClassConverter()))
	destination.AddAggregation("connection", configman.Instantiate, "storage")

	ns.Option("replicas", "", configman.WithDoc("additional storage classes to copy to, comma separated"),
		configman.WithFromString(reg.ClassListConverter(configman.ClassListOptions{
			Template:    "replica%d",
			OptionName:  "storage",
			Instantiate: true,
		})))
	return ns
}

func mustClass(reg *configman.Registry, name string) configman.Class {
	cls, ok := reg.Class(name)
	if !ok {
		panic("unregistered storage class " + name)
	}
	return cls
}

// newLogger creates a logger with the given level and format.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
