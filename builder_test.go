package configman

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// testBuilder isolates a Builder from the process arguments and environment.
func testBuilder(defs ...any) *Builder {
	return NewBuilder().
		WithDefinitions(defs...).
		WithArgs([]string{}).
		WithEnviron([]string{}).
		WithHelpOutput(io.Discard).
		WithApp("svc", "")
}

func TestBuilder(t *testing.T) {
	t.Run("DefaultsOnly", func(t *testing.T) {
		m, err := testBuilder(serverTree()).Build()
		require.NoError(t, err)

		assert.Equal(t, map[string]any{
			"server": map[string]any{"host": "localhost", "port": 8080},
			"debug":  false,
		}, m.GetConfig(Nested))
		assert.Equal(t, []string{"environment", "command line"}, m.Sources())
	})

	t.Run("Precedence", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "svc.toml", "debug = true\n\n[server]\nhost = \"file-host\"\nport = 1\n")

		m, err := testBuilder(serverTree()).
			WithDefaultConfigPath(path).
			WithEnvPrefix("SVC_").
			WithEnviron([]string{"SVC_SERVER_PORT=2", "SVC_DEBUG=false"}).
			WithArgs([]string{"--server.port=3"}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, map[string]any{
			"server.host": "file-host",
			"server.port": 3,
			"debug":       false,
		}, m.GetConfig(Flat))
		assert.Equal(t, []string{"file " + path, "environment", "command line"}, m.Sources())

		host, err := m.Option("server.host")
		require.NoError(t, err)
		assert.Equal(t, "file "+path, host.Source())
		debug, _ := m.Option("debug")
		assert.Equal(t, "environment", debug.Source())
		port, _ := m.Option("server.port")
		assert.Equal(t, "command line", port.Source())
	})

	t.Run("ExplicitConfigFile", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "other.yaml", "server:\n  port: 9000\n")

		m, err := testBuilder(serverTree()).WithArgs([]string{"--admin.conf", path}).Build()
		require.NoError(t, err)
		assert.Equal(t, path, m.Admin().Conf)
		assert.Equal(t, 9000, m.GetConfig(Flat)["server.port"])
		_, hasAdmin := m.GetConfig(Nested)["admin"]
		assert.False(t, hasAdmin)
	})

	t.Run("ExplicitConfigFileMissing", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.toml")

		_, err := testBuilder(serverTree()).WithArgs([]string{"--admin.conf=" + missing}).Build()
		assert.ErrorIs(t, err, ErrConfigFileMissing)

		_, err = testBuilder(serverTree()).
			WithArgs([]string{"--admin.conf=" + missing}).
			WithConfigOptional(true).
			Build()
		assert.NoError(t, err)

		_, err = testBuilder(serverTree()).
			WithDefaultConfigPath(missing).
			WithArgs([]string{"--admin.conf=" + missing}).
			Build()
		assert.ErrorIs(t, err, ErrConfigFileMissing)
	})

	t.Run("DefaultConfigFileMissing", func(t *testing.T) {
		m, err := testBuilder(serverTree()).
			WithDefaultConfigPath(filepath.Join(t.TempDir(), "absent.toml")).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 8080, m.GetConfig(Flat)["server.port"])
	})

	t.Run("ClassSelection", func(t *testing.T) {
		reg := storeRegistry()
		m, err := testBuilder(storeTree(reg)).
			WithArgs([]string{"--db.kind=my", "--db.sslmode=require"}).
			Build()
		require.NoError(t, err)

		flat := m.GetConfig(Flat)
		assert.Equal(t, 3306, flat["db.port"])
		assert.Equal(t, "require", flat["db.sslmode"])
		kind, _ := m.Config().String("db.kind")
		assert.Equal(t, "my", kind)
	})

	t.Run("InferredClassUsesRegistry", func(t *testing.T) {
		reg := storeRegistry()
		pg, _ := reg.Class("pg")
		ns := NewNamespace()
		ns.Option("db.kind", pg)
		ns.Option("backup", pgStore{})

		m, err := testBuilder(ns).
			WithRegistry(reg).
			WithArgs([]string{"--db.kind=my", "--backup=my"}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, 3306, m.GetConfig(Flat)["db.port"])
		kind, err := m.Option("db.kind")
		require.NoError(t, err)
		assert.Equal(t, "my", kind.Value.(Class).Name)
		backup, err := m.Option("backup")
		require.NoError(t, err)
		assert.Equal(t, myStore{}, backup.Value)

		_, err = testBuilder(ns).WithArgs([]string{"--db.kind=my"}).Build()
		assert.ErrorIs(t, err, ErrCannotConvert)
	})

	t.Run("CustomSourceOrder", func(t *testing.T) {
		m, err := testBuilder(serverTree()).
			WithSources(SourceCLI, map[string]any{"server": map[string]any{"port": 1}}).
			WithArgs([]string{"--server.port=2", "--debug"}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, []string{"command line", "mapping"}, m.Sources())
		assert.Equal(t, 1, m.GetConfig(Flat)["server.port"])
		assert.Equal(t, true, m.GetConfig(Flat)["debug"])
	})

	t.Run("PositionalArguments", func(t *testing.T) {
		m, err := testBuilder(cliTree()).WithArgs([]string{"in.txt", "-v", "more"}).Build()
		require.NoError(t, err)

		assert.Equal(t, "in.txt", m.GetConfig(Flat)["input"])
		assert.Equal(t, true, m.GetConfig(Flat)["verbose"])
		assert.Equal(t, []string{"more"}, m.Args())
	})

	t.Run("BadInput", func(t *testing.T) {
		_, err := testBuilder(3.14).Build()
		assert.ErrorIs(t, err, ErrCantHandleSource)

		_, err = testBuilder(serverTree()).WithSources(3.14).Build()
		assert.ErrorIs(t, err, ErrCantHandleSource)

		_, err = testBuilder(serverTree()).WithArgs([]string{"--server.port=abc"}).Build()
		var convErr *ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, "server.port", convErr.Path)
		assert.Equal(t, "command line", convErr.Source)

		_, err = testBuilder(serverTree()).WithArgs([]string{"--server.prot=1"}).Build()
		assert.ErrorIs(t, err, ErrNotAnOption)
	})

	t.Run("Logger", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

		_, err := testBuilder(serverTree()).WithLogger(logger).WithArgs([]string{"--debug"}).Build()
		require.NoError(t, err)
		assert.Contains(t, logs.String(), "value source applied")
	})
}

func TestBuilderAdmin(t *testing.T) {
	t.Run("Help", func(t *testing.T) {
		var out bytes.Buffer
		m, err := testBuilder(serverTree()).
			WithApp("svc", "serves things").
			WithHelpOutput(&out).
			WithArgs([]string{"--help"}).
			Build()
		require.ErrorIs(t, err, ErrHelpRequested)
		require.NotNil(t, m)

		assert.Contains(t, out.String(), "svc - serves things")
		assert.Contains(t, out.String(), "-p, --server.port")
		assert.Contains(t, out.String(), "--admin.conf")
	})

	t.Run("HelpDespiteBadValue", func(t *testing.T) {
		var out bytes.Buffer
		_, err := testBuilder(serverTree()).
			WithHelpOutput(&out).
			WithArgs([]string{"-h", "--server.port=abc"}).
			Build()
		require.ErrorIs(t, err, ErrHelpRequested)
		assert.Contains(t, out.String(), "usage:")
	})

	t.Run("HelpDisabled", func(t *testing.T) {
		var out bytes.Buffer
		m, err := testBuilder(serverTree()).
			WithAutoHelp(false).
			WithHelpOutput(&out).
			WithArgs([]string{"--help"}).
			Build()
		assert.ErrorIs(t, err, ErrHelpRequested)
		assert.Nil(t, m)
		assert.Empty(t, out.String())
	})

	t.Run("DumpConf", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dumped.json")

		_, err := testBuilder(serverTree()).
			WithArgs([]string{"--server.port=7", "--admin.dump_conf=" + path}).
			Build()
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, int64(7), gjson.GetBytes(data, "server.port").Int())
		assert.False(t, gjson.GetBytes(data, "admin").Exists())
	})

	t.Run("PrintConf", func(t *testing.T) {
		var out bytes.Buffer
		m, err := testBuilder(serverTree()).
			WithHelpOutput(&out).
			WithArgs([]string{"--admin.print_conf", "json"}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, "json", m.Admin().PrintConf)
		assert.Equal(t, "localhost", gjson.Get(out.String(), "server.host").String())
	})

	t.Run("Strict", func(t *testing.T) {
		loose := &MappingSource{Name: "loose", Values: map[string]any{"nope": 1}, Permissive: true}

		_, err := testBuilder(serverTree()).WithSources(loose, SourceCLI).Build()
		require.NoError(t, err)

		_, err = testBuilder(serverTree()).
			WithSources(loose, SourceCLI).
			WithArgs([]string{"--admin.strict"}).
			Build()
		assert.ErrorIs(t, err, ErrNotAnOption)
	})

	t.Run("Disabled", func(t *testing.T) {
		_, err := testBuilder(serverTree()).
			WithAdminControls(false).
			WithArgs([]string{"--admin.strict"}).
			Build()
		assert.ErrorIs(t, err, ErrNotAnOption)
	})
}

func TestBuilderValidation(t *testing.T) {
	t.Run("Tags", func(t *testing.T) {
		_, err := testBuilder(&serviceDefaults{Host: "h", Port: 8080}).WithArgs([]string{"--port=0"}).Build()
		require.ErrorIs(t, err, ErrInvalidValue)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("Validators", func(t *testing.T) {
		var seen int
		_, err := testBuilder(serverTree()).
			WithValidator(func(c *Config) error {
				seen, _ = c.Int("server.port")
				return nil
			}).
			WithValidator(func(c *Config) error {
				return errors.New("port not allowed")
			}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration validation failed")
		assert.Equal(t, 8080, seen)
	})
}

func TestBuildAndScan(t *testing.T) {
	var target struct {
		Server struct {
			Host string `toml:"host"`
			Port int    `toml:"port"`
		} `toml:"server"`
		Debug bool `toml:"debug"`
	}
	err := testBuilder(serverTree()).WithArgs([]string{"--debug", "-p", "81"}).BuildAndScan(&target)
	require.NoError(t, err)

	assert.Equal(t, "localhost", target.Server.Host)
	assert.Equal(t, 81, target.Server.Port)
	assert.True(t, target.Debug)
}

func TestBuilderDiscovery(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "svc.toml", "[server]\nport = 4242\n")
	opts := FileDiscoveryOptions{Name: "svc", Extensions: []string{".json", ".toml"}, Paths: []string{dir}}

	t.Run("SearchPaths", func(t *testing.T) {
		m, err := testBuilder(serverTree()).WithFileDiscovery(opts).Build()
		require.NoError(t, err)
		assert.Equal(t, 4242, m.GetConfig(Flat)["server.port"])
		assert.Equal(t, "file "+path, m.Sources()[0])
	})

	t.Run("EnvVar", func(t *testing.T) {
		other := writeFile(t, t.TempDir(), "elsewhere.yaml", "server:\n  port: 5151\n")
		withEnv := opts
		withEnv.EnvVar = "SVC_CONFIG"

		m, err := testBuilder(serverTree()).
			WithFileDiscovery(withEnv).
			WithEnviron([]string{"SVC_CONFIG=" + other}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 5151, m.GetConfig(Flat)["server.port"])
	})

	t.Run("NothingFound", func(t *testing.T) {
		m, err := testBuilder(serverTree()).
			WithFileDiscovery(FileDiscoveryOptions{Name: "absent", Extensions: []string{".toml"}, Paths: []string{dir}}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, []string{"environment", "command line"}, m.Sources())
	})
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "svc"), 0755))
	path := writeFile(t, filepath.Join(xdg, "svc"), "svc.ini", "[server]\nport = 1\n")

	env := map[string]string{"XDG_CONFIG_HOME": xdg}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	opts := DefaultDiscoveryOptions("svc")
	opts.UseCurrentDir = false
	assert.Equal(t, "SVC_CONFIG", opts.EnvVar)
	assert.Equal(t, path, opts.discover(lookup))

	env["SVC_CONFIG"] = "/explicit/path.toml"
	assert.Equal(t, "/explicit/path.toml", opts.discover(lookup))

	paths := getXDGConfigPaths("svc", func(k string) (string, bool) {
		if k == "HOME" {
			return "/home/u", true
		}
		return "", false
	})
	assert.Equal(t, []string{"/home/u/.config/svc", "/etc/xdg/svc", "/etc/svc"}, paths)
}
