package configman

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceDefaults struct {
	Host  string `toml:"host" doc:"the host" short:"H"`
	Port  int    `toml:"port" validate:"min=1"`
	Input string `toml:"input" arg:"true"`
	TLS   struct {
		Enabled bool   `toml:"enabled"`
		Cert    string `toml:"cert_file"`
	} `toml:"tls"`
	Skipped string `toml:"-"`
	private int
}

func TestClassifyDefinition(t *testing.T) {
	assert.Equal(t, DefinitionSchemaNode, ClassifyDefinition(NewNamespace()))
	assert.Equal(t, DefinitionRequiredConfig, ClassifyDefinition(counter{}))
	assert.Equal(t, DefinitionMapping, ClassifyDefinition(map[string]any{}))
	assert.Equal(t, DefinitionEncodedString, ClassifyDefinition(`{"a": 1}`))
	assert.Equal(t, DefinitionEncodedString, ClassifyDefinition([]byte(`{"a": 1}`)))
	assert.Equal(t, DefinitionObject, ClassifyDefinition(&serviceDefaults{}))
	assert.Equal(t, DefinitionUnknown, ClassifyDefinition(3.14))
}

func TestNamespaceFromMap(t *testing.T) {
	t.Run("Shapes", func(t *testing.T) {
		reg := NewRegistry()
		reg.RegisterAggregation("upper", func(_, local *Config, args any) (any, error) {
			s, err := local.String(args.(string))
			return strings.ToUpper(s), err
		})

		ns, err := NamespaceFromMap(map[string]any{
			"name": "app",
			"port": 80,
			"db":   map[string]any{"host": "localhost"},
			"level": map[string]any{
				"name":       "level",
				"default":    "info",
				"doc":        "log level",
				"short_form": "l",
			},
			"workers": map[string]any{
				"name":                  "workers",
				"default":               "8",
				"from_string_converter": "int",
			},
			"shout":    map[string]any{"function": "upper", "args": "name", "doc": "the name, louder"},
			"__hidden": 1,
		}, reg)
		require.NoError(t, err)

		assert.Equal(t, []string{"db", "level", "name", "port", "shout", "workers"}, ns.Keys())
		assert.Equal(t, "localhost", optionValue(t, ns, "db.host"))
		assert.Equal(t, 80, optionValue(t, ns, "port"))
		assert.Equal(t, 8, optionValue(t, ns, "workers"))

		level, _ := ns.Lookup("level")
		assert.Equal(t, "log level", level.Doc)
		assert.Equal(t, "l", level.ShortForm)

		node, _ := ns.Get("shout")
		agg, ok := node.(*Aggregation)
		require.True(t, ok)
		assert.Equal(t, "name", agg.Args)
		assert.Equal(t, "the name, louder", agg.Doc)
	})

	t.Run("UnknownConverter", func(t *testing.T) {
		_, err := NamespaceFromMap(map[string]any{
			"x": map[string]any{"name": "x", "default": "1", "from_string_converter": "nope"},
		}, nil)
		assert.ErrorIs(t, err, ErrOptionDefinition)
	})

	t.Run("UnknownAggregation", func(t *testing.T) {
		_, err := NamespaceFromMap(map[string]any{"x": map[string]any{"function": "nope"}}, nil)
		assert.ErrorIs(t, err, ErrOptionDefinition)
	})

	t.Run("PrebuiltNodes", func(t *testing.T) {
		opt, err := NewOption("ignored", 5)
		require.NoError(t, err)
		sub := NewNamespace()
		sub.Option("inner", true)

		ns, err := NamespaceFromMap(map[string]any{"five": opt, "sub": sub}, nil)
		require.NoError(t, err)
		five, _ := ns.Lookup("five")
		assert.Equal(t, "five", five.Name)
		assert.Equal(t, true, optionValue(t, ns, "sub.inner"))
	})
}

func TestNamespaceFromJSON(t *testing.T) {
	t.Run("DocumentOrder", func(t *testing.T) {
		ns, err := NamespaceFromJSON(`{
			"zeta": 1,
			"alpha": {"ratio": 2.5, "size": {"name": "size", "default": "10", "from_string_converter": "int"}},
			"tags": ["a", "b"]
		}`, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"zeta", "alpha", "alpha.ratio", "alpha.size", "tags"}, walkPaths(ns))
		assert.Equal(t, 1, optionValue(t, ns, "zeta"))
		assert.Equal(t, 2.5, optionValue(t, ns, "alpha.ratio"))
		assert.Equal(t, 10, optionValue(t, ns, "alpha.size"))
		assert.Equal(t, []any{"a", "b"}, optionValue(t, ns, "tags"))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := NamespaceFromJSON(`{"a": `, nil)
		assert.ErrorIs(t, err, ErrOptionDefinition)

		_, err = NamespaceFromJSON(`[1, 2]`, nil)
		assert.ErrorIs(t, err, ErrOptionDefinition)
	})
}

func TestNamespaceFromStruct(t *testing.T) {
	defaults := serviceDefaults{Host: "localhost", Port: 8080}
	defaults.TLS.Cert = "/etc/tls.pem"

	ns, err := NamespaceFromStruct(&defaults, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"host", "port", "input", "tls", "tls.enabled", "tls.cert_file"}, walkPaths(ns))

	host, _ := ns.Lookup("host")
	assert.Equal(t, "the host", host.Doc)
	assert.Equal(t, "H", host.ShortForm)

	port, _ := ns.Lookup("port")
	assert.Equal(t, 8080, port.Default)
	assert.Equal(t, "min=1", port.Validate)

	input, _ := ns.Lookup("input")
	assert.True(t, input.IsArgument)
	assert.Equal(t, "/etc/tls.pem", optionValue(t, ns, "tls.cert_file"))

	_, err = NamespaceFromStruct(42, "")
	assert.Error(t, err)
}

func TestMergeDefinitions(t *testing.T) {
	t.Run("LaterOverrides", func(t *testing.T) {
		tree, err := mergeDefinitions(&definitionReader{}, []any{
			map[string]any{"a": 1, "b": "x", "c": true},
			`{"a": 2}`,
			counter{},
		})
		require.NoError(t, err)

		assert.Equal(t, 2, optionValue(t, tree, "a"))
		assert.Equal(t, 17, optionValue(t, tree, "b"))
		assert.Equal(t, true, optionValue(t, tree, "c"))
	})

	t.Run("ShapeConflict", func(t *testing.T) {
		_, err := mergeDefinitions(&definitionReader{}, []any{
			map[string]any{"db": map[string]any{"host": "x"}},
			map[string]any{"db": "flat"},
		})
		require.ErrorIs(t, err, ErrOptionDefinition)
		assert.Contains(t, err.Error(), "definition 1")
	})

	t.Run("UnsupportedDefinition", func(t *testing.T) {
		_, err := mergeDefinitions(&definitionReader{}, []any{42})
		assert.ErrorIs(t, err, ErrCantHandleSource)
	})
}
