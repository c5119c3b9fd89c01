package configman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverTree() *Namespace {
	ns := NewNamespace()
	ns.Option("server.host", "localhost", WithDoc("listen address"))
	ns.Option("server.port", 8080, WithDoc("listen port"), WithShortForm("p"))
	ns.Option("debug", false)
	return ns
}

type overrides struct {
	Debug  bool `toml:"debug"`
	Server struct {
		Port int `toml:"port"`
	} `toml:"server"`
	Unknown string `toml:"unknown"`
}

type strictOverrides struct {
	Unknown string `toml:"unknown"`
}

func (strictOverrides) AlwaysIgnoreMismatches() bool { return false }

func TestMappingSource(t *testing.T) {
	t.Run("DottedAndNestedKeys", func(t *testing.T) {
		tree := serverTree()
		src := NewMappingSource(map[string]any{
			"server":      map[string]any{"host": "example.com"},
			"server.port": 9090,
		})

		flat, err := src.GetValues(tree, false, Flat)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"server.host": "example.com", "server.port": 9090}, flat)

		nested, err := src.GetValues(tree, false, Nested)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"server": map[string]any{"host": "example.com", "port": 9090}}, nested)
	})

	t.Run("MapValuedOption", func(t *testing.T) {
		tree := NewNamespace()
		tree.Option("labels", map[string]any{})

		src := NewMappingSource(map[string]any{"labels": map[string]any{"team": "core"}})
		require.NoError(t, Resolve(tree, src))
		assert.Equal(t, map[string]any{"team": "core"}, optionValue(t, tree, "labels"))
	})

	t.Run("PermissiveFlag", func(t *testing.T) {
		src := NewMappingSource(map[string]any{"always_ignore_mismatches": "yes", "x": 1})
		assert.True(t, src.IgnoreMismatches())
		assert.NotContains(t, src.Values, "always_ignore_mismatches")

		flat, err := src.GetValues(serverTree(), true, Flat)
		require.NoError(t, err)
		assert.Empty(t, flat)
		require.NoError(t, Resolve(serverTree(), src))

		_, err = src.GetValues(serverTree(), false, Flat)
		assert.ErrorIs(t, err, ErrNotAnOption)
	})

	t.Run("MalformedPermissiveFlag", func(t *testing.T) {
		for _, v := range []any{"sometimes", 1} {
			src := NewMappingSource(map[string]any{"always_ignore_mismatches": v, "debug": true})
			assert.False(t, src.IgnoreMismatches())

			_, err := src.GetValues(serverTree(), true, Flat)
			assert.ErrorIs(t, err, ErrCannotConvert)
			assert.Contains(t, err.Error(), "always_ignore_mismatches")

			assert.ErrorIs(t, Resolve(serverTree(), src), ErrCannotConvert)
		}
	})
}

func TestObjectSource(t *testing.T) {
	t.Run("PermissiveByDefault", func(t *testing.T) {
		tree := serverTree()
		obj := overrides{Debug: true, Unknown: "ignored"}
		obj.Server.Port = 9000

		require.NoError(t, Resolve(tree, &ObjectSource{Object: obj}))
		assert.Equal(t, true, optionValue(t, tree, "debug"))
		assert.Equal(t, 9000, optionValue(t, tree, "server.port"))
		assert.Equal(t, "localhost", optionValue(t, tree, "server.host"))
	})

	t.Run("MismatchPolicy", func(t *testing.T) {
		src := &ObjectSource{Object: strictOverrides{Unknown: "x"}}
		assert.False(t, src.IgnoreMismatches())

		err := Resolve(serverTree(), src)
		assert.ErrorIs(t, err, ErrNotAnOption)
	})
}

func TestNamespaceSource(t *testing.T) {
	other := serverTree()
	require.NoError(t, other.SetValue("server.port", 7070, true))

	tree := serverTree()
	require.NoError(t, Resolve(tree, &NamespaceSource{Namespace: other}))
	assert.Equal(t, 7070, optionValue(t, tree, "server.port"))
}

func TestNewValueSource(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"Mapping", map[string]any{"a": 1}, &MappingSource{}},
		{"Namespace", NewNamespace(), &NamespaceSource{}},
		{"Path", "app.ini", &FileSource{}},
		{"Object", overrides{}, &ObjectSource{}},
		{"ObjectPointer", &overrides{}, &ObjectSource{}},
		{"ValueSource", NewEnvSource("", []string{}), &EnvSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewValueSource(tt.in)
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewValueSource(42)
		assert.ErrorIs(t, err, ErrCantHandleSource)
	})
}
