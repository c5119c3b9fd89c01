package configman

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkPaths(ns *Namespace) []string {
	var paths []string
	for entry := range ns.Walk() {
		paths = append(paths, entry.Path)
	}
	return paths
}

func TestNamespace(t *testing.T) {
	t.Run("DottedOptionCreatesNamespaces", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("db.host", "localhost", WithDoc("database host"))

		node, ok := ns.Get("db")
		require.True(t, ok)
		assert.IsType(t, &Namespace{}, node)

		opt, ok := ns.Lookup("db.host")
		require.True(t, ok)
		assert.Equal(t, "host", opt.Name)
		assert.Equal(t, "localhost", opt.Value)
		assert.Equal(t, "database host", opt.Doc)
		assert.Equal(t, "default", opt.Source())
	})

	t.Run("WalkOrder", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("b", 1)
		ns.Option("a.x", 2)
		ns.Option("a.y", 3)
		ns.Option("c", 4)

		assert.Equal(t, []string{"b", "a", "a.x", "a.y", "c"}, walkPaths(ns))
	})

	t.Run("WalkStopsEarly", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("a", 1)
		ns.Option("b", 2)
		ns.Option("c", 3)

		count := 0
		for range ns.Walk() {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})

	t.Run("RedefineKeepsPosition", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("a", 1)
		ns.Option("b", 2)
		ns.Option("a", "x")

		assert.Equal(t, []string{"a", "b"}, ns.Keys())
		opt, _ := ns.Lookup("a")
		assert.Equal(t, "x", opt.Value)
	})

	t.Run("OptionOverNamespacePanics", func(t *testing.T) {
		ns := NewNamespace()
		ns.Namespace("a")
		assert.Panics(t, func() { ns.Option("a", 1) })
	})

	t.Run("NamespaceOverOptionPanics", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("a", 1)
		assert.Panics(t, func() { ns.Namespace("a.b") })
	})

	t.Run("InvalidOptionName", func(t *testing.T) {
		_, err := NewOption("a.b", 1)
		assert.ErrorIs(t, err, ErrOptionDefinition)

		_, err = NewOption("", 1)
		assert.ErrorIs(t, err, ErrOptionDefinition)
	})

	t.Run("SetValueStrict", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("port", 80)

		require.NoError(t, ns.SetValue("port", "8080", true))
		opt, _ := ns.Lookup("port")
		assert.Equal(t, 8080, opt.Value)

		err := ns.SetValue("missing", 1, true)
		assert.ErrorIs(t, err, ErrNotAnOption)

		err = ns.SetValue("x.y", 1, true)
		assert.ErrorIs(t, err, ErrNotAnOption)
	})

	t.Run("SetValueCreates", func(t *testing.T) {
		ns := NewNamespace()
		require.NoError(t, ns.SetValue("extra.key", "v", false))

		opt, ok := ns.Lookup("extra.key")
		require.True(t, ok)
		assert.Equal(t, "v", opt.Value)
	})

	t.Run("SetValueConversionFailure", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("port", 80)

		err := ns.SetValue("port", "abc", true)
		assert.ErrorIs(t, err, ErrCannotConvert)

		var convErr *ConversionError
		require.ErrorAs(t, err, &convErr)
		assert.Equal(t, "port", convErr.Path)
	})

	t.Run("CopyIsIndependent", func(t *testing.T) {
		ns := NewNamespace("root doc")
		ns.Option("a", 1)
		ns.Option("b.c", "x")

		cp := ns.Copy()
		require.NoError(t, cp.SetValue("a", 2, true))
		cp.Namespace("b").Option("d", true)

		opt, _ := ns.Lookup("a")
		assert.Equal(t, 1, opt.Value)
		_, ok := ns.Get("b.d")
		assert.False(t, ok)
		assert.Equal(t, "root doc", cp.Doc)
	})

	t.Run("Aggregation", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("x.a", 1)
		agg := ns.AddAggregation("x.sum", func(_, local *Config, _ any) (any, error) {
			return local.Int("a")
		}, nil)

		node, ok := ns.Get("x.sum")
		require.True(t, ok)
		assert.Same(t, agg, node)
		assert.Equal(t, "sum", agg.Name)
	})

	t.Run("DeleteAndLen", func(t *testing.T) {
		ns := NewNamespace()
		ns.Option("a", 1)
		ns.Option("b", 2)
		ns.Delete("a")

		assert.Equal(t, 1, ns.Len())
		assert.Equal(t, []string{"b"}, ns.Keys())
	})
}

func TestOption(t *testing.T) {
	t.Run("InferredConverter", func(t *testing.T) {
		opt, err := NewOption("timeout", 5*time.Second)
		require.NoError(t, err)

		v, err := opt.FromString("1m")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, v)
		assert.Equal(t, "5s", opt.String())
	})

	t.Run("StringDefaultThroughExplicitConverter", func(t *testing.T) {
		opt, err := NewOption("n", "42", WithFromString(func(s string) (any, error) {
			return strconv.Atoi(s)
		}))
		require.NoError(t, err)

		assert.Equal(t, 42, opt.Default)
		assert.Equal(t, 42, opt.Value)
		assert.Equal(t, "int", opt.Type().String())
	})

	t.Run("BadStringDefault", func(t *testing.T) {
		_, err := NewOption("n", "many", WithFromString(func(s string) (any, error) {
			return strconv.Atoi(s)
		}))
		assert.ErrorIs(t, err, ErrCannotConvert)
	})

	t.Run("Settings", func(t *testing.T) {
		opt, err := NewOption("input", "",
			WithShortForm("i"),
			AsArgument(),
			WithExcludeFromDump(),
			WithValidation("required"),
			WithToString(func(v any) string { return "<" + v.(string) + ">" }),
		)
		require.NoError(t, err)

		assert.Equal(t, "i", opt.ShortForm)
		assert.True(t, opt.IsArgument)
		assert.True(t, opt.ExcludeFromDump)
		assert.Equal(t, "required", opt.Validate)
		require.NoError(t, opt.Set("file"))
		assert.Equal(t, "<file>", opt.String())
	})

	t.Run("NilDefault", func(t *testing.T) {
		opt, err := NewOption("anything", nil)
		require.NoError(t, err)

		assert.Nil(t, opt.Type())
		require.NoError(t, opt.Set("raw"))
		assert.Equal(t, "raw", opt.Value)
		require.NoError(t, opt.Set(12))
		assert.Equal(t, 12, opt.Value)
	})
}
