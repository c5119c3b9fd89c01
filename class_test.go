package configman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("Classes", func(t *testing.T) {
		reg := NewRegistry()
		reg.RegisterClass("pg", pgStore{})

		cls, ok := reg.Class("pg")
		require.True(t, ok)
		assert.Equal(t, "pg", cls.String())
		assert.Equal(t, pgStore{}, cls.Value)

		_, ok = reg.Class("oracle")
		assert.False(t, ok)

		v, err := reg.ClassConverter()(" pg ")
		require.NoError(t, err)
		assert.Equal(t, cls, v)

		_, err = reg.ClassConverter()("oracle")
		assert.ErrorContains(t, err, "unknown class")
	})

	t.Run("BuiltinConverters", func(t *testing.T) {
		reg := NewRegistry()
		for _, name := range []string{"str", "int", "float", "bool", "datetime", "timedelta", "list", "list_of_ints", "date", "class"} {
			_, ok := reg.Converter(name)
			assert.True(t, ok, name)
		}
		listOfInts, _ := reg.Converter("list_of_ints")
		v, err := listOfInts("1, 2, 3")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, v)

		_, ok := reg.Aggregation("instantiate")
		assert.True(t, ok)
	})

	t.Run("CustomEntries", func(t *testing.T) {
		reg := NewRegistry()
		reg.RegisterConverter("yesno", func(s string) (any, error) { return s == "yes", nil })
		reg.RegisterAggregation("const", func(*Config, *Config, any) (any, error) { return 1, nil })

		fn, ok := reg.Converter("yesno")
		require.True(t, ok)
		v, _ := fn("yes")
		assert.Equal(t, true, v)

		_, ok = reg.Aggregation("const")
		assert.True(t, ok)
		_, ok = DefaultRegistry.Converter("yesno")
		assert.False(t, ok)
	})
}

func TestClass(t *testing.T) {
	t.Run("RequiredConfigForwarded", func(t *testing.T) {
		cls := Class{Name: "pg", Value: pgStore{}}
		ns := cls.RequiredConfig()
		require.NotNil(t, ns)
		assert.Equal(t, 5432, optionValue(t, ns, "port"))

		assert.Nil(t, Class{Name: "plain", Value: 3}.RequiredConfig())
	})

	t.Run("New", func(t *testing.T) {
		v, err := Class{Name: "plain", Value: 3}.New(nil)
		require.NoError(t, err)
		assert.Equal(t, 3, v)

		ns := NewNamespace()
		ns.Option("host", "db")
		ns.Option("port", 1)
		v, err = Class{Name: "conn", Value: connection{}}.New(configFromTree(ns, ""))
		require.NoError(t, err)
		assert.Equal(t, "db:1", v)
	})
}

func TestClassList(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterClass("pg", pgStore{})
	reg.RegisterClass("my", myStore{})

	t.Run("Indexed", func(t *testing.T) {
		v, err := reg.ClassListConverter(ClassListOptions{Template: "store%d", OptionName: "kind"})("pg, my")
		require.NoError(t, err)
		list := v.(*ClassList)
		assert.Equal(t, []string{"store0", "store1"}, list.Names)
		assert.Equal(t, "pg, my", list.String())

		ns := list.RequiredConfig()
		assert.Equal(t, []string{"store0", "store0.kind", "store1", "store1.kind"}, walkPaths(ns))
	})

	t.Run("Named", func(t *testing.T) {
		v, err := reg.ClassListConverter(ClassListOptions{Named: true})("primary, pg, cache, my")
		require.NoError(t, err)
		list := v.(*ClassList)
		assert.Equal(t, []string{"primary", "cache"}, list.Names)
		assert.Equal(t, "primary, pg, cache, my", list.String())

		_, err = reg.ClassListConverter(ClassListOptions{Named: true})("primary")
		assert.Error(t, err)
	})

	t.Run("Instantiate", func(t *testing.T) {
		v, err := reg.ClassListConverter(ClassListOptions{Instantiate: true})("pg")
		require.NoError(t, err)
		ns := v.(*ClassList).RequiredConfig()

		node, ok := ns.Get("cls0.cls_instance")
		require.True(t, ok)
		assert.IsType(t, &Aggregation{}, node)
	})

	t.Run("UnknownClass", func(t *testing.T) {
		_, err := reg.ClassListConverter(ClassListOptions{})("pg, oracle")
		assert.ErrorContains(t, err, "oracle")
	})
}

func TestInstantiate(t *testing.T) {
	ns := NewNamespace()
	ns.Option("cls", Class{Name: "plain", Value: "built"})
	ns.Option("count", 3)
	local := configFromTree(ns, "")

	v, err := Instantiate(nil, local, "cls")
	require.NoError(t, err)
	assert.Equal(t, "built", v)

	_, err = Instantiate(nil, local, "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = Instantiate(nil, local, "count")
	assert.ErrorContains(t, err, "not a class")
}
