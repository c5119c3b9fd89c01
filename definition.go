package configman

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// DefinitionKind enumerates the shapes a schema definition may take.
type DefinitionKind int

const (
	DefinitionUnknown DefinitionKind = iota
	// DefinitionSchemaNode is a *Namespace.
	DefinitionSchemaNode
	// DefinitionRequiredConfig is a value implementing RequiredConfig.
	DefinitionRequiredConfig
	// DefinitionMapping is a map[string]any.
	DefinitionMapping
	// DefinitionEncodedString is a JSON object in a string or []byte.
	DefinitionEncodedString
	// DefinitionObject is a struct whose fields carry the defaults.
	DefinitionObject
)

// ClassifyDefinition reports which kind of definition def is.
func ClassifyDefinition(def any) DefinitionKind {
	switch def.(type) {
	case *Namespace:
		return DefinitionSchemaNode
	case RequiredConfig:
		return DefinitionRequiredConfig
	case map[string]any:
		return DefinitionMapping
	case string, []byte:
		return DefinitionEncodedString
	}
	rv := reflect.ValueOf(def)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		return DefinitionObject
	}
	return DefinitionUnknown
}

// definitionReader converts definitions into Namespaces.
type definitionReader struct {
	registry *Registry
	tagName  string
}

func (d *definitionReader) namespace(def any) (*Namespace, error) {
	switch ClassifyDefinition(def) {
	case DefinitionSchemaNode:
		return def.(*Namespace).Copy(), nil
	case DefinitionRequiredConfig:
		ns := def.(RequiredConfig).RequiredConfig()
		if ns == nil {
			return NewNamespace(), nil
		}
		return ns.Copy(), nil
	case DefinitionMapping:
		return d.fromMap(def.(map[string]any))
	case DefinitionEncodedString:
		var raw string
		if b, ok := def.([]byte); ok {
			raw = string(b)
		} else {
			raw = def.(string)
		}
		return d.fromJSON(raw)
	case DefinitionObject:
		return NamespaceFromStruct(def, d.tagName)
	}
	return nil, fmt.Errorf("%w: definition of type %T", ErrCantHandleSource, def)
}

// NamespaceFromMap builds a Namespace from a mapping. A map holding "name" and
// "default" describes an Option, one holding "function" an Aggregation whose
// function is looked up in reg, and any other map a nested Namespace. Other
// values become Options with that default. Keys starting with "__" are
// skipped. Keys are visited in sorted order.
func NamespaceFromMap(m map[string]any, reg *Registry) (*Namespace, error) {
	return (&definitionReader{registry: reg}).fromMap(m)
}

func (d *definitionReader) fromMap(m map[string]any) (*Namespace, error) {
	ns := NewNamespace()
	for _, key := range slices.Sorted(maps.Keys(m)) {
		if strings.HasPrefix(key, "__") {
			continue
		}
		if err := d.addEntry(ns, key, m[key], func(v map[string]any) (*Namespace, error) {
			return d.fromMap(v)
		}); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

// NamespaceFromJSON builds a Namespace from a JSON object, keeping document
// order. Object values follow the NamespaceFromMap rules.
func NamespaceFromJSON(doc string, reg *Registry) (*Namespace, error) {
	return (&definitionReader{registry: reg}).fromJSON(doc)
}

func (d *definitionReader) fromJSON(doc string) (*Namespace, error) {
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("%w: invalid JSON definition", ErrOptionDefinition)
	}
	root := gjson.Parse(doc)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: JSON definition must be an object", ErrOptionDefinition)
	}
	return d.fromGJSON(root)
}

func (d *definitionReader) fromGJSON(obj gjson.Result) (*Namespace, error) {
	ns := NewNamespace()
	var err error
	obj.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if strings.HasPrefix(key, "__") {
			return true
		}
		var value any
		if v.IsObject() {
			if spec := gjsonMap(v); isOptionSpec(spec) || isAggregationSpec(spec) {
				value = spec
			} else {
				var child *Namespace
				if child, err = d.fromGJSON(v); err != nil {
					return false
				}
				ns.Set(key, child)
				return true
			}
		} else {
			value = gjsonValue(v)
		}
		err = d.addEntry(ns, key, value, nil)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// gjsonValue converts a scalar or array, keeping integral numbers as int.
func gjsonValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Number:
		if !strings.ContainsAny(v.Raw, ".eE") {
			return int(v.Int())
		}
		return v.Float()
	case gjson.JSON:
		if v.IsArray() {
			var items []any
			for _, item := range v.Array() {
				items = append(items, gjsonValue(item))
			}
			return items
		}
	}
	return v.Value()
}

func gjsonMap(obj gjson.Result) map[string]any {
	m := make(map[string]any)
	obj.ForEach(func(k, v gjson.Result) bool {
		m[k.String()] = gjsonValue(v)
		return true
	})
	return m
}

func isOptionSpec(m map[string]any) bool {
	_, hasName := m["name"]
	_, hasDefault := m["default"]
	return hasName && hasDefault
}

func isAggregationSpec(m map[string]any) bool {
	_, ok := m["function"]
	return ok
}

type optionSpec struct {
	Name                string `mapstructure:"name"`
	Default             any    `mapstructure:"default"`
	Doc                 string `mapstructure:"doc"`
	ShortForm           string `mapstructure:"short_form"`
	FromStringConverter string `mapstructure:"from_string_converter"`
	IsArgument          bool   `mapstructure:"is_argument"`
	ExcludeFromDump     bool   `mapstructure:"exclude_from_dump"`
	Validate            string `mapstructure:"validate"`
}

type aggregationSpec struct {
	Function string `mapstructure:"function"`
	Doc      string `mapstructure:"doc"`
	Args     any    `mapstructure:"args"`
}

func (d *definitionReader) addEntry(ns *Namespace, key string, value any, nested func(map[string]any) (*Namespace, error)) error {
	switch v := value.(type) {
	case *Option:
		opt := v.Copy()
		opt.Name = key
		return ns.AddOption(opt)
	case *Namespace:
		ns.Set(key, v.Copy())
		return nil
	case *Aggregation:
		agg := v.Copy()
		agg.Name = key
		ns.Set(key, agg)
		return nil
	case map[string]any:
		switch {
		case isOptionSpec(v):
			opt, err := d.optionFromSpec(key, v)
			if err != nil {
				return err
			}
			return ns.AddOption(opt)
		case isAggregationSpec(v):
			agg, err := d.aggregationFromSpec(key, v)
			if err != nil {
				return err
			}
			ns.Set(key, agg)
			return nil
		case nested != nil:
			child, err := nested(v)
			if err != nil {
				return err
			}
			ns.Set(key, child)
			return nil
		}
	}
	opt, err := NewOption(key, value)
	if err != nil {
		return err
	}
	return ns.AddOption(opt)
}

func (d *definitionReader) optionFromSpec(key string, m map[string]any) (*Option, error) {
	var spec optionSpec
	if err := mapstructure.Decode(m, &spec); err != nil {
		return nil, fmt.Errorf("%w: option %s: %w", ErrOptionDefinition, key, err)
	}
	settings := []OptionSetting{
		WithDoc(spec.Doc),
		WithShortForm(spec.ShortForm),
		WithValidation(spec.Validate),
	}
	if spec.IsArgument {
		settings = append(settings, AsArgument())
	}
	if spec.ExcludeFromDump {
		settings = append(settings, WithExcludeFromDump())
	}
	if spec.FromStringConverter != "" {
		fn, ok := d.reg().Converter(spec.FromStringConverter)
		if !ok {
			return nil, definitionError("option %s: unknown converter %q", key, spec.FromStringConverter)
		}
		settings = append(settings, WithFromString(fn))
	}
	opt, err := NewOption(key, spec.Default, settings...)
	if err != nil {
		return nil, fmt.Errorf("option %s: %w", key, err)
	}
	return opt, nil
}

func (d *definitionReader) aggregationFromSpec(key string, m map[string]any) (*Aggregation, error) {
	var spec aggregationSpec
	if err := mapstructure.Decode(m, &spec); err != nil {
		return nil, fmt.Errorf("%w: aggregation %s: %w", ErrOptionDefinition, key, err)
	}
	fn, ok := d.reg().Aggregation(spec.Function)
	if !ok {
		return nil, definitionError("aggregation %s: unknown function %q", key, spec.Function)
	}
	return &Aggregation{Name: key, Doc: spec.Doc, Fn: fn, Args: spec.Args}, nil
}

func (d *definitionReader) reg() *Registry {
	if d.registry == nil {
		return DefaultRegistry
	}
	return d.registry
}

// mergeDefinitions converts every definition and merges them in order. A
// later definition of the same key overrides the earlier one.
func mergeDefinitions(reader *definitionReader, defs []any) (*Namespace, error) {
	tree := NewNamespace()
	for i, def := range defs {
		ns, err := reader.namespace(def)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		if _, err := mergeNamespace(tree, ns, "", ""); err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
	}
	return tree, nil
}
