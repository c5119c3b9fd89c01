package configman

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// ValueSource is an origin of raw override values.
//
// GetValues returns the values addressing Options of tree, flat by dotted key
// or nested by Namespace according to kind. With ignoreMismatches false, a key
// that is not an Option of tree is an error wrapping ErrNotAnOption; with true
// it is dropped.
type ValueSource interface {
	GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error)
	// Identity names the source in errors and provenance.
	Identity() string
	// IgnoreMismatches reports the default policy for unknown keys.
	IgnoreMismatches() bool
}

// Source names a value source resolved when the Manager is built. It keeps
// the positions of the built-in origins in a source list.
type Source string

const (
	// SourceFile is the configuration file given by admin.conf or found by discovery.
	SourceFile Source = "file"
	// SourceEnv is the environment snapshot taken at build time.
	SourceEnv Source = "env"
	// SourceCLI is the command line.
	SourceCLI Source = "cli"
)

// DefaultSources is the source order used when none is given: file, then
// environment, then command line, in ascending precedence.
var DefaultSources = []any{SourceFile, SourceEnv, SourceCLI}

// matchValues filters a flat overlay against tree.
func matchValues(tree *Namespace, flat map[string]any, ignore bool, identity string, kind ContainerType) (map[string]any, error) {
	out := make(map[string]any, len(flat))
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		if _, ok := tree.Lookup(key); !ok {
			if ignore {
				continue
			}
			return nil, &NotAnOptionError{Path: key, Source: identity}
		}
		out[key] = flat[key]
	}
	if kind == Nested {
		return nestFlat(out), nil
	}
	return out, nil
}

// MappingSource overlays an in-memory map. Keys may be dotted, nested, or
// both. A true "always_ignore_mismatches" entry makes the source permissive.
type MappingSource struct {
	Name       string
	Values     map[string]any
	Permissive bool

	// err is a malformed always_ignore_mismatches entry, reported by GetValues.
	err error
}

const alwaysIgnoreMismatchesKey = "always_ignore_mismatches"

// NewMappingSource wraps values, honouring its always_ignore_mismatches entry.
func NewMappingSource(values map[string]any) *MappingSource {
	s := &MappingSource{Name: "mapping", Values: make(map[string]any, len(values))}
	for k, v := range values {
		if k == alwaysIgnoreMismatchesKey {
			s.Permissive, s.err = permissiveFlag(v)
			continue
		}
		s.Values[k] = v
	}
	return s
}

// permissiveFlag reads an always_ignore_mismatches entry: a bool or a bool word.
func permissiveFlag(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := ParseBool(b)
		if err != nil {
			return false, &ConversionError{Path: alwaysIgnoreMismatchesKey, Raw: v, Err: err}
		}
		return parsed, nil
	}
	return false, &ConversionError{Path: alwaysIgnoreMismatchesKey, Raw: v, Err: fmt.Errorf("%T is not a boolean", v)}
}

func (s *MappingSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	if s.err != nil {
		return nil, fmt.Errorf("%s: %w", s.Identity(), s.err)
	}
	flat := flattenAgainst(tree, s.Values, "")
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *MappingSource) Identity() string {
	if s.Name == "" {
		return "mapping"
	}
	return s.Name
}

func (s *MappingSource) IgnoreMismatches() bool { return s.Permissive }

// NamespaceSource overlays the current Option values of another schema.
type NamespaceSource struct {
	Namespace *Namespace
}

func (s *NamespaceSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	flat := make(map[string]any)
	for entry := range s.Namespace.Walk() {
		if opt, ok := entry.Node.(*Option); ok {
			flat[entry.Path] = opt.Value
		}
	}
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *NamespaceSource) Identity() string      { return "namespace" }
func (s *NamespaceSource) IgnoreMismatches() bool { return false }

// MismatchPolicy lets an object used as a value source opt out of the
// permissive default.
type MismatchPolicy interface {
	AlwaysIgnoreMismatches() bool
}

// ObjectSource overlays the exported fields of a struct, like a module of
// settings. Nested structs address Namespaces. It is permissive unless the
// object implements MismatchPolicy.
type ObjectSource struct {
	Object  any
	TagName string
}

func (s *ObjectSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	tag := s.TagName
	if tag == "" {
		tag = "toml"
	}
	flat := make(map[string]any)
	err := walkStruct(s.Object, tag, func(path string, _ reflect.StructField, value reflect.Value) error {
		flat[path] = value.Interface()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *ObjectSource) Identity() string { return fmt.Sprintf("object %T", s.Object) }

func (s *ObjectSource) IgnoreMismatches() bool {
	if p, ok := s.Object.(MismatchPolicy); ok {
		return p.AlwaysIgnoreMismatches()
	}
	return true
}

// sourceKind enumerates the shapes accepted as value sources.
type sourceKind int

const (
	sourceKindUnknown sourceKind = iota
	sourceKindValueSource
	sourceKindMapping
	sourceKindNamespace
	sourceKindPath
	sourceKindObject
)

func classifySource(v any) sourceKind {
	switch v.(type) {
	case ValueSource:
		return sourceKindValueSource
	case map[string]any:
		return sourceKindMapping
	case *Namespace:
		return sourceKindNamespace
	case string:
		return sourceKindPath
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		return sourceKindObject
	}
	return sourceKindUnknown
}

// NewValueSource wraps v as a ValueSource: a ValueSource is used as is, a map
// becomes a MappingSource, a *Namespace a NamespaceSource, a string the path
// of a required configuration file and a struct an ObjectSource.
func NewValueSource(v any) (ValueSource, error) {
	switch classifySource(v) {
	case sourceKindValueSource:
		return v.(ValueSource), nil
	case sourceKindMapping:
		return NewMappingSource(v.(map[string]any)), nil
	case sourceKindNamespace:
		return &NamespaceSource{Namespace: v.(*Namespace)}, nil
	case sourceKindPath:
		return &FileSource{Path: v.(string)}, nil
	case sourceKindObject:
		return &ObjectSource{Object: v}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrCantHandleSource, v)
}
