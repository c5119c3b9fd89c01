package configman

import (
	"fmt"
	"reflect"
	"strings"
)

// NamespaceFromStruct builds a Namespace from a struct with defaults. Field
// paths come from the tag (`toml:"..."` by default, "-" skips a field); nested
// structs become Namespaces. The `doc` tag sets documentation, `short` the
// command-line alias, `validate` validator tags and `arg:"true"` marks a
// positional argument.
func NamespaceFromStruct(structWithDefaults any, tagName string) (*Namespace, error) {
	if tagName == "" {
		tagName = "toml"
	}
	ns := NewNamespace()
	var errs []string

	err := walkStruct(structWithDefaults, tagName, func(path string, field reflect.StructField, value reflect.Value) error {
		settings := []OptionSetting{}
		if doc := field.Tag.Get("doc"); doc != "" {
			settings = append(settings, WithDoc(doc))
		}
		if short := field.Tag.Get("short"); short != "" {
			settings = append(settings, WithShortForm(short))
		}
		if v := field.Tag.Get("validate"); v != "" {
			settings = append(settings, WithValidation(v))
		}
		if field.Tag.Get("arg") == "true" {
			settings = append(settings, AsArgument())
		}

		parent, local, err := ns.parentFor(path, true)
		if err == nil {
			var opt *Option
			if opt, err = NewOption(local, value.Interface(), settings...); err == nil {
				err = parent.AddOption(opt)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("field %s (path %s): %v", field.Name, path, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: failed to register %d field(s): %s", ErrOptionDefinition, len(errs), strings.Join(errs, "; "))
	}
	return ns, nil
}

// walkStruct calls fn for every leaf field of a struct, recursing into nested
// structs. Struct types that are values in their own right (time.Time, Class,
// text marshalers) are leaves.
func walkStruct(structWithDefaults any, tagName string, fn func(path string, field reflect.StructField, value reflect.Value) error) error {
	v := reflect.ValueOf(structWithDefaults)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("requires a non-nil struct pointer or value")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("requires a struct or struct pointer, got %T", structWithDefaults)
	}
	return walkFields(v, "", tagName, fn)
}

func walkFields(v reflect.Value, pathPrefix, tagName string, fn func(string, reflect.StructField, reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		key := field.Name
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			key = name
		}
		currentPath := joinPath(pathPrefix, key)

		nested := fieldValue
		if nested.Kind() == reflect.Pointer && nested.Type().Elem().Kind() == reflect.Struct {
			if nested.IsNil() {
				continue
			}
			nested = nested.Elem()
		}
		if nested.Kind() == reflect.Struct && !isLeafStruct(nested.Type()) {
			if err := walkFields(nested, currentPath, tagName, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(currentPath, field, fieldValue); err != nil {
			return err
		}
	}
	return nil
}

func isLeafStruct(t reflect.Type) bool {
	if t == timeType || t == classType {
		return true
	}
	ptr := reflect.PointerTo(t)
	if t.Implements(requiredConfigType) || ptr.Implements(requiredConfigType) {
		return true
	}
	return ptr.Implements(textUnmarshalerType)
}
