package configman

import (
	"reflect"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONSchema describes the expanded tree as a JSON Schema object whose
// properties follow walk order. Aggregations are not part of the schema.
func (m *Manager) JSONSchema() *jsonschema.Schema {
	s := SchemaFor(m.tree)
	s.Version = jsonschema.Version
	s.Title = m.appName
	s.Description = m.appDescription
	return s
}

// SchemaFor describes ns as a JSON Schema object.
func SchemaFor(ns *Namespace) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:                 "object",
		Description:          ns.Doc,
		Properties:           orderedmap.New[string, *jsonschema.Schema](),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	for key, node := range ns.Entries() {
		switch n := node.(type) {
		case *Namespace:
			s.Properties.Set(key, SchemaFor(n))
		case *Option:
			s.Properties.Set(key, optionSchema(n))
		}
	}
	return s
}

func optionSchema(opt *Option) *jsonschema.Schema {
	s := typeSchema(opt.Type())
	s.Description = opt.Doc
	if opt.Default != nil {
		s.Default = scalarDump(opt.Default)
		if s.Type == "string" && opt.ToString != nil {
			s.Default = opt.ToString(opt.Default)
		}
	}
	return s
}

// typeSchema maps a Go type to the JSON type of its written form.
func typeSchema(t reflect.Type) *jsonschema.Schema {
	if t == nil {
		return &jsonschema.Schema{}
	}
	switch t {
	case timeType:
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	case durationType:
		return &jsonschema.Schema{Type: "string", Format: "duration"}
	case ipType:
		return &jsonschema.Schema{Type: "string", Format: "ip"}
	case urlType:
		return &jsonschema.Schema{Type: "string", Format: "uri"}
	}
	if t.PkgPath() != "" && t.Kind() != reflect.Map {
		return &jsonschema.Schema{Type: "string"}
	}
	switch t.Kind() {
	case reflect.Bool:
		return &jsonschema.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &jsonschema.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &jsonschema.Schema{Type: "number"}
	case reflect.Map:
		return &jsonschema.Schema{Type: "object"}
	}
	// lists and other values are written in their string form
	return &jsonschema.Schema{Type: "string"}
}
