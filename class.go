package configman

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// RequiredConfig is implemented by values that contribute their own options
// to the Namespace holding them. A nil result contributes nothing.
type RequiredConfig interface {
	RequiredConfig() *Namespace
}

// Factory is implemented by registered classes that can build an instance
// from their local resolved configuration.
type Factory interface {
	New(local *Config) (any, error)
}

// Class is a registered value addressed by name, the configuration
// counterpart of an importable class.
type Class struct {
	Name  string
	Value any
}

// RequiredConfig forwards to the registered value.
func (c Class) RequiredConfig() *Namespace {
	if rc, ok := c.Value.(RequiredConfig); ok {
		return rc.RequiredConfig()
	}
	return nil
}

// New builds an instance through the registered value's Factory, or returns
// the registered value itself.
func (c Class) New(local *Config) (any, error) {
	if f, ok := c.Value.(Factory); ok {
		return f.New(local)
	}
	return c.Value, nil
}

func (c Class) String() string { return c.Name }

func (c Class) configIdentity() string { return "class:" + c.Name }

// Registry resolves names used in configuration text to classes, converters
// and aggregation functions.
type Registry struct {
	mu           sync.RWMutex
	classes      map[string]any
	converters   map[string]FromStringFunc
	aggregations map[string]AggregationFunc
}

// DefaultRegistry is consulted by inferred converters and by mapping and
// JSON definitions when no registry is configured.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry()
}

// NewRegistry returns a Registry holding the built-in named converters and
// the "instantiate" aggregation.
func NewRegistry() *Registry {
	r := &Registry{
		classes:      make(map[string]any),
		converters:   make(map[string]FromStringFunc),
		aggregations: make(map[string]AggregationFunc),
	}
	builtin := map[string]reflect.Type{
		"str":       reflect.TypeOf(""),
		"string":    reflect.TypeOf(""),
		"int":       reflect.TypeOf(0),
		"float":     reflect.TypeOf(0.0),
		"bool":      reflect.TypeOf(false),
		"datetime":  timeType,
		"timedelta": durationType,
		"duration":  durationType,
		"list":      reflect.TypeOf([]string(nil)),
		"regex":     regexpType,
		"dict":      reflect.TypeOf(map[string]any(nil)),
		"bytes":     bytesType,
		"ip":        ipType,
		"cidr":      ipNetType,
		"url":       urlType,
	}
	for name, t := range builtin {
		r.converters[name] = fromStringFor(t)
	}
	r.converters["list_of_ints"] = listConverter(reflect.TypeOf([]int(nil)), fromStringFor(reflect.TypeOf(0)))
	r.converters["date"] = func(s string) (any, error) {
		t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
		return t, err
	}
	r.converters["class"] = r.ClassConverter()
	r.aggregations["instantiate"] = Instantiate
	return r
}

// RegisterClass makes value addressable by name from configuration text.
func (r *Registry) RegisterClass(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = value
}

// Class returns the registered class name.
func (r *Registry) Class(name string) (Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.classes[name]
	if !ok {
		return Class{}, false
	}
	return Class{Name: name, Value: v}, true
}

// RegisterConverter makes fn addressable by name from mapping and JSON definitions.
func (r *Registry) RegisterConverter(name string, fn FromStringFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[name] = fn
}

// Converter returns the converter registered as name.
func (r *Registry) Converter(name string) (FromStringFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.converters[name]
	return fn, ok
}

// RegisterAggregation makes fn addressable by name from mapping definitions.
func (r *Registry) RegisterAggregation(name string, fn AggregationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregations[name] = fn
}

// Aggregation returns the aggregation function registered as name.
func (r *Registry) Aggregation(name string) (AggregationFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.aggregations[name]
	return fn, ok
}

// ClassConverter converts a registered class name into a Class.
func (r *Registry) ClassConverter() FromStringFunc {
	return func(s string) (any, error) {
		name := strings.TrimSpace(s)
		cls, ok := r.Class(name)
		if !ok {
			return nil, fmt.Errorf("unknown class %q", name)
		}
		return cls, nil
	}
}

// valueConverter converts a class name into the registered value itself.
func (r *Registry) valueConverter() FromStringFunc {
	return func(s string) (any, error) {
		cls, ok := r.Class(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("unknown class %q", s)
		}
		return cls.Value, nil
	}
}

// ClassListOptions shapes the Namespaces generated for a class list.
type ClassListOptions struct {
	// Template names each generated Namespace from its index. Default "cls%d".
	Template string
	// OptionName is the class Option inside each Namespace. Default "cls".
	OptionName string
	// Instantiate adds a "<OptionName>_instance" aggregation to each Namespace.
	Instantiate bool
	// Named reads the list as alternating "namespace, class" pairs.
	Named bool
}

// ClassList is the value of a class list Option. It contributes one Namespace
// per listed class, each holding the class Option and the class's own options.
type ClassList struct {
	Classes []Class
	Names   []string

	opts ClassListOptions
	reg  *Registry
}

// ClassListConverter converts a comma separated list of class names into a
// *ClassList.
func (r *Registry) ClassListConverter(opts ClassListOptions) FromStringFunc {
	if opts.Template == "" {
		opts.Template = "cls%d"
	}
	if opts.OptionName == "" {
		opts.OptionName = "cls"
	}
	return func(s string) (any, error) {
		items := splitList(s)
		list := &ClassList{opts: opts, reg: r}
		if opts.Named {
			if len(items)%2 != 0 {
				return nil, fmt.Errorf("class list %q must hold namespace and class pairs", s)
			}
			for i := 0; i < len(items); i += 2 {
				cls, ok := r.Class(items[i+1])
				if !ok {
					return nil, fmt.Errorf("unknown class %q", items[i+1])
				}
				list.Names = append(list.Names, items[i])
				list.Classes = append(list.Classes, cls)
			}
			return list, nil
		}
		for i, name := range items {
			cls, ok := r.Class(name)
			if !ok {
				return nil, fmt.Errorf("unknown class %q", name)
			}
			list.Names = append(list.Names, fmt.Sprintf(opts.Template, i))
			list.Classes = append(list.Classes, cls)
		}
		return list, nil
	}
}

// RequiredConfig builds the Namespaces for every listed class.
func (l *ClassList) RequiredConfig() *Namespace {
	ns := NewNamespace()
	optionName := l.opts.OptionName
	for i, cls := range l.Classes {
		sub := ns.Namespace(l.Names[i])
		sub.Option(optionName, cls, WithFromString(l.reg.ClassConverter()))
		if l.opts.Instantiate {
			sub.AddAggregation(optionName+"_instance", Instantiate, optionName)
		}
	}
	return ns
}

func (l *ClassList) String() string {
	items := make([]string, 0, 2*len(l.Classes))
	for i, cls := range l.Classes {
		if l.opts.Named {
			items = append(items, l.Names[i])
		}
		items = append(items, cls.Name)
	}
	return strings.Join(items, ", ")
}

func (l *ClassList) configIdentity() string { return "classlist:" + l.String() }

// Instantiate is an aggregation building an instance of the Class held by
// the local Option named by args. Class list Namespaces use it.
func Instantiate(_, local *Config, args any) (any, error) {
	name, _ := args.(string)
	v, ok := local.Get(name)
	if !ok {
		return nil, fmt.Errorf("class option %q not found", name)
	}
	cls, ok := v.(Class)
	if !ok {
		return nil, fmt.Errorf("option %q holds %T, not a class", name, v)
	}
	return cls.New(local)
}
