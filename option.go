package configman

import (
	"reflect"
	"strings"
)

// FromStringFunc converts a raw string into a typed value.
type FromStringFunc func(string) (any, error)

// ToStringFunc renders a typed value back into its string form.
type ToStringFunc func(any) string

// Node is an entry of a Namespace: an *Option, a *Namespace or an *Aggregation.
type Node interface {
	node()
}

// Option is a single named, typed, documented configuration leaf.
type Option struct {
	Name    string
	Doc     string
	Default any
	Value   any

	// FromString and ToString are inferred from the type of Default when not given.
	FromString FromStringFunc
	ToString   ToStringFunc

	ShortForm       string
	IsArgument      bool
	ExcludeFromDump bool

	// Validate holds validator tags checked after resolution (e.g. "min=1,max=65535").
	Validate string

	typ         reflect.Type
	source      string
	contributor string

	// classInferred marks a FromString inferred from a Class or RequiredConfig
	// default, which a resolver rebinds to its own registry.
	classInferred bool
}

func (*Option) node() {}

// OptionSetting customizes an Option at construction.
type OptionSetting func(*Option)

// WithDoc sets the documentation string.
func WithDoc(doc string) OptionSetting {
	return func(o *Option) { o.Doc = doc }
}

// WithShortForm sets the single character command-line alias.
func WithShortForm(short string) OptionSetting {
	return func(o *Option) { o.ShortForm = short }
}

// WithFromString sets an explicit string converter. A string default is
// converted through it at construction.
func WithFromString(fn FromStringFunc) OptionSetting {
	return func(o *Option) { o.FromString = fn }
}

// WithToString sets an explicit converter back to string.
func WithToString(fn ToStringFunc) OptionSetting {
	return func(o *Option) { o.ToString = fn }
}

// AsArgument marks the Option as a positional command-line argument.
func AsArgument() OptionSetting {
	return func(o *Option) { o.IsArgument = true }
}

// WithExcludeFromDump keeps the Option out of written configuration files.
func WithExcludeFromDump() OptionSetting {
	return func(o *Option) { o.ExcludeFromDump = true }
}

// WithValidation attaches validator tags to the Option.
func WithValidation(tag string) OptionSetting {
	return func(o *Option) { o.Validate = tag }
}

// NewOption creates an Option. The name must be a single path segment.
func NewOption(name string, def any, settings ...OptionSetting) (*Option, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, definitionError("invalid option name %q", name)
	}
	o := &Option{Name: name, Default: def}
	for _, setting := range settings {
		setting(o)
	}
	if err := o.init(); err != nil {
		return nil, err
	}
	return o, nil
}

// init infers converters and converts a string default when an explicit
// converter was supplied.
func (o *Option) init() error {
	explicit := o.FromString != nil
	if !explicit {
		t := reflect.TypeOf(o.Default)
		o.FromString = fromStringFor(t)
		o.classInferred = t != nil && (t == classType || t.Implements(requiredConfigType))
	}
	if s, ok := o.Default.(string); ok && explicit {
		v, err := o.FromString(s)
		if err != nil {
			return &ConversionError{Path: o.Name, Raw: s, Source: "default", Err: err}
		}
		o.Default = v
	}
	o.typ = reflect.TypeOf(o.Default)
	if o.ToString == nil {
		o.ToString = FormatValue
	}
	o.Value = o.Default
	return nil
}

// Type returns the declared type of the Option, nil when the default is nil.
func (o *Option) Type() reflect.Type {
	return o.typ
}

// Source returns the identity of the value source that last set the Option.
func (o *Option) Source() string {
	if o.source == "" {
		return "default"
	}
	return o.source
}

// String renders the current value with the Option's ToString converter.
func (o *Option) String() string {
	if o.Value == nil {
		return ""
	}
	return o.ToString(o.Value)
}

// Set converts raw into the Option's type and assigns it.
func (o *Option) Set(raw any) error {
	v, err := o.coerce(raw)
	if err != nil {
		return &ConversionError{Path: o.Name, Raw: raw, Err: err}
	}
	o.Value = v
	return nil
}

// coerce turns a raw overlay value into a value of the declared type.
// Strings always pass through FromString; other values are assigned when the
// type already matches and decoded otherwise.
func (o *Option) coerce(raw any) (any, error) {
	return o.coerceIn(nil, raw)
}

// coerceIn is coerce with class names looked up in reg instead of
// DefaultRegistry when the converter was inferred. A nil reg keeps FromString.
func (o *Option) coerceIn(reg *Registry, raw any) (any, error) {
	fromString := o.FromString
	if reg != nil && o.classInferred {
		if o.typ == classType {
			fromString = reg.ClassConverter()
		} else {
			fromString = reg.valueConverter()
		}
	}
	if s, ok := raw.(string); ok {
		if fromString == nil {
			return s, nil
		}
		return fromString(s)
	}
	return coerceNative(raw, o.typ, fromString)
}

// Copy returns a shallow copy of the Option.
func (o *Option) Copy() *Option {
	c := *o
	return &c
}

// AggregationFunc computes a derived value from the resolved configuration.
// global is the whole configuration, local is the namespace holding the aggregation.
type AggregationFunc func(global, local *Config, args any) (any, error)

// Aggregation is a derived value evaluated once after all sources are applied.
type Aggregation struct {
	Name  string
	Doc   string
	Fn    AggregationFunc
	Args  any
	Value any

	evaluated   bool
	contributor string
}

func (*Aggregation) node() {}

// Copy returns a shallow copy of the Aggregation with its value cleared.
func (a *Aggregation) Copy() *Aggregation {
	c := *a
	c.Value = nil
	c.evaluated = false
	return &c
}
