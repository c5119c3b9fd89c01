package configman

import (
	"fmt"
	"iter"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Namespace is an ordered container of Options, Aggregations and nested
// Namespaces, addressable by dotted path.
type Namespace struct {
	Doc     string
	entries *orderedmap.OrderedMap[string, Node]
}

func (*Namespace) node() {}

// NewNamespace creates an empty Namespace.
func NewNamespace(doc ...string) *Namespace {
	return &Namespace{
		Doc:     strings.Join(doc, " "),
		entries: orderedmap.New[string, Node](),
	}
}

func (ns *Namespace) init() {
	if ns.entries == nil {
		ns.entries = orderedmap.New[string, Node]()
	}
}

// Option creates or replaces an Option. A dotted name creates the intermediate
// Namespaces. It panics on an invalid definition, as flag.FlagSet does for
// redefined flags; use AddOption to receive the error instead.
func (ns *Namespace) Option(name string, def any, settings ...OptionSetting) *Option {
	parent, local, err := ns.parentFor(name, true)
	if err != nil {
		panic(err)
	}
	opt, err := NewOption(local, def, settings...)
	if err != nil {
		panic(fmt.Errorf("option %s: %w", name, err))
	}
	if err := parent.AddOption(opt); err != nil {
		panic(err)
	}
	return opt
}

// AddOption inserts opt under its own name, replacing an existing Option of
// the same name in place.
func (ns *Namespace) AddOption(opt *Option) error {
	ns.init()
	if existing, ok := ns.entries.Get(opt.Name); ok {
		if _, isNs := existing.(*Namespace); isNs {
			return definitionError("%q is a namespace, cannot redefine as an option", opt.Name)
		}
	}
	ns.entries.Set(opt.Name, opt)
	return nil
}

// Namespace creates or returns the nested Namespace name. Dotted names create
// every level. It panics if name is already an Option.
func (ns *Namespace) Namespace(name string, doc ...string) *Namespace {
	child, err := ns.namespace(name)
	if err != nil {
		panic(err)
	}
	if len(doc) > 0 {
		child.Doc = strings.Join(doc, " ")
	}
	return child
}

func (ns *Namespace) namespace(path string) (*Namespace, error) {
	ns.init()
	current := ns
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, definitionError("invalid namespace path %q", path)
		}
		next, ok := current.entries.Get(segment)
		if !ok {
			child := NewNamespace()
			current.entries.Set(segment, child)
			current = child
			continue
		}
		child, isNs := next.(*Namespace)
		if !isNs {
			return nil, definitionError("%q in %q is not a namespace", segment, path)
		}
		current = child
	}
	return current, nil
}

// AddAggregation registers a derived value evaluated after resolution.
func (ns *Namespace) AddAggregation(name string, fn AggregationFunc, args any) *Aggregation {
	parent, local, err := ns.parentFor(name, true)
	if err != nil {
		panic(err)
	}
	agg := &Aggregation{Name: local, Fn: fn, Args: args}
	if existing, ok := parent.entries.Get(local); ok {
		if _, isNs := existing.(*Namespace); isNs {
			panic(definitionError("%q is a namespace, cannot redefine as an aggregation", name))
		}
	}
	parent.entries.Set(local, agg)
	return agg
}

// Set places node at key, keeping the position of an existing entry.
func (ns *Namespace) Set(key string, node Node) {
	ns.init()
	ns.entries.Set(key, node)
}

// Delete removes key from this Namespace.
func (ns *Namespace) Delete(key string) {
	ns.init()
	ns.entries.Delete(key)
}

// Get resolves a dotted path to its Node.
func (ns *Namespace) Get(path string) (Node, bool) {
	ns.init()
	segments := strings.Split(path, ".")
	current := ns
	for i, segment := range segments {
		next, ok := current.entries.Get(segment)
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return next, true
		}
		child, isNs := next.(*Namespace)
		if !isNs {
			return nil, false
		}
		current = child
	}
	return nil, false
}

// Lookup returns the Option at a dotted path.
func (ns *Namespace) Lookup(path string) (*Option, bool) {
	node, ok := ns.Get(path)
	if !ok {
		return nil, false
	}
	opt, ok := node.(*Option)
	return opt, ok
}

// SetValue walks a dotted path and assigns value to the Option there.
// With strict, a missing key yields a NotAnOptionError; otherwise the
// missing Namespaces and Option are created.
func (ns *Namespace) SetValue(path string, value any, strict bool) error {
	parent, local, err := ns.parentFor(path, !strict)
	if err != nil {
		return &NotAnOptionError{Path: path}
	}
	node, ok := parent.entries.Get(local)
	if !ok {
		if strict {
			return &NotAnOptionError{Path: path}
		}
		opt, err := NewOption(local, nil)
		if err != nil {
			return err
		}
		opt.Value = value
		parent.entries.Set(local, opt)
		return nil
	}
	opt, isOpt := node.(*Option)
	if !isOpt {
		return &NotAnOptionError{Path: path}
	}
	v, err := opt.coerce(value)
	if err != nil {
		return &ConversionError{Path: path, Raw: value, Err: err}
	}
	opt.Value = v
	return nil
}

// parentFor returns the Namespace holding the last segment of path.
func (ns *Namespace) parentFor(path string, create bool) (*Namespace, string, error) {
	ns.init()
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ns, path, nil
	}
	prefix, local := path[:idx], path[idx+1:]
	if local == "" {
		return nil, "", definitionError("invalid path %q", path)
	}
	if create {
		parent, err := ns.namespace(prefix)
		return parent, local, err
	}
	node, ok := ns.Get(prefix)
	if !ok {
		return nil, "", &NotAnOptionError{Path: path}
	}
	parent, isNs := node.(*Namespace)
	if !isNs {
		return nil, "", &NotAnOptionError{Path: path}
	}
	return parent, local, nil
}

// Keys returns the local keys in insertion order.
func (ns *Namespace) Keys() []string {
	ns.init()
	keys := make([]string, 0, ns.entries.Len())
	for pair := ns.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of direct entries.
func (ns *Namespace) Len() int {
	if ns.entries == nil {
		return 0
	}
	return ns.entries.Len()
}

// Entries iterates the direct entries in insertion order.
func (ns *Namespace) Entries() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		if ns.entries == nil {
			return
		}
		for pair := ns.entries.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// WalkEntry is one step of a depth-first walk.
type WalkEntry struct {
	Path string // dotted key from the walk root
	Key  string // local key within the parent
	Node Node
}

// Walk yields every entry depth-first, parents before children, in insertion
// order. This ordering is used for value merge, aggregation and output.
func (ns *Namespace) Walk() iter.Seq[WalkEntry] {
	return func(yield func(WalkEntry) bool) {
		ns.walk("", yield)
	}
}

func (ns *Namespace) walk(prefix string, yield func(WalkEntry) bool) bool {
	for key, node := range ns.Entries() {
		path := joinPath(prefix, key)
		if !yield(WalkEntry{Path: path, Key: key, Node: node}) {
			return false
		}
		if child, ok := node.(*Namespace); ok {
			if !child.walk(path, yield) {
				return false
			}
		}
	}
	return true
}

// Copy returns a structural deep copy. Options and Aggregations are copied,
// their values are shared.
func (ns *Namespace) Copy() *Namespace {
	out := NewNamespace()
	out.Doc = ns.Doc
	for key, node := range ns.Entries() {
		out.entries.Set(key, copyNode(node))
	}
	return out
}

func copyNode(node Node) Node {
	switch n := node.(type) {
	case *Namespace:
		return n.Copy()
	case *Option:
		return n.Copy()
	case *Aggregation:
		return n.Copy()
	default:
		return node
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
