package configman

import (
	"fmt"
	"log/slog"
	"reflect"
)

// maxExpansionPasses bounds the fixed point loops. A schema that still grows
// after this many passes is reported as a definition error.
const maxExpansionPasses = 64

// mergeNamespace merges src into dst and returns the dotted paths (under
// prefix) that were added or redefined.
//
// User definitions (contributor "") override earlier definitions of the same
// key. Contributions from RequiredConfig values never override user defined
// Options; they replace Options contributed by a different value, keeping an
// assigned value unless no source has set it.
func mergeNamespace(dst, src *Namespace, prefix, contributor string) ([]string, error) {
	dst.init()
	if dst.Doc == "" {
		dst.Doc = src.Doc
	}
	var changed []string
	for key, node := range src.Entries() {
		path := joinPath(prefix, key)
		existing, ok := dst.entries.Get(key)
		if !ok {
			dst.entries.Set(key, contributed(node, contributor))
			changed = append(changed, path)
			continue
		}

		switch n := node.(type) {
		case *Namespace:
			child, isNs := existing.(*Namespace)
			if !isNs {
				return changed, definitionError("%s is an option, cannot merge a namespace into it", path)
			}
			sub, err := mergeNamespace(child, n, path, contributor)
			changed = append(changed, sub...)
			if err != nil {
				return changed, err
			}

		case *Option:
			old, isOpt := existing.(*Option)
			if !isOpt {
				if _, isNs := existing.(*Namespace); isNs {
					return changed, definitionError("%s is a namespace, cannot merge an option into it", path)
				}
			}
			if !replaces(existing, contributor) {
				continue
			}
			opt := n.Copy()
			opt.contributor = contributor
			if isOpt && contributor != "" && old.source != "" {
				opt.Value = old.Value
				opt.source = old.source
			}
			dst.entries.Set(key, opt)
			changed = append(changed, path)

		case *Aggregation:
			if _, isNs := existing.(*Namespace); isNs {
				return changed, definitionError("%s is a namespace, cannot merge an aggregation into it", path)
			}
			if !replaces(existing, contributor) {
				continue
			}
			agg := n.Copy()
			agg.contributor = contributor
			dst.entries.Set(key, agg)
			changed = append(changed, path)
		}
	}
	return changed, nil
}

// replaces reports whether a definition from contributor supersedes existing.
func replaces(existing Node, contributor string) bool {
	if contributor == "" {
		return true
	}
	var current string
	switch e := existing.(type) {
	case *Option:
		current = e.contributor
	case *Aggregation:
		current = e.contributor
	}
	return current != "" && current != contributor
}

// contributed copies node, tagging every Option and Aggregation inside it
// with contributor.
func contributed(node Node, contributor string) Node {
	switch n := node.(type) {
	case *Option:
		c := n.Copy()
		c.contributor = contributor
		return c
	case *Aggregation:
		c := n.Copy()
		c.contributor = contributor
		return c
	case *Namespace:
		out := NewNamespace()
		out.Doc = n.Doc
		for key, child := range n.Entries() {
			out.entries.Set(key, contributed(child, contributor))
		}
		return out
	}
	return node
}

// expander grows a tree until no RequiredConfig value contributes new keys.
// It remembers, per Option path, the identity of the value it last expanded,
// so an unchanged value is not expanded again while a value switched back to
// an earlier one contributes its options anew.
type expander struct {
	expanded map[string]string
	logger   *slog.Logger
}

func newExpander(logger *slog.Logger) *expander {
	if logger == nil {
		logger = discardLogger()
	}
	return &expander{expanded: make(map[string]string), logger: logger}
}

// expand runs passes until the tree is stable and returns every path added
// or redefined on the way.
func (e *expander) expand(tree *Namespace) ([]string, error) {
	var changed []string
	for range maxExpansionPasses {
		pass, err := e.pass(tree)
		changed = append(changed, pass...)
		if err != nil {
			return changed, err
		}
		if len(pass) == 0 {
			return changed, nil
		}
	}
	return changed, definitionError("schema expansion did not reach a fixed point after %d passes", maxExpansionPasses)
}

type expansionCandidate struct {
	parentPath string
	parent     *Namespace
	optionPath string
	rc         RequiredConfig
	identity   string
}

// pass expands every RequiredConfig value once. Candidates are collected
// before merging so the walk never observes its own mutations.
func (e *expander) pass(tree *Namespace) ([]string, error) {
	var candidates []expansionCandidate
	collectCandidates(tree, "", &candidates)

	var changed []string
	for _, c := range candidates {
		if e.expanded[c.optionPath] == c.identity {
			continue
		}
		e.expanded[c.optionPath] = c.identity

		sub := c.rc.RequiredConfig()
		if sub == nil || sub.Len() == 0 {
			continue
		}
		added, err := mergeNamespace(c.parent, sub, c.parentPath, c.identity)
		if err != nil {
			return changed, fmt.Errorf("expanding %s: %w", c.optionPath, err)
		}
		if len(added) > 0 {
			e.logger.Debug("schema expanded", "option", c.optionPath, "contributor", c.identity, "keys", len(added))
		}
		changed = append(changed, added...)
	}
	return changed, nil
}

func collectCandidates(ns *Namespace, prefix string, out *[]expansionCandidate) {
	for key, node := range ns.Entries() {
		path := joinPath(prefix, key)
		switch n := node.(type) {
		case *Option:
			rc, ok := n.Value.(RequiredConfig)
			if !ok || isNilValue(n.Value) {
				continue
			}
			*out = append(*out, expansionCandidate{
				parentPath: prefix,
				parent:     ns,
				optionPath: path,
				rc:         rc,
				identity:   identityOf(n.Value),
			})
		case *Namespace:
			collectCandidates(n, path, out)
		}
	}
}

// identityOf returns a stable identity for the expansion guard: pointers by
// address, other values by type and content.
func identityOf(v any) string {
	if id, ok := v.(interface{ configIdentity() string }); ok {
		return id.configIdentity()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	}
	return fmt.Sprintf("%T:%#v", v, v)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Expand grows ns in place until every RequiredConfig value has contributed
// its options. Running it again on an expanded tree changes nothing.
func Expand(ns *Namespace) error {
	_, err := newExpander(nil).expand(ns)
	return err
}
