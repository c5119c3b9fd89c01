package configman

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ContainerType selects the shape a configuration is materialized into.
type ContainerType int

const (
	// Nested materializes one map per Namespace.
	Nested ContainerType = iota
	// Flat materializes a single map keyed by dotted path.
	Flat
)

func (k ContainerType) String() string {
	if k == Flat {
		return "flat"
	}
	return "nested"
}

// Config is a read-only view of resolved values. It is safe for concurrent
// readers; nothing mutates it after construction.
type Config struct {
	values  map[string]any
	keys    []string // dotted leaf paths in walk order
	tagName string
}

// configFromTree snapshots the Option values and evaluated Aggregation
// results of ns.
func configFromTree(ns *Namespace, tagName string) *Config {
	c := &Config{values: make(map[string]any), tagName: tagName}
	for entry := range ns.Walk() {
		switch n := entry.Node.(type) {
		case *Namespace:
			setNestedValue(c.values, entry.Path, make(map[string]any))
		case *Option:
			setNestedValue(c.values, entry.Path, n.Value)
			c.keys = append(c.keys, entry.Path)
		case *Aggregation:
			if n.evaluated {
				setNestedValue(c.values, entry.Path, n.Value)
				c.keys = append(c.keys, entry.Path)
			}
		}
	}
	return c
}

// Get returns the value at a dotted path. A Namespace path yields its
// nested map.
func (c *Config) Get(path string) (any, bool) {
	v := navigateToPath(c.values, path)
	if v == nil {
		if path == "" {
			return c.values, true
		}
		return nil, c.has(path)
	}
	return v, true
}

// has reports whether a nil leaf is stored at path.
func (c *Config) has(path string) bool {
	parent := c.values
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		next, ok := parent[segment].(map[string]any)
		if !ok {
			return false
		}
		parent = next
	}
	_, ok := parent[segments[len(segments)-1]]
	return ok
}

// Sub returns the configuration rooted at a Namespace path.
func (c *Config) Sub(path string) (*Config, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAnOption, path)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("path %q is not a namespace", path)
	}
	prefix := strings.TrimSuffix(path, ".") + "."
	sub := &Config{values: m, tagName: c.tagName}
	for _, key := range c.keys {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			sub.keys = append(sub.keys, rest)
		}
	}
	return sub, nil
}

// Keys returns the dotted leaf paths in canonical walk order.
func (c *Config) Keys() []string {
	return slices.Clone(c.keys)
}

// Len returns the number of leaf values.
func (c *Config) Len() int {
	return len(c.keys)
}

// Map materializes a copy of the configuration in the requested shape.
func (c *Config) Map(kind ContainerType) map[string]any {
	if kind == Flat {
		flat := make(map[string]any, len(c.keys))
		for _, key := range c.keys {
			v, _ := c.Get(key)
			flat[key] = v
		}
		return flat
	}
	return deepCopyMap(c.values)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for k, v := range out {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		}
	}
	return out
}
