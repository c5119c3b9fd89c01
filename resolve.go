package configman

import (
	"fmt"
	"log/slog"
	"strings"
)

// resolver overlays an ordered list of value sources onto an expanded tree.
//
// Sources are applied strictly in order. After each source the tree is
// re-expanded; when that adds or redefines keys, every source applied so far
// is replayed in order for exactly those keys, and expansion runs again until
// nothing new appears. Only then is the next source applied. Unknown keys are
// checked once against the final tree, so a strict source may address options
// that exist only because a later source selected a different class.
type resolver struct {
	tree     *Namespace
	sources  []ValueSource
	expander *expander
	registry *Registry
	strict   bool
	logger   *slog.Logger
}

func (r *resolver) resolve() error {
	if _, err := r.expander.expand(r.tree); err != nil {
		return err
	}

	for i, src := range r.sources {
		if err := r.apply(src, nil); err != nil {
			return err
		}
		converged := false
		for range maxExpansionPasses {
			changed, err := r.expander.expand(r.tree)
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				converged = true
				break
			}
			r.logger.Debug("replaying sources for new keys", "keys", len(changed), "sources", i+1)
			for _, earlier := range r.sources[:i+1] {
				if err := r.apply(earlier, changed); err != nil {
					return err
				}
			}
		}
		if !converged {
			return definitionError("schema still changing after replaying %s for %d passes", src.Identity(), maxExpansionPasses)
		}
	}

	for _, src := range r.sources {
		if src.IgnoreMismatches() && !r.strict {
			continue
		}
		if _, err := src.GetValues(r.tree, false, Flat); err != nil {
			return err
		}
	}
	return nil
}

// apply assigns the values of src to the Options they address, in canonical
// walk order. A non-nil only restricts assignment to those paths and their
// descendants.
func (r *resolver) apply(src ValueSource, only []string) error {
	values, err := src.GetValues(r.tree, true, Flat)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	applied := 0
	for entry := range r.tree.Walk() {
		opt, ok := entry.Node.(*Option)
		if !ok {
			continue
		}
		raw, ok := values[entry.Path]
		if !ok || (only != nil && !underAny(entry.Path, only)) {
			continue
		}
		v, err := opt.coerceIn(r.registry, raw)
		if err != nil {
			return &ConversionError{Path: entry.Path, Raw: raw, Source: src.Identity(), Err: err}
		}
		opt.Value = v
		opt.source = src.Identity()
		applied++
	}
	r.logger.Debug("value source applied", "source", src.Identity(), "keys", applied)
	return nil
}

func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			return true
		}
	}
	return false
}

// Resolve expands ns and overlays sources onto it in order. It is the
// engine used by Manager, without admin options or aggregation.
func Resolve(ns *Namespace, sources ...ValueSource) error {
	r := &resolver{
		tree:     ns,
		sources:  sources,
		expander: newExpander(nil),
		logger:   discardLogger(),
	}
	if err := r.resolve(); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	return nil
}
