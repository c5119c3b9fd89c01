package configman

import (
	"os"
	"strings"
)

// EnvTransformFunc maps an Option path to an environment variable name.
type EnvTransformFunc func(path string) string

// EnvSource overlays environment variables captured when it was created.
// For each Option it looks up, in order, the Transform name (PREFIX_A_B by
// default), the double-underscore form a__b and the dotted path itself.
type EnvSource struct {
	Prefix    string
	Transform EnvTransformFunc
	// Whitelist restricts lookups to these paths when non-nil.
	Whitelist map[string]bool

	vars map[string]string
}

// NewEnvSource snapshots environ, a list of KEY=VALUE pairs. A nil environ
// snapshots os.Environ.
func NewEnvSource(prefix string, environ []string) *EnvSource {
	if environ == nil {
		environ = os.Environ()
	}
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok {
			vars[key] = value
		}
	}
	return &EnvSource{Prefix: prefix, vars: vars}
}

func (s *EnvSource) GetValues(tree *Namespace, _ bool, kind ContainerType) (map[string]any, error) {
	transform := s.Transform
	if transform == nil {
		transform = defaultEnvTransform(s.Prefix)
	}

	flat := make(map[string]any)
	for entry := range tree.Walk() {
		if _, ok := entry.Node.(*Option); !ok {
			continue
		}
		if s.Whitelist != nil && !s.Whitelist[entry.Path] {
			continue
		}
		for _, name := range []string{transform(entry.Path), strings.ReplaceAll(entry.Path, ".", "__"), entry.Path} {
			if value, ok := s.vars[name]; ok {
				flat[entry.Path] = value
				break
			}
		}
	}
	return matchValues(tree, flat, true, s.Identity(), kind)
}

func (s *EnvSource) Identity() string       { return "environment" }
func (s *EnvSource) IgnoreMismatches() bool { return true }

// Lookup returns the raw value of an environment variable in the snapshot.
func (s *EnvSource) Lookup(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// defaultEnvTransform creates the default environment variable transformer
func defaultEnvTransform(prefix string) EnvTransformFunc {
	return func(path string) string {
		env := strings.ReplaceAll(path, ".", "_")
		env = strings.ToUpper(env)
		if prefix != "" {
			env = prefix + env
		}
		return env
	}
}
