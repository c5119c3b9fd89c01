package configman

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// ConfWriter serializes a resolved tree.
type ConfWriter interface {
	Write(tree *Namespace, w io.Writer) error
}

// Opener provides the destination of a write. It is called once per write.
type Opener func() (io.WriteCloser, error)

// aborter is implemented by destinations that can discard a partial write.
type aborter interface {
	Abort() error
}

// WriterFor returns the writer for a format name or a file path with a
// known extension.
func WriterFor(format string) (ConfWriter, error) {
	name := strings.ToLower(format)
	if ext := filepath.Ext(name); ext != "" {
		name = ext[1:]
	}
	switch name {
	case "json":
		return &JSONWriter{}, nil
	case "yaml", "yml":
		return &YAMLWriter{}, nil
	case "toml", "tml":
		return &TOMLWriter{}, nil
	case "ini", "conf", "cfg":
		return &INIWriter{}, nil
	case "hcl":
		return &HCLWriter{}, nil
	}
	return nil, fmt.Errorf("%w: no writer for format %q", ErrCantHandleSource, format)
}

// writeTo runs w against the destination from open. The destination is closed
// on success and aborted, when it supports it, on failure.
func writeTo(w ConfWriter, tree *Namespace, open Opener) error {
	dst, err := open()
	if err != nil {
		return err
	}
	if err := w.Write(tree, dst); err != nil {
		if a, ok := dst.(aborter); ok {
			a.Abort()
		} else {
			dst.Close()
		}
		return err
	}
	return dst.Close()
}

// FileOpener opens path for an atomic write: data goes to a temporary file in
// the same directory that replaces path on Close.
func FileOpener(path string) Opener {
	return func() (io.WriteCloser, error) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
		tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary file: %w", err)
		}
		return &atomicFile{File: tempFile, path: path}, nil
	}
}

// WriterOpener wraps w so that closing it does not close w.
func WriterOpener(w io.Writer) Opener {
	return func() (io.WriteCloser, error) {
		return nopCloser{w}, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type atomicFile struct {
	*os.File
	path string
}

func (f *atomicFile) Close() error {
	tempPath := f.Name()
	defer os.Remove(tempPath) // no-op after a successful rename

	if err := f.Sync(); err != nil {
		f.File.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := f.File.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (f *atomicFile) Abort() error {
	f.File.Close()
	return os.Remove(f.Name())
}

// optionDump returns the value written for an Option: basic scalars as they
// are, everything else in its ToString form.
func optionDump(opt *Option) any {
	if isBasicScalar(opt.Value) {
		return opt.Value
	}
	return optionText(opt)
}

func optionText(opt *Option) string {
	if opt.ToString != nil {
		return opt.ToString(opt.Value)
	}
	return FormatValue(opt.Value)
}

func scalarDump(v any) any {
	if isBasicScalar(v) {
		return v
	}
	return FormatValue(v)
}

// isBasicScalar reports whether v is a bool, number or string of a predeclared
// type, which every format writes natively.
func isBasicScalar(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.PkgPath() == "" && isScalarKind(t.Kind())
}

// dumpable reports whether ns holds anything a writer emits.
func dumpable(ns *Namespace, aggregations bool) bool {
	for entry := range ns.Walk() {
		switch n := entry.Node.(type) {
		case *Option:
			if !n.ExcludeFromDump {
				return true
			}
		case *Aggregation:
			if aggregations && n.evaluated {
				return true
			}
		}
	}
	return false
}

// JSONWriter writes an indented JSON object in walk order.
type JSONWriter struct {
	IncludeAggregations bool
}

func (w *JSONWriter) Write(tree *Namespace, out io.Writer) error {
	doc := "{}"
	var err error
	for entry := range tree.Walk() {
		path := sjsonPath(entry.Path)
		switch n := entry.Node.(type) {
		case *Namespace:
			if dumpable(n, w.IncludeAggregations) {
				doc, err = sjson.SetRaw(doc, path, "{}")
			}
		case *Option:
			if !n.ExcludeFromDump {
				doc, err = sjson.Set(doc, path, optionDump(n))
			}
		case *Aggregation:
			if w.IncludeAggregations && n.evaluated {
				doc, err = sjson.Set(doc, path, scalarDump(n.Value))
			}
		}
		if err != nil {
			return fmt.Errorf("json key %s: %w", entry.Path, err)
		}
	}
	_, err = out.Write(pretty.Pretty([]byte(doc)))
	return err
}

// sjsonPath escapes a dotted path for sjson. All-digit segments are marked as
// object keys so they do not create arrays.
func sjsonPath(path string) string {
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		var b strings.Builder
		for _, r := range segment {
			switch r {
			case '*', '?', '\\':
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		segments[i] = b.String()
		if isDigits(segment) {
			segments[i] = ":" + segment
		}
	}
	return strings.Join(segments, ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// YAMLWriter writes a YAML mapping in walk order with documentation as
// comments above each key.
type YAMLWriter struct {
	IncludeAggregations bool
}

func (w *YAMLWriter) Write(tree *Namespace, out io.Writer) error {
	root, err := w.mapping(tree)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func (w *YAMLWriter) mapping(ns *Namespace) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for key, node := range ns.Entries() {
		var doc string
		value := &yaml.Node{}
		switch n := node.(type) {
		case *Namespace:
			if !dumpable(n, w.IncludeAggregations) {
				continue
			}
			child, err := w.mapping(n)
			if err != nil {
				return nil, err
			}
			doc, value = n.Doc, child
		case *Option:
			if n.ExcludeFromDump {
				continue
			}
			if err := value.Encode(optionDump(n)); err != nil {
				return nil, fmt.Errorf("yaml key %s: %w", key, err)
			}
			doc = n.Doc
		case *Aggregation:
			if !w.IncludeAggregations || !n.evaluated {
				continue
			}
			if err := value.Encode(scalarDump(n.Value)); err != nil {
				return nil, fmt.Errorf("yaml key %s: %w", key, err)
			}
			doc = n.Doc
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key, HeadComment: doc}
		m.Content = append(m.Content, keyNode, value)
	}
	return m, nil
}

// TOMLWriter writes a TOML document. Tables are written after the keys of
// their parent, as TOML requires; documentation is not kept.
type TOMLWriter struct {
	IncludeAggregations bool
}

func (w *TOMLWriter) Write(tree *Namespace, out io.Writer) error {
	nestedData := make(map[string]any)
	for entry := range tree.Walk() {
		switch n := entry.Node.(type) {
		case *Option:
			if !n.ExcludeFromDump {
				setNestedValue(nestedData, entry.Path, optionDump(n))
			}
		case *Aggregation:
			if w.IncludeAggregations && n.evaluated {
				setNestedValue(nestedData, entry.Path, scalarDump(n.Value))
			}
		}
	}
	encoder := toml.NewEncoder(out)
	if err := encoder.Encode(nestedData); err != nil {
		return fmt.Errorf("failed to marshal config data to TOML: %w", err)
	}
	return nil
}
