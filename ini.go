package configman

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"
)

// topLevelSection holds keys of the root Namespace, like the unnamed section.
const topLevelSection = "top_level"

const maxIncludeDepth = 10

var includeLine = regexp.MustCompile(`^(\s*)\+include\s+(.*?)\s*$`)

var iniLoadOptions = ini.LoadOptions{
	SpaceBeforeInlineComment: true,
}

// parseINI reads INI data. Section names are dotted Namespace paths; keys of
// the default and "top_level" sections address the root.
func parseINI(data []byte, baseDir string) (map[string]any, error) {
	expanded, err := expandIncludes(data, baseDir, "", 0)
	if err != nil {
		return nil, err
	}
	file, err := ini.LoadSources(iniLoadOptions, expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse INI: %w", err)
	}

	values := make(map[string]any)
	for _, section := range file.Sections() {
		prefix := section.Name()
		if prefix == ini.DefaultSection || prefix == topLevelSection {
			prefix = ""
		}
		for _, key := range section.Keys() {
			values[joinPath(prefix, key.Name())] = key.Value()
		}
	}
	return nestFlat(values), nil
}

// expandIncludes replaces "+include path" lines with the contents of the
// named file, resolved against the directory of the including file. The
// indentation of the directive is applied to every included line.
func expandIncludes(data []byte, baseDir, indent string, depth int) ([]byte, error) {
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("include depth exceeds %d", maxIncludeDepth)
	}
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		match := includeLine.FindStringSubmatch(line)
		if match == nil {
			out.WriteString(indent)
			out.WriteString(strings.TrimRight(line, " \t\r"))
			out.WriteByte('\n')
			continue
		}
		target := match[2]
		if !filepath.IsAbs(target) {
			target = filepath.Join(baseDir, target)
		}
		included, err := os.ReadFile(target)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", match[2], err)
		}
		nested, err := expandIncludes(included, filepath.Dir(target), indent+match[1], depth+1)
		if err != nil {
			return nil, err
		}
		out.Write(nested)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// INIWriter writes root Options into the unnamed section and every Namespace
// holding Options into a section named by its dotted path.
type INIWriter struct {
	IncludeAggregations bool
}

func (w *INIWriter) Write(tree *Namespace, out io.Writer) error {
	file := ini.Empty(iniLoadOptions)
	for entry := range tree.Walk() {
		prefix, _, _ := cutLast(entry.Path)
		switch n := entry.Node.(type) {
		case *Namespace:
			if n.Doc != "" && dumpable(n, w.IncludeAggregations) {
				section, err := iniSection(file, entry.Path)
				if err != nil {
					return err
				}
				section.Comment = n.Doc
			}
		case *Option:
			if n.ExcludeFromDump {
				continue
			}
			if err := iniKey(file, prefix, entry.Key, optionText(n), n.Doc); err != nil {
				return err
			}
		case *Aggregation:
			if !w.IncludeAggregations || !n.evaluated {
				continue
			}
			if err := iniKey(file, prefix, entry.Key, FormatValue(n.Value), n.Doc); err != nil {
				return err
			}
		}
	}
	_, err := file.WriteTo(out)
	return err
}

func iniSection(file *ini.File, name string) (*ini.Section, error) {
	if name == "" {
		return file.Section(ini.DefaultSection), nil
	}
	if section, err := file.GetSection(name); err == nil {
		return section, nil
	}
	return file.NewSection(name)
}

func iniKey(file *ini.File, section, name, value, doc string) error {
	sec, err := iniSection(file, section)
	if err != nil {
		return err
	}
	key, err := sec.NewKey(name, value)
	if err != nil {
		return fmt.Errorf("ini key %s: %w", joinPath(section, name), err)
	}
	key.Comment = doc
	return nil
}

// cutLast splits a dotted path into its parent path and last segment.
func cutLast(path string) (string, string, bool) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", path, false
	}
	return path[:idx], path[idx+1:], true
}
