package configman

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds configuration files read by file sources.
const MaxFileSize = 10 << 20

// Supported configuration formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatINI  = "ini"
	FormatHCL  = "hcl"
)

// FileSource overlays the contents of a configuration file. The format is
// taken from Format, then the extension, then the content. The file is read
// once, on first use.
type FileSource struct {
	Path   string
	Format string

	// Optional turns a missing file into an empty overlay.
	Optional bool
	// Permissive drops keys that are not options instead of failing.
	Permissive bool

	loaded bool
	values map[string]any
	err    error
}

func (s *FileSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	values, err := s.load()
	if err != nil {
		return nil, err
	}
	flat := flattenAgainst(tree, values, "")
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *FileSource) Identity() string       { return "file " + s.Path }
func (s *FileSource) IgnoreMismatches() bool { return s.Permissive }

func (s *FileSource) load() (map[string]any, error) {
	if s.loaded {
		return s.values, s.err
	}
	s.loaded = true
	s.values, s.err = readConfigFile(s.Path, s.Format, s.Optional)
	return s.values, s.err
}

// readConfigFile reads and parses one file into a nested map.
func readConfigFile(path, format string, optional bool) (map[string]any, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if optional {
				return map[string]any{}, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrConfigFileMissing, path)
		}
		return nil, fmt.Errorf("failed to stat config file '%s': %w", path, err)
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file '%s' exceeds maximum size %d bytes", path, MaxFileSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if format == "" {
		format = detectFileFormat(path)
		if format == "" {
			format = detectFormatFromContent(data)
		}
	}
	values, err := parseConfig(data, format, filepath.Dir(path), path)
	if err != nil {
		return nil, fmt.Errorf("config file '%s': %w", path, err)
	}
	return values, nil
}

// parseConfig parses data of the given format. baseDir resolves INI includes.
func parseConfig(data []byte, format, baseDir, name string) (map[string]any, error) {
	values := make(map[string]any)
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber() // Preserve number precision
		if err := decoder.Decode(&values); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatINI:
		return parseINI(data, baseDir)
	case FormatHCL:
		return parseHCL(data, name)
	default:
		return nil, fmt.Errorf("unable to determine config format")
	}
	return values, nil
}

// detectFileFormat determines format from file extension
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return FormatTOML
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".ini", ".cfg":
		return FormatINI
	case ".hcl":
		return FormatHCL
	default:
		// .conf and unknown extensions are detected from content
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing
func detectFormatFromContent(data []byte) string {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err == nil {
		return FormatJSON
	}
	probe = nil
	if err := toml.Unmarshal(data, &probe); err == nil {
		return FormatTOML
	}
	probe = nil
	if err := yaml.Unmarshal(data, &probe); err == nil && probe != nil {
		return FormatYAML
	}
	return FormatINI
}

// BytesSource overlays an in-memory document, such as a JSON string.
type BytesSource struct {
	Name       string
	Data       []byte
	Format     string
	Permissive bool
}

// NewJSONSource overlays a JSON document.
func NewJSONSource(doc string) *BytesSource {
	return &BytesSource{Name: "json", Data: []byte(doc), Format: FormatJSON}
}

func (s *BytesSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	format := s.Format
	if format == "" {
		format = detectFormatFromContent(s.Data)
	}
	values, err := parseConfig(s.Data, format, ".", s.Identity())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Identity(), err)
	}
	flat := flattenAgainst(tree, values, "")
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *BytesSource) Identity() string {
	if s.Name == "" {
		return "bytes"
	}
	return s.Name
}

func (s *BytesSource) IgnoreMismatches() bool { return s.Permissive }

// DirSource overlays every configuration file of a directory (a conf.d
// layout), merged in file name order so later files override earlier ones.
type DirSource struct {
	Dir        string
	Optional   bool
	Permissive bool

	loaded bool
	values map[string]any
	err    error
}

func (s *DirSource) GetValues(tree *Namespace, ignoreMismatches bool, kind ContainerType) (map[string]any, error) {
	if !s.loaded {
		s.loaded = true
		s.values, s.err = s.read()
	}
	if s.err != nil {
		return nil, s.err
	}
	flat := flattenAgainst(tree, s.values, "")
	return matchValues(tree, flat, ignoreMismatches, s.Identity(), kind)
}

func (s *DirSource) read() (map[string]any, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && s.Optional {
			return map[string]any{}, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileMissing, s.Dir)
		}
		return nil, fmt.Errorf("failed to read config directory '%s': %w", s.Dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	merged := make(map[string]any)
	for _, name := range names {
		values, err := readConfigFile(filepath.Join(s.Dir, name), "", false)
		if err != nil {
			return nil, err
		}
		// dotted keys from flat formats must meet nested keys of other files
		if err := mergo.Merge(&merged, nestFlat(flattenMap(values, "")), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge '%s': %w", name, err)
		}
	}
	return merged, nil
}

func (s *DirSource) Identity() string       { return "directory " + s.Dir }
func (s *DirSource) IgnoreMismatches() bool { return s.Permissive }
