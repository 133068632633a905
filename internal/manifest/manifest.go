// Package manifest reads and writes script manifests: YAML or TOML files
// with a top-level scripts list, used to register many scripts at once.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/musher-dev/scriptdeck/internal/history"
)

// Format is a manifest encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnknownFormat is returned for file extensions that are not a manifest.
var ErrUnknownFormat = errors.New("unknown manifest format")

// Entry is one script in a manifest.
type Entry struct {
	Name        string `yaml:"name" toml:"name"`
	Path        string `yaml:"path" toml:"path"`
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
	Category    string `yaml:"category,omitempty" toml:"category,omitempty"`
	RunAsAdmin  bool   `yaml:"run_as_admin,omitempty" toml:"run_as_admin,omitempty"`
}

// Manifest is a list of scripts.
type Manifest struct {
	Scripts []Entry `yaml:"scripts" toml:"scripts"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatTOML:
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-supplied manifest path
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes a manifest. Unknown keys are rejected so typos surface.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &m, nil
	}

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)

		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse yaml manifest: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse toml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return &m, nil
}

// Resolve turns entries into scripts. Relative paths resolve against
// baseDir, a missing name defaults to the file name without extension, and
// a path listed twice is an error.
func (m *Manifest) Resolve(baseDir string) ([]history.Script, error) {
	scripts := make([]history.Script, 0, len(m.Scripts))
	seen := make(map[string]int, len(m.Scripts))

	for i, entry := range m.Scripts {
		path := strings.TrimSpace(entry.Path)
		if path == "" {
			return nil, fmt.Errorf("script %d: path is required", i+1)
		}

		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		path = filepath.Clean(path)

		if prev, dup := seen[path]; dup {
			return nil, fmt.Errorf("script %d: path %s already listed as script %d", i+1, path, prev)
		}

		seen[path] = i + 1

		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		scripts = append(scripts, history.Script{
			Name:        name,
			Path:        path,
			Description: strings.TrimSpace(entry.Description),
			Category:    strings.TrimSpace(entry.Category),
			RunAsAdmin:  entry.RunAsAdmin,
		})
	}

	return scripts, nil
}

// FromScripts builds a manifest from registered scripts.
func FromScripts(scripts []history.Script) *Manifest {
	m := &Manifest{Scripts: make([]Entry, 0, len(scripts))}

	for _, s := range scripts {
		m.Scripts = append(m.Scripts, Entry{
			Name:        s.Name,
			Path:        s.Path,
			Description: s.Description,
			Category:    s.Category,
			RunAsAdmin:  s.RunAsAdmin,
		})
	}

	return m
}

// Marshal encodes the manifest.
func (m *Manifest) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("marshal yaml manifest: %w", err)
		}

		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("marshal yaml manifest: %w", err)
		}

		return buf.Bytes(), nil
	case FormatTOML:
		out, err := toml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal toml manifest: %w", err)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
