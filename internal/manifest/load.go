package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk manifest document.
type File struct {
	Version    string          `yaml:"version" json:"version"`
	Policy     Policy          `yaml:"policy" json:"policy"`
	Predicates []PredicateSpec `yaml:"predicates" json:"predicates"`
}

// Load reads a manifest file (YAML or JSON, by extension) and builds an
// immutable snapshot.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	}

	m, err := New(file.Predicates, file.Policy)
	if err != nil {
		return nil, err
	}
	m.version = file.Version
	return m, nil
}

// FromFile builds a snapshot from an already decoded document.
func FromFile(file File) (*Manifest, error) {
	m, err := New(file.Predicates, file.Policy)
	if err != nil {
		return nil, err
	}
	m.version = file.Version
	return m, nil
}
