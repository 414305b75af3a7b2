package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a manifest from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML,
// .json for JSON. An unrecognized extension tries YAML first, then JSON.
// Defaults are applied to optional fields after parsing.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a manifest from raw bytes. The
// path parameter is used for error messages and format detection.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	m, err := parse(data, path)
	if err != nil {
		return nil, err
	}

	m.ApplyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return m, nil
}

func parse(data []byte, path string) (*Manifest, error) {
	var m Manifest

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse JSON manifest: %w", err)
		}
	default:
		if yamlErr := yaml.Unmarshal(data, &m); yamlErr != nil {
			if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
				return nil, fmt.Errorf("failed to parse manifest as YAML (%v) or JSON (%v)", yamlErr, jsonErr)
			}
		}
	}

	return &m, nil
}
