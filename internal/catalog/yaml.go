package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Cards []CardTemplate `yaml:"cards"`
}

// ParseYAML builds a catalog from a YAML document with a top-level
// "cards" list.
func ParseYAML(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(file.Cards...)
}

// LoadYAML reads and parses a catalog file.
func LoadYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseYAML(data)
}

// MarshalYAML renders templates in the catalog file format.
func MarshalYAML(templates []CardTemplate) ([]byte, error) {
	return yaml.Marshal(catalogFile{Cards: templates})
}
