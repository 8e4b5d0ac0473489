package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefinitionFile pairs a parsed procedure definition with its on-disk source.
type DefinitionFile struct {
	Definition ProcedureDefinition
	Path       string
}

// ParseDefinitionsYAML decodes every document of a YAML payload. Empty
// documents are skipped.
func ParseDefinitionsYAML(data []byte) ([]ProcedureDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("plugin: definition payload is empty")
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var defs []ProcedureDefinition
	for idx := 0; ; idx++ {
		var def ProcedureDefinition
		err := decoder.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("plugin: decode document %d: %w", idx+1, err)
		}
		if isEmptyDefinition(def) {
			continue
		}
		defs = append(defs, def.Normalized())
	}
	return defs, nil
}

// LoadYAMLFile reads a YAML file and returns its procedure definitions.
func LoadYAMLFile(path string) ([]DefinitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	defs, err := ParseDefinitionsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	clean := filepath.Clean(path)
	files := make([]DefinitionFile, 0, len(defs))
	for idx, def := range defs {
		source := clean
		if len(defs) > 1 {
			source = fmt.Sprintf("%s#%d", clean, idx+1)
		}
		files = append(files, DefinitionFile{Definition: def, Path: source})
	}
	return files, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func isEmptyDefinition(def ProcedureDefinition) bool {
	return def.Name == "" && def.Description == "" && def.Kind == "" && len(def.Params) == 0 && len(def.Steps) == 0
}
