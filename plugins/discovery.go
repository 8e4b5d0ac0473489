package plugins

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/kingrea/butler/internal/actions"
	"github.com/kingrea/butler/internal/procedure"
)

// Loader discovers procedure definition files below a project root. It
// implements procedure.Discoverer.
type Loader struct {
	// Root is the directory dotted module paths are resolved against.
	Root    string
	Actions *actions.Registry
}

// NewLoader returns a loader for root using the built-in actions.
func NewLoader(root string) *Loader {
	return &Loader{Root: root, Actions: actions.Default()}
}

// ModuleDir maps a dotted module path such as "procedures.ops" to a directory
// under root.
func ModuleDir(root, modulePath string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(modulePath), ".")
	if trimmed == "" {
		return "", fmt.Errorf("plugin: module path is required")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("plugin: %q is not a dotted module path", modulePath)
		}
	}
	return filepath.Join(append([]string{root}, parts...)...), nil
}

// Discover walks the module directory recursively and returns every named
// definition found, in lexical file order. Any unreadable or invalid file
// fails the whole call.
func (l *Loader) Discover(modulePath string) ([]procedure.Definition, error) {
	dir, err := ModuleDir(l.Root, modulePath)
	if err != nil {
		return nil, &procedure.DiscoveryError{Path: modulePath, Err: err}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &procedure.DiscoveryError{Path: modulePath, Err: err}
	}
	if !info.IsDir() {
		return nil, &procedure.DiscoveryError{Path: modulePath, Err: fmt.Errorf("%s is not a directory", dir)}
	}
	files, err := l.loadDir(dir)
	if err != nil {
		return nil, err
	}
	registry := l.Actions
	if registry == nil {
		registry = actions.Default()
	}
	defs := make([]procedure.Definition, 0, len(files))
	for _, file := range files {
		if file.Definition.Name == "" {
			continue
		}
		def, err := Build(file.Definition, file.Path, l.Root, registry)
		if err != nil {
			return nil, &procedure.DiscoveryError{Path: file.Path, Err: err}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (l *Loader) loadDir(dir string) ([]DefinitionFile, error) {
	parser := hclparse.NewParser()
	var files []DefinitionFile
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &procedure.DiscoveryError{Path: path, Err: walkErr}
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		var (
			loaded []DefinitionFile
			err    error
		)
		switch {
		case isYAMLFile(name):
			loaded, err = LoadYAMLFile(path)
		case strings.EqualFold(filepath.Ext(name), ".hcl"):
			loaded, err = LoadHCLFile(path, parser)
		case filepath.Ext(name) == ".go" && !strings.HasSuffix(name, "_test.go"):
			loaded, err = LoadGoFile(path)
		default:
			return nil
		}
		if err != nil {
			return &procedure.DiscoveryError{Path: path, Err: err}
		}
		files = append(files, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
