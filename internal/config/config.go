// Package config locates and loads the butler.yaml project file and lays out
// the directories a project uses.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/butler/internal/logbook"
)

const (
	// FileName marks a project root.
	FileName = "butler.yaml"
	// StateDirName holds logs and other runtime state inside a project.
	StateDirName = ".butler"

	defaultProcedureModule = "procedures"
	defaultLogLevel        = "INFO"
	journalFile            = "butler.log"
)

const defaultProjectConfigYAML = `# butler project configuration
version: 1

settings:
  # Dotted path, relative to this file, of the directory holding procedure files.
  procedure_module: procedures
  # DEBUG, INFO, WARN or ERROR.
  log_level: INFO
`

var (
	// ErrProjectNotFound is returned when no butler.yaml exists at or above
	// the start directory.
	ErrProjectNotFound = errors.New("config: no butler.yaml found in this directory or any parent")
	// ErrNestedProject is returned when creating a project inside another one.
	ErrNestedProject = errors.New("config: cannot create a project inside another project")
)

// Settings is the settings block of butler.yaml.
type Settings struct {
	ProcedureModule string `yaml:"procedure_module"`
	LogLevel        string `yaml:"log_level"`
}

// ProjectConfig models butler.yaml.
type ProjectConfig struct {
	Version  int      `yaml:"version"`
	Settings Settings `yaml:"settings"`
}

// Config holds the loaded project configuration.
type Config struct {
	// ProjectDir is the directory containing butler.yaml.
	ProjectDir string
	// Path is the butler.yaml file itself.
	Path    string
	Project ProjectConfig
	// Warnings lists settings that were missing and filled with defaults.
	Warnings []string
}

// Find walks from start up through its parents and returns the closest
// butler.yaml.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", start, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrProjectNotFound
		}
		dir = parent
	}
}

// Load finds and parses the project file governing start.
func Load(start string) (*Config, error) {
	path, err := Find(start)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses the given butler.yaml.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg := &Config{
		ProjectDir: filepath.Dir(path),
		Path:       path,
	}
	cfg.Warnings = parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Project = parsed
	return cfg, nil
}

// InitProject creates <parent>/<name> with a default butler.yaml, the
// procedure directory and the state directory. It returns the project path.
func InitProject(parent, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("config: project name is required")
	}
	if _, err := Find(parent); err == nil {
		return "", ErrNestedProject
	} else if !errors.Is(err, ErrProjectNotFound) {
		return "", err
	}
	root, err := filepath.Abs(filepath.Join(parent, name))
	if err != nil {
		return "", fmt.Errorf("config: resolve project dir: %w", err)
	}
	if _, err := os.Stat(root); err == nil {
		return "", fmt.Errorf("config: %s already exists: %w", root, fs.ErrExist)
	}

	dirs := []string{
		filepath.Join(root, defaultProcedureModule),
		filepath.Join(root, StateDirName, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(defaultProjectConfigYAML), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", FileName, err)
	}
	return root, nil
}

// ProcedureModule returns the dotted procedure module path.
func (c *Config) ProcedureModule() string {
	return c.Project.Settings.ProcedureModule
}

// ProcedureDir maps the dotted procedure module path to a directory.
func (c *Config) ProcedureDir() string {
	parts := strings.Split(c.ProcedureModule(), ".")
	return filepath.Join(append([]string{c.ProjectDir}, parts...)...)
}

// LogLevel returns the configured minimum journal level.
func (c *Config) LogLevel() logbook.Level {
	level, err := logbook.ParseLevel(c.Project.Settings.LogLevel)
	if err != nil {
		return logbook.LevelInfo
	}
	return level
}

// StateDir returns the .butler directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.ProjectDir, StateDirName)
}

// LogsDir returns the directory holding journals.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir(), "logs")
}

// JournalPath returns the run journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), journalFile)
}

func (pc *ProjectConfig) applyDefaults() []string {
	var warnings []string
	if pc.Version == 0 {
		pc.Version = 1
		warnings = append(warnings, "version is missing, assuming 1")
	}
	if strings.TrimSpace(pc.Settings.ProcedureModule) == "" {
		pc.Settings.ProcedureModule = defaultProcedureModule
		warnings = append(warnings, fmt.Sprintf("settings.procedure_module is missing, using %q", defaultProcedureModule))
	}
	if strings.TrimSpace(pc.Settings.LogLevel) == "" {
		pc.Settings.LogLevel = defaultLogLevel
		warnings = append(warnings, fmt.Sprintf("settings.log_level is missing, using %q", defaultLogLevel))
	}
	return warnings
}

func (pc *ProjectConfig) normalize() {
	pc.Settings.ProcedureModule = strings.Trim(strings.TrimSpace(pc.Settings.ProcedureModule), ".")
	pc.Settings.LogLevel = strings.ToUpper(strings.TrimSpace(pc.Settings.LogLevel))
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Settings.ProcedureModule == "" {
		return fmt.Errorf("settings.procedure_module is required")
	}
	for _, part := range strings.Split(pc.Settings.ProcedureModule, ".") {
		if part == "" || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("settings.procedure_module %q is not a dotted module path", pc.Settings.ProcedureModule)
		}
	}
	if _, err := logbook.ParseLevel(pc.Settings.LogLevel); err != nil {
		return fmt.Errorf("settings.log_level: %w", err)
	}
	return nil
}
