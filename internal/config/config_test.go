package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/butler/internal/logbook"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(strings.TrimSpace(body)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindWalksUpToClosestProject(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 1")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path, err := Find(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if path != filepath.Join(root, FileName) {
		t.Fatalf("expected root config, got %s", path)
	}

	inner := filepath.Join(root, "a")
	writeConfig(t, inner, "version: 1")
	path, err = Find(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if path != filepath.Join(inner, FileName) {
		t.Fatalf("expected closest config, got %s", path)
	}
}

func TestFindWithoutProject(t *testing.T) {
	if _, err := Find(t.TempDir()); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
version: 2
settings:
  procedure_module: ops.procedures
  log_level: debug
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", cfg.Warnings)
	}
	if cfg.ProcedureDir() != filepath.Join(root, "ops", "procedures") {
		t.Fatalf("unexpected procedure dir %s", cfg.ProcedureDir())
	}
	if cfg.LogLevel() != logbook.LevelDebug {
		t.Fatalf("unexpected log level %s", cfg.LogLevel())
	}
	if cfg.JournalPath() != filepath.Join(root, StateDirName, "logs", "butler.log") {
		t.Fatalf("unexpected journal path %s", cfg.JournalPath())
	}
}

func TestLoadFillsDefaultsWithWarnings(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "settings: {}")
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProcedureModule() != "procedures" || cfg.LogLevel() != logbook.LevelInfo || cfg.Project.Version != 1 {
		t.Fatalf("unexpected defaults %+v", cfg.Project)
	}
	if len(cfg.Warnings) != 3 {
		t.Fatalf("expected a warning per default, got %v", cfg.Warnings)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"negative version": "version: -1",
		"bad level":        "settings:\n  log_level: LOUD",
		"path module":      "settings:\n  procedure_module: ../escape",
		"bad yaml":         "settings: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, body)
			if _, err := Load(root); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestInitProjectCreatesLayout(t *testing.T) {
	parent := t.TempDir()
	root, err := InitProject(parent, "demo")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, dir := range []string{"procedures", filepath.Join(StateDirName, "logs")} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load created project: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("default file should not need defaults: %v", cfg.Warnings)
	}

	if _, err := InitProject(root, "inner"); !errors.Is(err, ErrNestedProject) {
		t.Fatalf("expected ErrNestedProject, got %v", err)
	}
}

func TestInitProjectRefusesExistingTarget(t *testing.T) {
	parent := t.TempDir()
	if err := os.MkdirAll(filepath.Join(parent, "taken"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := InitProject(parent, "taken"); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
}
