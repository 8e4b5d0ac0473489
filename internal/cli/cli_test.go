package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/butler/internal/config"
	"github.com/kingrea/butler/internal/procedure"
)

const greetYAML = `name: greet
description: Say hello
params:
  - name: who
    type: string
    value: world
steps:
  - name: hello
    action: log
    with:
      message: "hello {{ .Params.who }}"
  - name: nap
    action: delay
    parallel: true
    with:
      duration: 1ms
`

const brokenYAML = `name: broken
steps:
  - name: boom
    action: fail
    with:
      message: kaboom
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	root, err := config.InitProject(t.TempDir(), "demo")
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	return root
}

func writeProcedure(t *testing.T, root, name, body string) {
	t.Helper()
	path := filepath.Join(root, "procedures", name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestInitCreatesProject(t *testing.T) {
	parent := t.TempDir()
	stdout, _, err := execute(t, "init", "demo", "--path", parent)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(stdout, "Created project demo") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(parent, "demo", config.FileName)); err != nil {
		t.Fatalf("expected %s: %v", config.FileName, err)
	}
	if _, _, err := execute(t, "init", "demo", "--path", parent); err == nil {
		t.Fatalf("expected error for existing project")
	}
}

func TestListIncludesBuiltinAndDiscovered(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "greet.yaml", greetYAML)

	stdout, _, err := execute(t, "--project", root, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"NAME", "clean-logs", "doctor", "greet", "Say hello"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("list output missing %q:\n%s", want, stdout)
		}
	}
}

func TestListJSON(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "greet.yaml", greetYAML)

	stdout, _, err := execute(t, "--project", root, "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var entries []listEntry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	var greet *listEntry
	for i := range entries {
		if entries[i].Name == "greet" {
			greet = &entries[i]
		}
	}
	if greet == nil {
		t.Fatalf("greet missing from %+v", entries)
	}
	if greet.Kind != procedure.KindStep || len(greet.Params) != 1 || greet.Params[0].Name != "who" {
		t.Fatalf("unexpected entry %+v", greet)
	}
}

func TestListFailsOnInvalidDefinition(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "bad.yaml", "name: bad\nsteps:\n  - action: teleport\n")

	_, _, err := execute(t, "--project", root, "list")
	var discoveryErr *procedure.DiscoveryError
	if !errors.As(err, &discoveryErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
}

func TestNewScaffoldsDefinition(t *testing.T) {
	root := newProject(t)
	stdout, _, err := execute(t, "--project", root, "new", "Nightly Backup", "--kind", "basic")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !strings.Contains(stdout, "nightly_backup.yaml") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if _, _, err := execute(t, "--project", root, "new", "Nightly Backup", "--kind", "basic"); !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	listed, _, err := execute(t, "--project", root, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(listed, "Nightly Backup") {
		t.Fatalf("scaffolded procedure not discovered:\n%s", listed)
	}
}

func TestRunWithoutDashboard(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "greet.yaml", greetYAML)

	stdout, stderr, err := execute(t, "--project", root, "run", "greet", "--no-dashboard", "--set", "who=butler")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "greet: completed") {
		t.Fatalf("unexpected summary %q", stdout)
	}
	for _, want := range []string{"step 1 hello started", "step 1 hello ok", "step 2 nap ok", "run id:"} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("stderr missing %q:\n%s", want, stderr)
		}
	}
	journal, err := os.ReadFile(filepath.Join(root, config.StateDirName, "logs", "butler.log"))
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if !strings.Contains(string(journal), "hello butler") {
		t.Fatalf("journal missing rendered message:\n%s", journal)
	}
}

func TestRunReportsStepFailure(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "broken.yaml", brokenYAML)

	stdout, _, err := execute(t, "--project", root, "run", "broken", "--no-dashboard")
	var stepErr *procedure.StepExecutionError
	if !errors.As(err, &stepErr) || stepErr.Step != "boom" {
		t.Fatalf("expected StepExecutionError for boom, got %v", err)
	}
	if !strings.Contains(stdout, "broken: failed") {
		t.Fatalf("unexpected summary %q", stdout)
	}
}

func TestRunRejectsBadParameters(t *testing.T) {
	root := newProject(t)
	writeProcedure(t, root, "greet.yaml", greetYAML)

	cases := map[string][]string{
		"undeclared": {"--set", "nobody=1"},
		"malformed":  {"--set", "who"},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			args := append([]string{"--project", root, "run", "greet", "--no-dashboard"}, extra...)
			if _, _, err := execute(t, args...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRunUnknownProcedure(t *testing.T) {
	root := newProject(t)
	_, _, err := execute(t, "--project", root, "run", "missing", "--no-dashboard")
	var notFound *procedure.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRunRequiresNameWithoutTerminal(t *testing.T) {
	root := newProject(t)
	if _, _, err := execute(t, "--project", root, "run"); err == nil {
		t.Fatalf("expected error without a name")
	}
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"a=1", "b=x=y", "c="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["a"] != "1" || got["b"] != "x=y" || got["c"] != "" {
		t.Fatalf("unexpected values %v", got)
	}
}
