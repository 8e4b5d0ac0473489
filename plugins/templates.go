package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kingrea/butler/internal/procedure"
)

// Template formats accepted by CreateProcedure.
const (
	FormatYAML = "yaml"
	FormatHCL  = "hcl"
	FormatGo   = "go"
)

var fileNameCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// FileName returns the file name a procedure called name is scaffolded into.
func FileName(name, format string) string {
	base := strings.Trim(fileNameCleaner.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if base == "" {
		base = "procedure"
	}
	return base + "." + format
}

// CreateProcedure writes a skeleton definition for name into dir. It never
// overwrites: an existing file yields an error wrapping os.ErrExist.
func CreateProcedure(dir, name string, kind procedure.Kind, format string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", procedure.ErrMissingName
	}
	if kind == "" {
		kind = procedure.KindStep
	}
	if kind != procedure.KindBasic && kind != procedure.KindStep {
		return "", fmt.Errorf("plugin: unknown kind %q", kind)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatYAML
	}
	body, err := renderSkeleton(name, kind, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("plugin: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(name, format))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("plugin: create %s: %w", path, err)
	}
	defer file.Close()
	if _, err := file.WriteString(body); err != nil {
		return "", fmt.Errorf("plugin: write %s: %w", path, err)
	}
	return path, nil
}

func renderSkeleton(name string, kind procedure.Kind, format string) (string, error) {
	var tmpl string
	switch {
	case format == FormatYAML && kind == procedure.KindBasic:
		tmpl = yamlBasicSkeleton
	case format == FormatYAML:
		tmpl = yamlStepSkeleton
	case format == FormatHCL && kind == procedure.KindBasic:
		tmpl = hclBasicSkeleton
	case format == FormatHCL:
		tmpl = hclStepSkeleton
	case format == FormatGo && kind == procedure.KindBasic:
		tmpl = goBasicSkeleton
	case format == FormatGo:
		tmpl = goStepSkeleton
	default:
		return "", fmt.Errorf("plugin: unknown format %q (want yaml, hcl or go)", format)
	}
	return fmt.Sprintf(tmpl, name), nil
}

const yamlBasicSkeleton = `name: %[1]s
description: Describe what %[1]s does.
kind: basic
params:
  - name: message
    type: string
    value: hello from %[1]s
steps:
  - action: log
    with:
      message: "{{ .Params.message }}"
`

const yamlStepSkeleton = `name: %[1]s
description: Describe what %[1]s does.
kind: step
params:
  - name: pause
    type: string
    value: 1s
steps:
  - name: prepare
    action: log
    with:
      message: preparing %[1]s
  - name: first
    action: delay
    parallel: true
    with:
      duration: "{{ .Params.pause }}"
  - name: second
    action: delay
    parallel: true
    blocking: false
    with:
      duration: "{{ .Params.pause }}"
  - name: finish
    action: log
    with:
      message: "%[1]s finished"
`

const hclBasicSkeleton = `procedure "%[1]s" {
  description = "Describe what %[1]s does."
  kind        = "basic"

  param "message" {
    type    = "string"
    default = "hello from %[1]s"
  }

  step "say" {
    action = "log"
    with = {
      message = "{{ .Params.message }}"
    }
  }
}
`

const hclStepSkeleton = `procedure "%[1]s" {
  description = "Describe what %[1]s does."
  kind        = "step"

  param "pause" {
    type    = "string"
    default = "1s"
  }

  step "prepare" {
    action = "log"
    with = {
      message = "preparing %[1]s"
    }
  }

  step "first" {
    action   = "delay"
    parallel = true
    with = {
      duration = "{{ .Params.pause }}"
    }
  }

  step "second" {
    action   = "delay"
    parallel = true
    blocking = false
    with = {
      duration = "{{ .Params.pause }}"
    }
  }

  step "finish" {
    action = "log"
    with = {
      message = "%[1]s finished"
    }
  }
}
`

const goBasicSkeleton = `package main

import "context"

func Procedures() []map[string]any {
	return []map[string]any{
		{
			"name":        "%[1]s",
			"description": "Describe what %[1]s does.",
			"kind":        "basic",
			"steps": []map[string]any{
				{"name": "work", "run": work},
			},
		},
	}
}

func work(ctx context.Context) error {
	return nil
}
`

const goStepSkeleton = `package main

import (
	"context"
	"time"
)

func Procedures() []map[string]any {
	return []map[string]any{
		{
			"name":        "%[1]s",
			"description": "Describe what %[1]s does.",
			"kind":        "step",
			"steps": []map[string]any{
				{"name": "prepare", "run": prepare},
				{"name": "first", "run": wait, "parallel": true},
				{"name": "second", "action": "delay", "parallel": true, "with": map[string]any{"duration": "1s"}},
				{"name": "finish", "action": "log", "with": map[string]any{"message": "%[1]s finished"}},
			},
		},
	}
}

func prepare(ctx context.Context) error {
	return nil
}

func wait(ctx context.Context) error {
	select {
	case <-time.After(time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
`
