package plugins

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/kingrea/butler/internal/actions"
	"github.com/kingrea/butler/internal/procedure"
)

// TemplateData is exposed to templated action options.
type TemplateData struct {
	Params     procedure.Values
	Procedure  string
	ProjectDir string
}

// Build turns a validated definition into a registry entry. Each Factory call
// renders options against the bound parameters and builds a new instance.
func Build(def ProcedureDefinition, source, projectDir string, registry *actions.Registry) (procedure.Definition, error) {
	if err := def.Validate(registry); err != nil {
		return procedure.Definition{}, err
	}
	normalized := def.Normalized()
	params, err := procedure.NewParamSet(normalized.Params...)
	if err != nil {
		return procedure.Definition{}, fmt.Errorf("plugin %s: params: %w", normalized.Name, err)
	}
	kind := procedure.Kind(normalized.Kind)
	return procedure.Definition{
		Name:        normalized.Name,
		Description: normalized.Description,
		Kind:        kind,
		Source:      source,
		Params:      params,
		Factory: func(values procedure.Values) (procedure.Procedure, error) {
			data := TemplateData{Params: values, Procedure: normalized.Name, ProjectDir: projectDir}
			steps, err := bindSteps(normalized, data, registry)
			if err != nil {
				return nil, err
			}
			if kind == procedure.KindBasic {
				return newBasicProcedure(normalized, steps[0])
			}
			proc, err := procedure.NewStepProcedure(normalized.Name, procedure.WithSteps(steps...))
			if err != nil {
				return nil, err
			}
			proc.SetStatus(normalized.Description)
			return proc, nil
		},
	}, nil
}

func newBasicProcedure(def ProcedureDefinition, step procedure.Step) (procedure.Procedure, error) {
	proc, err := procedure.NewBasic(def.Name, func(ctx context.Context) (procedure.Result, error) {
		if err := step.Func(ctx); err != nil {
			return procedure.Result{Status: procedure.StatusFailed}, err
		}
		return procedure.Result{Message: fmt.Sprintf("%s done", step.Name)}, nil
	})
	if err != nil {
		return nil, err
	}
	proc.SetStatus(def.Description)
	return proc, nil
}

func bindSteps(def ProcedureDefinition, data TemplateData, registry *actions.Registry) ([]procedure.Step, error) {
	steps := make([]procedure.Step, 0, len(def.Steps))
	for idx, stepDef := range def.Steps {
		fn := stepDef.Func
		if fn == nil {
			rendered, err := renderOptions(stepDef.With, data)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: steps[%d] %s: %w", def.Name, idx, stepDef.Name, err)
			}
			fn, err = registry.Bind(stepDef.Action, rendered)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: steps[%d] %s: %w", def.Name, idx, stepDef.Name, err)
			}
		}
		step := procedure.Step{
			Name:     stepDef.Name,
			Func:     fn,
			Parallel: stepDef.Parallel,
			Blocking: stepDef.IsBlocking(),
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func renderOptions(with map[string]any, data TemplateData) (actions.Options, error) {
	rendered := make(actions.Options, len(with))
	for key, value := range with {
		out, err := renderValue(key, value, data)
		if err != nil {
			return nil, err
		}
		rendered[key] = out
	}
	return rendered, nil
}

func renderValue(key string, value any, data TemplateData) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}
		tmpl, err := template.New(key).Option("missingkey=error").Funcs(template.FuncMap{
			"join": strings.Join,
		}).Parse(v)
		if err != nil {
			return nil, fmt.Errorf("option %s: parse template: %w", key, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("option %s: render template: %w", key, err)
		}
		return buf.String(), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			rendered, err := renderValue(key+"."+k, inner, data)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			rendered, err := renderValue(fmt.Sprintf("%s[%d]", key, i), inner, data)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}

func hasTemplate(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, "{{")
	case map[string]any:
		for _, inner := range v {
			if hasTemplate(inner) {
				return true
			}
		}
	case []any:
		for _, inner := range v {
			if hasTemplate(inner) {
				return true
			}
		}
	}
	return false
}
