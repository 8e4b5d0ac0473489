package plugins

import (
	"fmt"
	"strings"

	"github.com/kingrea/butler/internal/actions"
	"github.com/kingrea/butler/internal/procedure"
)

// ProcedureDefinition describes a declarative procedure loaded from a
// YAML, HCL or Go file under the procedure module directory.
type ProcedureDefinition struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	Params      []procedure.Param `json:"params,omitempty" yaml:"params,omitempty"`
	Steps       []StepDefinition  `json:"steps" yaml:"steps"`
}

// StepDefinition declares one step: either a built-in action with options or,
// for Go files, a function.
type StepDefinition struct {
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Action   string         `json:"action,omitempty" yaml:"action,omitempty"`
	With     map[string]any `json:"with,omitempty" yaml:"with,omitempty"`
	Parallel bool           `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	// Blocking defaults to true when omitted.
	Blocking *bool `json:"blocking,omitempty" yaml:"blocking,omitempty"`

	Func procedure.StepFunc `json:"-" yaml:"-"`
}

// IsBlocking resolves the blocking default.
func (s StepDefinition) IsBlocking() bool {
	return s.Blocking == nil || *s.Blocking
}

// Normalized returns a trimmed copy with defaults applied.
func (def ProcedureDefinition) Normalized() ProcedureDefinition {
	clone := ProcedureDefinition{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Kind:        strings.ToLower(strings.TrimSpace(def.Kind)),
		Params:      append([]procedure.Param(nil), def.Params...),
	}
	if clone.Kind == "" {
		clone.Kind = string(procedure.KindStep)
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepDefinition, len(def.Steps))
		for i, step := range def.Steps {
			clone.Steps[i] = step.normalized(i)
		}
	}
	return clone
}

func (s StepDefinition) normalized(index int) StepDefinition {
	clone := s
	clone.Name = strings.TrimSpace(s.Name)
	clone.Action = strings.ToLower(strings.TrimSpace(s.Action))
	if clone.Name == "" {
		if clone.Action != "" {
			clone.Name = clone.Action
		} else {
			clone.Name = fmt.Sprintf("step-%d", index+1)
		}
	}
	if len(s.With) > 0 {
		clone.With = make(map[string]any, len(s.With))
		for key, value := range s.With {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.With[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the definition is well-formed and only names actions
// present in registry.
func (def ProcedureDefinition) Validate(registry *actions.Registry) error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	switch procedure.Kind(normalized.Kind) {
	case procedure.KindStep:
		if len(normalized.Steps) == 0 {
			return fmt.Errorf("plugin %s: at least one step is required", normalized.Name)
		}
	case procedure.KindBasic:
		if len(normalized.Steps) != 1 {
			return fmt.Errorf("plugin %s: basic procedures take exactly one step", normalized.Name)
		}
	default:
		return fmt.Errorf("plugin %s: kind must be 'basic' or 'step'", normalized.Name)
	}
	if _, err := procedure.NewParamSet(normalized.Params...); err != nil {
		return fmt.Errorf("plugin %s: params: %w", normalized.Name, err)
	}
	for idx, step := range normalized.Steps {
		if err := step.validate(registry); err != nil {
			return fmt.Errorf("plugin %s: steps[%d] %s: %w", normalized.Name, idx, step.Name, err)
		}
	}
	return nil
}

func (s StepDefinition) validate(registry *actions.Registry) error {
	switch {
	case s.Func != nil && s.Action != "":
		return fmt.Errorf("a step takes either an action or a function, not both")
	case s.Func != nil:
		return nil
	case s.Action == "":
		return fmt.Errorf("action is required")
	}
	if registry == nil {
		return fmt.Errorf("no actions available")
	}
	if !registry.Has(s.Action) {
		return fmt.Errorf("%w: %s", actions.ErrActionNotFound, s.Action)
	}
	// Templated options can only be checked once parameters are bound.
	if hasTemplate(s.With) {
		return nil
	}
	_, err := registry.Bind(s.Action, actions.Options(s.With))
	return err
}
