package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/butler/internal/procedure"
)

const goDefinitionFuncName = "Procedures"

var (
	stepFuncType = reflect.TypeOf((*func(context.Context) error)(nil)).Elem()
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// LoadGoFile interprets a Go source file and collects the procedure
// definitions returned by its Procedures() function. Step entries may carry a
// "run" function of type func(context.Context) error instead of an action.
func LoadGoFile(path string) ([]DefinitionFile, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() []map[string]any: %w", path, goDefinitionFuncName, err)
	}
	raw, err := invokeDefinitionFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	clean := filepath.Clean(path)
	files := make([]DefinitionFile, 0, len(raw))
	for idx, entry := range raw {
		def, err := decodeGoDefinition(entry)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
		}
		source := clean
		if len(raw) > 1 {
			source = fmt.Sprintf("%s#%d", clean, idx+1)
		}
		files = append(files, DefinitionFile{Definition: def.Normalized(), Path: source})
	}
	return files, nil
}

func invokeDefinitionFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goDefinitionFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	if value.Type().NumIn() != 0 {
		return nil, fmt.Errorf("%s must not take arguments", goDefinitionFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return []map[string]any", goDefinitionFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned non-error second value", goDefinitionFuncName)
	}
	defsVal := results[0]
	if defs, ok := defsVal.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if defsVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return []map[string]any", goDefinitionFuncName)
	}
	defs := make([]map[string]any, defsVal.Len())
	for i := 0; i < defsVal.Len(); i++ {
		m, ok := defsVal.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not map[string]any", goDefinitionFuncName, i)
		}
		defs[i] = m
	}
	return defs, nil
}

// decodeGoDefinition strips step functions out of entry, decodes the rest
// through YAML and reattaches the functions.
func decodeGoDefinition(entry map[string]any) (ProcedureDefinition, error) {
	plain := make(map[string]any, len(entry))
	for key, value := range entry {
		plain[key] = value
	}
	var funcs map[int]procedure.StepFunc
	if rawSteps, ok := entry["steps"]; ok {
		steps, err := asMapSlice(rawSteps)
		if err != nil {
			return ProcedureDefinition{}, fmt.Errorf("steps: %w", err)
		}
		funcs = make(map[int]procedure.StepFunc)
		stripped := make([]map[string]any, len(steps))
		for idx, step := range steps {
			copyStep := make(map[string]any, len(step))
			for key, value := range step {
				if key == "run" {
					fn, err := asStepFunc(value)
					if err != nil {
						return ProcedureDefinition{}, fmt.Errorf("steps[%d].run: %w", idx, err)
					}
					funcs[idx] = fn
					continue
				}
				copyStep[key] = value
			}
			stripped[idx] = copyStep
		}
		plain["steps"] = stripped
	}
	payload, err := yaml.Marshal(plain)
	if err != nil {
		return ProcedureDefinition{}, err
	}
	var def ProcedureDefinition
	if err := yaml.Unmarshal(payload, &def); err != nil {
		return ProcedureDefinition{}, err
	}
	for idx, fn := range funcs {
		if idx < len(def.Steps) {
			def.Steps[idx].Func = fn
		}
	}
	return def, nil
}

func asMapSlice(value any) ([]map[string]any, error) {
	if steps, ok := value.([]map[string]any); ok {
		return steps, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("must be a list of maps")
	}
	steps := make([]map[string]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		m, ok := rv.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d] is not map[string]any", i)
		}
		steps[i] = m
	}
	return steps, nil
}

// asStepFunc accepts a compiled func(context.Context) error or any
// interpreted function value with that signature.
func asStepFunc(value any) (procedure.StepFunc, error) {
	switch fn := value.(type) {
	case func(context.Context) error:
		return fn, nil
	case procedure.StepFunc:
		return fn, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("must be a function, got %T", value)
	}
	if rv.Type().ConvertibleTo(stepFuncType) {
		converted := rv.Convert(stepFuncType).Interface().(func(context.Context) error)
		return converted, nil
	}
	t := rv.Type()
	if t.NumIn() != 1 || t.NumOut() != 1 || !contextType.AssignableTo(t.In(0)) || !t.Out(0).Implements(errorType) {
		return nil, fmt.Errorf("must have signature func(context.Context) error, got %s", t)
	}
	return func(ctx context.Context) error {
		out := rv.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem()})
		if err, ok := out[0].Interface().(error); ok {
			return err
		}
		return nil
	}, nil
}
