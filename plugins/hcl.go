package plugins

import (
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/kingrea/butler/internal/procedure"
)

type hclDefinitionFile struct {
	Procedures []hclProcedure `hcl:"procedure,block"`
}

type hclProcedure struct {
	Name        string     `hcl:"name,label"`
	Description string     `hcl:"description,optional"`
	Kind        string     `hcl:"kind,optional"`
	Params      []hclParam `hcl:"param,block"`
	Steps       []hclStep  `hcl:"step,block"`
}

type hclParam struct {
	Name        string    `hcl:"name,label"`
	Type        string    `hcl:"type,optional"`
	Required    bool      `hcl:"required,optional"`
	Default     cty.Value `hcl:"default,optional"`
	Description string    `hcl:"description,optional"`
}

type hclStep struct {
	Name     string    `hcl:"name,label"`
	Action   string    `hcl:"action"`
	Parallel bool      `hcl:"parallel,optional"`
	Blocking *bool     `hcl:"blocking,optional"`
	With     cty.Value `hcl:"with,optional"`
}

// LoadHCLFile parses `procedure "name" { ... }` blocks from an HCL file.
func LoadHCLFile(path string, parser *hclparse.Parser) ([]DefinitionFile, error) {
	if parser == nil {
		parser = hclparse.NewParser()
	}
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("plugin: parse %s: %w", path, diags)
	}
	var parsed hclDefinitionFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("plugin: decode %s: %w", path, diags)
	}
	clean := filepath.Clean(path)
	files := make([]DefinitionFile, 0, len(parsed.Procedures))
	for idx, block := range parsed.Procedures {
		def, err := block.definition()
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: procedure %q: %w", path, block.Name, err)
		}
		source := clean
		if len(parsed.Procedures) > 1 {
			source = fmt.Sprintf("%s#%d", clean, idx+1)
		}
		files = append(files, DefinitionFile{Definition: def.Normalized(), Path: source})
	}
	return files, nil
}

func (p hclProcedure) definition() (ProcedureDefinition, error) {
	def := ProcedureDefinition{
		Name:        p.Name,
		Description: p.Description,
		Kind:        p.Kind,
	}
	for _, param := range p.Params {
		value, err := ctyToNative(param.Default)
		if err != nil {
			return ProcedureDefinition{}, fmt.Errorf("param %s: %w", param.Name, err)
		}
		def.Params = append(def.Params, procedure.Param{
			Name:        param.Name,
			Type:        procedure.ParamType(param.Type),
			Required:    param.Required,
			Value:       value,
			Description: param.Description,
		})
	}
	for _, step := range p.Steps {
		with, err := ctyToNative(step.With)
		if err != nil {
			return ProcedureDefinition{}, fmt.Errorf("step %s: %w", step.Name, err)
		}
		stepDef := StepDefinition{
			Name:     step.Name,
			Action:   step.Action,
			Parallel: step.Parallel,
			Blocking: step.Blocking,
		}
		if with != nil {
			options, ok := with.(map[string]any)
			if !ok {
				return ProcedureDefinition{}, fmt.Errorf("step %s: with must be an object", step.Name)
			}
			stepDef.With = options
		}
		def.Steps = append(def.Steps, stepDef)
	}
	return def, nil
}

// ctyToNative converts a cty value into plain Go values. Whole numbers become
// int so they satisfy int parameters.
func ctyToNative(v cty.Value) (any, error) {
	if v.Type() == cty.NilType || v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if n, acc := bf.Int64(); acc == big.Exact {
				return int(n), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
