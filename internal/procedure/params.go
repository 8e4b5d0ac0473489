package procedure

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParamType enumerates the value types a parameter may declare.
type ParamType string

const (
	ParamBool   ParamType = "bool"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
)

// Valid reports whether t is one of the supported types.
func (t ParamType) Valid() bool {
	switch t {
	case ParamBool, ParamInt, ParamFloat, ParamString:
		return true
	default:
		return false
	}
}

// Param declares one named, typed procedure parameter. Value is the default.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Value       any       `json:"value,omitempty" yaml:"value,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParamSet is a validated, ordered list of parameter declarations.
type ParamSet struct {
	params []Param
	index  map[string]int
}

// NewParamSet validates declarations: names must be unique, types known and
// defaults of the declared type.
func NewParamSet(params ...Param) (ParamSet, error) {
	set := ParamSet{index: make(map[string]int, len(params))}
	for _, param := range params {
		param.Name = strings.TrimSpace(param.Name)
		if param.Name == "" {
			return ParamSet{}, fmt.Errorf("parameter name is required")
		}
		if param.Type == "" {
			param.Type = ParamString
		}
		param.Type = ParamType(strings.ToLower(string(param.Type)))
		if !param.Type.Valid() {
			return ParamSet{}, fmt.Errorf("parameter %s: unknown type %q", param.Name, param.Type)
		}
		if _, exists := set.index[param.Name]; exists {
			return ParamSet{}, &DuplicateParameterError{Name: param.Name}
		}
		if param.Value != nil {
			coerced, err := coerce(param, param.Value)
			if err != nil {
				return ParamSet{}, err
			}
			param.Value = coerced
		}
		set.index[param.Name] = len(set.params)
		set.params = append(set.params, param)
	}
	return set, nil
}

// Params returns a copy of the declarations in declaration order.
func (s ParamSet) Params() []Param {
	return append([]Param(nil), s.params...)
}

// Lookup returns the declaration for name.
func (s ParamSet) Lookup(name string) (Param, bool) {
	idx, ok := s.index[name]
	if !ok {
		return Param{}, false
	}
	return s.params[idx], true
}

// Len returns the number of declared parameters.
func (s ParamSet) Len() int {
	return len(s.params)
}

// Bind merges supplied values over defaults. Undeclared names are rejected.
func (s ParamSet) Bind(values map[string]any) (Values, error) {
	bound := make(Values, len(s.params))
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		param, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("parameter %s is not declared", name)
		}
		raw := values[name]
		if raw == nil {
			continue
		}
		value, err := coerce(param, raw)
		if err != nil {
			return nil, err
		}
		bound[name] = value
	}
	for _, param := range s.params {
		if _, ok := bound[param.Name]; ok {
			continue
		}
		if param.Value != nil {
			bound[param.Name] = param.Value
			continue
		}
		if param.Required {
			return nil, &MissingRequiredParameterError{Name: param.Name}
		}
	}
	return bound, nil
}

// ParseValue converts a command-line string into a value of type t.
func ParseValue(t ParamType, raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	switch t {
	case ParamBool:
		return strconv.ParseBool(trimmed)
	case ParamInt:
		return strconv.Atoi(trimmed)
	case ParamFloat:
		return strconv.ParseFloat(trimmed, 64)
	case ParamString, "":
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
}

// ParseValues converts key=value strings using the declared types. Parse
// failures are reported as type mismatches.
func (s ParamSet) ParseValues(raw map[string]string) (map[string]any, error) {
	values := make(map[string]any, len(raw))
	for name, text := range raw {
		param, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("parameter %s is not declared", name)
		}
		value, err := ParseValue(param.Type, text)
		if err != nil {
			return nil, &TypeMismatchError{Name: name, Want: param.Type, Got: fmt.Sprintf("%q", text)}
		}
		values[name] = value
	}
	return values, nil
}

func coerce(param Param, value any) (any, error) {
	mismatch := &TypeMismatchError{Name: param.Name, Want: param.Type, Got: fmt.Sprintf("%T", value)}
	switch param.Type {
	case ParamBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case ParamInt:
		switch n := value.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case int32:
			return int(n), nil
		}
	case ParamFloat:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case ParamString:
		if str, ok := value.(string); ok {
			return str, nil
		}
	}
	return nil, mismatch
}

// Values holds bound parameter values keyed by name.
type Values map[string]any

// String returns the named string value or "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the named int value or 0.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// Float returns the named float value or 0.
func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

// Bool returns the named bool value or false.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}
