package procedure

import (
	"errors"
	"testing"
)

func TestNewParamSetValidation(t *testing.T) {
	cases := []struct {
		name   string
		params []Param
		check  func(error) bool
	}{
		{
			name:   "duplicate",
			params: []Param{{Name: "n", Type: ParamInt}, {Name: "n", Type: ParamString}},
			check: func(err error) bool {
				var dup *DuplicateParameterError
				return errors.As(err, &dup) && dup.Name == "n"
			},
		},
		{
			name:   "unknown type",
			params: []Param{{Name: "n", Type: "complex"}},
			check:  func(err error) bool { return err != nil },
		},
		{
			name:   "default mismatch",
			params: []Param{{Name: "n", Type: ParamInt, Value: "three"}},
			check: func(err error) bool {
				var mismatch *TypeMismatchError
				return errors.As(err, &mismatch) && mismatch.Want == ParamInt
			},
		},
		{
			name:   "missing name",
			params: []Param{{Type: ParamBool}},
			check:  func(err error) bool { return err != nil },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewParamSet(tc.params...)
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestParamSetDefaultsToString(t *testing.T) {
	set, err := NewParamSet(Param{Name: "greeting", Value: "hi"})
	if err != nil {
		t.Fatalf("new param set: %v", err)
	}
	param, ok := set.Lookup("greeting")
	if !ok || param.Type != ParamString {
		t.Fatalf("expected string param, got %+v", param)
	}
}

func TestBindAppliesDefaultsAndOverrides(t *testing.T) {
	set, err := NewParamSet(
		Param{Name: "count", Type: ParamInt, Value: 3},
		Param{Name: "ratio", Type: ParamFloat, Value: 2},
		Param{Name: "target", Type: ParamString, Required: true},
		Param{Name: "verbose", Type: ParamBool},
	)
	if err != nil {
		t.Fatalf("new param set: %v", err)
	}
	values, err := set.Bind(map[string]any{"target": "prod", "count": 5})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if values.Int("count") != 5 || values.Float("ratio") != 2 || values.String("target") != "prod" {
		t.Fatalf("unexpected values %v", values)
	}
	if _, ok := values["verbose"]; ok {
		t.Fatalf("optional param without default must stay unset")
	}

	_, err = set.Bind(nil)
	var missing *MissingRequiredParameterError
	if !errors.As(err, &missing) || missing.Name != "target" {
		t.Fatalf("expected missing target, got %v", err)
	}

	if _, err := set.Bind(map[string]any{"target": "x", "extra": 1}); err == nil {
		t.Fatalf("expected undeclared parameter to be rejected")
	}

	_, err = set.Bind(map[string]any{"target": 7})
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) || mismatch.Name != "target" {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestParseValues(t *testing.T) {
	set, err := NewParamSet(
		Param{Name: "count", Type: ParamInt},
		Param{Name: "ratio", Type: ParamFloat},
		Param{Name: "dry", Type: ParamBool},
		Param{Name: "label", Type: ParamString},
	)
	if err != nil {
		t.Fatalf("new param set: %v", err)
	}
	parsed, err := set.ParseValues(map[string]string{"count": "4", "ratio": "0.5", "dry": "true", "label": " x "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	values, err := set.Bind(parsed)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if values.Int("count") != 4 || values.Float("ratio") != 0.5 || !values.Bool("dry") || values.String("label") != " x " {
		t.Fatalf("unexpected values %v", values)
	}

	_, err = set.ParseValues(map[string]string{"count": "four"})
	var mismatch *TypeMismatchError
	if !errors.As(err, &mismatch) || mismatch.Want != ParamInt {
		t.Fatalf("expected int mismatch, got %v", err)
	}
}
