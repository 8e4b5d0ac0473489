package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/butler/internal/procedure"
)

func testDefinitions() []procedure.Definition {
	return []procedure.Definition{
		{Name: "backup", Description: "copy the data dir", Kind: procedure.KindStep, Source: "procedures/backup.yaml"},
		{Name: "doctor", Kind: procedure.KindStep, Source: procedure.SourceBuiltin},
	}
}

func sizedPicker(t *testing.T) *Picker {
	t.Helper()
	picker := NewPicker(testDefinitions())
	model, _ := picker.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	p, ok := model.(*Picker)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	return p
}

func TestPickerSelectsHighlightedProcedure(t *testing.T) {
	picker := sizedPicker(t)
	model, _ := picker.Update(tea.KeyMsg{Type: tea.KeyDown})
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p := model.(*Picker)
	if p.Selected() != "doctor" {
		t.Fatalf("expected doctor, got %q", p.Selected())
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestPickerCancel(t *testing.T) {
	picker := sizedPicker(t)
	model, cmd := picker.Update(tea.KeyMsg{Type: tea.KeyEsc})
	p := model.(*Picker)
	if !p.Cancelled() || p.Selected() != "" {
		t.Fatalf("expected cancelled picker, got selected=%q", p.Selected())
	}
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
}

func TestProcedureItemDescription(t *testing.T) {
	item := procedureItem{name: "doctor", kind: procedure.KindStep, source: procedure.SourceBuiltin}
	if got := item.Description(); got != "step · builtin · no description" {
		t.Fatalf("unexpected description %q", got)
	}
	if item.FilterValue() != "doctor" {
		t.Fatalf("filter value should be the name")
	}
}

func TestPickRejectsEmptyList(t *testing.T) {
	if _, err := Pick(nil); err == nil {
		t.Fatalf("expected error for empty list")
	}
}
