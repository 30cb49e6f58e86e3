package actor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/d20"
)

// SheetSpec is the serializable character sheet a participant may play.
// Sheets are optional; a participant without one is narrated without
// game mechanics.
type SheetSpec struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Class       string         `json:"class,omitempty"`
	Level       int            `json:"level,omitempty"`
	Description string         `json:"description,omitempty"`
	HP          int            `json:"hp,omitempty"`
	MaxHP       int            `json:"max_hp,omitempty"`
	AC          int            `json:"ac,omitempty"`
	Attributes  map[string]int `json:"attributes,omitempty"`
	Inventory   []string       `json:"inventory,omitempty"`
}

// Sheet is the runtime character sheet, with the stat block built on
// the d20 actor.
type Sheet struct {
	Spec  *SheetSpec
	Actor *d20.Actor
}

// NewSheetFromSpec builds a Sheet from its spec.
func NewSheetFromSpec(spec *SheetSpec) (*Sheet, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	a, err := d20.NewActor(spec.ID).
		WithHP(spec.MaxHP).
		WithAC(spec.AC).
		WithAttributes(spec.Attributes).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if spec.HP != spec.MaxHP && spec.HP > 0 {
		if err := a.SetHP(spec.HP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}

	return &Sheet{Spec: spec, Actor: a}, nil
}

// LoadSheet reads a sheet spec from a JSON file and builds it. The
// filename (without .json) overrides any id in the JSON.
func LoadSheet(path string) (*Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet file: %w", err)
	}

	var spec SheetSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sheet spec: %w", err)
	}
	spec.ID = strings.TrimSuffix(filepath.Base(path), ".json")

	return NewSheetFromSpec(&spec)
}

// PromptContext renders the sheet as a compact map for generator
// prompts.
func (s *Sheet) PromptContext() map[string]any {
	out := map[string]any{
		"name": s.Spec.Name,
	}
	if s.Spec.Class != "" {
		out["class"] = s.Spec.Class
	}
	if s.Spec.Level > 0 {
		out["level"] = s.Spec.Level
	}
	out["hp"] = s.Actor.HP()
	out["max_hp"] = s.Actor.MaxHP()
	out["ac"] = s.Actor.AC()

	attrs := make(map[string]int)
	for key := range s.Spec.Attributes {
		if val, ok := s.Actor.Attribute(key); ok {
			attrs[key] = val
		}
	}
	if len(attrs) > 0 {
		out["attributes"] = attrs
	}
	return out
}
