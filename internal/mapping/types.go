// Package mapping holds the declarative Field Mapping Table and the widget
// descriptor catalog of a template family.
//
// Both are static configuration: loaded once at process start, validated,
// then shared read-only across concurrent generations.
package mapping

import (
	"fmt"
	"strings"
)

// Kind selects how a logical value is encoded into its widget.
type Kind int

const (
	KindText Kind = iota + 1
	KindCheckbox
	KindRadioGroup
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCheckbox:
		return "checkbox"
	case KindRadioGroup:
		return "radio_group"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the YAML spellings of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return KindText, nil
	case "checkbox":
		return KindCheckbox, nil
	case "radio_group", "radio":
		return KindRadioGroup, nil
	case "array":
		return KindArray, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", s)
	}
}

const (
	DefaultCheckedToken   = "On"
	DefaultUncheckedToken = "Off"
)

// FieldMapping is one rule of the table.
type FieldMapping struct {
	LogicalName    string
	Widget         string
	Kind           Kind
	ValueMap       map[string]string
	CheckedToken   string
	UncheckedToken string
}

// Lookup maps a logical value to its widget token.
func (m FieldMapping) Lookup(value string) (string, bool) {
	token, ok := m.ValueMap[value]
	return token, ok
}

// Option binds one literal of a multi-select group to its checkbox widget.
type Option struct {
	Value  string `yaml:"value" json:"value"`
	Widget string `yaml:"widget" json:"widget"`
}

// Table is the Field Mapping Table. Fields keep their document order.
type Table struct {
	Version      string
	Fields       []FieldMapping
	Bucketed     []string
	SingleSelect []string
	MultiSelect  []MultiSelect

	index      map[string]int
	duplicates []string
}

// MultiSelect is a checkbox group fed by a sequence of option literals.
type MultiSelect struct {
	LogicalName  string
	CheckedToken string
	Options      []Option
}

// Widget returns the checkbox widget for an option literal.
func (g MultiSelect) Widget(value string) (string, bool) {
	for _, o := range g.Options {
		if o.Value == value {
			return o.Widget, true
		}
	}
	return "", false
}

// Field returns the mapping for a logical name.
func (t *Table) Field(logical string) (FieldMapping, bool) {
	i, ok := t.index[logical]
	if !ok {
		return FieldMapping{}, false
	}
	return t.Fields[i], true
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Fields))
	t.duplicates = nil
	for i, f := range t.Fields {
		if _, ok := t.index[f.LogicalName]; ok {
			t.duplicates = append(t.duplicates, f.LogicalName)
			continue
		}
		t.index[f.LogicalName] = i
	}
}
