package mapping

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed mapping table or catalog. It is a
// load-time failure; a table that passed Validate never produces one.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "mapping configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks structural invariants of the table.
func (t *Table) Validate() error {
	if t.index == nil {
		t.reindex()
	}
	var problems []string
	for _, name := range t.duplicates {
		problems = append(problems, fmt.Sprintf("duplicate logical field %q", name))
	}
	for _, f := range t.Fields {
		if f.LogicalName == "" {
			problems = append(problems, "field with empty logical name")
		}
		if strings.TrimSpace(f.Widget) == "" {
			problems = append(problems, fmt.Sprintf("field %s has no pdf_field", f.LogicalName))
		}
		switch f.Kind {
		case KindText, KindCheckbox, KindArray:
		case KindRadioGroup:
			if len(f.ValueMap) == 0 {
				problems = append(problems, fmt.Sprintf("radio_group field %s has no value_map", f.LogicalName))
			}
		default:
			problems = append(problems, fmt.Sprintf("field %s has invalid kind %s", f.LogicalName, f.Kind))
		}
		for from, to := range f.ValueMap {
			if to == "" {
				problems = append(problems, fmt.Sprintf("field %s maps %q to an empty token", f.LogicalName, from))
			}
		}
	}
	for _, name := range t.Bucketed {
		f, ok := t.Field(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("bucketed field %s is not defined", name))
			continue
		}
		if len(f.ValueMap) == 0 {
			problems = append(problems, fmt.Sprintf("bucketed field %s has no value_map", name))
		}
	}
	for _, name := range t.SingleSelect {
		f, ok := t.Field(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("single_select field %s is not defined", name))
			continue
		}
		if len(f.ValueMap) == 0 {
			problems = append(problems, fmt.Sprintf("single_select field %s has no value_map", name))
		}
	}
	seenGroups := map[string]bool{}
	for _, g := range t.MultiSelect {
		if seenGroups[g.LogicalName] {
			problems = append(problems, fmt.Sprintf("duplicate multi_select group %q", g.LogicalName))
		}
		seenGroups[g.LogicalName] = true
		if _, ok := t.Field(g.LogicalName); ok {
			problems = append(problems, fmt.Sprintf("multi_select group %s is also a field", g.LogicalName))
		}
		seenOptions := map[string]bool{}
		for _, o := range g.Options {
			if o.Value == "" || o.Widget == "" {
				problems = append(problems, fmt.Sprintf("multi_select group %s has an incomplete option", g.LogicalName))
				continue
			}
			if seenOptions[o.Value] {
				problems = append(problems, fmt.Sprintf("multi_select group %s repeats option %q", g.LogicalName, o.Value))
			}
			seenOptions[o.Value] = true
		}
	}
	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}
