package mapping

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"formfill/internal/domain"
)

// Catalog lists the widgets known for a template family. It only assists
// resolution; the populator always trusts the template it was handed.
type Catalog struct {
	Widgets []domain.WidgetDescriptor
	byName  map[string]int
}

type yamlCatalog struct {
	Widgets []struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Options []string `yaml:"options"`
	} `yaml:"widgets"`
}

// ParseWidgetKind accepts PDF field types (Tx, Btn, Ch) and the table
// spellings.
func ParseWidgetKind(s string) domain.WidgetKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tx", "text", "textfield", "datefield":
		return domain.WidgetTextBox
	case "btn", "checkbox":
		return domain.WidgetCheckBox
	case "radio", "radio_group", "radiobuttongroup":
		return domain.WidgetRadioGroup
	default:
		return domain.WidgetUnknown
	}
}

// NewCatalog indexes descriptors by name; the first descriptor of a name wins.
func NewCatalog(widgets []domain.WidgetDescriptor) *Catalog {
	c := &Catalog{Widgets: widgets, byName: make(map[string]int, len(widgets))}
	for i, w := range widgets {
		if _, ok := c.byName[w.Name]; !ok {
			c.byName[w.Name] = i
		}
	}
	return c
}

// ParseCatalog decodes a widget catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("invalid catalog yaml: %v", err)}}
	}
	widgets := make([]domain.WidgetDescriptor, 0, len(raw.Widgets))
	var problems []string
	for i, w := range raw.Widgets {
		if strings.TrimSpace(w.Name) == "" {
			problems = append(problems, fmt.Sprintf("catalog widget #%d has no name", i))
			continue
		}
		widgets = append(widgets, domain.WidgetDescriptor{
			Name:    w.Name,
			Kind:    ParseWidgetKind(w.Type),
			Options: w.Options,
		})
	}
	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return NewCatalog(widgets), nil
}

// LoadCatalogFile reads a widget catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded KYC widget catalog.
func DefaultCatalog() (*Catalog, error) {
	data, err := defaultsFS.ReadFile(defaultCatalogPath)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// Lookup finds a widget by exact name.
func (c *Catalog) Lookup(name string) (domain.WidgetDescriptor, bool) {
	if c == nil {
		return domain.WidgetDescriptor{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return domain.WidgetDescriptor{}, false
	}
	return c.Widgets[i], true
}

// IsCheckbox reports whether name is a checkbox-like widget.
func (c *Catalog) IsCheckbox(name string) bool {
	w, ok := c.Lookup(name)
	return ok && w.Kind == domain.WidgetCheckBox
}

// FindByNameParts returns the first widget, in catalog order, whose
// lower-cased name contains every part. kind restricts the match unless it
// is WidgetUnknown.
func (c *Catalog) FindByNameParts(kind domain.WidgetKind, parts ...string) (domain.WidgetDescriptor, bool) {
	if c == nil {
		return domain.WidgetDescriptor{}, false
	}
	for _, w := range c.Widgets {
		if kind != domain.WidgetUnknown && w.Kind != kind {
			continue
		}
		lowered := strings.ToLower(w.Name)
		match := true
		for _, p := range parts {
			if !strings.Contains(lowered, p) {
				match = false
				break
			}
		}
		if match {
			return w, true
		}
	}
	return domain.WidgetDescriptor{}, false
}
