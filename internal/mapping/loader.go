package mapping

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yml
var defaultsFS embed.FS

const (
	defaultTablePath   = "defaults/kyc_field_mappings.yml"
	defaultCatalogPath = "defaults/kyc_widgets.yml"
)

type yamlField struct {
	PDFField       string            `yaml:"pdf_field"`
	Type           string            `yaml:"type"`
	ValueMap       map[string]string `yaml:"value_map"`
	CheckedValue   string            `yaml:"checked_value"`
	UncheckedValue string            `yaml:"unchecked_value"`
}

type yamlFields []FieldMapping

// UnmarshalYAML walks the mapping node directly so document order is kept
// and duplicate keys reach Validate instead of failing the decoder.
func (f *yamlFields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var raw yamlField
		if err := val.Decode(&raw); err != nil {
			return fmt.Errorf("field %s: %w", key.Value, err)
		}
		kind, err := ParseKind(raw.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", key.Value, err)
		}
		*f = append(*f, FieldMapping{
			LogicalName:    key.Value,
			Widget:         raw.PDFField,
			Kind:           kind,
			ValueMap:       raw.ValueMap,
			CheckedToken:   raw.CheckedValue,
			UncheckedToken: raw.UncheckedValue,
		})
	}
	return nil
}

type yamlMultiSelect []MultiSelect

func (m *yamlMultiSelect) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: multi_select must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var raw struct {
			CheckedValue string   `yaml:"checked_value"`
			Options      []Option `yaml:"options"`
		}
		if err := val.Decode(&raw); err != nil {
			return fmt.Errorf("multi_select %s: %w", key.Value, err)
		}
		*m = append(*m, MultiSelect{
			LogicalName:  key.Value,
			CheckedToken: raw.CheckedValue,
			Options:      raw.Options,
		})
	}
	return nil
}

type yamlTable struct {
	Version      string          `yaml:"version"`
	Fields       yamlFields      `yaml:"fields"`
	Bucketed     []string        `yaml:"bucketed"`
	SingleSelect []string        `yaml:"single_select"`
	MultiSelect  yamlMultiSelect `yaml:"multi_select"`
}

// Parse decodes, defaults and validates a mapping table.
func Parse(data []byte) (*Table, error) {
	var raw yamlTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("invalid mapping yaml: %v", err)}}
	}
	t := &Table{
		Version:      raw.Version,
		Fields:       raw.Fields,
		Bucketed:     raw.Bucketed,
		SingleSelect: raw.SingleSelect,
		MultiSelect:  raw.MultiSelect,
	}
	applyDefaults(t)
	t.reindex()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a mapping table from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded KYC mapping table.
func Default() (*Table, error) {
	data, err := defaultsFS.ReadFile(defaultTablePath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// DefaultYAML returns the embedded KYC mapping table source.
func DefaultYAML() []byte {
	data, _ := defaultsFS.ReadFile(defaultTablePath)
	return data
}

func applyDefaults(t *Table) {
	if t.Version == "" {
		t.Version = "1"
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.CheckedToken == "" {
			f.CheckedToken = DefaultCheckedToken
		}
		if f.UncheckedToken == "" {
			f.UncheckedToken = DefaultUncheckedToken
		}
	}
	for i := range t.MultiSelect {
		if t.MultiSelect[i].CheckedToken == "" {
			t.MultiSelect[i].CheckedToken = DefaultCheckedToken
		}
	}
}
