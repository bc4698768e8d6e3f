package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfill/internal/domain"
	"formfill/internal/transform"
)

func TestDefaultTableLoads(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	first, ok := table.Field("first_name")
	require.True(t, ok)
	assert.Equal(t, "First Name Business Name", first.Widget)
	assert.Equal(t, KindText, first.Kind)
	assert.Equal(t, "On", first.CheckedToken)
	assert.Equal(t, "Off", first.UncheckedToken)

	assert.Equal(t, "title", table.Fields[0].LogicalName, "document order is preserved")
	assert.Equal(t, []string{"annual_income", "joint_annual_income"}, table.Bucketed)
}

func TestDefaultIncomeValueMapCoversEveryBucket(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	for _, name := range table.Bucketed {
		f, ok := table.Field(name)
		require.True(t, ok)
		for _, label := range transform.IncomeLabels() {
			_, ok := f.Lookup(label)
			assert.True(t, ok, "%s has no token for %q", name, label)
		}
	}
}

func TestDefaultCatalogMatchesTable(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	for _, f := range table.Fields {
		_, ok := catalog.Lookup(f.Widget)
		assert.True(t, ok, "widget %q of %s missing from catalog", f.Widget, f.LogicalName)
		for _, token := range f.ValueMap {
			assert.True(t, catalog.IsCheckbox(token), "token %q of %s is not a checkbox widget", token, f.LogicalName)
		}
	}
	for _, g := range table.MultiSelect {
		for _, o := range g.Options {
			assert.True(t, catalog.IsCheckbox(o.Widget), "option widget %q missing", o.Widget)
		}
	}
}

func TestParseRejectsDuplicateLogicalNames(t *testing.T) {
	_, err := Parse([]byte(`
fields:
  email:
    pdf_field: Email
  email:
    pdf_field: Email Address
`))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Contains(t, cfgErr.Error(), `duplicate logical field "email"`)
}

func TestParseAllowsSharedWidgets(t *testing.T) {
	table, err := Parse([]byte(`
fields:
  tax_resident_other:
    pdf_field: Other_3
    type: checkbox
  tax_residency_other_flag:
    pdf_field: Other_3
    type: checkbox
`))
	require.NoError(t, err)
	assert.Len(t, table.Fields, 2)
}

func TestParseRejectsBadConfiguration(t *testing.T) {
	cases := map[string]string{
		"unknown type": `
fields:
  a: {pdf_field: A, type: slider}
`,
		"missing widget": `
fields:
  a: {type: text}
`,
		"radio without map": `
fields:
  a: {pdf_field: A, type: radio_group}
`,
		"bucketed undefined": `
fields:
  a: {pdf_field: A}
bucketed: [income]
`,
		"single select without map": `
fields:
  a: {pdf_field: A}
single_select: [a]
`,
		"incomplete option": `
multi_select:
  docs:
    options:
      - {value: Passport}
`,
		"not yaml": `fields: [`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestParseCustomTokens(t *testing.T) {
	table, err := Parse([]byte(`
fields:
  consent:
    pdf_field: Consent
    type: checkbox
    checked_value: "Yes"
    unchecked_value: "No"
`))
	require.NoError(t, err)
	f, _ := table.Field("consent")
	assert.Equal(t, "Yes", f.CheckedToken)
	assert.Equal(t, "No", f.UncheckedToken)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o644))
	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, table.Fields)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`
widgets:
  - {name: Other Notes, type: Tx}
  - {name: Other Country, type: Tx}
  - {name: Passport, type: Btn}
  - {name: Plan, type: radio_group, options: [RRSP, TFSA]}
  - {name: Region, type: Ch}
`))
	require.NoError(t, err)

	w, ok := catalog.Lookup("Plan")
	require.True(t, ok)
	assert.Equal(t, domain.WidgetRadioGroup, w.Kind)
	assert.Equal(t, []string{"RRSP", "TFSA"}, w.Options)

	region, _ := catalog.Lookup("Region")
	assert.Equal(t, domain.WidgetUnknown, region.Kind)

	assert.True(t, catalog.IsCheckbox("Passport"))
	assert.False(t, catalog.IsCheckbox("Other Notes"))

	found, ok := catalog.FindByNameParts(domain.WidgetUnknown, "country", "other")
	require.True(t, ok)
	assert.Equal(t, "Other Country", found.Name)

	found, ok = catalog.FindByNameParts(domain.WidgetTextBox, "other")
	require.True(t, ok)
	assert.Equal(t, "Other Notes", found.Name)

	_, ok = catalog.FindByNameParts(domain.WidgetUnknown, "investment")
	assert.False(t, ok)
}

func TestParseCatalogRejectsNamelessWidget(t *testing.T) {
	_, err := ParseCatalog([]byte("widgets:\n  - {type: Tx}\n"))
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
