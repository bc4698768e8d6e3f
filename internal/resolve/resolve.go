// Package resolve turns a logical client record into the flat widget name →
// value set written into a template.
//
// Resolution runs a fixed sequence of passes over the record. Later passes
// may overwrite widgets set by earlier ones; that ordering is the collision
// policy:
//
//  1. table-driven pass over every mapped field
//  2. bucketed numeric fields re-asserted after normalisation
//  3. single-select fields flag their mapped widget
//  4. multi-select groups flag one widget per known option
//  5. supplementary free text (additional countries / investments)
//  6. passthrough of record keys not yet present
//
// Resolution performs no I/O and depends only on its input, the table and
// the catalog.
package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"formfill/internal/domain"
	"formfill/internal/logging"
	"formfill/internal/mapping"
	"formfill/internal/transform"
)

// Input is one logical record plus the free-form supplementary lists.
type Input struct {
	Record                map[string]any `json:"record"`
	AdditionalCountries   []string       `json:"additional_countries,omitempty"`
	AdditionalInvestments []string       `json:"additional_investments,omitempty"`
}

type Resolver struct {
	Table   *mapping.Table
	Catalog *mapping.Catalog
	Logger  *slog.Logger
}

func New(table *mapping.Table, catalog *mapping.Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	if catalog == nil {
		catalog = mapping.NewCatalog(nil)
	}
	return &Resolver{Table: table, Catalog: catalog, Logger: logger}
}

// Resolve builds the resolution set for in.
func (r *Resolver) Resolve(in Input) *domain.ResolutionSet {
	set := domain.NewResolutionSet()
	record := r.normalize(in.Record)

	r.applyTable(set, record)
	r.applyBucketed(set, record)
	r.applySingleSelect(set, record)
	r.applyMultiSelect(set, record)
	r.applySupplementary(set, in.AdditionalCountries, in.AdditionalInvestments)
	applyPassthrough(set, record)

	r.Logger.Debug("resolution set prepared", slog.Int("widgets", set.Len()))
	return set
}

// normalize buckets income-like fields ahead of every pass.
func (r *Resolver) normalize(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, name := range r.Table.Bucketed {
		if v, ok := out[name]; ok && !transform.IsEmpty(v) {
			out[name] = transform.BucketIncome(v)
		}
	}
	return out
}

func (r *Resolver) applyTable(set *domain.ResolutionSet, record map[string]any) {
	for _, f := range r.Table.Fields {
		val, ok := record[f.LogicalName]
		if !ok || transform.IsEmpty(val) {
			continue
		}
		switch f.Kind {
		case mapping.KindText:
			set.Set(f.Widget, transform.String(val))
		case mapping.KindCheckbox:
			if transform.IsTruthyToken(val) {
				set.Set(f.Widget, f.CheckedToken)
			} else {
				set.Set(f.Widget, f.UncheckedToken)
			}
		case mapping.KindRadioGroup:
			r.applyRadio(set, f, transform.String(val))
		case mapping.KindArray:
			if joined, ok := transform.JoinOrPassthrough(val); ok {
				set.Set(f.Widget, joined)
			}
		default:
			r.Logger.Error("mapping field has invalid kind", slog.String("field", f.LogicalName), slog.String("kind", f.Kind.String()))
		}
	}
}

// applyRadio writes both the group widget and the widget named by the mapped
// token, so a template whose catalog misclassifies the option still ends up
// with the option flagged.
func (r *Resolver) applyRadio(set *domain.ResolutionSet, f mapping.FieldMapping, value string) {
	token, ok := f.Lookup(value)
	if !ok {
		token = value
	}
	if token != f.Widget && r.Catalog.IsCheckbox(token) {
		set.Set(token, f.CheckedToken)
		set.Set(f.Widget, token)
		return
	}
	set.Set(f.Widget, token)
	set.Set(token, f.CheckedToken)
}

func (r *Resolver) applyBucketed(set *domain.ResolutionSet, record map[string]any) {
	for _, name := range r.Table.Bucketed {
		val, ok := record[name]
		if !ok || transform.IsEmpty(val) {
			continue
		}
		f, ok := r.Table.Field(name)
		if !ok {
			continue
		}
		label := transform.String(transform.BucketIncome(val))
		flag, ok := f.Lookup(label)
		if !ok {
			flag = label
		}
		set.Set(flag, f.CheckedToken)
		set.Set(f.Widget, label)
	}
}

func (r *Resolver) applySingleSelect(set *domain.ResolutionSet, record map[string]any) {
	for _, name := range r.Table.SingleSelect {
		val, ok := record[name]
		if !ok || transform.IsEmpty(val) {
			continue
		}
		f, ok := r.Table.Field(name)
		if !ok {
			continue
		}
		if token, ok := f.Lookup(transform.String(val)); ok {
			set.Set(token, f.CheckedToken)
		}
	}
}

func (r *Resolver) applyMultiSelect(set *domain.ResolutionSet, record map[string]any) {
	for _, group := range r.Table.MultiSelect {
		val, ok := record[group.LogicalName]
		if !ok || transform.IsEmpty(val) {
			continue
		}
		options, ok := transform.Strings(val)
		if !ok {
			s, isString := val.(string)
			if !isString {
				continue
			}
			options = []string{s}
		}
		for _, opt := range options {
			widget, known := group.Widget(opt)
			if !known {
				r.Logger.Debug("ignoring unknown option", slog.String("group", group.LogicalName), slog.String("option", opt))
				continue
			}
			set.Set(widget, group.CheckedToken)
		}
	}
}

func (r *Resolver) applySupplementary(set *domain.ResolutionSet, countries, investments []string) {
	shared := r.writeSupplementary(set, "countries", "country", "Additional countries", countries, "")
	r.writeSupplementary(set, "investments", "investment", "Additional investments", investments, shared)
}

// writeSupplementary prefers a dedicated "<topic> other" widget and falls
// back to the first generic "other" text widget, overwriting what earlier
// passes wrote there. Only text this pass put in appendTo is kept and
// appended to. It returns the fallback widget it wrote, if any.
func (r *Resolver) writeSupplementary(set *domain.ResolutionSet, what, topic, prefix string, items []string, appendTo string) string {
	items = compact(items)
	if len(items) == 0 {
		return ""
	}
	joined := strings.Join(items, ", ")
	if w, ok := r.Catalog.FindByNameParts(domain.WidgetUnknown, topic, "other"); ok {
		set.Set(w.Name, joined)
		return ""
	}
	w, ok := r.Catalog.FindByNameParts(domain.WidgetTextBox, "other")
	if !ok {
		r.Logger.Warn("no widget for supplementary data; dropping it",
			slog.String("supplementary", what), slog.Int("items", len(items)))
		return ""
	}
	text := prefix + ": " + joined
	if w.Name == appendTo {
		if existing, ok := set.Get(w.Name); ok {
			if s := transform.String(existing); s != "" {
				text = s + "; " + text
			}
		}
	}
	set.Set(w.Name, text)
	return w.Name
}

func applyPassthrough(set *domain.ResolutionSet, record map[string]any) {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if set.Has(k) {
			continue
		}
		set.Set(k, record[k])
	}
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
