// Package document writes resolved values into form templates.
//
// The Populator discovers each widget's type from the template's own form
// catalog and dispatches on it; a Backend supplies the actual document
// library.
package document

import (
	"context"
	"errors"
	"log/slog"

	"formfill/internal/domain"
	"formfill/internal/logging"
	"formfill/internal/metrics"
	"formfill/internal/transform"
)

// Write is one planned widget write. Exactly one of Text, Checked or Option
// is meaningful, selected by Widget.Kind.
type Write struct {
	Widget  domain.WidgetDescriptor
	Text    string
	Checked bool
	Option  string
}

// Backend is the document library seam.
type Backend interface {
	// Inspect parses template and lists its widgets.
	Inspect(ctx context.Context, template []byte) ([]domain.WidgetDescriptor, error)
	// Fill returns a copy of template with writes applied.
	Fill(ctx context.Context, template []byte, writes []Write) ([]byte, error)
	// Finalize makes every widget of doc non-editable.
	Finalize(ctx context.Context, doc []byte) ([]byte, error)
}

type Populator struct {
	Backend Backend
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewPopulator(backend Backend, logger *slog.Logger, m *metrics.Metrics) *Populator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Populator{Backend: backend, Logger: logger, Metrics: m}
}

// Result describes one populated document.
type Result struct {
	Bytes     []byte
	Widgets   []domain.WidgetDescriptor
	Written   []string
	Skipped   []WidgetWriteMismatch
	Flattened bool
}

// Widgets lists the widgets of template.
func (p *Populator) Widgets(ctx context.Context, template []byte) ([]domain.WidgetDescriptor, error) {
	widgets, err := p.Backend.Inspect(ctx, template)
	if err != nil {
		var pe *TemplateParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &TemplateParseError{Err: err}
	}
	return widgets, nil
}

// Populate writes set into template and finalizes the result. Only a
// template that cannot be parsed fails the call.
func (p *Populator) Populate(ctx context.Context, template []byte, set *domain.ResolutionSet) (Result, error) {
	widgets, err := p.Widgets(ctx, template)
	if err != nil {
		return Result{}, err
	}
	p.logCatalog(ctx, widgets)

	byName := make(map[string]domain.WidgetDescriptor, len(widgets))
	for _, w := range widgets {
		if _, ok := byName[w.Name]; !ok {
			byName[w.Name] = w
		}
	}

	res := Result{Widgets: widgets}
	writes := p.plan(set, byName, &res)

	filled := template
	if len(writes) > 0 {
		filled, writes = p.fill(ctx, template, writes, &res)
	}
	for _, w := range writes {
		res.Written = append(res.Written, w.Widget.Name)
	}

	out, err := p.Backend.Finalize(ctx, filled)
	if err != nil {
		warn := &FinalizationWarning{Err: err}
		p.Logger.Warn("returning populated document without flattening", slog.String("error", warn.Error()))
		p.Metrics.IncFinalizeFailure()
		out = filled
	} else {
		res.Flattened = true
	}
	res.Bytes = out

	p.Metrics.AddWidgetWrites("written", len(res.Written))
	p.Metrics.AddWidgetWrites("skipped", len(res.Skipped))
	p.Logger.Info("document populated",
		slog.Int("written", len(res.Written)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Bool("flattened", res.Flattened),
		slog.Int("bytes", len(out)))
	return res, nil
}

// plan dispatches every resolved value on the discovered widget kind.
func (p *Populator) plan(set *domain.ResolutionSet, byName map[string]domain.WidgetDescriptor, res *Result) []Write {
	var writes []Write
	for _, entry := range set.Entries() {
		w, ok := byName[entry.Widget]
		if !ok {
			p.skip(res, WidgetWriteMismatch{Widget: entry.Widget, Kind: domain.WidgetUnknown, Reason: "not present in template"})
			continue
		}
		switch w.Kind {
		case domain.WidgetTextBox:
			writes = append(writes, Write{Widget: w, Text: transform.String(entry.Value)})
		case domain.WidgetCheckBox:
			writes = append(writes, Write{Widget: w, Checked: transform.IsTruthyToken(entry.Value)})
		case domain.WidgetRadioGroup:
			option := transform.String(entry.Value)
			if len(w.Options) > 0 && !contains(w.Options, option) {
				p.skip(res, WidgetWriteMismatch{Widget: w.Name, Kind: w.Kind, Reason: "option " + option + " not offered"})
				continue
			}
			writes = append(writes, Write{Widget: w, Option: option})
		case domain.WidgetUnknown:
			p.skip(res, WidgetWriteMismatch{Widget: w.Name, Kind: w.Kind, Reason: "unsupported widget type"})
		}
	}
	return writes
}

// fill applies writes in one batch. If the backend rejects the batch it
// retries without explicit unchecks, then falls back to applying writes one
// at a time, dropping those that fail.
func (p *Populator) fill(ctx context.Context, template []byte, writes []Write, res *Result) ([]byte, []Write) {
	out, err := p.Backend.Fill(ctx, template, writes)
	if err == nil {
		return out, writes
	}
	p.Logger.Debug("batch fill rejected", slog.String("error", err.Error()))

	kept := make([]Write, 0, len(writes))
	var unchecks []Write
	for _, w := range writes {
		if w.Widget.Kind == domain.WidgetCheckBox && !w.Checked {
			unchecks = append(unchecks, w)
			continue
		}
		kept = append(kept, w)
	}
	if len(unchecks) > 0 {
		if out, err := p.Backend.Fill(ctx, template, kept); err == nil {
			for _, w := range unchecks {
				p.skip(res, WidgetWriteMismatch{Widget: w.Widget.Name, Kind: w.Widget.Kind, Reason: "uncheck rejected; left at default"})
			}
			return out, kept
		}
	}

	doc := template
	applied := make([]Write, 0, len(writes))
	for _, w := range writes {
		next, err := p.Backend.Fill(ctx, doc, []Write{w})
		if err != nil {
			p.skip(res, WidgetWriteMismatch{Widget: w.Widget.Name, Kind: w.Widget.Kind, Reason: "write rejected: " + err.Error()})
			continue
		}
		doc = next
		applied = append(applied, w)
	}
	return doc, applied
}

func (p *Populator) skip(res *Result, m WidgetWriteMismatch) {
	p.Logger.Debug("widget write skipped", slog.String("widget", m.Widget), slog.String("kind", m.Kind.String()), slog.String("reason", m.Reason))
	res.Skipped = append(res.Skipped, m)
}

func (p *Populator) logCatalog(ctx context.Context, widgets []domain.WidgetDescriptor) {
	if !p.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	counts := map[domain.WidgetKind]int{}
	for _, w := range widgets {
		counts[w.Kind]++
	}
	p.Logger.Debug("template widgets",
		slog.Int("total", len(widgets)),
		slog.Int("text", counts[domain.WidgetTextBox]),
		slog.Int("checkbox", counts[domain.WidgetCheckBox]),
		slog.Int("radio_group", counts[domain.WidgetRadioGroup]),
		slog.Int("unknown", counts[domain.WidgetUnknown]))
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
