package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"formfill/internal/domain"
	"formfill/internal/logging"
)

// PDFOptions controls pdfcpu's process-wide configuration directory, which
// holds config.yml and the user fonts form fields are rendered with.
type PDFOptions struct {
	// ConfigDir is the parent of the pdfcpu directory. Empty means the
	// user config dir.
	ConfigDir string
	// DisableConfigDir limits pdfcpu to the core fonts. Forms whose fields
	// use a user font then cannot be locked.
	DisableConfigDir bool
}

var pdfcpuSetup struct {
	sync.Mutex
	dir string
}

// configurePDFCPU installs pdfcpu's config dir once per process. Later calls
// with a different dir keep the first one.
func configurePDFCPU(opts PDFOptions) (string, error) {
	pdfcpuSetup.Lock()
	defer pdfcpuSetup.Unlock()
	if pdfcpuSetup.dir != "" {
		return pdfcpuSetup.dir, nil
	}
	if opts.DisableConfigDir {
		api.DisableConfigDir()
		pdfcpuSetup.dir = "disable"
		return pdfcpuSetup.dir, nil
	}
	dir := opts.ConfigDir
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			dir = os.TempDir()
		}
	}
	if err := api.EnsureDefaultConfigAt(dir); err != nil {
		return "", fmt.Errorf("pdfcpu config dir %s: %w", dir, err)
	}
	pdfcpuSetup.dir = dir
	return dir, nil
}

// PDFBackend implements Backend on pdfcpu's AcroForm support. Widgets are
// discovered through the form's JSON export and filled by re-importing that
// export with new values, so attributes pdfcpu needs (ids, pages, date
// formats) round-trip untouched.
type PDFBackend struct {
	Logger *slog.Logger
}

func NewPDFBackend(logger *slog.Logger, opts PDFOptions) (*PDFBackend, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	dir, err := configurePDFCPU(opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("pdfcpu configured", slog.String("config_dir", dir))
	return &PDFBackend{Logger: logger}, nil
}

func (b *PDFBackend) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// form export sections
const (
	sectionText     = "textfield"
	sectionDate     = "datefield"
	sectionCheckbox = "checkbox"
	sectionRadio    = "radiobuttongroup"
	sectionCombo    = "combobox"
	sectionList     = "listbox"
)

var sectionKinds = []struct {
	name string
	kind domain.WidgetKind
}{
	{sectionText, domain.WidgetTextBox},
	{sectionDate, domain.WidgetTextBox},
	{sectionCheckbox, domain.WidgetCheckBox},
	{sectionRadio, domain.WidgetRadioGroup},
	{sectionCombo, domain.WidgetUnknown},
	{sectionList, domain.WidgetUnknown},
}

type exportedField struct {
	Pages   []int    `json:"pages"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []string `json:"options"`
	Locked  bool     `json:"locked"`
}

// exportedForms keeps every section raw so values can be rewritten without
// knowing the full schema.
type exportedForms struct {
	Header json.RawMessage              `json:"header,omitempty"`
	Forms  []map[string]json.RawMessage `json:"forms"`
}

func (b *PDFBackend) export(ctx context.Context, template []byte) (*exportedForms, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := api.Validate(bytes.NewReader(template), b.conf()); err != nil {
		return nil, &TemplateParseError{Err: err}
	}
	var buf bytes.Buffer
	if err := api.ExportFormJSON(bytes.NewReader(template), &buf, "template", b.conf()); err != nil {
		// a readable document without an AcroForm simply has no widgets
		b.Logger.Debug("template has no exportable form", slog.String("error", err.Error()))
		return &exportedForms{}, nil
	}
	var forms exportedForms
	if err := json.Unmarshal(buf.Bytes(), &forms); err != nil {
		return nil, &TemplateParseError{Err: fmt.Errorf("decode form export: %w", err)}
	}
	return &forms, nil
}

func (b *PDFBackend) Inspect(ctx context.Context, template []byte) ([]domain.WidgetDescriptor, error) {
	forms, err := b.export(ctx, template)
	if err != nil {
		return nil, err
	}
	var widgets []domain.WidgetDescriptor
	for _, form := range forms.Forms {
		for _, sk := range sectionKinds {
			raw, ok := form[sk.name]
			if !ok {
				continue
			}
			var fields []exportedField
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, &TemplateParseError{Err: fmt.Errorf("decode %s fields: %w", sk.name, err)}
			}
			for _, f := range fields {
				widgets = append(widgets, domain.WidgetDescriptor{
					ID:      f.ID,
					Name:    f.Name,
					Kind:    sk.kind,
					Options: f.Options,
					Locked:  f.Locked,
					Pages:   f.Pages,
				})
			}
		}
	}
	return widgets, nil
}

func (b *PDFBackend) Fill(ctx context.Context, template []byte, writes []Write) ([]byte, error) {
	forms, err := b.export(ctx, template)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]Write, len(writes))
	for _, w := range writes {
		pending[w.Widget.Name] = w
	}
	for i, form := range forms.Forms {
		for _, section := range []string{sectionText, sectionDate, sectionCheckbox, sectionRadio} {
			raw, ok := form[section]
			if !ok {
				continue
			}
			var fields []map[string]any
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("decode %s fields: %w", section, err)
			}
			for _, f := range fields {
				name, _ := f["name"].(string)
				w, ok := pending[name]
				if !ok {
					continue
				}
				switch section {
				case sectionCheckbox:
					f["value"] = w.Checked
				case sectionRadio:
					f["value"] = w.Option
				default:
					f["value"] = w.Text
				}
				delete(pending, name)
			}
			encoded, err := json.Marshal(fields)
			if err != nil {
				return nil, err
			}
			forms.Forms[i][section] = encoded
		}
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%d widget(s) not found in form export", len(pending))
	}

	payload, err := json.Marshal(forms)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(template), bytes.NewReader(payload), &out, b.conf()); err != nil {
		return nil, fmt.Errorf("fill form: %w", err)
	}
	return out.Bytes(), nil
}

// Finalize locks every form field so the values can no longer be edited.
func (b *PDFBackend) Finalize(ctx context.Context, doc []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.LockFormFields(bytes.NewReader(doc), &out, nil, b.conf()); err != nil {
		return nil, fmt.Errorf("lock form fields: %w", err)
	}
	return out.Bytes(), nil
}
