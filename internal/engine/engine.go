package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"formfill/internal/document"
	"formfill/internal/domain"
	"formfill/internal/logging"
	"formfill/internal/metrics"
	"formfill/internal/resolve"
	"formfill/internal/transform"
)

const ContentTypePDF = "application/pdf"

var ErrUnknownTemplate = errors.New("unknown template")

// BlobStore persists generated documents. Writes to the same path replace
// the previous document.
type BlobStore interface {
	PutBlob(ctx context.Context, path string, data []byte, contentType string) error
}

// Recorder appends audit events.
type Recorder interface {
	Record(ctx context.Context, e domain.Event) error
}

// TemplateSource returns template bytes for a URL.
type TemplateSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Template is one configured form and the resolver that maps records onto it.
type Template struct {
	Name     string
	URL      string
	FormName string
	Deliver  bool
	Resolver *resolve.Resolver
}

type Engine struct {
	Templates map[string]*Template
	Source    TemplateSource
	Populator *document.Populator
	Store     BlobStore
	Audit     Recorder
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.Discard()
}

// Request asks for one document.
type Request struct {
	Template              string
	Record                map[string]any
	AdditionalCountries   []string
	AdditionalInvestments []string
	// ClientID enables delivery when the template has it turned on.
	ClientID     string
	ActorID      string
	SkipDelivery bool
}

func (r Request) input() resolve.Input {
	return resolve.Input{
		Record:                r.Record,
		AdditionalCountries:   r.AdditionalCountries,
		AdditionalInvestments: r.AdditionalInvestments,
	}
}

// DeliveryError records a failed storage upload or audit write. It is logged,
// never returned.
type DeliveryError struct {
	Sink string
	Path string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Path, e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Template returns the named template.
func (e *Engine) Template(name string) (*Template, error) {
	t, ok := e.Templates[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return t, nil
}

// TemplateNames lists configured templates in sorted order.
func (e *Engine) TemplateNames() []string {
	names := make([]string, 0, len(e.Templates))
	for name := range e.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate fetches the template, resolves the record, populates and
// finalizes the document, then delivers it when requested. Only an unknown
// template or a fetch or parse failure is returned as an error; delivery
// failures are logged and the bytes are still returned.
func (e *Engine) Generate(ctx context.Context, req Request) (domain.GeneratedDocument, error) {
	t, err := e.Template(req.Template)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	requestID := uuid.NewString()
	log := e.logger().With(slog.String("request_id", requestID), slog.String("template", t.Name))

	template, err := e.Source.Fetch(ctx, t.URL)
	if err != nil {
		e.Metrics.IncGeneration("fetch_error")
		log.Error("template fetch failed", slog.String("error", err.Error()))
		return domain.GeneratedDocument{}, err
	}

	set := t.Resolver.Resolve(req.input())
	res, err := e.Populator.Populate(ctx, template, set)
	if err != nil {
		e.Metrics.IncGeneration("parse_error")
		log.Error("template parse failed", slog.String("error", err.Error()))
		return domain.GeneratedDocument{}, err
	}

	doc := domain.GeneratedDocument{
		Bytes:     res.Bytes,
		Filename:  Filename(t.FormName, req.Record),
		RequestID: requestID,
		Flattened: res.Flattened,
		Written:   len(res.Written),
		Skipped:   len(res.Skipped),
	}
	if t.Deliver && !req.SkipDelivery {
		doc.StoragePath = e.deliver(ctx, log, req, doc)
	}
	e.Metrics.IncGeneration("ok")
	log.Info("document generated",
		slog.String("filename", doc.Filename),
		slog.Int("resolved", set.Len()),
		slog.Int("written", doc.Written),
		slog.Int("skipped", doc.Skipped),
		slog.Bool("flattened", doc.Flattened),
		slog.String("storage_path", doc.StoragePath))
	return doc, nil
}

// deliver uploads doc and records the audit event. It returns the storage
// path, or "" when the upload did not happen.
func (e *Engine) deliver(ctx context.Context, log *slog.Logger, req Request, doc domain.GeneratedDocument) string {
	if req.ClientID == "" || e.Store == nil {
		log.Debug("delivery skipped", slog.Bool("has_client", req.ClientID != ""), slog.Bool("has_store", e.Store != nil))
		return ""
	}
	now := e.now().UTC()
	path := StoragePath(req.ClientID, req.Record, now)
	if err := e.Store.PutBlob(ctx, path, doc.Bytes, ContentTypePDF); err != nil {
		derr := &DeliveryError{Sink: "storage", Path: path, Err: err}
		e.Metrics.IncDeliveryFailure("storage")
		log.Error("document upload failed", slog.String("error", derr.Error()))
		return ""
	}
	log.Info("document stored", slog.String("storage_path", path))

	if e.Audit == nil {
		return path
	}
	evt := domain.Event{
		TS:        now.Format(time.RFC3339),
		Type:      domain.EventDocumentGenerated,
		SubjectID: req.ClientID,
		ActorID:   req.ActorID,
		Payload: map[string]any{
			"storage_path": path,
			"filename":     doc.Filename,
			"byte_size":    len(doc.Bytes),
			"generated_at": now.Format(time.RFC3339),
			"request_id":   doc.RequestID,
		},
	}
	if err := e.Audit.Record(ctx, evt); err != nil {
		derr := &DeliveryError{Sink: "audit", Path: path, Err: err}
		e.Metrics.IncDeliveryFailure("audit")
		log.Warn("audit event not recorded", slog.String("error", derr.Error()))
	}
	return path
}

// Resolve previews the resolution set for req without touching a template.
func (e *Engine) Resolve(req Request) (*domain.ResolutionSet, error) {
	t, err := e.Template(req.Template)
	if err != nil {
		return nil, err
	}
	return t.Resolver.Resolve(req.input()), nil
}

// Inspect fetches the named template and lists its widgets.
func (e *Engine) Inspect(ctx context.Context, name string) ([]domain.WidgetDescriptor, error) {
	t, err := e.Template(name)
	if err != nil {
		return nil, err
	}
	template, err := e.Source.Fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}
	return e.Populator.Widgets(ctx, template)
}

// Filename is "<form>_<first>_<last>.pdf"; missing names become "client"
// and "unknown".
func Filename(formName string, record map[string]any) string {
	first := nameOr(record, "first_name", "client")
	last := nameOr(record, "last_name", "unknown")
	return sanitize(formName) + "_" + first + "_" + last + ".pdf"
}

// StoragePath is "kyc/<client>/KYC_<first>_<last>_<date>.pdf", using
// "Client_<client>" when either name is missing.
func StoragePath(clientID string, record map[string]any, at time.Time) string {
	first := nameOr(record, "first_name", "")
	last := nameOr(record, "last_name", "")
	name := "Client_" + sanitize(clientID)
	if first != "" && last != "" {
		name = first + "_" + last
	}
	return "kyc/" + sanitize(clientID) + "/KYC_" + name + "_" + at.UTC().Format("2006-01-02") + ".pdf"
}

func nameOr(record map[string]any, key, fallback string) string {
	v, ok := record[key]
	if !ok || transform.IsEmpty(v) {
		return fallback
	}
	s := sanitize(transform.String(v))
	if s == "" {
		return fallback
	}
	return s
}

// sanitize keeps names usable as a single path segment.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '-'
		case ' ':
			return '_'
		}
		return r
	}, s)
}
