package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfill/internal/db"
	"formfill/internal/document"
	"formfill/internal/domain"
	"formfill/internal/engine"
	"formfill/internal/events"
	"formfill/internal/mapping"
	"formfill/internal/migrate"
	"formfill/internal/repo"
	"formfill/internal/resolve"
)

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type staticSource struct {
	data []byte
	err  error
	urls []string
}

func (s *staticSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.urls = append(s.urls, url)
	return s.data, s.err
}

// textBackend treats every widget as a text box and echoes writes.
type textBackend struct {
	widgets []domain.WidgetDescriptor
}

func (b textBackend) Inspect(ctx context.Context, template []byte) ([]domain.WidgetDescriptor, error) {
	if !bytes.HasPrefix(template, []byte("%PDF")) {
		return nil, errors.New("missing header")
	}
	return b.widgets, nil
}

func (b textBackend) Fill(ctx context.Context, template []byte, writes []document.Write) ([]byte, error) {
	out := append([]byte{}, template...)
	for _, w := range writes {
		out = append(out, []byte("\n"+w.Widget.Name+"="+w.Text)...)
	}
	return out, nil
}

func (b textBackend) Finalize(ctx context.Context, doc []byte) ([]byte, error) {
	return doc, nil
}

type failingStore struct{}

func (failingStore) PutBlob(ctx context.Context, path string, data []byte, contentType string) error {
	return errors.New("bucket unavailable")
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, e domain.Event) error {
	return errors.New("events table locked")
}

type testEnv struct {
	Engine *engine.Engine
	Repo   repo.Repo
	Source *staticSource
	Logs   *bytes.Buffer
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	table, err := mapping.Default()
	require.NoError(t, err)
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := repo.Repo{DB: conn, Now: func() time.Time { return fixedNow }}
	src := &staticSource{data: []byte("%PDF-1.7")}
	backend := textBackend{widgets: []domain.WidgetDescriptor{
		{Name: "First Name Business Name", Kind: domain.WidgetTextBox},
		{Name: "Last NameBusiness Name", Kind: domain.WidgetTextBox},
	}}
	eng := &engine.Engine{
		Templates: map[string]*engine.Template{
			"kyc": {
				Name:     "kyc",
				URL:      "https://forms.example.com/kyc.pdf",
				FormName: "KYC Form",
				Deliver:  true,
				Resolver: resolve.New(table, catalog, logger),
			},
		},
		Source:    src,
		Populator: document.NewPopulator(backend, logger, nil),
		Store:     r,
		Audit:     events.Writer{DB: conn},
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	}
	return testEnv{Engine: eng, Repo: r, Source: src, Logs: logs, Ctx: context.Background()}
}

func janeDoe() map[string]any {
	return map[string]any{"first_name": "Jane", "last_name": "Doe", "annual_income": 60000}
}

func TestGenerateDeliversAndAudits(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.Engine.Generate(env.Ctx, engine.Request{
		Template: "kyc",
		Record:   janeDoe(),
		ClientID: "c-42",
		ActorID:  "advisor-7",
	})
	require.NoError(t, err)

	assert.Equal(t, "KYC_Form_Jane_Doe.pdf", doc.Filename)
	assert.Equal(t, "kyc/c-42/KYC_Jane_Doe_2024-01-15.pdf", doc.StoragePath)
	assert.Equal(t, "%PDF-1.7\nFirst Name Business Name=Jane\nLast NameBusiness Name=Doe", string(doc.Bytes))
	assert.Equal(t, 2, doc.Written)
	assert.NotEmpty(t, doc.RequestID)
	assert.Equal(t, []string{"https://forms.example.com/kyc.pdf"}, env.Source.urls)

	blob, err := env.Repo.GetBlob(env.Ctx, doc.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, doc.Bytes, blob.Data)
	assert.Equal(t, engine.ContentTypePDF, blob.ContentType)

	evts, err := env.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{SubjectID: "c-42"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, domain.EventDocumentGenerated, evts[0].Type)
	assert.Equal(t, "advisor-7", evts[0].ActorID)
	assert.Equal(t, doc.StoragePath, evts[0].Payload["storage_path"])
	assert.Equal(t, doc.Filename, evts[0].Payload["filename"])
	assert.Equal(t, float64(len(doc.Bytes)), evts[0].Payload["byte_size"])
	assert.Equal(t, "2024-01-15T10:00:00Z", evts[0].Payload["generated_at"])
}

func TestGenerateWithoutClientSkipsDelivery(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe()})
	require.NoError(t, err)
	assert.Empty(t, doc.StoragePath)

	doc, err = env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe(), ClientID: "c-1", SkipDelivery: true})
	require.NoError(t, err)
	assert.Empty(t, doc.StoragePath)

	evts, err := env.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestGenerateStorageFailureStillReturnsBytes(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Store = failingStore{}

	doc, err := env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe(), ClientID: "c-42", ActorID: "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Bytes)
	assert.Empty(t, doc.StoragePath)
	assert.Contains(t, env.Logs.String(), "level=ERROR")
	assert.Contains(t, env.Logs.String(), "bucket unavailable")

	// audit is skipped when nothing was stored
	evts, err := env.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestGenerateAuditFailureIsAWarning(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Audit = failingRecorder{}

	doc, err := env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe(), ClientID: "c-42", ActorID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "kyc/c-42/KYC_Jane_Doe_2024-01-15.pdf", doc.StoragePath)
	assert.Contains(t, env.Logs.String(), "level=WARN")
	assert.Contains(t, env.Logs.String(), "events table locked")
}

func TestGeneratePropagatesFetchAndParseErrors(t *testing.T) {
	env := newTestEnv(t)

	env.Source.err = &document.TemplateFetchError{URL: "https://forms.example.com/kyc.pdf", StatusCode: 404}
	_, err := env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe()})
	var fe *document.TemplateFetchError
	require.ErrorAs(t, err, &fe)

	env.Source.err = nil
	env.Source.data = []byte("<html>not a form</html>")
	_, err = env.Engine.Generate(env.Ctx, engine.Request{Template: "kyc", Record: janeDoe()})
	var pe *document.TemplateParseError
	require.ErrorAs(t, err, &pe)

	_, err = env.Engine.Generate(env.Ctx, engine.Request{Template: "w9", Record: janeDoe()})
	require.ErrorIs(t, err, engine.ErrUnknownTemplate)
}

func TestResolveAndInspect(t *testing.T) {
	env := newTestEnv(t)

	set, err := env.Engine.Resolve(engine.Request{Template: "kyc", Record: janeDoe()})
	require.NoError(t, err)
	v, ok := set.Get("Income 50000 to 74999")
	require.True(t, ok)
	assert.Equal(t, "On", v)
	assert.Empty(t, env.Source.urls)

	widgets, err := env.Engine.Inspect(env.Ctx, "kyc")
	require.NoError(t, err)
	assert.Len(t, widgets, 2)

	assert.Equal(t, []string{"kyc"}, env.Engine.TemplateNames())
}

func TestNamingConventions(t *testing.T) {
	at := time.Date(2024, 6, 30, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "KYC_client_unknown.pdf", engine.Filename("KYC", map[string]any{}))
	assert.Equal(t, "KYC_Mary_Ann_unknown.pdf", engine.Filename("KYC", map[string]any{"first_name": "Mary Ann", "last_name": ""}))
	assert.Equal(t, "kyc/c-9/KYC_Client_c-9_2024-06-30.pdf", engine.StoragePath("c-9", map[string]any{"first_name": "Jane"}, at))
	assert.Equal(t, "kyc/a-b/KYC_Jane_Doe_2024-06-30.pdf", engine.StoragePath("a/b", janeDoe(), at))
}
