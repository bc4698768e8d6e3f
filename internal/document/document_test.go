package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfill/internal/domain"
	"formfill/internal/metrics"
)

// fakeBackend renders writes as sorted "name=value" lines so tests can
// inspect what reached the document.
type fakeBackend struct {
	widgets     []domain.WidgetDescriptor
	inspectErr  error
	rejectFill  func([]Write) error
	finalizeErr error
	fillCalls   int
}

func (f *fakeBackend) Inspect(ctx context.Context, template []byte) ([]domain.WidgetDescriptor, error) {
	return f.widgets, f.inspectErr
}

func (f *fakeBackend) Fill(ctx context.Context, template []byte, writes []Write) ([]byte, error) {
	f.fillCalls++
	if f.rejectFill != nil {
		if err := f.rejectFill(writes); err != nil {
			return nil, err
		}
	}
	lines := []string{}
	if len(template) > 0 && !bytes.Equal(template, []byte("%PDF")) {
		lines = strings.Split(string(template), "\n")
	}
	for _, w := range writes {
		var v string
		switch w.Widget.Kind {
		case domain.WidgetCheckBox:
			v = fmt.Sprint(w.Checked)
		case domain.WidgetRadioGroup:
			v = w.Option
		default:
			v = w.Text
		}
		lines = append(lines, w.Widget.Name+"="+v)
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n")), nil
}

func (f *fakeBackend) Finalize(ctx context.Context, doc []byte) ([]byte, error) {
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	return append([]byte("LOCKED\n"), doc...), nil
}

func kycWidgets() []domain.WidgetDescriptor {
	return []domain.WidgetDescriptor{
		{Name: "First Name", Kind: domain.WidgetTextBox},
		{Name: "Tax Resident Canada", Kind: domain.WidgetCheckBox},
		{Name: "Tax Resident US", Kind: domain.WidgetCheckBox},
		{Name: "Title", Kind: domain.WidgetRadioGroup, Options: []string{"Mr", "Ms", "Dr"}},
		{Name: "Province", Kind: domain.WidgetUnknown},
	}
}

func newSet(pairs ...any) *domain.ResolutionSet {
	set := domain.NewResolutionSet()
	for i := 0; i < len(pairs); i += 2 {
		set.Set(pairs[i].(string), pairs[i+1])
	}
	return set
}

func TestPopulateDispatchesOnWidgetKind(t *testing.T) {
	backend := &fakeBackend{widgets: kycWidgets()}
	p := NewPopulator(backend, nil, nil)

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet(
		"First Name", "Jane",
		"Tax Resident Canada", "Yes",
		"Tax Resident US", "Off",
		"Title", "Dr",
	))
	require.NoError(t, err)

	assert.True(t, res.Flattened)
	assert.Equal(t, "LOCKED\nFirst Name=Jane\nTax Resident Canada=true\nTax Resident US=false\nTitle=Dr", string(res.Bytes))
	assert.Equal(t, []string{"First Name", "Tax Resident Canada", "Tax Resident US", "Title"}, res.Written)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 1, backend.fillCalls)
}

func TestPopulateSkipsAbsentWidgets(t *testing.T) {
	backend := &fakeBackend{widgets: kycWidgets()}
	p := NewPopulator(backend, nil, nil)

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet(
		"First Name", "Jane",
		"Spouse Name", "John",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"First Name"}, res.Written)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "Spouse Name", res.Skipped[0].Widget)
	assert.Equal(t, "not present in template", res.Skipped[0].Reason)
}

func TestPopulateRejectsOptionNotOffered(t *testing.T) {
	backend := &fakeBackend{widgets: kycWidgets()}
	p := NewPopulator(backend, nil, nil)

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet("Title", "Prof", "Province", "ON"))
	require.NoError(t, err)

	assert.Empty(t, res.Written)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, domain.WidgetRadioGroup, res.Skipped[0].Kind)
	assert.Contains(t, res.Skipped[0].Reason, "Prof")
	assert.Equal(t, "unsupported widget type", res.Skipped[1].Reason)
	// nothing to write: the template goes straight to finalize
	assert.Equal(t, 0, backend.fillCalls)
	assert.Equal(t, "LOCKED\n%PDF", string(res.Bytes))
}

func TestPopulateRetriesWithoutUnchecks(t *testing.T) {
	backend := &fakeBackend{
		widgets: kycWidgets(),
		rejectFill: func(writes []Write) error {
			for _, w := range writes {
				if w.Widget.Kind == domain.WidgetCheckBox && !w.Checked {
					return errors.New("cannot clear checkbox")
				}
			}
			return nil
		},
	}
	p := NewPopulator(backend, nil, nil)

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet(
		"Tax Resident Canada", "Yes",
		"Tax Resident US", "Off",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"Tax Resident Canada"}, res.Written)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "Tax Resident US", res.Skipped[0].Widget)
	assert.Equal(t, 2, backend.fillCalls)
}

func TestPopulateFallsBackToSingleWrites(t *testing.T) {
	backend := &fakeBackend{
		widgets: kycWidgets(),
		rejectFill: func(writes []Write) error {
			for _, w := range writes {
				if w.Widget.Name == "Title" {
					return errors.New("appearance stream missing")
				}
			}
			return nil
		},
	}
	p := NewPopulator(backend, nil, nil)

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet(
		"First Name", "Jane",
		"Title", "Ms",
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"First Name"}, res.Written)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Reason, "appearance stream missing")
	assert.Equal(t, "LOCKED\nFirst Name=Jane", string(res.Bytes))
}

func TestPopulateReturnsUnflattenedOnFinalizeFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	reg := prometheus.NewRegistry()
	backend := &fakeBackend{widgets: kycWidgets(), finalizeErr: errors.New("no acroform dict")}
	p := NewPopulator(backend, logger, metrics.New(reg))

	res, err := p.Populate(context.Background(), []byte("%PDF"), newSet("First Name", "Jane"))
	require.NoError(t, err)

	assert.False(t, res.Flattened)
	assert.Equal(t, "First Name=Jane", string(res.Bytes))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "no acroform dict")

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "formfill_finalize_failures_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPopulateParseError(t *testing.T) {
	backend := &fakeBackend{inspectErr: errors.New("not a pdf")}
	p := NewPopulator(backend, nil, nil)

	_, err := p.Populate(context.Background(), []byte("garbage"), newSet("First Name", "Jane"))
	var pe *TemplateParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "not a pdf")
}

func TestFetchTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kyc.pdf":
			_, _ = w.Write([]byte("%PDF-1.7"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, nil)

	data, err := f.Fetch(context.Background(), srv.URL+"/kyc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	var fe *TemplateFetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	_, err = f.Fetch(context.Background(), "")
	require.ErrorAs(t, err, &fe)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(50*time.Millisecond, nil)
	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *TemplateFetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/kyc.pdf"
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	f := NewFetcher(0, nil)
	data, err := f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = f.Fetch(context.Background(), "file://"+dir+"/missing.pdf")
	var fe *TemplateFetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
