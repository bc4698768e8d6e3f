package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"formfill/internal/document"
	"formfill/internal/domain"
	"formfill/internal/engine"
	"formfill/internal/logging"
	"formfill/internal/mapping"
	"formfill/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Repo     repo.Repo
	BasePath string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"template_fetch_failed"`
	Message string         `json:"message" example:"fetch template https://forms.example.com/kyc.pdf: unexpected status 404"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":404}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the formfill API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request validation errors are 400; 422 is reserved for unreadable templates
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	hcfg := huma.DefaultConfig("formfill API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTemplates(group, cfg.Engine)
	registerDocuments(group, cfg.Engine, cfg.Repo)
	registerEvents(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe *document.TemplateFetchError
	if errors.As(err, &fe) {
		details := map[string]any{"url": fe.URL}
		if fe.StatusCode != 0 {
			details["status"] = fe.StatusCode
		}
		return newAPIError(http.StatusBadGateway, "template_fetch_failed", err.Error(), details)
	}
	var pe *document.TemplateParseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusUnprocessableEntity, "template_parse_failed", err.Error(), nil)
	}
	var ce *mapping.ConfigurationError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "configuration_error", err.Error(), map[string]any{"problems": ce.Problems})
	}
	if errors.Is(err, engine.ErrUnknownTemplate) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	// routes are registered before serving, so the document is built once
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			doc, err = json.Marshal(oas)
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		oas.Components.Schemas.Schema(reflect.TypeOf(ApiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>formfill API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTemplates(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List configured templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TemplateResponse `json:"body"`
	}, error) {
		resp := []TemplateResponse{}
		for _, name := range e.TemplateNames() {
			t, _ := e.Template(name)
			resp = append(resp, templateResponse(t))
		}
		return &struct {
			Body []TemplateResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-template-fields",
		Method:      http.MethodGet,
		Path:        "/templates/{name}/fields",
		Summary:     "List the widgets of a template",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body FieldsResponse `json:"body"`
	}, error) {
		widgets, err := e.Inspect(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FieldsResponse `json:"body"`
		}{Body: FieldsResponse{Template: input.Name, Widgets: mapWidgets(widgets)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-record",
		Method:      http.MethodPost,
		Path:        "/templates/{name}/resolve",
		Summary:     "Preview the widget values a record resolves to",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		Body GenerateRequest
	}) (*struct {
		Body ResolveResponse `json:"body"`
	}, error) {
		set, err := e.Resolve(input.Body.request(input.Name, ""))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolveResponse `json:"body"`
		}{Body: resolveResponse(input.Name, set)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-document",
		Method:      http.MethodPost,
		Path:        "/templates/{name}/documents",
		Summary:     "Generate a filled document",
		Description: "Returns the finalized PDF. X-Storage-Path is set when the document was delivered.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Name    string `path:"name"`
		ActorID string `header:"X-Actor-Id"`
		Body    GenerateRequest
	}) (*documentOutput, error) {
		doc, err := e.Generate(ctx, input.Body.request(input.Name, input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &documentOutput{
			ContentType:        engine.ContentTypePDF,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", doc.Filename),
			StoragePath:        doc.StoragePath,
			RequestID:          doc.RequestID,
			Flattened:          strconv.FormatBool(doc.Flattened),
			Body:               doc.Bytes,
		}, nil
	})
}

func registerDocuments(api huma.API, e *engine.Engine, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/documents",
		Summary:     "Download a stored document",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Path string `query:"path" required:"true" minLength:"1"`
	}) (*documentOutput, error) {
		if r.DB == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "document storage is not configured", nil)
		}
		blob, err := r.GetBlob(ctx, input.Path)
		if err != nil {
			return nil, handleError(fmt.Errorf("document %s: %w", input.Path, err))
		}
		return &documentOutput{
			ContentType:        blob.ContentType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(blob.Path)),
			StoragePath:        blob.Path,
			Body:               blob.Data,
		}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type      string `query:"type"`
		SubjectID string `query:"subject_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if r.DB == nil {
			return &struct {
				Body paginatedEvents `json:"body"`
			}{Body: paginatedEvents{Items: []EventResponse{}}}, nil
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := r.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilter{Type: input.Type, SubjectID: input.SubjectID})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func mapWidgets(items []domain.WidgetDescriptor) []WidgetResponse {
	out := make([]WidgetResponse, 0, len(items))
	for _, w := range items {
		out = append(out, widgetResponse(w))
	}
	return out
}
