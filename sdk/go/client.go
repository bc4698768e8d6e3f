package formfillsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal formfill HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  60 * time.Second,
	}
}

// GenerateRequest is the body of resolve and generate calls.
type GenerateRequest struct {
	Record                map[string]any `json:"record"`
	AdditionalCountries   []string       `json:"additional_countries,omitempty"`
	AdditionalInvestments []string       `json:"additional_investments,omitempty"`
	ClientID              string         `json:"client_id,omitempty"`
	SkipDelivery          bool           `json:"skip_delivery,omitempty"`
}

// Document is a generated or stored PDF.
type Document struct {
	Filename    string
	ContentType string
	StoragePath string
	RequestID   string
	Flattened   bool
	Bytes       []byte
}

// Template describes a configured template.
type Template struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	FormName string `json:"form_name"`
	Deliver  bool   `json:"deliver"`
}

// Widget is one form field of a template.
type Widget struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Options []string `json:"options"`
	Locked  bool     `json:"locked"`
	Pages   []int    `json:"pages"`
}

// Resolution is one widget -> value pair.
type Resolution struct {
	Widget string `json:"widget"`
	Value  any    `json:"value"`
}

// Event represents an audit log entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	SubjectID string         `json:"subject_id"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// EventQuery filters an events listing.
type EventQuery struct {
	Type      string
	SubjectID string
	Limit     int
	Cursor    string
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the server sent one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Templates lists configured templates.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.doJSON(ctx, http.MethodGet, "templates", nil, &resp)
	return resp, err
}

// Fields lists the widgets of a template.
func (c *Client) Fields(ctx context.Context, template string) ([]Widget, error) {
	var resp struct {
		Widgets []Widget `json:"widgets"`
	}
	endpoint := fmt.Sprintf("templates/%s/fields", url.PathEscape(template))
	err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Widgets, err
}

// Resolve previews the widget values a record resolves to, in order.
func (c *Client) Resolve(ctx context.Context, template string, req GenerateRequest) ([]Resolution, error) {
	var resp struct {
		Resolutions []Resolution `json:"resolutions"`
	}
	endpoint := fmt.Sprintf("templates/%s/resolve", url.PathEscape(template))
	err := c.doJSON(ctx, http.MethodPost, endpoint, req, &resp)
	return resp.Resolutions, err
}

// Generate fills a template and returns the finalized PDF.
func (c *Client) Generate(ctx context.Context, template string, req GenerateRequest) (Document, error) {
	endpoint := fmt.Sprintf("templates/%s/documents", url.PathEscape(template))
	resp, err := c.do(ctx, http.MethodPost, endpoint, req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	return readDocument(resp)
}

// GetDocument downloads a stored document by storage path.
func (c *Client) GetDocument(ctx context.Context, storagePath string) (Document, error) {
	resp, err := c.do(ctx, http.MethodGet, "documents?path="+url.QueryEscape(storagePath), nil)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	return readDocument(resp)
}

// Events returns one page of audit events, newest first.
func (c *Client) Events(ctx context.Context, q EventQuery) (PaginatedEvents, error) {
	params := url.Values{}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.SubjectID != "" {
		params.Set("subject_id", q.SubjectID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	endpoint := "events"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func readDocument(resp *http.Response) (Document, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		ContentType: resp.Header.Get("Content-Type"),
		StoragePath: resp.Header.Get("X-Storage-Path"),
		RequestID:   resp.Header.Get("X-Request-Id"),
		Flattened:   resp.Header.Get("X-Flattened") == "true",
		Bytes:       data,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.Filename = params["filename"]
	}
	return doc, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// do returns the response only for 2xx statuses; callers close the body.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(endpoint), &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) endpoint(p string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(p, "/")
}
