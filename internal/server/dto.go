package server

import (
	"formfill/internal/domain"
	"formfill/internal/engine"
)

// Request payloads

type GenerateRequest struct {
	Record                map[string]any `json:"record" doc:"Logical client record keyed by logical field name"`
	AdditionalCountries   []string       `json:"additional_countries,omitempty"`
	AdditionalInvestments []string       `json:"additional_investments,omitempty"`
	ClientID              string         `json:"client_id,omitempty" doc:"Enables storage and audit when the template delivers"`
	SkipDelivery          bool           `json:"skip_delivery,omitempty"`
}

func (g GenerateRequest) request(template, actorID string) engine.Request {
	return engine.Request{
		Template:              template,
		Record:                g.Record,
		AdditionalCountries:   g.AdditionalCountries,
		AdditionalInvestments: g.AdditionalInvestments,
		ClientID:              g.ClientID,
		ActorID:               actorID,
		SkipDelivery:          g.SkipDelivery,
	}
}

// Response payloads

// ApiError is the error envelope schema published in the OpenAPI document.
type ApiError struct {
	Error apiErrorBody `json:"error"`
}

type documentOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	StoragePath        string `header:"X-Storage-Path"`
	RequestID          string `header:"X-Request-Id"`
	Flattened          string `header:"X-Flattened"`
	Body               []byte
}

type TemplateResponse struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	FormName string `json:"form_name"`
	Deliver  bool   `json:"deliver"`
}

type WidgetResponse struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	Kind    string   `json:"kind" enum:"text,checkbox,radio_group,unknown"`
	Options []string `json:"options,omitempty"`
	Locked  bool     `json:"locked,omitempty"`
	Pages   []int    `json:"pages,omitempty"`
}

type FieldsResponse struct {
	Template string           `json:"template"`
	Widgets  []WidgetResponse `json:"widgets"`
}

type ResolutionResponse struct {
	Widget string `json:"widget"`
	Value  any    `json:"value"`
}

type ResolveResponse struct {
	Template    string               `json:"template"`
	Count       int                  `json:"count"`
	Resolutions []ResolutionResponse `json:"resolutions"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	SubjectID string         `json:"subject_id,omitempty"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func templateResponse(t *engine.Template) TemplateResponse {
	return TemplateResponse{Name: t.Name, URL: t.URL, FormName: t.FormName, Deliver: t.Deliver}
}

func widgetResponse(w domain.WidgetDescriptor) WidgetResponse {
	return WidgetResponse{
		ID:      w.ID,
		Name:    w.Name,
		Kind:    w.Kind.String(),
		Options: w.Options,
		Locked:  w.Locked,
		Pages:   w.Pages,
	}
}

func resolveResponse(template string, set *domain.ResolutionSet) ResolveResponse {
	resp := ResolveResponse{Template: template, Count: set.Len(), Resolutions: []ResolutionResponse{}}
	for _, r := range set.Entries() {
		resp.Resolutions = append(resp.Resolutions, ResolutionResponse(r))
	}
	return resp
}

func eventResponse(e domain.Event) EventResponse {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return EventResponse{
		ID:        e.ID,
		TS:        e.TS,
		Type:      e.Type,
		SubjectID: e.SubjectID,
		ActorID:   e.ActorID,
		Payload:   payload,
	}
}
