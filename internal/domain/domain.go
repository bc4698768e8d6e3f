package domain

import "encoding/json"

// WidgetKind is the runtime type of a widget discovered in a template.
type WidgetKind int

const (
	WidgetUnknown WidgetKind = iota
	WidgetTextBox
	WidgetCheckBox
	WidgetRadioGroup
)

func (k WidgetKind) String() string {
	switch k {
	case WidgetTextBox:
		return "text"
	case WidgetCheckBox:
		return "checkbox"
	case WidgetRadioGroup:
		return "radio_group"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the kind by name.
func (k WidgetKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// WidgetDescriptor describes a widget actually present in a template.
type WidgetDescriptor struct {
	ID      string     `json:"id,omitempty"`
	Name    string     `json:"name"`
	Kind    WidgetKind `json:"kind"`
	Options []string   `json:"options,omitempty"`
	Locked  bool       `json:"locked,omitempty"`
	Pages   []int      `json:"pages,omitempty"`
}

// Resolution is a single widget name → value entry.
type Resolution struct {
	Widget string `json:"widget"`
	Value  any    `json:"value"`
}

// ResolutionSet is an ordered widget name → value mapping. Keys keep their
// first-insertion position; later writes replace the value in place.
type ResolutionSet struct {
	keys   []string
	values map[string]any
}

func NewResolutionSet() *ResolutionSet {
	return &ResolutionSet{values: make(map[string]any)}
}

// Set records value for widget, replacing any earlier value.
func (s *ResolutionSet) Set(widget string, value any) {
	if _, ok := s.values[widget]; !ok {
		s.keys = append(s.keys, widget)
	}
	s.values[widget] = value
}

func (s *ResolutionSet) Get(widget string) (any, bool) {
	v, ok := s.values[widget]
	return v, ok
}

func (s *ResolutionSet) Has(widget string) bool {
	_, ok := s.values[widget]
	return ok
}

func (s *ResolutionSet) Len() int { return len(s.keys) }

// Keys returns widget names in construction order.
func (s *ResolutionSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Entries returns the set in construction order.
func (s *ResolutionSet) Entries() []Resolution {
	out := make([]Resolution, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Resolution{Widget: k, Value: s.values[k]})
	}
	return out
}

// Map returns an unordered copy of the set.
func (s *ResolutionSet) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON preserves construction order.
func (s *ResolutionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Entries())
}

// GeneratedDocument is owned by the caller once returned.
type GeneratedDocument struct {
	Bytes       []byte `json:"-"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path,omitempty"`
	RequestID   string `json:"request_id"`
	Flattened   bool   `json:"flattened"`
	Written     int    `json:"written"`
	Skipped     int    `json:"skipped"`
}

// Event is an audit record.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	SubjectID string         `json:"subject_id,omitempty"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Blob is a stored document.
type Blob struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	Data        []byte `json:"-"`
}

const EventDocumentGenerated = "document_generated"
