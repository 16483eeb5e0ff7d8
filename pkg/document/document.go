// Package document defines the structured documents attached to treatment
// records: text produced by the generative model, or a fallback that took
// its place. A Document is always one of Generated or Degraded.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reason says why a Degraded document was produced instead of generated text.
type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonTimeout     Reason = "timeout"
	ReasonRemoteError Reason = "remote_error"
	ReasonSystemError Reason = "system_error"
	ReasonCorrupt     Reason = "corrupt"
)

// Document is implemented only by Generated and Degraded.
type Document interface {
	Text() string
	GeneratedAt() time.Time
	isDocument()
}

// Generated holds text returned by the model.
type Generated struct {
	Content   string
	Timestamp time.Time
}

func (g Generated) Text() string           { return g.Content }
func (g Generated) GeneratedAt() time.Time { return g.Timestamp }
func (Generated) isDocument()              {}

// Degraded holds the fallback text used when generation did not succeed.
// Error is empty for outcomes that carry no remote error message (missing
// credentials, timeouts).
type Degraded struct {
	Reason    Reason
	Error     string
	Content   string
	Timestamp time.Time
}

func (d Degraded) Text() string           { return d.Content }
func (d Degraded) GeneratedAt() time.Time { return d.Timestamp }
func (Degraded) isDocument()              {}

// IsDegraded reports whether doc is a fallback document.
func IsDegraded(doc Document) bool {
	_, ok := doc.(Degraded)
	return ok
}

// Corrupt returns the marker document substituted for a stored document
// that could not be decoded.
func Corrupt(field string) Degraded {
	return Degraded{
		Reason:  ReasonCorrupt,
		Error:   fmt.Sprintf("Failed to parse %s data", field),
		Content: "Stored document could not be read.",
	}
}

// wire is the stored JSON shape. "analysis" and "treatment_plan" are the
// content keys written by earlier versions of the records system.
type wire struct {
	Content       string `json:"content,omitempty"`
	Error         string `json:"error,omitempty"`
	Reason        Reason `json:"reason,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	Analysis      string `json:"analysis,omitempty"`
	TreatmentPlan string `json:"treatment_plan,omitempty"`
}

var errEmptyDocument = errors.New("document has neither content nor error")

// Encode serializes doc for a JSONB column. A nil doc encodes to nil, which
// is stored as NULL.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}

	var w wire
	switch d := doc.(type) {
	case Generated:
		w.Content = d.Content
		w.Timestamp = formatTime(d.Timestamp)
	case Degraded:
		w.Content = d.Content
		w.Error = d.Error
		w.Reason = d.Reason
		w.Timestamp = formatTime(d.Timestamp)
	default:
		return nil, fmt.Errorf("unsupported document type %T", doc)
	}

	return json.Marshal(w)
}

// Decode parses a stored document. Empty input (NULL column) yields a nil
// Document and no error.
func Decode(data []byte) (Document, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	content := w.Content
	if content == "" {
		content = w.Analysis
	}
	if content == "" {
		content = w.TreatmentPlan
	}
	if content == "" && w.Error == "" {
		return nil, errEmptyDocument
	}

	ts, err := parseTime(w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("decode document timestamp: %w", err)
	}

	switch {
	case w.Reason != "":
		return Degraded{Reason: w.Reason, Error: w.Error, Content: content, Timestamp: ts}, nil
	case w.Error != "":
		return Degraded{Reason: ReasonRemoteError, Error: w.Error, Content: content, Timestamp: ts}, nil
	default:
		return Generated{Content: content, Timestamp: ts}, nil
	}
}

// View is the JSON shape of a Document in API responses.
type View struct {
	Status    string    `json:"status"`
	Reason    Reason    `json:"reason,omitempty"`
	Content   string    `json:"content"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToView flattens doc for JSON responses. A nil doc yields nil.
func ToView(doc Document) *View {
	switch d := doc.(type) {
	case Generated:
		return &View{Status: "generated", Content: d.Content, Timestamp: d.Timestamp}
	case Degraded:
		return &View{Status: "degraded", Reason: d.Reason, Content: d.Content, Error: d.Error, Timestamp: d.Timestamp}
	default:
		return nil
	}
}

// zonelessISO matches timestamps stored without an offset.
const zonelessISO = "2006-01-02T15:04:05.999999"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(zonelessISO, s, time.Local)
}
