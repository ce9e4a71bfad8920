package audit

import (
	"encoding/json"
	"time"
)

// Row is the durable representation of an event.
type Row struct {
	ID        string
	EventType EventType
	Severity  Severity
	Subject   string
	Role      string
	Action    string
	Resource  string
	Result    string
	Details   json.RawMessage
	CreatedAt time.Time
}

// details is the JSON document stored alongside the indexed columns.
type details struct {
	Message string         `json:"message,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
	TraceID string         `json:"traceId,omitempty"`
}

var columnKeys = []string{ContextSubject, ContextRole, ContextAction, ContextResource, ContextResult}

// RowFromEvent converts e into a Row. The well-known context keys move to
// their own columns; everything else is kept in Details.
func RowFromEvent(e Event) (Row, error) {
	rest := make(map[string]any, len(e.Context))
	for k, v := range e.Context {
		rest[k] = v
	}
	for _, k := range columnKeys {
		if _, ok := rest[k].(string); ok {
			delete(rest, k)
		}
	}
	if len(rest) == 0 {
		rest = nil
	}

	b, err := json.Marshal(details{Message: e.Message, Context: rest, Tags: e.Tags, TraceID: e.TraceID})
	if err != nil {
		return Row{}, err
	}

	return Row{
		ID:        e.ID,
		EventType: e.Type,
		Severity:  e.Severity,
		Subject:   e.ContextString(ContextSubject),
		Role:      e.ContextString(ContextRole),
		Action:    e.ContextString(ContextAction),
		Resource:  e.ContextString(ContextResource),
		Result:    e.ContextString(ContextResult),
		Details:   b,
		CreatedAt: e.Timestamp,
	}, nil
}

// Event converts the row back into an event.
func (r Row) Event() Event {
	var d details
	if len(r.Details) > 0 {
		_ = json.Unmarshal(r.Details, &d)
	}

	ctx := d.Context
	if ctx == nil {
		ctx = make(map[string]any)
	}
	for k, v := range map[string]string{
		ContextSubject:  r.Subject,
		ContextRole:     r.Role,
		ContextAction:   r.Action,
		ContextResource: r.Resource,
		ContextResult:   r.Result,
	} {
		if v != "" {
			ctx[k] = v
		}
	}

	return Event{
		ID:        r.ID,
		Type:      r.EventType,
		Severity:  r.Severity,
		Message:   d.Message,
		Context:   ctx,
		Timestamp: r.CreatedAt,
		Tags:      d.Tags,
		TraceID:   d.TraceID,
	}
}
