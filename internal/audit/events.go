package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTokenIssued             EventType = "TokenIssued"
	EventTokenRefreshed          EventType = "TokenRefreshed"
	EventTokenVerificationFailed EventType = "TokenVerificationFailed"
	EventAccessGranted           EventType = "AccessGranted"
	EventAccessDenied            EventType = "AccessDenied"
	EventPermissionCreated       EventType = "PermissionCreated"
	EventPermissionUpdated       EventType = "PermissionUpdated"
	EventPermissionDeleted       EventType = "PermissionDeleted"
	EventKeyLoaded               EventType = "KeyLoaded"
	EventConfigReloaded          EventType = "ConfigReloaded"
)

var eventTypes = []EventType{
	EventTokenIssued,
	EventTokenRefreshed,
	EventTokenVerificationFailed,
	EventAccessGranted,
	EventAccessDenied,
	EventPermissionCreated,
	EventPermissionUpdated,
	EventPermissionDeleted,
	EventKeyLoaded,
	EventConfigReloaded,
}

// ParseEventType matches s against the known event types,
// case-insensitively.
func ParseEventType(s string) (EventType, error) {
	for _, t := range eventTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", s)
}

// Severity orders events from Low to Critical.
type Severity int

// Severities.
const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("invalid severity %q", s)
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Well-known context keys. They are stored in dedicated columns by durable
// sinks so that queries can filter on them.
const (
	ContextSubject  = "subject"
	ContextRole     = "role"
	ContextAction   = "action"
	ContextResource = "resource"
	ContextResult   = "result"
)

// Event represents an audit event.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"eventType"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Tags      []string       `json:"tags,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
}

// NewEvent creates an event. ID and Timestamp are assigned when the event is
// logged if still empty.
func NewEvent(eventType EventType, severity Severity, message string) Event {
	return Event{
		Type:     eventType,
		Severity: severity,
		Message:  message,
		Context:  make(map[string]any),
	}
}

// With adds a context value.
func (e Event) With(key string, value any) Event {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	e.Context = ctx
	return e
}

// WithSubject records who acted.
func (e Event) WithSubject(subjectID, role string) Event {
	return e.With(ContextSubject, subjectID).With(ContextRole, role)
}

// WithAction records what was attempted and its outcome.
func (e Event) WithAction(action, resource, result string) Event {
	return e.With(ContextAction, action).With(ContextResource, resource).With(ContextResult, result)
}

// WithTags appends tags.
func (e Event) WithTags(tags ...string) Event {
	e.Tags = append(append([]string(nil), e.Tags...), tags...)
	return e
}

// ContextString returns a context value when it is a string.
func (e Event) ContextString(key string) string {
	s, _ := e.Context[key].(string)
	return s
}

func newEventID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
