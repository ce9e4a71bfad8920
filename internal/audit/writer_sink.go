package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Output formats for WriterSink.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// WriterSink writes rows as lines to an io.Writer. It cannot be queried.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	closer io.Closer
}

var _ Sink = (*WriterSink)(nil)

// NewWriterSink creates a sink writing to w in the given format.
func NewWriterSink(w io.Writer, format string) *WriterSink {
	if format == "" {
		format = FormatJSON
	}
	return &WriterSink{w: w, format: format}
}

// OpenWriterSink opens stdout, stderr or an append-only file.
func OpenWriterSink(output, format string) (*WriterSink, error) {
	switch output {
	case "", "stdout":
		return NewWriterSink(os.Stdout, format), nil
	case "stderr":
		return NewWriterSink(os.Stderr, format), nil
	default:
		//nolint:gosec // G304: path from config is trusted
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		s := NewWriterSink(file, format)
		s.closer = file
		return s, nil
	}
}

// Insert writes one line per row. The batch is written with a single Write
// call.
func (s *WriterSink) Insert(_ context.Context, rows []Row) error {
	var sb strings.Builder
	for _, r := range rows {
		if s.format == FormatText {
			sb.WriteString(formatText(r))
			continue
		}
		b, err := json.Marshal(r.Event())
		if err != nil {
			return fmt.Errorf("failed to marshal audit event: %w", err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, sb.String())
	return err
}

// Query is not supported.
func (s *WriterSink) Query(context.Context, Filter) ([]Row, error) {
	return nil, ErrQueryNotSupported
}

// Count is not supported.
func (s *WriterSink) Count(context.Context, Filter) (int, error) {
	return 0, ErrQueryNotSupported
}

// Close closes the underlying file, if any.
func (s *WriterSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func formatText(r Row) string {
	var sb strings.Builder

	sb.WriteString(r.CreatedAt.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(r.Severity.String())
	sb.WriteString(" ")
	sb.WriteString(string(r.EventType))

	if r.Subject != "" {
		sb.WriteString(" subject=")
		sb.WriteString(r.Subject)
	}
	if r.Role != "" {
		sb.WriteString(" role=")
		sb.WriteString(r.Role)
	}
	if r.Action != "" {
		sb.WriteString(" action=")
		sb.WriteString(r.Action)
	}
	if r.Resource != "" {
		sb.WriteString(" resource=")
		sb.WriteString(r.Resource)
	}
	if r.Result != "" {
		sb.WriteString(" result=")
		sb.WriteString(r.Result)
	}
	sb.WriteString(" id=")
	sb.WriteString(r.ID)

	sb.WriteString("\n")
	return sb.String()
}
