package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sink types.
const (
	SinkMemory = "memory"
	SinkSQL    = "sql"
	SinkWriter = "writer"
)

// Config represents the audit pipeline configuration.
type Config struct {
	// MinSeverity drops events below this severity at Log time.
	MinSeverity Severity `yaml:"minSeverity,omitempty" json:"minSeverity,omitempty"`

	// BatchSize is the buffer length that triggers an early flush.
	BatchSize int `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`

	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration `yaml:"flushInterval,omitempty" json:"flushInterval,omitempty"`

	// FlushTimeout bounds a single background write to the sink.
	FlushTimeout time.Duration `yaml:"flushTimeout,omitempty" json:"flushTimeout,omitempty"`

	// MaxBufferSize caps the buffer. When exceeded the oldest events are
	// dropped. Zero means unbounded.
	MaxBufferSize int `yaml:"maxBufferSize,omitempty" json:"maxBufferSize,omitempty"`

	// RedactFields lists context keys whose values are replaced before
	// the event is buffered. Matching is case-insensitive and by substring.
	RedactFields []string `yaml:"redactFields,omitempty" json:"redactFields,omitempty"`

	// Sink selects the durable destination.
	Sink SinkConfig `yaml:"sink" json:"sink"`
}

// SinkConfig selects the durable sink.
type SinkConfig struct {
	// Type is one of memory, sql, writer.
	Type string `yaml:"type" json:"type"`

	// Output is stdout, stderr or a file path for the writer sink.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Format is json or text for the writer sink.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() Config {
	return Config{
		MinSeverity:   SeverityLow,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		FlushTimeout:  10 * time.Second,
		RedactFields: []string{
			"password",
			"secret",
			"token",
			"authorization",
			"cookie",
		},
		Sink: SinkConfig{Type: SinkMemory},
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MinSeverity == 0 {
		c.MinSeverity = d.MinSeverity
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	if c.RedactFields == nil {
		c.RedactFields = d.RedactFields
	}
	if c.Sink.Type == "" {
		c.Sink.Type = d.Sink.Type
	}
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c.MinSeverity != 0 && !c.MinSeverity.Valid() {
		return fmt.Errorf("invalid minSeverity: %d", int(c.MinSeverity))
	}
	if c.BatchSize < 0 {
		return errors.New("batchSize must be non-negative")
	}
	if c.FlushInterval < 0 {
		return errors.New("flushInterval must be non-negative")
	}
	if c.FlushTimeout < 0 {
		return errors.New("flushTimeout must be non-negative")
	}
	if c.MaxBufferSize < 0 {
		return errors.New("maxBufferSize must be non-negative")
	}
	if c.MaxBufferSize > 0 && c.BatchSize > c.MaxBufferSize {
		return fmt.Errorf("batchSize (%d) must not exceed maxBufferSize (%d)", c.BatchSize, c.MaxBufferSize)
	}

	switch c.Sink.Type {
	case "", SinkMemory, SinkSQL:
	case SinkWriter:
		if f := c.Sink.Format; f != "" && f != FormatJSON && f != FormatText {
			return fmt.Errorf("invalid audit format: %s (must be 'json' or 'text')", f)
		}
	default:
		return fmt.Errorf("invalid audit sink type: %s (must be one of %s)",
			c.Sink.Type, strings.Join([]string{SinkMemory, SinkSQL, SinkWriter}, ", "))
	}
	return nil
}

// shouldRedact checks if a context key should be redacted.
func (c *Config) shouldRedact(field string) bool {
	lowerField := strings.ToLower(field)
	for _, redactField := range c.RedactFields {
		if strings.Contains(lowerField, strings.ToLower(redactField)) {
			return true
		}
	}
	return false
}
