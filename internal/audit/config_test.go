package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "zero", cfg: Config{}},
		{name: "bad severity", cfg: Config{MinSeverity: 7}, wantErr: "invalid minSeverity"},
		{name: "negative batch", cfg: Config{BatchSize: -1}, wantErr: "batchSize"},
		{name: "negative interval", cfg: Config{FlushInterval: -time.Second}, wantErr: "flushInterval"},
		{name: "negative timeout", cfg: Config{FlushTimeout: -time.Second}, wantErr: "flushTimeout"},
		{name: "negative buffer", cfg: Config{MaxBufferSize: -1}, wantErr: "maxBufferSize"},
		{name: "batch over cap", cfg: Config{BatchSize: 10, MaxBufferSize: 5}, wantErr: "must not exceed"},
		{name: "unknown sink", cfg: Config{Sink: SinkConfig{Type: "kafka"}}, wantErr: "invalid audit sink type"},
		{name: "bad format", cfg: Config{Sink: SinkConfig{Type: SinkWriter, Format: "xml"}}, wantErr: "invalid audit format"},
		{name: "writer text", cfg: Config{Sink: SinkConfig{Type: SinkWriter, Format: FormatText}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{BatchSize: 10, RedactFields: []string{}}
	cfg.ApplyDefaults()

	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, SeverityLow, cfg.MinSeverity)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, SinkMemory, cfg.Sink.Type)
	assert.Empty(t, cfg.RedactFields, "an explicit empty list disables redaction")
}

func TestConfig_YAML(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := yaml.Unmarshal([]byte(`
minSeverity: medium
batchSize: 50
flushInterval: 2s
sink:
  type: sql
`), &cfg)
	assert.NoError(t, err)
	assert.Equal(t, SeverityMedium, cfg.MinSeverity)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, SinkSQL, cfg.Sink.Type)
}

func TestConfig_ShouldRedact(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.True(t, cfg.shouldRedact("Authorization"))
	assert.True(t, cfg.shouldRedact("accessToken"))
	assert.True(t, cfg.shouldRedact("client_secret"))
	assert.False(t, cfg.shouldRedact("subject"))
}
