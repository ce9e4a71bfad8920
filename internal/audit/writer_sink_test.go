package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterSink_JSON(t *testing.T) {
	t.Parallel()

	var buf lockedBuffer
	sink := NewWriterSink(&buf, "")
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Insert(context.Background(), []Row{testRow("a", ts), testRow("b", ts)}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "b", e.ID)
	assert.Equal(t, EventAccessDenied, e.Type)
	assert.Equal(t, SeverityHigh, e.Severity)
	assert.Equal(t, "alice", e.ContextString(ContextSubject))
}

func TestWriterSink_Text(t *testing.T) {
	t.Parallel()

	var buf lockedBuffer
	sink := NewWriterSink(&buf, FormatText)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Insert(context.Background(), []Row{testRow("a", ts)}))
	assert.Equal(t,
		"2026-03-01T10:00:00Z High AccessDenied subject=alice role=viewer action=DELETE resource=/api/faults/1 result=denied id=a\n",
		buf.String())

	_, err := sink.Query(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrQueryNotSupported)
	_, err = sink.Count(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrQueryNotSupported)
}

func TestOpenWriterSink(t *testing.T) {
	t.Parallel()

	for _, out := range []string{"", "stdout", "stderr"} {
		s, err := OpenWriterSink(out, FormatJSON)
		require.NoError(t, err)
		assert.NoError(t, s.Close())
	}

	path := filepath.Join(t.TempDir(), "audit.log")
	s, err := OpenWriterSink(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), []Row{testRow("a", time.Now())}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"a"`)

	_, err = OpenWriterSink(filepath.Join(t.TempDir(), "missing", "audit.log"), FormatJSON)
	assert.Error(t, err)
}
