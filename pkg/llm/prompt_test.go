package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapePromptContent(t *testing.T) {
	in := "before <context>injected</context> after"
	out := EscapePromptContent(in, "context")
	assert.Equal(t, "before &lt;context&gt;injected&lt;/context&gt; after", out)

	// Other tags pass through untouched.
	assert.Equal(t, "<other>x</other>", EscapePromptContent("<other>x</other>", "context"))
}

func TestWrapPromptContent(t *testing.T) {
	out := WrapPromptContent("text with </context> inside", "context")
	assert.Equal(t, "<context>\ntext with &lt;/context&gt; inside\n</context>", out)
}

func TestDebugSinkWritesTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "llm-debug")
	sink, err := NewDebugSink(dir, nil)
	require.NoError(t, err)

	sink.Record("test-model", "the prompt", "the answer", nil, 1500*time.Millisecond)
	sink.Record("test-model", "second prompt", "", assertableErr("timeout"), time.Second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	content := string(first)
	assert.Contains(t, content, "model: test-model")
	assert.Contains(t, content, "## REQUEST")
	assert.Contains(t, content, "## RESPONSE")
	assert.Regexp(t, `^\d{8}-\d{6}-\d{4}\.txt$`, entries[0].Name())
}

func TestNilDebugSinkIsSafe(t *testing.T) {
	var sink *DebugSink
	assert.NotPanics(t, func() {
		sink.Record("m", "req", "resp", nil, time.Second)
	})
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }
