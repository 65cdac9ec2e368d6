package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/cancellation"
)

// scriptedChat replays a fixed sequence of responses, then repeats the last
// one.
type scriptedChat struct {
	mu      sync.Mutex
	calls   int
	script  []scriptedReply
	delay   time.Duration
	started chan struct{} // closed on first call, when non-nil
}

type scriptedReply struct {
	content string
	err     error
}

func (s *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	if s.started != nil && idx == 0 {
		close(s.started)
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
	}

	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	reply := s.script[idx]
	if reply.err != nil {
		return openai.ChatCompletionResponse{}, reply.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply.content}},
		},
	}, nil
}

func (s *scriptedChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestClient(chat chatCompleter) *OpenAIClient {
	c := NewOpenAIClient(Config{APIKey: "test", Model: "test-model"}, nil)
	c.chat = chat
	return c
}

func serverError() error {
	return &openai.APIError{HTTPStatusCode: 500, Message: "upstream exploded"}
}

func TestGenerateReturnsContent(t *testing.T) {
	chat := &scriptedChat{script: []scriptedReply{{content: "hello"}}}
	client := newTestClient(chat)

	out, err := client.Generate(context.Background(), "prompt", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, chat.callCount())
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	chat := &scriptedChat{script: []scriptedReply{
		{err: serverError()},
		{content: "recovered"},
	}}
	client := newTestClient(chat)

	start := time.Now()
	out, err := client.Generate(context.Background(), "prompt", CallOptions{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 2, chat.callCount())
	// One backoff interval between the attempts.
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestGenerateStopsAfterMaxAttempts(t *testing.T) {
	chat := &scriptedChat{script: []scriptedReply{{err: serverError()}}}
	client := newTestClient(chat)

	_, err := client.Generate(context.Background(), "prompt", CallOptions{})
	require.Error(t, err)
	assert.Equal(t, maxAttempts, chat.callCount())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	chat := &scriptedChat{script: []scriptedReply{
		{err: &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}},
	}}
	client := newTestClient(chat)

	_, err := client.Generate(context.Background(), "prompt", CallOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, chat.callCount())
}

func TestGenerateChecksCancelBeforeCall(t *testing.T) {
	chat := &scriptedChat{script: []scriptedReply{{content: "never"}}}
	client := newTestClient(chat)

	ev := cancellation.NewEvent()
	ev.Set()
	_, err := client.Generate(context.Background(), "prompt", CallOptions{Cancel: ev})
	assert.ErrorIs(t, err, cancellation.ErrCancelled)
	assert.Equal(t, 0, chat.callCount())
}

func TestGenerateCancelDuringBackoffReturnsPromptly(t *testing.T) {
	started := make(chan struct{})
	chat := &scriptedChat{script: []scriptedReply{{err: serverError()}}, started: started}
	client := newTestClient(chat)

	ev := cancellation.NewEvent()
	go func() {
		<-started
		ev.Set()
	}()

	start := time.Now()
	_, err := client.Generate(context.Background(), "prompt", CallOptions{Cancel: ev})
	assert.ErrorIs(t, err, cancellation.ErrCancelled)
	// The cancel interrupts the backoff sleep instead of waiting it out.
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestIsRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &openai.APIError{HTTPStatusCode: 500}, true},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled context", context.Canceled, false},
		{"plain transport error", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestIsAvailable(t *testing.T) {
	client := newTestClient(&scriptedChat{script: []scriptedReply{{content: "pong"}}})
	assert.True(t, client.IsAvailable(context.Background()))

	client = newTestClient(&scriptedChat{script: []scriptedReply{{err: serverError()}}})
	assert.False(t, client.IsAvailable(context.Background()))
}
