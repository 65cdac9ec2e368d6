package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugSink writes one transcript file per LLM exchange. A nil sink is valid
// and records nothing.
type DebugSink struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	counter int
}

// NewDebugSink creates the transcript directory and returns a sink writing
// into it.
func NewDebugSink(dir string, logger *slog.Logger) (*DebugSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create llm debug dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugSink{dir: dir, logger: logger}, nil
}

// Record writes a transcript file for one exchange. Failures are logged and
// swallowed; debugging must never fail a run.
func (s *DebugSink) Record(model, request, response string, callErr error, elapsed time.Duration) {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.counter++
	seq := s.counter
	s.mu.Unlock()

	now := time.Now().UTC()
	name := fmt.Sprintf("%s-%s-%04d.txt", now.Format("20060102"), now.Format("150405"), seq)

	var body string
	body += fmt.Sprintf("timestamp: %s\n", now.Format(time.RFC3339))
	body += fmt.Sprintf("model: %s\n", model)
	body += fmt.Sprintf("elapsed: %s\n", elapsed.Round(time.Millisecond))
	if callErr != nil {
		body += fmt.Sprintf("error: %v\n", callErr)
	}
	body += "\n## REQUEST\n\n" + request + "\n"
	body += "\n## RESPONSE\n\n" + response + "\n"

	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(body), 0o644); err != nil {
		s.logger.Warn("failed to write llm debug transcript", "file", name, "error", err)
	}
}
