// Package sink provides durable result-record writers.
package sink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/averres/proxyfan/internal/fetch"
)

// FileSink appends one "{item} {information}" line per record to a text
// file. The file is created lazily on the first append, so an empty run
// leaves no output behind. Writes are serialized so concurrent appends
// never interleave mid-record.
type FileSink struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// NewFileSink returns a sink writing to path.
func NewFileSink(path string, logger *zap.Logger) *FileSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: path, logger: logger}
}

// Append writes one record line. It returns only after the line has been
// handed to the operating system, so a reported success is never lost by
// a later crash.
func (s *FileSink) Append(ctx context.Context, record fetch.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append canceled: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open output file %s: %w", s.path, err)
		}
		s.file = f
	}

	if _, err := fmt.Fprintf(s.file, "%s %s\n", record.Item, record.Information); err != nil {
		return fmt.Errorf("write record for %q: %w", record.Item, err)
	}
	return nil
}

// Close flushes and closes the output file if it was ever opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close output file %s: %w", s.path, err)
	}
	s.file = nil
	return nil
}
