package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// FileSink appends line-delimited JSON audit records to a file
type FileSink struct {
	mu     sync.Mutex
	out    *errorWriter
	closer io.Closer
	logger zerolog.Logger
}

// errorWriter remembers the last write error so it can be reported to the
// caller instead of zerolog's error handler.
type errorWriter struct {
	w   io.Writer
	err error
}

func (e *errorWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// OpenFileSink opens path for appending, creating parent directories
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &LoggingError{Sink: "file", Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &LoggingError{Sink: "file", Err: err}
	}
	return NewWriterSink(f, f), nil
}

// NewWriterSink writes records to w; closer may be nil
func NewWriterSink(w io.Writer, closer io.Closer) *FileSink {
	out := &errorWriter{w: w}
	return &FileSink{
		out:    out,
		closer: closer,
		logger: zerolog.New(out),
	}
}

func (s *FileSink) Write(_ context.Context, rec *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.err = nil
	s.logger.Log().
		Str("timestamp", rec.Timestamp.UTC().Format(time.RFC3339Nano)).
		Str("prediction_id", rec.ID.String()).
		Interface("input", rec.Input).
		Interface("output", rec.Output).
		Send()

	if s.out.err != nil {
		return &LoggingError{Sink: "file", Err: fmt.Errorf("write audit record: %w", s.out.err)}
	}
	return nil
}

func (s *FileSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
