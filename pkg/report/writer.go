package report

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for a reap run.
//
// Implementations must be safe for concurrent use. Each Write* method
// emits a complete record as a single line of JSON.
type Writer interface {
	// WriteTermination emits a termination decision record.
	WriteTermination(ctx context.Context, term *TerminationRecord) error

	// WriteSummary emits the final summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// WriteError emits a non-fatal error record.
	WriteError(ctx context.Context, rec *ErrorRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// Nop returns a Writer that discards all records. Used when no report
// destination is configured.
func Nop() Writer {
	return nopWriter{}
}

type nopWriter struct{}

func (nopWriter) WriteTermination(context.Context, *TerminationRecord) error { return nil }
func (nopWriter) WriteSummary(context.Context, *SummaryRecord) error         { return nil }
func (nopWriter) WriteError(context.Context, *ErrorRecord) error             { return nil }
func (nopWriter) Close() error                                               { return nil }

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex so lines never interleave.
type JSONLWriter struct {
	w     io.Writer
	runID string
	mu    sync.Mutex

	closed bool
}

var _ Writer = (*JSONLWriter)(nil)

// NewJSONLWriter creates a new JSONL writer.
//
// The underlying writer is not closed by Close; the caller owns it.
func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID}
}

// WriteTermination emits a termination decision record.
func (jw *JSONLWriter) WriteTermination(ctx context.Context, term *TerminationRecord) error {
	return jw.writeRecord(ctx, TypeTermination, term)
}

// WriteSummary emits the final summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// WriteError emits a non-fatal error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, rec)
}

// Close marks the writer as closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while
// holding the mutex, so each JSONL line is atomic.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		RunID: jw.runID,
		Data:  dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with nil error; a short write would
	// silently truncate a JSONL line.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
