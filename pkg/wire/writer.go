package wire

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// Writer serializes values as newline-delimited JSON. Writes are
// serialized by a mutex so concurrent request handlers never interleave
// partial lines.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps w with NDJSON framing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteLine marshals v and writes it as one line, flushing immediately.
func (w *Writer) WriteLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteRaw(data)
}

// WriteRaw writes pre-serialized JSON as one line, flushing immediately.
// The payload must not contain embedded newlines.
func (w *Writer) WriteRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}
