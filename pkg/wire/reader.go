// Package wire frames the control plane over a byte stream: one JSON
// object per line in, one JSON object per line out. The backing stream can
// be stdio, a socket, or a pipe; framing is the only contract.
package wire

import (
	"bufio"
	"bytes"
	"io"

	"github.com/codeplane/codeplane/pkg/protocol"
)

const maxLineSize = 1024 * 1024 // 1MB per message

// Reader splits a byte stream into control-plane envelopes. A malformed
// line surfaces as a *protocol.ParseError for that line only; the caller
// can keep reading. Blank lines are skipped. The reader holds no state
// across lines.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r with line framing.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next parsed envelope. It returns io.EOF when the stream
// ends, a *protocol.ParseError for a malformed line, or the scanner error
// if the underlying read failed.
func (r *Reader) Next() (*protocol.Envelope, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return protocol.DecodeEnvelope(line)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
