// Package stream holds the pieces shared by every vendor stream decoder: a
// line-oriented server-sent-event reader, the open-block state machine that
// keeps start/delta/end events balanced, and a cancellation-aware emitter.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 8 * 1024 * 1024
)

// ErrDone is returned by Reader.Next when the [DONE] sentinel is read.
var ErrDone = errors.New("stream: done sentinel")

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Reader yields the payload of each "data:" line of an SSE body. Blank lines,
// comments and other fields (event, id, retry) are skipped; vendor payloads
// carry their own type discriminant.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next data payload. It returns io.EOF at the end of the
// body and ErrDone on the [DONE] sentinel. The returned slice is only valid
// until the following call.
func (r *Reader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimRight(r.scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		data := bytes.TrimSpace(line[len(dataPrefix):])
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, doneMarker) {
			return nil, ErrDone
		}
		return data, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
