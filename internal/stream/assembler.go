// Package stream reassembles worker process output. Workers write free-form
// text on stdout and stderr in arbitrarily sized chunks; chunk boundaries do
// not respect line boundaries, so the assembler buffers the trailing partial
// line of each stream between reads.
package stream

import (
	"bytes"
	"strings"
	"sync"
)

// Source identifies which output stream a chunk or line came from.
type Source string

const (
	// Stdout is the worker's standard output stream.
	Stdout Source = "stdout"
	// Stderr is the worker's standard error stream.
	Stderr Source = "stderr"
)

// LineAssembler converts byte chunks from the two worker streams into
// complete lines. One unterminated-line buffer is kept per stream. No byte
// is dropped or duplicated across chunk boundaries, including when a line
// terminator falls exactly on a boundary.
//
// Safe for concurrent use; the supervisor drains stdout and stderr from
// separate goroutines.
type LineAssembler struct {
	mu      sync.Mutex
	partial map[Source]*bytes.Buffer
}

// NewLineAssembler creates an assembler with empty buffers for both streams.
func NewLineAssembler() *LineAssembler {
	return &LineAssembler{
		partial: map[Source]*bytes.Buffer{
			Stdout: {},
			Stderr: {},
		},
	}
}

// Feed appends a chunk to the stream's buffer and returns every complete
// line that became available, in order, without terminators. A trailing
// "\r" before the terminator is stripped. The final unterminated fragment,
// possibly empty, stays buffered for the next chunk.
func (a *LineAssembler) Feed(src Source, chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.buffer(src)
	buf.Write(chunk)

	var lines []string
	for {
		data := buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		buf.Next(idx + 1)
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	return lines
}

// Flush returns the stream's residual unterminated fragment as a final line
// and clears the buffer. The boolean is false when nothing was buffered.
// Called on process exit so a trailing unterminated error message is not
// lost.
func (a *LineAssembler) Flush(src Source) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.buffer(src)
	if buf.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(buf.String(), "\r")
	buf.Reset()
	return line, true
}

// Pending returns the number of buffered bytes for a stream.
func (a *LineAssembler) Pending(src Source) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer(src).Len()
}

func (a *LineAssembler) buffer(src Source) *bytes.Buffer {
	buf, ok := a.partial[src]
	if !ok {
		buf = &bytes.Buffer{}
		a.partial[src] = buf
	}
	return buf
}
