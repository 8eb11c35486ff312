// Package stream implements the newline-delimited "data: <JSON>" wire format used by the
// chat and coach endpoints, on both the producing and the consuming side.
package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// DoneSentinel terminates every stream.
const DoneSentinel = "[DONE]"

// LineBuffer splits an arbitrary sequence of reads into complete lines.
// A fragment without a trailing newline is held back and prefixed to the next read.
type LineBuffer struct {
	pending []byte
}

// Feed appends chunk and returns every line it completed, without line terminators.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(b.pending[:i]), "\r")
		lines = append(lines, line)
		b.pending = b.pending[i+1:]
	}
	// Keep the held-back fragment in a fresh slice so the backing array does not grow forever.
	if len(b.pending) == 0 {
		b.pending = nil
	} else {
		b.pending = append([]byte(nil), b.pending...)
	}
	return lines
}

// Flush returns whatever fragment is still held back and resets the buffer.
func (b *LineBuffer) Flush() string {
	rest := strings.TrimSuffix(string(b.pending), "\r")
	b.pending = nil
	return rest
}

// ReadLines reads r until EOF and calls fn for every complete line, including a final
// unterminated one. Returning ErrStop from fn ends the read without error.
func ReadLines(r io.Reader, fn func(line string) error) error {
	var lb LineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(buf[:n]) {
				if ferr := fn(line); ferr != nil {
					if errors.Is(ferr, ErrStop) {
						return nil
					}
					return ferr
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if rest := lb.Flush(); rest != "" {
				if ferr := fn(rest); ferr != nil && !errors.Is(ferr, ErrStop) {
					return ferr
				}
			}
			return nil
		}
	}
}

// ErrStop can be returned by a ReadLines callback to stop reading early.
var ErrStop = errors.New("stream: stop")

// DataPayload extracts the payload of a "data:" line. Comment lines (starting with ':',
// e.g. ": OPENROUTER PROCESSING" keep-alives), blank lines and other SSE fields report ok=false.
func DataPayload(line string) (payload string, ok bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload = strings.TrimPrefix(line, "data:")
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}
