package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	headerSeparator     = "\r\n\r\n"
	contentLengthHeader = "Content-Length"

	// maxHeaderBytes bounds how much unterminated header data is buffered
	// before it is discarded as garbage.
	maxHeaderBytes = 64 << 10
)

// Encode marshals v and wraps it in a Content-Length frame.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return Frame(body), nil
}

// Frame wraps an already-serialized payload in a Content-Length frame.
// The length counts bytes, not characters.
func Frame(body []byte) []byte {
	header := fmt.Sprintf("%s: %d%s", contentLengthHeader, len(body), headerSeparator)
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// Framer splits a byte stream into Content-Length framed payloads.
// It is not safe for concurrent use; the connection's reader owns it.
type Framer struct {
	buf []byte
}

// Feed appends p to the internal buffer and returns every payload that is
// now complete, in arrival order. Incomplete data stays buffered for the
// next call. A header block without a valid Content-Length is dropped and
// reported through the returned error (wrapping ErrMalformedFrame); parsing
// continues with the bytes after it, so payloads and an error may be
// returned together.
func (f *Framer) Feed(p []byte) ([][]byte, error) {
	f.buf = append(f.buf, p...)

	var (
		payloads [][]byte
		errs     []error
		pos      int
	)

	for {
		rest := f.buf[pos:]
		idx := bytes.Index(rest, []byte(headerSeparator))
		if idx < 0 {
			if len(rest) > maxHeaderBytes {
				errs = append(errs, fmt.Errorf("%w: header exceeds %d bytes", ErrMalformedFrame, maxHeaderBytes))
				pos = len(f.buf)
			}
			break
		}

		length, err := parseContentLength(rest[:idx])
		if err != nil {
			errs = append(errs, err)
			pos += idx + len(headerSeparator)
			continue
		}

		start := idx + len(headerSeparator)
		if len(rest)-start < length {
			break
		}

		payload := make([]byte, length)
		copy(payload, rest[start:start+length])
		payloads = append(payloads, payload)
		pos += start + length
	}

	// Shift the unconsumed tail to the front of the buffer
	if pos > 0 {
		n := copy(f.buf, f.buf[pos:])
		f.buf = f.buf[:n]
	}

	return payloads, errors.Join(errs...)
}

// Buffered returns the number of bytes waiting for more input.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// parseContentLength extracts the Content-Length value from a header block.
// Other headers such as Content-Type are ignored.
func parseContentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != contentLengthHeader {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformedFrame, contentLengthHeader, strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: missing %s header", ErrMalformedFrame, contentLengthHeader)
}
