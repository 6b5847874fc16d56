// Package httpframer parses an HTTP/1.1 response status line and headers,
// then decodes either identity (Content-Length) or chunked
// (Transfer-Encoding: chunked) body framing as bytes arrive from the
// socket, without ever buffering the whole body.
package httpframer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Phase is the framer's current position in the HTTP/1.1 response grammar.
type Phase int

const (
	PhaseHeaders Phase = iota
	PhaseIdentityBody
	PhaseChunkSize
	PhaseChunkData
	PhaseChunkTrailer
	PhaseDone
)

const maxHeaderBytes = 8 * 1024

// Framer is a reentrant-at-every-byte-boundary HTTP/1.1 response decoder.
// Feed may be called with arbitrarily small or large slices, including a
// single byte at a time; the framer resumes exactly where it left off.
type Framer struct {
	phase Phase

	headerAcc     bytes.Buffer
	StatusCode    int
	Header        map[string][]string
	contentLength int64
	chunked       bool

	remaining int64 // identity body bytes left, or chunk bytes left
	chunkLine bytes.Buffer
	trailerCR int // bytes of the post-chunk-data CRLF consumed so far
}

// New returns a Framer positioned at PhaseHeaders.
func New() *Framer {
	return &Framer{phase: PhaseHeaders, Header: make(map[string][]string)}
}

// Phase reports the framer's current state.
func (f *Framer) Phase() Phase { return f.phase }

// Done reports whether the framer has reached the terminal phase.
func (f *Framer) Done() bool { return f.phase == PhaseDone }

// Feed consumes raw bytes from the socket and calls emit for each slice of
// decoded body bytes it produces. It returns an error for any protocol
// violation (oversize headers, malformed chunk framing).
func (f *Framer) Feed(b []byte, emit func([]byte)) error {
	for len(b) > 0 {
		switch f.phase {
		case PhaseHeaders:
			consumed, done, err := f.feedHeaders(b)
			if err != nil {
				return err
			}
			b = b[consumed:]
			if !done {
				return nil
			}
			// fall through: any leftover bytes after the header
			// terminator belong to the body and must not be dropped.
		case PhaseIdentityBody:
			n := int64(len(b))
			if f.remaining >= 0 && n > f.remaining {
				n = f.remaining
			}
			if n > 0 {
				emit(b[:n])
				b = b[n:]
			}
			if f.remaining >= 0 {
				f.remaining -= n
				if f.remaining == 0 {
					f.phase = PhaseDone
				}
			}
			// remaining < 0 means Content-Length was absent: the body
			// runs until the connection closes, which the caller detects
			// independently of the framer reaching PhaseDone.
		case PhaseChunkSize:
			consumed, gotLine, err := f.feedChunkSizeLine(b)
			if err != nil {
				return err
			}
			b = b[consumed:]
			if !gotLine {
				return nil
			}
		case PhaseChunkData:
			n := int64(len(b))
			if n > f.remaining {
				n = f.remaining
			}
			if n > 0 {
				emit(b[:n])
				b = b[n:]
				f.remaining -= n
			}
			if f.remaining == 0 {
				f.phase = PhaseChunkTrailer
				f.trailerCR = 0
			}
		case PhaseChunkTrailer:
			want := "\r\n"
			for len(b) > 0 && f.trailerCR < len(want) {
				if b[0] != want[f.trailerCR] {
					return fmt.Errorf("httpframer: malformed chunk trailer, expected CRLF")
				}
				f.trailerCR++
				b = b[1:]
			}
			if f.trailerCR == len(want) {
				f.phase = PhaseChunkSize
				f.chunkLine.Reset()
			}
		case PhaseDone:
			return nil
		}
	}
	return nil
}

// feedHeaders accumulates into headerAcc until it finds the blank-line
// terminator, then parses the status line and headers and selects the
// body framing mode.
func (f *Framer) feedHeaders(b []byte) (consumed int, done bool, err error) {
	const term = "\r\n\r\n"
	for i, c := range b {
		f.headerAcc.WriteByte(c)
		if f.headerAcc.Len() > maxHeaderBytes {
			return i + 1, false, fmt.Errorf("httpframer: headers exceeded %d bytes without terminator", maxHeaderBytes)
		}
		acc := f.headerAcc.Bytes()
		if len(acc) >= len(term) && bytes.HasSuffix(acc, []byte(term)) {
			if err := f.parseHeaders(acc[:len(acc)-len(term)]); err != nil {
				return i + 1, false, err
			}
			f.selectBodyMode()
			return i + 1, true, nil
		}
	}
	return len(b), false, nil
}

func (f *Framer) parseHeaders(raw []byte) error {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 {
		return fmt.Errorf("httpframer: empty response")
	}
	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 {
		return fmt.Errorf("httpframer: malformed status line %q", lines[0])
	}
	code, err := strconv.Atoi(statusParts[1])
	if err != nil {
		return fmt.Errorf("httpframer: malformed status code %q: %w", statusParts[1], err)
	}
	f.StatusCode = code

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		key := strings.ToLower(name)
		f.Header[key] = append(f.Header[key], value)
	}
	return nil
}

func (f *Framer) headerValue(key string) (string, bool) {
	vs, ok := f.Header[strings.ToLower(key)]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (f *Framer) selectBodyMode() {
	if te, ok := f.headerValue("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		f.chunked = true
		f.phase = PhaseChunkSize
		return
	}
	if cl, ok := f.headerValue("Content-Length"); ok {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			f.contentLength = n
			f.remaining = n
			f.phase = PhaseIdentityBody
			if n == 0 {
				f.phase = PhaseDone
			}
			return
		}
	}
	// Neither header present: body runs until connection close.
	f.remaining = -1
	f.phase = PhaseIdentityBody
}

// feedChunkSizeLine accumulates a hex chunk-size line terminated by \r\n.
func (f *Framer) feedChunkSizeLine(b []byte) (consumed int, gotLine bool, err error) {
	for i, c := range b {
		if c == '\n' {
			line := f.chunkLine.String()
			line = strings.TrimSuffix(line, "\r")
			f.chunkLine.Reset()

			sizeStr, _, _ := strings.Cut(line, ";") // chunk extensions, ignored
			sizeStr = strings.TrimSpace(sizeStr)
			size, err := strconv.ParseInt(sizeStr, 16, 64)
			if err != nil {
				return i + 1, false, fmt.Errorf("httpframer: malformed chunk size %q: %w", sizeStr, err)
			}
			if size == 0 {
				f.phase = PhaseDone
				return i + 1, true, nil
			}
			f.remaining = size
			f.phase = PhaseChunkData
			return i + 1, true, nil
		}
		f.chunkLine.WriteByte(c)
	}
	return len(b), false, nil
}

// ContentLength reports the Content-Length seen in headers, if any.
func (f *Framer) ContentLength() (int64, bool) {
	if _, ok := f.headerValue("Content-Length"); !ok {
		return 0, false
	}
	return f.contentLength, true
}

// Chunked reports whether the response used chunked transfer encoding.
func (f *Framer) Chunked() bool { return f.chunked }
