package httpparse

import (
	"bytes"
	"strconv"
)

// chunkedDecodeResult is the outcome of one attempt to decode as much of
// a chunked body as buf currently contains.
type chunkedDecodeResult struct {
	body     []byte
	trailers *Headers
	consumed int
	complete bool
}

// decodeChunked parses RFC 7230 §4.1 chunked transfer coding from buf,
// per spec.md §4.3's chunked framing rules: each chunk is a hex size
// line (chunk extensions after ';' are ignored), the chunk data, and a
// trailing CRLF; a zero-size chunk terminates the body and is followed
// by zero or more trailer header lines and a final CRLF. Returns
// complete=false (no error) when buf does not yet hold a full body, so
// the caller can feed more bytes on the next read.
func decodeChunked(buf []byte) (chunkedDecodeResult, *Error) {
	var body []byte
	pos := 0

	for {
		lineEnd := bytes.Index(buf[pos:], []byte("\r\n"))
		if lineEnd < 0 {
			return chunkedDecodeResult{}, nil // need more data
		}
		sizeLine := buf[pos : pos+lineEnd]
		pos += lineEnd + 2

		sizeText := sizeLine
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeText = sizeLine[:semi]
		}
		sizeText = bytes.TrimSpace(sizeText)
		if len(sizeText) == 0 {
			return chunkedDecodeResult{}, newErr(KindBadChunkSize, "empty chunk size")
		}
		size, err := strconv.ParseUint(string(sizeText), 16, 63)
		if err != nil {
			return chunkedDecodeResult{}, newErr(KindBadChunkSize, "invalid chunk size %q", sizeText)
		}

		if size == 0 {
			trailers, trailerConsumed, complete := parseTrailers(buf[pos:])
			if !complete {
				return chunkedDecodeResult{}, nil
			}
			pos += trailerConsumed
			return chunkedDecodeResult{body: body, trailers: trailers, consumed: pos, complete: true}, nil
		}

		need := int(size) + 2 // chunk data plus trailing CRLF
		if len(buf)-pos < need {
			return chunkedDecodeResult{}, nil // need more data
		}
		chunk := buf[pos : pos+int(size)]
		if buf[pos+int(size)] != '\r' || buf[pos+int(size)+1] != '\n' {
			return chunkedDecodeResult{}, newErr(KindBadChunkSize, "chunk data not followed by CRLF")
		}
		body = append(body, chunk...)
		pos += need
	}
}

// parseTrailers consumes zero or more "Name: value\r\n" lines up to and
// including the terminating blank line that ends a chunked body.
func parseTrailers(buf []byte) (*Headers, int, bool) {
	h := newHeaders()
	pos := 0
	for {
		lineEnd := bytes.Index(buf[pos:], []byte("\r\n"))
		if lineEnd < 0 {
			return nil, 0, false
		}
		line := buf[pos : pos+lineEnd]
		pos += lineEnd + 2
		if len(line) == 0 {
			return h, pos, true
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue // malformed trailer lines are ignored, not fatal
		}
		name := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		if name != "" {
			h.Set(name, value)
		}
	}
}
