package httpparse

import (
	"bytes"
	"strconv"
	"strings"
)

// maxHeaderSearchBytes bounds how many bytes the parser will buffer
// while looking for the blank line that ends the header section, so a
// client that never sends one cannot grow the connection's read buffer
// without limit.
const maxHeaderSearchBytes = 16 * 1024

// maxHeaderLineLen is the longest single header (or request) line
// accepted; spec.md's boundary case is a line of exactly this length.
const maxHeaderLineLen = 8192

// Status is the result of one Parse attempt.
type Status int

const (
	StatusIncomplete Status = iota // need more bytes from the connection
	StatusComplete
	StatusFailed
)

// Outcome is the result of a parse attempt over a connection's
// accumulated read buffer.
type Outcome struct {
	Status   Status
	Consumed int // bytes of the input buffer this request used, valid when StatusComplete
	Request  *Request
	Err      *Error
}

// Parser is a restartable HTTP/1.1 request decoder. It holds no state
// between calls other than what Reset clears, so a connection can run
// one request after another through the same Parser.
type Parser struct{}

// Reset restores the parser to its initial state. It is a no-op today
// because Parse recomputes everything from the supplied buffer on each
// call, but it exists so callers have a stable restart point regardless
// of future internal state.
func (p *Parser) Reset() {}

// Parse attempts to decode one HTTP request from the start of buf. If
// buf does not yet contain a complete request, it returns
// StatusIncomplete and the caller should read more bytes and call Parse
// again with the larger buffer. It never mutates buf.
func (p *Parser) Parse(buf []byte) Outcome {
	return parse(buf, false)
}

// ParseFinal behaves like Parse, but is used once the peer has
// half-closed its write side: a request that Parse would otherwise call
// incomplete is instead reported as a failure (SHORT_BODY or a
// truncated header section), since no more bytes are coming.
func (p *Parser) ParseFinal(buf []byte) Outcome {
	return parse(buf, true)
}

func parse(buf []byte, final bool) Outcome {
	headerTerm := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerTerm < 0 {
		if len(buf) > maxHeaderSearchBytes {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedRequestLine, "header section exceeds %d bytes", maxHeaderSearchBytes)}
		}
		if final {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedRequestLine, "connection closed before headers completed")}
		}
		return Outcome{Status: StatusIncomplete}
	}

	headerBlock := buf[:headerTerm]
	bodyStart := headerTerm + 4

	lines := strings.Split(string(headerBlock), "\r\n")
	requestLine := lines[0]
	if requestLine == "" {
		return Outcome{Status: StatusFailed, Err: newErr(KindEmptyLine, "empty request line")}
	}
	if len(requestLine) > maxHeaderLineLen {
		return Outcome{Status: StatusFailed, Err: newErr(KindMalformedRequestLine, "request line exceeds %d bytes", maxHeaderLineLen)}
	}

	parts := strings.Split(requestLine, " ")
	if len(parts) != 3 {
		return Outcome{Status: StatusFailed, Err: newErr(KindMalformedRequestLine, "expected METHOD SP PATH SP VERSION")}
	}
	method, target, version := parts[0], parts[1], parts[2]

	if !isValidMethod(method) {
		return Outcome{Status: StatusFailed, Err: newErr(KindUnsupportedMethod, "unsupported method %q", method)}
	}
	if !isValidVersion(version) {
		return Outcome{Status: StatusFailed, Err: newErr(KindUnsupportedVersion, "unsupported version %q", version)}
	}

	path := target
	query := ""
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path = target[:idx]
		query = target[idx+1:]
	}
	if !isValidPath(path) {
		return Outcome{Status: StatusFailed, Err: newErr(KindUnsafePath, "unsafe or malformed path %q", path)}
	}

	headers := newHeaders()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if len(line) > maxHeaderLineLen {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedHeader, "header line exceeds %d bytes", maxHeaderLineLen)}
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedHeader, "malformed header line %q", line)}
		}
		name := line[:colon]
		value := strings.TrimSpace(line[colon+1:])
		if !isToken(name) {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedHeader, "invalid header name %q", name)}
		}
		if !isValidHeaderValue(value) {
			return Outcome{Status: StatusFailed, Err: newErr(KindMalformedHeader, "invalid header value for %q", name)}
		}
		headers.Set(name, value)
	}

	framing := FramingNone
	var contentLength int64 = -1

	teVal, hasTE := headers.Get("Transfer-Encoding")
	clVal, hasCL := headers.Get("Content-Length")

	switch {
	case hasTE && strings.EqualFold(strings.TrimSpace(teVal), "chunked"):
		// chunked wins over a declared Content-Length, per spec.md §4.3.
		framing = FramingChunked
	case hasCL:
		for i := 0; i < len(clVal); i++ {
			if clVal[i] < '0' || clVal[i] > '9' {
				return Outcome{Status: StatusFailed, Err: newErr(KindBadContentLength, "non-numeric Content-Length %q", clVal)}
			}
		}
		n, err := strconv.ParseInt(clVal, 10, 63)
		if err != nil || n < 0 {
			return Outcome{Status: StatusFailed, Err: newErr(KindBadContentLength, "invalid Content-Length %q", clVal)}
		}
		framing = FramingFixed
		contentLength = n
	default:
		framing = FramingNone
		contentLength = 0
	}

	var body []byte
	consumed := bodyStart

	switch framing {
	case FramingFixed:
		need := bodyStart + int(contentLength)
		if len(buf) < need {
			if final {
				return Outcome{Status: StatusFailed, Err: newErr(KindShortBody, "connection closed after %d of %d declared body bytes", len(buf)-bodyStart, contentLength)}
			}
			return Outcome{Status: StatusIncomplete}
		}
		body = buf[bodyStart:need]
		consumed = need

	case FramingChunked:
		result, cerr := decodeChunked(buf[bodyStart:])
		if cerr != nil {
			return Outcome{Status: StatusFailed, Err: cerr}
		}
		if !result.complete {
			if final {
				return Outcome{Status: StatusFailed, Err: newErr(KindShortBody, "connection closed mid-chunked-body")}
			}
			return Outcome{Status: StatusIncomplete}
		}
		body = result.body
		contentLength = int64(len(body))
		if result.trailers != nil {
			result.trailers.Each(headers.Set)
		}
		consumed = bodyStart + result.consumed

	default:
		body = nil
	}

	host := headers.GetOr("Host", "")
	keepAlive := negotiateKeepAlive(version, headers)

	req := &Request{
		Method:        method,
		Path:          path,
		Query:         query,
		Version:       version,
		Headers:       headers,
		Body:          body,
		Framing:       framing,
		Host:          host,
		ContentLength: contentLength,
		KeepAlive:     keepAlive,
	}

	return Outcome{Status: StatusComplete, Consumed: consumed, Request: req}
}

func negotiateKeepAlive(version string, headers *Headers) bool {
	conn, has := headers.Get("Connection")
	conn = strings.TrimSpace(conn)
	if version == "HTTP/1.1" {
		return !(has && strings.EqualFold(conn, "close"))
	}
	return has && strings.EqualFold(conn, "keep-alive")
}
