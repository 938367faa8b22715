package response

import (
	"bytes"
	"strconv"
)

// NewFromCGIOutput turns the raw bytes collected from a CGI script's
// stdout into a response, per spec.md §4.6: output starting with
// "HTTP/" is read as a complete response whose status code,
// Content-Type and body are re-framed by parseCGIRawResponse; anything
// else is taken as a body and wrapped in a 200.
func NewFromCGIOutput(raw []byte, keepAlive bool) *Message {
	if bytes.HasPrefix(raw, []byte("HTTP/")) {
		return parseCGIRawResponse(raw, keepAlive)
	}
	return wrapCGIBodyOutput(raw, keepAlive)
}

// wrapCGIBodyOutput splits a CGI Content-Type header (if the script
// emitted one as a leading "Content-Type: ...\r\n\r\n" block before the
// body, the common CGI/1.1 convention for scripts that don't emit a
// full status line) from the body, defaulting to text/html.
func wrapCGIBodyOutput(raw []byte, keepAlive bool) *Message {
	contentType := "text/html; charset=utf-8"
	body := raw
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		headerBlock := raw[:idx]
		if bytes.HasPrefix(bytes.ToLower(headerBlock), []byte("content-type:")) {
			colon := bytes.IndexByte(headerBlock, ':')
			contentType = string(bytes.TrimSpace(headerBlock[colon+1:]))
			body = raw[idx+4:]
		}
	}
	return baseMessage(200, contentType, body, keepAlive)
}

// parseCGIRawResponse keeps a script-emitted status code, Content-Type
// and body, and emits them with this server's own Date, Server,
// Content-Length and Connection headers; Content-Length is recomputed
// from the forwarded body so the two can never disagree. Any other
// header the script wrote is not forwarded.
func parseCGIRawResponse(raw []byte, keepAlive bool) *Message {
	idx := bytes.Index(raw, []byte("\r\n"))
	if idx < 0 {
		return wrapCGIBodyOutput(raw, keepAlive)
	}
	statusLine := raw[:idx]
	rest := raw[idx+2:]
	status := 200
	parts := bytes.SplitN(statusLine, []byte(" "), 3)
	if len(parts) >= 2 {
		if n, err := strconv.Atoi(string(parts[1])); err == nil {
			status = n
		}
	}

	headerEnd := bytes.Index(rest, []byte("\r\n\r\n"))
	body := rest
	contentType := "text/html; charset=utf-8"
	if headerEnd >= 0 {
		headerBlock := rest[:headerEnd]
		body = rest[headerEnd+4:]
		for _, line := range bytes.Split(headerBlock, []byte("\r\n")) {
			if colon := bytes.IndexByte(line, ':'); colon > 0 {
				name := string(bytes.TrimSpace(line[:colon]))
				if bytes.EqualFold([]byte(name), []byte("content-type")) {
					contentType = string(bytes.TrimSpace(line[colon+1:]))
				}
			}
		}
	}
	return baseMessage(status, contentType, body, keepAlive)
}
