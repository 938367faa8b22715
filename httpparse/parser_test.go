package httpparse

import "testing"

func mustComplete(t *testing.T, raw string) (*Request, Outcome) {
	t.Helper()
	p := &Parser{}
	out := p.Parse([]byte(raw))
	if out.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", out.Status, out.Err)
	}
	return out.Request, out
}

func TestParseSimpleGet(t *testing.T) {
	req, out := mustComplete(t, "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	if req.Method != "GET" || req.Path != "/index.html" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Host != "example.com" {
		t.Fatalf("expected Host header extracted, got %q", req.Host)
	}
	if !req.KeepAlive {
		t.Fatalf("HTTP/1.1 with no Connection header should default to keep-alive")
	}
	if out.Consumed != len("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n") {
		t.Fatalf("unexpected consumed byte count: %d", out.Consumed)
	}
}

func TestParseConnectionClose(t *testing.T) {
	req, _ := mustComplete(t, "GET / HTTP/1.1\r\nHost: a\r\nConnection: close\r\n\r\n")
	if req.KeepAlive {
		t.Fatalf("Connection: close should disable keep-alive")
	}
}

func TestParseHTTP10DefaultsToClose(t *testing.T) {
	req, _ := mustComplete(t, "GET / HTTP/1.0\r\nHost: a\r\n\r\n")
	if req.KeepAlive {
		t.Fatalf("HTTP/1.0 with no Connection header should default to close")
	}
	req, _ = mustComplete(t, "GET / HTTP/1.0\r\nHost: a\r\nConnection: keep-alive\r\n\r\n")
	if !req.KeepAlive {
		t.Fatalf("HTTP/1.0 with Connection: keep-alive should stay open")
	}
}

func TestParseIncompleteHeaders(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("GET / HTTP/1.1\r\nHost: a\r\n"))
	if out.Status != StatusIncomplete {
		t.Fatalf("expected StatusIncomplete, got %v", out.Status)
	}
}

func TestParseFixedLengthBody(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhello"
	req, out := mustComplete(t, raw)
	if string(req.Body) != "hello" {
		t.Fatalf("unexpected body: %q", req.Body)
	}
	if out.Consumed != len(raw) {
		t.Fatalf("expected full buffer consumed, got %d of %d", out.Consumed, len(raw))
	}
}

func TestParseFixedLengthBodyIncomplete(t *testing.T) {
	p := &Parser{}
	raw := "POST /submit HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhel"
	out := p.Parse([]byte(raw))
	if out.Status != StatusIncomplete {
		t.Fatalf("expected StatusIncomplete for short body, got %v", out.Status)
	}
}

func TestParseFinalShortBodyIsFailure(t *testing.T) {
	p := &Parser{}
	raw := "POST /submit HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\n\r\nhel"
	out := p.ParseFinal([]byte(raw))
	if out.Status != StatusFailed || out.Err == nil || out.Err.Kind != KindShortBody {
		t.Fatalf("expected SHORT_BODY failure on half-close, got %+v", out)
	}
}

func TestParsePipelinedRequestLeavesRemainder(t *testing.T) {
	first := "GET /a HTTP/1.1\r\nHost: a\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: a\r\n\r\n"
	p := &Parser{}
	out := p.Parse([]byte(first + second))
	if out.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v", out.Status)
	}
	if out.Consumed != len(first) {
		t.Fatalf("expected parser to consume only the first request, consumed=%d want=%d", out.Consumed, len(first))
	}
}

func TestParseChunkedBody(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	req, out := mustComplete(t, raw)
	if string(req.Body) != "Wikipedia" {
		t.Fatalf("unexpected chunked body: %q", req.Body)
	}
	if req.Framing != FramingChunked {
		t.Fatalf("expected FramingChunked")
	}
	if out.Consumed != len(raw) {
		t.Fatalf("expected full buffer consumed, got %d of %d", out.Consumed, len(raw))
	}
}

func TestParseChunkedWithTrailer(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nfoo\r\n0\r\nX-Checksum: abc\r\n\r\n"
	req, _ := mustComplete(t, raw)
	if string(req.Body) != "foo" {
		t.Fatalf("unexpected body: %q", req.Body)
	}
	if v, ok := req.Headers.Get("X-Checksum"); !ok || v != "abc" {
		t.Fatalf("expected trailer header merged in, got %q ok=%v", v, ok)
	}
}

func TestParseChunkedIncomplete(t *testing.T) {
	p := &Parser{}
	raw := "POST /x HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWik"
	out := p.Parse([]byte(raw))
	if out.Status != StatusIncomplete {
		t.Fatalf("expected StatusIncomplete, got %v", out.Status)
	}
}

func TestParseRejectsDirectoryTraversal(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("GET /../etc/passwd HTTP/1.1\r\nHost: a\r\n\r\n"))
	if out.Status != StatusFailed || out.Err.Kind != KindUnsafePath {
		t.Fatalf("expected UNSAFE_PATH failure, got %+v", out)
	}
}

func TestParseRejectsUnsupportedMethod(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("PUT /x HTTP/1.1\r\nHost: a\r\n\r\n"))
	if out.Status != StatusFailed || out.Err.Kind != KindUnsupportedMethod {
		t.Fatalf("expected UNSUPPORTED_METHOD failure, got %+v", out)
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("GET /x HTTP/2.0\r\nHost: a\r\n\r\n"))
	if out.Status != StatusFailed || out.Err.Kind != KindUnsupportedVersion {
		t.Fatalf("expected UNSUPPORTED_VERSION failure, got %+v", out)
	}
}

func TestParseRejectsMalformedContentLength(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("POST /x HTTP/1.1\r\nHost: a\r\nContent-Length: 4x\r\n\r\nabcd"))
	if out.Status != StatusFailed || out.Err.Kind != KindBadContentLength {
		t.Fatalf("expected BAD_CONTENT_LENGTH failure, got %+v", out)
	}
}

func TestParseRejectsEmptyRequestLine(t *testing.T) {
	p := &Parser{}
	out := p.Parse([]byte("\r\n\r\n"))
	if out.Status != StatusFailed || out.Err.Kind != KindEmptyLine {
		t.Fatalf("expected EMPTY_LINE failure, got %+v", out)
	}
}

func TestParseDuplicateHeaderOverwrites(t *testing.T) {
	req, _ := mustComplete(t, "GET / HTTP/1.1\r\nHost: a\r\nX-Foo: 1\r\nX-Foo: 2\r\n\r\n")
	v, ok := req.Headers.Get("X-Foo")
	if !ok || v != "2" {
		t.Fatalf("expected duplicate header to be overwritten with last value, got %q", v)
	}
}

func TestParseHeaderLineAt8192BoundaryAccepted(t *testing.T) {
	name := "X-Pad: "
	pad := make([]byte, maxHeaderLineLen-len(name))
	for i := range pad {
		pad[i] = 'a'
	}
	line := name + string(pad)
	if len(line) != maxHeaderLineLen {
		t.Fatalf("test construction error: line length %d, want %d", len(line), maxHeaderLineLen)
	}
	raw := "GET / HTTP/1.1\r\nHost: a\r\n" + line + "\r\n\r\n"
	req, _ := mustComplete(t, raw)
	if v, ok := req.Headers.Get("X-Pad"); !ok || len(v) != len(pad) {
		t.Fatalf("expected exactly-8192-byte header line to be accepted")
	}
}

func TestParseHeaderLineOver8192Rejected(t *testing.T) {
	name := "X-Pad: "
	pad := make([]byte, maxHeaderLineLen-len(name)+1)
	for i := range pad {
		pad[i] = 'a'
	}
	line := name + string(pad)
	raw := "GET / HTTP/1.1\r\nHost: a\r\n" + line + "\r\n\r\n"
	p := &Parser{}
	out := p.Parse([]byte(raw))
	if out.Status != StatusFailed || out.Err.Kind != KindMalformedHeader {
		t.Fatalf("expected MALFORMED_HEADER failure for oversized header line, got %+v", out)
	}
}

func TestParseResetIsIdempotent(t *testing.T) {
	p := &Parser{}
	raw := "GET / HTTP/1.1\r\nHost: a\r\n\r\n"
	first := p.Parse([]byte(raw))
	p.Reset()
	second := p.Parse([]byte(raw))
	if first.Status != second.Status || first.Consumed != second.Consumed {
		t.Fatalf("parser reset changed outcome: %+v vs %+v", first, second)
	}
}

func TestParseQueryStringSeparatedFromPath(t *testing.T) {
	req, _ := mustComplete(t, "GET /search?q=go HTTP/1.1\r\nHost: a\r\n\r\n")
	if req.Path != "/search" || req.Query != "q=go" {
		t.Fatalf("unexpected path/query split: path=%q query=%q", req.Path, req.Query)
	}
}
