package cgi

import (
	"strings"
	"testing"

	"github.com/pmolzer/webserv/httpparse"
)

func parseRequest(t *testing.T, raw string) *httpparse.Request {
	t.Helper()
	p := &httpparse.Parser{}
	out := p.Parse([]byte(raw))
	if out.Status != httpparse.StatusComplete {
		t.Fatalf("failed to parse fixture request: %+v", out)
	}
	return out.Request
}

func TestBuildEnvCoreVariables(t *testing.T) {
	req := parseRequest(t, "POST /cgi-bin/echo.py HTTP/1.1\r\nHost: s\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello")
	env := BuildEnv(req, "/var/www/cgi-bin/echo.py", "s", 8080, len(req.Body))

	want := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_PROTOCOL":   "HTTP/1.1",
		"REQUEST_METHOD":    "POST",
		"SCRIPT_FILENAME":   "/var/www/cgi-bin/echo.py",
		"CONTENT_LENGTH":    "5",
		"CONTENT_TYPE":      "text/plain",
		"SERVER_NAME":       "s",
		"SERVER_PORT":       "8080",
		"HTTP_HOST":         "s",
	}
	for k, v := range want {
		if !containsVar(env, k, v) {
			t.Errorf("expected env to contain %s=%s, got %v", k, v, env)
		}
	}
}

func TestBuildEnvExcludesTransferEncoding(t *testing.T) {
	req := parseRequest(t, "POST /x.py HTTP/1.1\r\nHost: s\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n")
	env := BuildEnv(req, "/var/www/x.py", "s", 8080, len(req.Body))
	for _, kv := range env {
		if strings.HasPrefix(kv, "HTTP_TRANSFER_ENCODING=") {
			t.Fatalf("Transfer-Encoding must not be exported as an env var, got %v", env)
		}
	}
}

func containsVar(env []string, name, value string) bool {
	for _, kv := range env {
		if kv == name+"="+value {
			return true
		}
	}
	return false
}
