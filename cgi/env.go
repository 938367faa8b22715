package cgi

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pmolzer/webserv/httpparse"
)

// ServerSoftware is the value CGI scripts see in SERVER_SOFTWARE.
const ServerSoftware = "Webserv/1.1"

// Interpreter is the fixed invocation program for every CGI script,
// matching the original implementation's convention.
const Interpreter = "/usr/bin/env"

// BuildEnv assembles the CGI/1.1 environment for one invocation, per
// spec.md §4.6. contentLength is the decoded forwarded body length
// actually written to the child's stdin, not a pre-decode estimate —
// the bug spec.md §9 calls out to avoid.
func BuildEnv(req *httpparse.Request, scriptPath, serverName string, serverPort int, contentLength int) []string {
	env := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_PROTOCOL":   "HTTP/1.1",
		"SERVER_SOFTWARE":   ServerSoftware,
		"SERVER_NAME":       orDefault(serverName, "localhost"),
		"SERVER_PORT":       strconv.Itoa(serverPort),
		"REQUEST_METHOD":    req.Method,
		"REQUEST_URI":       req.Path,
		"SCRIPT_NAME":       req.Path,
		"SCRIPT_FILENAME":   scriptPath,
		"PATH_INFO":         req.Path,
		"PATH_TRANSLATED":   scriptPath,
		"CONTENT_LENGTH":    strconv.Itoa(contentLength),
		"AUTH_TYPE":         "",
		"PATH":              inheritedPath(),
	}
	if ct, ok := req.Headers.Get("Content-Type"); ok {
		env["CONTENT_TYPE"] = ct
	} else {
		env["CONTENT_TYPE"] = ""
	}

	req.Headers.Each(func(name, value string) {
		lower := strings.ToLower(name)
		if lower == "transfer-encoding" {
			return
		}
		envName := "HTTP_" + strings.ToUpper(strings.ReplaceAll(lower, "-", "_"))
		env[envName] = value
	})

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func inheritedPath() string {
	if p := os.Getenv("PATH"); p != "" {
		return p
	}
	return "/usr/bin:/bin:/usr/sbin:/sbin"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ScriptDir returns the directory the CGI child should chdir into.
func ScriptDir(scriptPath string) string {
	return path.Dir(scriptPath)
}
