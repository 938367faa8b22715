// Package response builds HTTP/1.1 response messages: status line,
// Date, Server, Content-Type, Content-Length, Connection, and body, per
// spec.md §4.5.
package response

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pmolzer/webserv/config"
)

// ServerIdentifier is the value of every response's Server header.
const ServerIdentifier = "Webserv/1.1"

// Message is a fully built HTTP/1.1 response ready to be framed onto a
// connection's write buffer.
type Message struct {
	Status    int
	Headers   []Header
	Body      []byte
	KeepAlive bool
}

// Header is one response header in emission order.
type Header struct {
	Name  string
	Value string
}

func (m *Message) addHeader(name, value string) {
	m.Headers = append(m.Headers, Header{Name: name, Value: value})
}

// Bytes serializes the message into wire format: status line, headers,
// blank line, body.
func (m *Message) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", m.Status, ReasonPhrase(m.Status))
	for _, h := range m.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("\r\n")
	out := make([]byte, 0, b.Len()+len(m.Body))
	out = append(out, b.String()...)
	out = append(out, m.Body...)
	return out
}

// httpDate formats now as an RFC 7231 IMF-fixdate, the Date header
// format spec.md §4.5 requires.
func httpDate(now time.Time) string {
	return now.UTC().Format("Mon, 02 Jan 2006 15:04:05") + " GMT"
}

func connectionValue(status int, keepAlive bool) string {
	if keepAlive && (status/100 == 2 || status/100 == 3) {
		return "keep-alive"
	}
	return "close"
}

func baseMessage(status int, contentType string, body []byte, keepAlive bool) *Message {
	m := &Message{Status: status, Body: body, KeepAlive: keepAlive}
	m.addHeader("Date", httpDate(time.Now()))
	m.addHeader("Server", ServerIdentifier)
	if contentType != "" {
		m.addHeader("Content-Type", contentType)
	}
	m.addHeader("Content-Length", strconv.Itoa(len(body)))
	m.addHeader("Connection", connectionValue(status, keepAlive))
	return m
}

// NewStatic builds a 200 (or caller-supplied status) response carrying
// body with the given Content-Type, for static file serving.
func NewStatic(status int, contentType string, body []byte, keepAlive bool) *Message {
	return baseMessage(status, contentType, body, keepAlive)
}

// NewRedirect builds a redirect response: status in [300,399], a
// Location header, and an empty body, per spec.md §4.5/§8 scenario 6.
func NewRedirect(status int, location string, keepAlive bool) *Message {
	m := &Message{Status: status, KeepAlive: keepAlive}
	m.addHeader("Date", httpDate(time.Now()))
	m.addHeader("Server", ServerIdentifier)
	m.addHeader("Location", location)
	m.addHeader("Content-Length", "0")
	m.addHeader("Connection", connectionValue(status, keepAlive))
	return m
}

// NewMethodNotAllowed builds a 405 response carrying the Allow header
// spec.md §4.4 requires.
func NewMethodNotAllowed(allowed []config.Method, keepAlive bool) *Message {
	m := NewError(405, "", keepAlive)
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	sort.Strings(names)
	m.addHeader("Allow", strings.Join(names, ", "))
	return m
}

// NewError builds an error response. If errorPagePath is non-empty and
// readable, its contents become the body; otherwise a minimal synthetic
// HTML page is emitted, per spec.md §4.5/§7.
func NewError(status int, errorPagePath string, keepAlive bool) *Message {
	var body []byte
	if errorPagePath != "" {
		if data, err := os.ReadFile(errorPagePath); err == nil {
			body = data
			return baseMessage(status, ContentTypeForPath(errorPagePath), body, keepAlive)
		}
	}
	body = syntheticErrorBody(status)
	return baseMessage(status, "text/html; charset=utf-8", body, keepAlive)
}

func syntheticErrorBody(status int) []byte {
	phrase := ReasonPhrase(status)
	return []byte(fmt.Sprintf(
		"<!DOCTYPE html>\n<html><head><title>%d %s</title></head>\n"+
			"<body><h1>%d %s</h1></body></html>\n",
		status, phrase, status, phrase))
}
