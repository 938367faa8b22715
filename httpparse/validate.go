package httpparse

import "strings"

var validMethods = map[string]bool{"GET": true, "POST": true, "DELETE": true}

var validVersions = map[string]bool{"HTTP/1.0": true, "HTTP/1.1": true}

func isValidMethod(m string) bool { return validMethods[m] }

func isValidVersion(v string) bool { return validVersions[v] }

// isValidPath rejects directory traversal and non-printable or
// dangerous characters, matching the original implementation's checks
// byte for byte.
func isValidPath(path string) bool {
	if path == "" || path[0] != '/' {
		return false
	}
	if containsDirectoryTraversal(path) {
		return false
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c < 32 || c > 126 {
			return false
		}
		switch c {
		case '<', '>', '"', '|', '^', '`', '{', '}':
			return false
		}
	}
	return true
}

func containsDirectoryTraversal(path string) bool {
	return strings.Contains(path, "../") ||
		strings.Contains(path, "..\\") ||
		strings.Contains(path, "/..") ||
		strings.Contains(path, "\\..") ||
		path == ".." ||
		strings.Contains(path, "/../") ||
		strings.Contains(path, "\\..\\")
}

const tokenSeparators = "()<>@,;:\\\"/[]?={} \t"

// isToken validates an HTTP token: 1*<any CHAR except CTLs or
// separators>, per RFC 2616 §2.2.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 31 || c >= 127 {
			return false
		}
		if strings.IndexByte(tokenSeparators, c) >= 0 {
			return false
		}
	}
	return true
}

// isValidHeaderValue rejects CR, LF, NUL, and control characters other
// than TAB.
func isValidHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0 {
			return false
		}
		if (c <= 31 || c == 127) && c != '\t' {
			return false
		}
	}
	return true
}
