package response

import "strings"

// mimeTypes maps a lowercase file extension (including the dot) to its
// Content-Type. Unrecognized extensions fall back to
// application/octet-stream.
var mimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".wasm": "application/wasm",
}

// textContentTypes get "; charset=utf-8" appended, per spec.md §4.5.
var textContentTypes = map[string]bool{
	"text/html":               true,
	"text/css":                true,
	"text/plain":              true,
	"text/csv":                true,
	"application/javascript":  true,
	"application/json":        true,
	"application/xml":         true,
}

// ContentTypeForPath derives a Content-Type header value from a
// filesystem path's extension.
func ContentTypeForPath(path string) string {
	ext := extOf(path)
	ctype, ok := mimeTypes[ext]
	if !ok {
		ctype = "application/octet-stream"
	}
	if textContentTypes[ctype] {
		return ctype + "; charset=utf-8"
	}
	return ctype
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if idx < 0 || idx < slash {
		return ""
	}
	return strings.ToLower(path[idx:])
}
