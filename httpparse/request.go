package httpparse

// Framing names how the parser determined where the request body ends,
// per spec.md §4.3.
type Framing int

const (
	FramingNone    Framing = iota // no body, length 0
	FramingFixed                  // Content-Length
	FramingChunked                // Transfer-Encoding: chunked
)

// Request is a fully decoded HTTP/1.1 request.
type Request struct {
	Method  string
	Path    string
	Query   string
	Version string
	Headers *Headers
	Body    []byte
	Framing Framing

	// Host and ContentLength are pulled out of Headers for convenience;
	// ContentLength is the declared length for FramingFixed, the decoded
	// body length for FramingChunked, and 0 for FramingNone.
	Host          string
	ContentLength int64

	// KeepAlive reflects the negotiated Connection semantics: HTTP/1.1
	// defaults to keep-alive unless "Connection: close" is present;
	// HTTP/1.0 defaults to close unless "Connection: keep-alive" is
	// present, per spec.md §5.
	KeepAlive bool
}
