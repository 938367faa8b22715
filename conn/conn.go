// Package conn implements the per-connection state machine of
// spec.md §4.7: READING -> GENERATING_RESPONSE -> WRITING /
// CGI_WRITING_INPUT / CGI_READING_OUTPUT -> READING | CLOSING.
package conn

import (
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmolzer/webserv/cgi"
	"github.com/pmolzer/webserv/config"
	"github.com/pmolzer/webserv/httpparse"
	"github.com/pmolzer/webserv/ioprim"
	"github.com/pmolzer/webserv/response"
	"github.com/pmolzer/webserv/router"
)

// State is where a connection sits in the transition table of
// spec.md §4.7.
type State int

const (
	StateReading State = iota
	StateGeneratingResponse
	StateCGIWritingInput
	StateCGIReadingOutput
	StateWriting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "READING"
	case StateGeneratingResponse:
		return "GENERATING_RESPONSE"
	case StateCGIWritingInput:
		return "CGI_WRITING_INPUT"
	case StateCGIReadingOutput:
		return "CGI_READING_OUTPUT"
	case StateWriting:
		return "WRITING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// ReadChunk is how many bytes one read(2) attempt requests.
const ReadChunk = 64 * 1024

// IdleTimeout closes a connection that has sat without activity this
// long, bounding a slow-loris-style client that never completes a
// request or never starts its next one.
const IdleTimeout = 75 * time.Second

// Conn owns one accepted client socket end to end: its read/write
// buffers, its parser, the routing decision for its in-flight request,
// and (if applicable) its CGI session.
type Conn struct {
	ID   string
	FD   int
	Port int // the listening port this connection was accepted on

	State State

	parser   httpparse.Parser
	readBuf  []byte
	peerDone bool // peer half-closed its write side

	writeBuf []byte
	writeOff int

	keepAlive bool

	cgiSession *cgi.Session
	// cgiInputFD/cgiOutputFD mirror the active (or just-finished)
	// session's pipe fds independently of cgiSession itself, so the
	// event loop can still find and drop their epoll registrations
	// after failCGI/finishCGI has already nilled cgiSession.
	cgiInputFD  int
	cgiOutputFD int

	reqMethod string
	reqPath   string

	lastActivity time.Time

	tree *config.Tree
	log  *zap.Logger
}

// New wraps an accepted socket fd.
func New(fd, port int, tree *config.Tree, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		ID:           uuid.NewString(),
		FD:           fd,
		Port:         port,
		State:        StateReading,
		cgiInputFD:   -1,
		cgiOutputFD:  -1,
		tree:         tree,
		log:          log,
		lastActivity: time.Now(),
	}
}

// setState transitions to s, logging the move at debug level per
// spec.md §4.7's transition table.
func (c *Conn) setState(s State) {
	if s != c.State {
		c.log.Debug("connection state transition",
			zap.String("id", c.ID),
			zap.String("from", c.State.String()),
			zap.String("to", s.String()))
	}
	c.State = s
}

// Transition lets callers outside this package (the event loop's own
// timer sweep) move a connection through the same logged path as every
// in-package transition.
func (c *Conn) Transition(s State) {
	c.setState(s)
}

// IdleExpired reports whether this connection has been idle longer
// than IdleTimeout, per spec.md §5.
func (c *Conn) IdleExpired(now time.Time) bool {
	return now.Sub(c.lastActivity) > IdleTimeout
}

// CGIInputFD and CGIOutputFD expose the current (or most recently
// closed) CGI session's pipe fds to the event loop for epoll
// registration bookkeeping, or -1 once ForgetCGIFDs has been called.
// These deliberately track independently of cgiSession, which may
// already be nil by the time the loop reconciles a connection that
// just left a CGI state (failCGI/finishCGI nil it immediately).
func (c *Conn) CGIInputFD() int {
	return c.cgiInputFD
}

func (c *Conn) CGIOutputFD() int {
	return c.cgiOutputFD
}

// ForgetCGIFDs clears the last-known CGI pipe fds once the event loop
// has dropped their epoll registrations, so a reused fd number cannot
// collide with a stale entry on a later session.
func (c *Conn) ForgetCGIFDs() {
	c.cgiInputFD = -1
	c.cgiOutputFD = -1
}

// OnReadable is called when the event loop reports the socket fd
// readable while State is StateReading.
func (c *Conn) OnReadable() {
	buf := make([]byte, ReadChunk)
	res := ioprim.Recv(c.FD, buf)
	c.lastActivity = time.Now()

	switch res.Outcome {
	case ioprim.OK:
		c.readBuf = append(c.readBuf, buf[:res.N]...)
		c.tryParse(false)
	case ioprim.Closed:
		c.peerDone = true
		if len(c.readBuf) == 0 {
			c.setState(StateClosing)
			return
		}
		c.tryParse(true)
	case ioprim.WouldBlock:
		// nothing to do; wait for the next readiness event
	case ioprim.Error:
		c.log.Warn("read error", zap.String("id", c.ID), zap.Error(res.Err))
		c.setState(StateClosing)
	}
}

func (c *Conn) tryParse(final bool) {
	var out httpparse.Outcome
	if final {
		out = c.parser.ParseFinal(c.readBuf)
	} else {
		out = c.parser.Parse(c.readBuf)
	}

	switch out.Status {
	case httpparse.StatusIncomplete:
		if final {
			// half-close with a truly empty/partial buffer that will
			// never complete: give up on this connection.
			c.setState(StateClosing)
		}
		return
	case httpparse.StatusFailed:
		c.setState(StateGeneratingResponse)
		c.buildParseFailureResponse(out.Err)
		c.setState(StateWriting)
	case httpparse.StatusComplete:
		c.readBuf = c.readBuf[out.Consumed:]
		c.logRequest(out.Request)
		c.setState(StateGeneratingResponse)
		c.generateResponse(out.Request)
		// generateResponse's non-CGI branches only build into writeBuf
		// via setWriteBuffer and never touch State themselves; the CGI
		// branch (startCGI) advances to StateCGIWritingInput on its
		// own, so only move to StateWriting when nothing else already
		// claimed the transition.
		if c.State == StateGeneratingResponse {
			c.setState(StateWriting)
		}
	}
}

func (c *Conn) logRequest(req *httpparse.Request) {
	c.reqMethod = req.Method
	c.reqPath = req.Path
	c.log.Debug("parsed request",
		zap.String("id", c.ID),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("version", req.Version))
}

func (c *Conn) buildParseFailureResponse(perr *httpparse.Error) {
	status := perr.Kind.SuggestedStatus(false)
	msg := response.NewError(status, "", false)
	c.setWriteBuffer(msg)
}

func (c *Conn) setWriteBuffer(msg *response.Message) {
	c.writeBuf = msg.Bytes()
	c.writeOff = 0
	c.keepAlive = msg.KeepAlive && (msg.Status/100 == 2 || msg.Status/100 == 3)
	c.log.Debug("built response",
		zap.String("id", c.ID),
		zap.String("method", c.reqMethod),
		zap.String("path", c.reqPath),
		zap.Int("status", msg.Status),
		zap.Int("bytes", len(c.writeBuf)))
}

// generateResponse implements the routing, body-size, filesystem, and
// CGI-eligibility decisions of spec.md §4.4/§4.5/§4.6. The CGI branch
// moves to StateCGIWritingInput itself; every other branch only fills
// the write buffer and leaves the move to StateWriting to tryParse.
func (c *Conn) generateResponse(req *httpparse.Request) {
	vhost := router.SelectVHost(c.tree, c.Port, req.Host)
	if vhost == nil {
		c.writeError(400, "", req.KeepAlive)
		return
	}

	if req.ContentLength >= 0 && req.ContentLength > vhost.ClientMaxBodySize {
		c.writeError(413, errorPageFor(vhost, 413), req.KeepAlive)
		return
	}

	decision := router.Route(vhost, req.Path, config.Method(req.Method))

	if decision.IsRedirect {
		c.setWriteBuffer(response.NewRedirect(decision.RedirectStatus, decision.RedirectURL, req.KeepAlive))
		return
	}

	if !decision.MethodAllowed {
		c.setWriteBuffer(response.NewMethodNotAllowed(decision.AllowedMethods, req.KeepAlive))
		return
	}

	loc := decision.Location
	if loc != nil && loc.CGIPass && cgi.Eligible(decision.FSPath, loc.CGIExtension) {
		c.startCGI(req, vhost, decision)
		return
	}

	c.serveFilesystemTarget(req, vhost, decision)
}

func (c *Conn) writeError(status int, page string, keepAlive bool) {
	c.setWriteBuffer(response.NewError(status, page, keepAlive))
}

func errorPageFor(vhost *config.ServerConfig, status int) string {
	page, _ := vhost.ErrorPage(status)
	return page
}

func (c *Conn) serveFilesystemTarget(req *httpparse.Request, vhost *config.ServerConfig, decision router.Decision) {
	info, err := os.Stat(decision.FSPath)
	if err != nil {
		c.writeError(404, errorPageFor(vhost, 404), req.KeepAlive)
		return
	}

	if info.IsDir() {
		c.serveDirectory(req, vhost, decision)
		return
	}

	data, err := os.ReadFile(decision.FSPath)
	if err != nil {
		c.writeError(403, errorPageFor(vhost, 403), req.KeepAlive)
		return
	}

	switch req.Method {
	case "DELETE":
		if err := os.Remove(decision.FSPath); err != nil {
			c.writeError(403, errorPageFor(vhost, 403), req.KeepAlive)
			return
		}
		c.setWriteBuffer(response.NewStatic(204, "", nil, req.KeepAlive))
	default:
		c.setWriteBuffer(response.NewStatic(200, response.ContentTypeForPath(decision.FSPath), data, req.KeepAlive))
	}
}

func (c *Conn) serveDirectory(req *httpparse.Request, vhost *config.ServerConfig, decision router.Decision) {
	index := decision.Location.EffectiveIndex(vhost)
	indexPath := path.Join(decision.FSPath, index)
	if info, err := os.Stat(indexPath); err == nil && !info.IsDir() {
		data, err := os.ReadFile(indexPath)
		if err != nil {
			c.writeError(403, errorPageFor(vhost, 403), req.KeepAlive)
			return
		}
		c.setWriteBuffer(response.NewStatic(200, response.ContentTypeForPath(indexPath), data, req.KeepAlive))
		return
	}

	autoindexOn := decision.Location != nil && decision.Location.Autoindex
	if !autoindexOn {
		c.writeError(404, errorPageFor(vhost, 404), req.KeepAlive)
		return
	}
	msg, err := response.NewAutoindex(req.Path, decision.FSPath, req.KeepAlive)
	if err != nil {
		c.writeError(403, errorPageFor(vhost, 403), req.KeepAlive)
		return
	}
	c.setWriteBuffer(msg)
}

func (c *Conn) startCGI(req *httpparse.Request, vhost *config.ServerConfig, decision router.Decision) {
	env := buildCGIEnv(req, decision.FSPath, vhost, c.Port)
	sess, err := cgi.Start(decision.FSPath, env, req.Body, c.log)
	if err != nil {
		c.writeError(500, errorPageFor(vhost, 500), req.KeepAlive)
		return
	}
	c.cgiSession = sess
	c.cgiInputFD = sess.InputFD
	c.cgiOutputFD = sess.OutputFD
	c.keepAlive = req.KeepAlive
	c.log.Debug("cgi session started",
		zap.String("id", c.ID), zap.String("cgi_id", sess.ID), zap.Int("pid", sess.Pid))
	c.setState(StateCGIWritingInput)
}

// OnCGIInputWritable drives the CGI_WRITING_INPUT state.
func (c *Conn) OnCGIInputWritable() {
	done, outcome := c.cgiSession.WriteInput()
	if outcome == ioprim.Error {
		c.failCGI()
		return
	}
	if done {
		c.cgiSession.CloseInput()
		c.setState(StateCGIReadingOutput)
	}
}

// OnCGIOutputReadable drives the CGI_READING_OUTPUT state.
func (c *Conn) OnCGIOutputReadable() {
	outcome := c.cgiSession.ReadOutput()
	switch outcome {
	case ioprim.Error:
		c.failCGI()
	case ioprim.Closed:
		c.finishCGI()
	case ioprim.WouldBlock, ioprim.OK:
		// keep waiting for more output or the eventual Closed
	}
}

// CheckCGITimeout is polled by the event loop against its own clock;
// it kills and fails the session if the fixed deadline has passed.
func (c *Conn) CheckCGITimeout(now time.Time) {
	if c.cgiSession != nil && c.cgiSession.Expired(now) {
		c.cgiSession.Kill()
		c.failCGI()
	}
}

func (c *Conn) failCGI() {
	c.log.Warn("cgi session failed", zap.String("id", c.ID), zap.String("cgi_id", c.cgiSession.ID))
	c.cgiSession.Reap()
	c.cgiSession.Close()
	c.setWriteBuffer(response.NewError(500, "", c.keepAlive))
	c.cgiSession = nil
	c.setState(StateWriting)
}

func (c *Conn) finishCGI() {
	exitedCleanly := c.cgiSession.Reap()
	output := c.cgiSession.Output()
	c.log.Debug("cgi session finished",
		zap.String("id", c.ID), zap.String("cgi_id", c.cgiSession.ID),
		zap.Bool("exited_cleanly", exitedCleanly), zap.Int("output_bytes", len(output)))
	c.cgiSession.Close()

	if !exitedCleanly && len(output) == 0 {
		c.setWriteBuffer(response.NewError(500, "", c.keepAlive))
	} else {
		c.setWriteBuffer(response.NewFromCGIOutput(output, c.keepAlive))
	}
	c.cgiSession = nil
	c.setState(StateWriting)
}

// OnWritable is called when the event loop reports the socket fd
// writable while State is StateWriting.
func (c *Conn) OnWritable() {
	res := ioprim.Send(c.FD, c.writeBuf[c.writeOff:])
	c.lastActivity = time.Now()

	switch res.Outcome {
	case ioprim.OK:
		c.writeOff += res.N
		if c.writeOff >= len(c.writeBuf) {
			c.afterWriteComplete()
		}
	case ioprim.WouldBlock:
		// wait for the next writable event
	default:
		c.log.Warn("write error", zap.String("id", c.ID), zap.Error(res.Err))
		c.setState(StateClosing)
	}
}

func (c *Conn) afterWriteComplete() {
	c.writeBuf = nil
	c.writeOff = 0
	if c.keepAlive && !c.peerDone {
		c.parser.Reset()
		c.setState(StateReading)
		if len(c.readBuf) > 0 {
			// pipelined bytes already buffered: try parsing immediately
			// instead of waiting for another readiness event.
			c.tryParse(false)
		}
		return
	}
	c.setState(StateClosing)
}

// Close releases every descriptor this connection still owns.
func (c *Conn) Close() {
	if c.cgiSession != nil {
		c.cgiSession.Kill()
		c.cgiSession.Reap()
		c.cgiSession.Close()
		c.cgiSession = nil
	}
	ioprim.CloseQuietly(c.FD)
}

func buildCGIEnv(req *httpparse.Request, scriptPath string, vhost *config.ServerConfig, port int) []string {
	return cgiEnvBuilder(req, scriptPath, vhost.ServerName, port, len(req.Body))
}

// cgiEnvBuilder is a seam so tests can substitute a fake without
// pulling the cgi package's process-spawning code into this package's
// unit tests.
var cgiEnvBuilder = cgi.BuildEnv
