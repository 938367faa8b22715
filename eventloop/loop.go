// Package eventloop drives the single epoll instance that multiplexes
// listening sockets, client connections, and CGI pipes, per spec.md
// §4.8.
package eventloop

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/pmolzer/webserv/cgi"
	"github.com/pmolzer/webserv/conn"
	"github.com/pmolzer/webserv/config"
	"github.com/pmolzer/webserv/ioprim"
)

// pollTimeout is the coarse upper bound spec.md §4.8 allows between
// ticks when no connection or CGI deadline is sooner.
const pollTimeout = 1 * time.Second

// maxEvents bounds one epoll_wait batch.
const maxEvents = 256

type fdKind int

const (
	kindListener fdKind = iota
	kindClient
	kindCGIInput
	kindCGIOutput
)

type registration struct {
	kind fdKind
	c    *conn.Conn
	port int // only meaningful for kindListener
}

// Loop owns the epoll fd and every registration on it.
type Loop struct {
	epfd  int
	regs  map[int]*registration
	conns map[string]*conn.Conn

	tree *config.Tree
	log  *zap.Logger

	stop *atomic.Bool
}

// New creates a Loop bound to tree; listening sockets are registered
// on it afterwards with AddListener.
func New(tree *config.Tree, log *zap.Logger, stop *atomic.Bool) (*Loop, error) {
	if log == nil {
		log = zap.NewNop()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Loop{
		epfd:  epfd,
		regs:  make(map[int]*registration),
		conns: make(map[string]*conn.Conn),
		tree:  tree,
		log:   log,
		stop:  stop,
	}, nil
}

// AddListener registers an already-bound, already-listening,
// non-blocking socket fd for this port.
func (l *Loop) AddListener(fd, port int) error {
	l.regs[fd] = &registration{kind: kindListener, port: port}
	return l.epollAdd(fd, unix.EPOLLIN)
}

func (l *Loop) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (l *Loop) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (l *Loop) epollDel(fd int) {
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run drives the loop until stop is set or a fatal epoll error occurs.
// On return every listening socket and connection has been closed.
func (l *Loop) Run() error {
	events := make([]unix.EpollEvent, maxEvents)
	for !l.stop.Load() {
		n, err := unix.EpollWait(l.epfd, events, int(l.nextTimeout().Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.log.Warn("epoll_wait failed", zap.Error(err))
			l.shutdown()
			return err
		}
		for i := 0; i < n; i++ {
			l.dispatch(int(events[i].Fd), events[i].Events)
		}
		l.sweepTimers()
	}
	l.shutdown()
	return nil
}

// nextTimeout returns the epoll_wait timeout for the next tick. It
// always returns the coarse upper bound and relies on sweepTimers to
// catch expirations at that cadence; the earliest per-connection idle
// or per-CGI deadline is not computed, so connections and CGI sessions
// are not woken early by a shorter timeout.
func (l *Loop) nextTimeout() time.Duration {
	return pollTimeout
}

func (l *Loop) dispatch(fd int, events uint32) {
	reg, ok := l.regs[fd]
	if !ok {
		return
	}

	switch reg.kind {
	case kindListener:
		l.acceptLoop(fd, reg.port)
	case kindClient:
		l.dispatchClient(fd, reg, events)
	case kindCGIInput:
		l.dispatchCGIInput(fd, reg)
	case kindCGIOutput:
		l.dispatchCGIOutput(fd, reg)
	}
}

func (l *Loop) acceptLoop(listenFD, port int) {
	for {
		fd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return // WouldBlock or transient accept error: stop this batch
		}
		c := conn.New(fd, port, l.tree, l.log)
		l.conns[c.ID] = c
		l.regs[fd] = &registration{kind: kindClient, c: c}
		l.epollAdd(fd, unix.EPOLLIN)
		l.log.Debug("accepted connection", zap.String("id", c.ID), zap.Int("port", port), zap.Int("fd", fd))
	}
}

func (l *Loop) dispatchClient(fd int, reg *registration, events uint32) {
	c := reg.c
	switch c.State {
	case conn.StateReading:
		if events&unix.EPOLLIN != 0 {
			c.OnReadable()
		}
	case conn.StateWriting:
		if events&unix.EPOLLOUT != 0 {
			c.OnWritable()
		}
	}
	l.reconcile(fd, c)
}

func (l *Loop) dispatchCGIInput(fd int, reg *registration) {
	c := reg.c
	c.OnCGIInputWritable()
	l.reconcile(fd, c)
}

func (l *Loop) dispatchCGIOutput(fd int, reg *registration) {
	c := reg.c
	c.OnCGIOutputReadable()
	l.reconcile(fd, c)
}

// reconcile brings this connection's epoll registrations in line with
// its current state after handling one event, per the transition
// table of spec.md §4.7.
func (l *Loop) reconcile(triggeringFD int, c *conn.Conn) {
	switch c.State {
	case conn.StateReading:
		l.ensureOnly(c.FD, kindClient, c, unix.EPOLLIN)
	case conn.StateWriting:
		l.ensureOnly(c.FD, kindClient, c, unix.EPOLLOUT)
	case conn.StateCGIWritingInput:
		l.ensureCGIInput(c)
	case conn.StateCGIReadingOutput:
		l.ensureCGIOutput(c)
	case conn.StateClosing:
		l.closeConn(c)
	}
}

// ensureOnly makes fd the connection's only registration (the client
// socket), dropping any leftover CGI pipe registrations.
func (l *Loop) ensureOnly(fd int, kind fdKind, c *conn.Conn, events uint32) {
	l.dropCGIRegs(c)
	if reg, ok := l.regs[fd]; ok && reg.kind == kind {
		l.epollMod(fd, events)
		return
	}
	l.regs[fd] = &registration{kind: kind, c: c}
	l.epollAdd(fd, events)
}

func (l *Loop) ensureCGIInput(c *conn.Conn) {
	l.epollDel(c.FD)
	delete(l.regs, c.FD)
	fd := c.CGIInputFD()
	if _, ok := l.regs[fd]; !ok {
		l.regs[fd] = &registration{kind: kindCGIInput, c: c}
		l.epollAdd(fd, unix.EPOLLOUT)
	}
}

func (l *Loop) ensureCGIOutput(c *conn.Conn) {
	if inFD := c.CGIInputFD(); inFD >= 0 {
		l.epollDel(inFD)
		delete(l.regs, inFD)
	}
	fd := c.CGIOutputFD()
	if _, ok := l.regs[fd]; !ok {
		l.regs[fd] = &registration{kind: kindCGIOutput, c: c}
		l.epollAdd(fd, unix.EPOLLIN)
	}
}

func (l *Loop) dropCGIRegs(c *conn.Conn) {
	if fd := c.CGIInputFD(); fd >= 0 {
		l.epollDel(fd)
		delete(l.regs, fd)
	}
	if fd := c.CGIOutputFD(); fd >= 0 {
		l.epollDel(fd)
		delete(l.regs, fd)
	}
	c.ForgetCGIFDs()
}

func (l *Loop) closeConn(c *conn.Conn) {
	l.dropCGIRegs(c)
	l.epollDel(c.FD)
	delete(l.regs, c.FD)
	delete(l.conns, c.ID)
	l.log.Debug("closing connection", zap.String("id", c.ID))
	c.Close()
}

// sweepTimers enforces idle and CGI-deadline expirations once per
// tick, per spec.md §4.8.
func (l *Loop) sweepTimers() {
	cgi.ReapPending()
	now := time.Now()
	for _, c := range l.conns {
		c.CheckCGITimeout(now)
		if c.State == conn.StateReading && c.IdleExpired(now) {
			l.log.Debug("idle timeout", zap.String("id", c.ID))
			c.Transition(conn.StateClosing)
		}
		if c.State == conn.StateClosing {
			l.closeConn(c)
		} else {
			l.reconcile(-1, c)
		}
	}
}

// shutdown closes every listening socket and cancels every connection,
// per spec.md §5 ("on shutdown every connection is cancelled").
func (l *Loop) shutdown() {
	for fd, reg := range l.regs {
		if reg.kind == kindListener {
			ioprim.CloseQuietly(fd)
		}
	}
	for _, c := range l.conns {
		l.closeConn(c)
	}
	unix.Close(l.epfd)
}
