// Package cgi executes CGI/1.1 scripts as forked child processes
// connected to the server by two pipes, streamed non-blockingly by the
// event loop rather than read/written synchronously, per spec.md §4.6.
package cgi

import (
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/pmolzer/webserv/ioprim"
)

// PipeChunk bounds how many body bytes are written to the child's
// stdin per writable-readiness event, per spec.md §4.6's streaming
// contract.
const PipeChunk = 8192

// Timeout is the fixed deadline measured from CGI start, per spec.md
// §4.6.
const Timeout = 30 * time.Second

// State labels a session's lifecycle phase. Start sets
// StateWritingInput and no Session method advances it afterwards; the
// owning connection's state (conn.StateCGIWritingInput /
// conn.StateCGIReadingOutput) is what tracks a session's progress.
type State int

const (
	StateWritingInput State = iota
	StateReadingOutput
	StateDone
	StateFailed
)

// Session is one running (or just-finished) CGI invocation.
type Session struct {
	ID string

	Pid       int
	InputFD   int // parent's write end of the child's stdin
	OutputFD  int // parent's read end of the child's stdout+stderr
	Deadline  time.Time
	State     State
	Log       *zap.Logger

	body       []byte
	bodyOffset int
	output     []byte
	reaped     bool
}

// Start forks the interpreter over scriptPath with env, wiring its
// stdin/stdout/stderr to two non-blocking pipes the caller then drives
// from the event loop. body is the fully decoded request body to
// stream to the child's stdin.
func Start(scriptPath string, env []string, body []byte, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var inFDs, outFDs [2]int
	if err := unix.Pipe2(inFDs[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := unix.Pipe2(outFDs[:], unix.O_CLOEXEC); err != nil {
		ioprim.CloseQuietly(inFDs[0])
		ioprim.CloseQuietly(inFDs[1])
		return nil, err
	}

	inRead, inWrite := inFDs[0], inFDs[1]
	outRead, outWrite := outFDs[0], outFDs[1]

	if err := unix.SetNonblock(inWrite, true); err != nil {
		closeAll(inRead, inWrite, outRead, outWrite)
		return nil, err
	}
	if err := unix.SetNonblock(outRead, true); err != nil {
		closeAll(inRead, inWrite, outRead, outWrite)
		return nil, err
	}

	attr := &syscall.ProcAttr{
		Dir:   ScriptDir(scriptPath),
		Env:   env,
		Files: []uintptr{uintptr(inRead), uintptr(outWrite), uintptr(outWrite)},
	}
	argv := []string{Interpreter, "python3", scriptPath}

	pid, err := syscall.ForkExec(Interpreter, argv, attr)
	// The parent closes the child-side descriptors immediately after
	// the fork, regardless of success, per spec.md §4.6.
	ioprim.CloseQuietly(inRead)
	ioprim.CloseQuietly(outWrite)
	if err != nil {
		ioprim.CloseQuietly(inWrite)
		ioprim.CloseQuietly(outRead)
		return nil, err
	}

	log.Debug("cgi process started",
		zap.Int("pid", pid), zap.String("script", scriptPath))

	return &Session{
		ID:       uuid.NewString(),
		Pid:      pid,
		InputFD:  inWrite,
		OutputFD: outRead,
		Deadline: time.Now().Add(Timeout),
		State:    StateWritingInput,
		Log:      log,
		body:     body,
	}, nil
}

func closeAll(fds ...int) {
	for _, fd := range fds {
		ioprim.CloseQuietly(fd)
	}
}

// WriteInput writes up to PipeChunk more body bytes when the input
// pipe is writable. Returns done=true once every body byte has been
// written (the caller should then call CloseInput to deliver EOF).
func (s *Session) WriteInput() (done bool, outcome ioprim.Outcome) {
	if s.bodyOffset >= len(s.body) {
		return true, ioprim.OK
	}
	end := s.bodyOffset + PipeChunk
	if end > len(s.body) {
		end = len(s.body)
	}
	res := ioprim.Write(s.InputFD, s.body[s.bodyOffset:end])
	if res.Outcome == ioprim.OK {
		s.bodyOffset += res.N
	}
	return s.bodyOffset >= len(s.body), res.Outcome
}

// CloseInput closes the input pipe, the EOF signal the script is
// waiting for once the full body has been forwarded.
func (s *Session) CloseInput() error {
	err := unix.Close(s.InputFD)
	s.InputFD = -1
	return err
}

// ReadOutput appends bytes from the output pipe to the session's
// accumulator. Returns the I/O outcome so the caller can tell
// WouldBlock (keep waiting) from Closed (script finished, proceed to
// reap).
func (s *Session) ReadOutput() ioprim.Outcome {
	buf := make([]byte, PipeChunk)
	res := ioprim.Read(s.OutputFD, buf)
	if res.Outcome == ioprim.OK {
		s.output = append(s.output, buf[:res.N]...)
	}
	return res.Outcome
}

// Output returns everything accumulated from the script's stdout so
// far.
func (s *Session) Output() []byte { return s.output }

// Expired reports whether the fixed deadline has passed.
func (s *Session) Expired(now time.Time) bool { return now.After(s.Deadline) }

// Kill sends SIGKILL to the child. Safe to call more than once.
func (s *Session) Kill() {
	if s.Pid > 0 {
		if s.Log != nil {
			s.Log.Warn("killing cgi process", zap.Int("pid", s.Pid))
		}
		syscall.Kill(s.Pid, syscall.SIGKILL)
	}
}

// Reap performs the session's single non-blocking wait, per spec.md
// §4.6/§8 ("reaped exactly once"). Calling it again is a no-op. If the
// child has not yet exited by the time its output pipe reports CLOSED
// (or its deadline fires), the wait must still never block the event
// loop: the pid is handed to the package-level deferred reaper, which
// ReapPending polls with WNOHANG on every loop tick until it succeeds,
// so the invariant "no orphan processes remain" still holds without
// ever issuing a blocking wait4 on the hot path.
func (s *Session) Reap() (exitedCleanly bool) {
	if s.reaped || s.Pid <= 0 {
		return false
	}
	s.reaped = true
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(s.Pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		return false
	}
	if wpid == 0 {
		deferReap(s.Pid)
		return false
	}
	exitedCleanly = ws.Exited() && !ws.Signaled()
	if s.Log != nil {
		s.Log.Debug("cgi process reaped",
			zap.Int("pid", s.Pid), zap.Bool("exited_cleanly", exitedCleanly))
	}
	return exitedCleanly
}

var (
	pendingMu   sync.Mutex
	pendingPids []int
)

// deferReap hands a pid whose exit hasn't landed yet to the
// event-loop-driven sweep below.
func deferReap(pid int) {
	pendingMu.Lock()
	pendingPids = append(pendingPids, pid)
	pendingMu.Unlock()
}

// ReapPending attempts one non-blocking wait on every pid still
// awaiting reap. The event loop calls this once per tick (alongside
// its idle/CGI-deadline sweep) so a child that outlives its pipes
// closing is still reaped without ever blocking the loop goroutine.
func ReapPending() {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	if len(pendingPids) == 0 {
		return
	}
	remaining := pendingPids[:0]
	for _, pid := range pendingPids {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err == nil && wpid != 0 {
			continue // reaped
		}
		remaining = append(remaining, pid)
	}
	pendingPids = remaining
}

// Close releases both pipe ends; safe to call more than once.
func (s *Session) Close() {
	if s.InputFD >= 0 {
		ioprim.CloseQuietly(s.InputFD)
		s.InputFD = -1
	}
	if s.OutputFD >= 0 {
		ioprim.CloseQuietly(s.OutputFD)
		s.OutputFD = -1
	}
}

// Eligible reports whether spec.md §4.6's CGI-invocation preconditions
// hold for fsPath given the location's configured extension.
func Eligible(fsPath, cgiExtension string) bool {
	if cgiExtension == "" || !strings.HasSuffix(fsPath, cgiExtension) {
		return false
	}
	info, err := os.Stat(fsPath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
