// Package ioprim wraps raw read/recv/write/send syscalls behind a
// single outcome taxonomy so callers never branch on errno, per
// spec.md §4.1. Every function here retries transparently on EINTR and
// otherwise maps the syscall result onto {OK, WOULD_BLOCK, CLOSED,
// ERROR}.
package ioprim

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Outcome is the kind half of a Result.
type Outcome int

const (
	OK Outcome = iota
	WouldBlock
	Closed
	Error
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case WouldBlock:
		return "WOULD_BLOCK"
	case Closed:
		return "CLOSED"
	default:
		return "ERROR"
	}
}

// Result is the outcome of one read/write attempt: n is only
// meaningful when Outcome is OK, Err only when Outcome is Error.
type Result struct {
	Outcome Outcome
	N       int
	Err     error
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// Recv reads from a socket fd into buf, matching recv(2) semantics:
// n==0 is a graceful peer close, n<0 with EAGAIN/EWOULDBLOCK is
// WouldBlock, EINTR is retried internally, anything else is Error.
func Recv(fd int, buf []byte) Result {
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case err == nil && n > 0:
			return Result{Outcome: OK, N: n}
		case err == nil && n == 0:
			return Result{Outcome: Closed}
		case errors.Is(err, unix.EINTR):
			continue
		case isWouldBlock(err):
			return Result{Outcome: WouldBlock}
		default:
			return Result{Outcome: Error, Err: err}
		}
	}
}

// Send writes buf to a socket fd. A zero-byte write with no error is
// treated as no progress (WouldBlock), matching the original
// implementation's io_send contract.
func Send(fd int, buf []byte) Result {
	for {
		n, err := unix.Write(fd, buf)
		switch {
		case err == nil && n > 0:
			return Result{Outcome: OK, N: n}
		case err == nil && n == 0:
			return Result{Outcome: WouldBlock}
		case errors.Is(err, unix.EINTR):
			continue
		case isWouldBlock(err):
			return Result{Outcome: WouldBlock}
		default:
			return Result{Outcome: Error, Err: err}
		}
	}
}

// Read is Recv's counterpart for plain file descriptors (CGI pipes):
// identical outcome taxonomy, no socket-specific flags.
func Read(fd int, buf []byte) Result {
	return Recv(fd, buf)
}

// Write is Send's counterpart for plain file descriptors (CGI pipes).
func Write(fd int, buf []byte) Result {
	return Send(fd, buf)
}

// SetNonBlocking marks fd non-blocking, the precondition every fd this
// package touches must satisfy before being registered with the event
// loop.
func SetNonBlocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

// CloseQuietly closes fd and discards EBADF/EINTR-class errors a
// caller has no useful recourse for; every other close failure is
// still surfaced so "closed exactly once" bugs aren't hidden.
func CloseQuietly(fd int) error {
	err := unix.Close(fd)
	if err != nil && (errors.Is(err, unix.EBADF) || errors.Is(err, unix.EINTR)) {
		return nil
	}
	return err
}
