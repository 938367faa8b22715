package webservapp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/pmolzer/webserv/config"
)

// backlog is the listen(2) backlog for every bound socket.
const backlog = 1024

// bindListener opens, binds, and starts listening on addr, returning a
// non-blocking fd ready to register with the event loop.
func bindListener(addr config.ListenAddr) (int, error) {
	ip := net.ParseIP(addr.Host)
	if ip == nil {
		ip = net.IPv4zero
	}
	ip4 := ip.To4()

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket(%s): %w", addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR(%s): %w", addr, err)
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind(%s): %w", addr, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen(%s): %w", addr, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking(%s): %w", addr, err)
	}
	return fd, nil
}
