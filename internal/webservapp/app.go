// Package webservapp wires the leaf components (config, eventloop,
// conn, ...) into a running process: load configuration, bind one
// listening socket per distinct (host, port), drive the event loop,
// and shut down cleanly on SIGINT/SIGTERM, per spec.md §6/§9.
package webservapp

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/pmolzer/webserv/config"
	"github.com/pmolzer/webserv/eventloop"
)

// ExitCodeFailedStartup is the process exit code cmd/webserv uses when
// Load or Run returns an error, such as a configuration or socket
// binding failure, per spec.md §6 ("non-zero on configuration error or
// inability to bind any socket").
const ExitCodeFailedStartup = 1

// NewLogger builds the process's default logger: stderr, console
// encoding, INFO and higher (DEBUG and higher when debug is set),
// mirroring the teacher's
// newDefaultProductionLog (logging.go) rather than a bespoke format.
func NewLogger(debug bool) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level)
	return zap.New(core), nil
}

// App owns the process-wide state a single run of the server needs:
// the parsed configuration, the logger, and the shutdown flag the
// signal goroutine and the event loop share (spec.md §9 — "the
// shutdown flag set by the signal handler must be a process-wide
// atomic flag").
type App struct {
	log  *zap.Logger
	tree *config.Tree
	stop atomic.Bool

	// sig tracks the auxiliary signal-trapping goroutine so Run can
	// wait for it to actually exit before returning, rather than
	// leaving it dangling past the event loop's own lifetime.
	sig *errgroup.Group
}

// Load reads and validates the configuration file at path. A non-nil
// error here means the caller should exit ExitCodeFailedStartup.
func Load(path string, log *zap.Logger) (*App, error) {
	tree, err := config.Parse(path, log)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return &App{log: log, tree: tree}, nil
}

// Run binds every distinct (host, port) the configuration declares,
// traps SIGINT/SIGTERM, and drives the event loop until a trapped
// signal (or a fatal event-loop error) stops it. It returns nil on a
// clean, signal-triggered shutdown.
func (a *App) Run() error {
	loop, err := eventloop.New(a.tree, a.log, &a.stop)
	if err != nil {
		return fmt.Errorf("creating event loop: %w", err)
	}

	addrs := a.tree.ListenAddrs()
	bound := make([]int, 0, len(addrs))
	for _, addr := range addrs {
		fd, err := bindListener(addr)
		if err != nil {
			for _, f := range bound {
				unix.Close(f)
			}
			return fmt.Errorf("binding %s: %w", addr, err)
		}
		if err := loop.AddListener(fd, addr.Port); err != nil {
			unix.Close(fd)
			for _, f := range bound {
				unix.Close(f)
			}
			return fmt.Errorf("registering listener %s: %w", addr, err)
		}
		bound = append(bound, fd)
		a.log.Info("listening", zap.String("addr", addr.String()))
	}
	if len(bound) == 0 {
		return fmt.Errorf("configuration declares no listen addresses")
	}

	done := a.trapSignals()

	a.log.Info("webserv starting", zap.Int("servers", len(a.tree.Servers)), zap.Int("listeners", len(bound)))
	runErr := loop.Run()

	close(done)
	_ = a.sig.Wait() // the signal goroutine never errors; this just joins it

	if runErr != nil {
		return fmt.Errorf("event loop: %w", runErr)
	}
	a.log.Info("webserv stopped")
	return nil
}

// trapSignals mirrors the teacher's sigtrap.go/sigtrap_posix.go
// goroutine-plus-channel pattern, adapted per spec.md §9 to flip the
// shared atomic flag rather than calling os.Exit from the signal
// goroutine: the event loop notices the flag on its own next tick and
// unwinds through its own shutdown path, closing every descriptor it
// owns exactly once. The returned channel lets Run join this goroutine
// once the loop has actually stopped, instead of leaking it past the
// end of a single server lifetime.
func (a *App) trapSignals() chan struct{} {
	a.sig = new(errgroup.Group)
	done := make(chan struct{})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	a.sig.Go(func() error {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			a.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			a.stop.Store(true)
		case <-done:
		}
		return nil
	})
	return done
}
