// Command webserv runs the HTTP/1.1 + CGI origin server described by
// spec.md: `webserv [CONFIG_PATH]`, default config path
// conf/default.conf, exit code 0 on clean shutdown, non-zero on
// configuration error or inability to bind any socket (spec.md §6).
package main

import (
	"fmt"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/pmolzer/webserv/internal/webservapp"
)

// defaultConfigPath matches spec.md §6's CLI default.
const defaultConfigPath = "conf/default.conf"

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var debug bool

	root := &cobra.Command{
		Use:     "webserv [CONFIG_PATH]",
		Short:   "An HTTP/1.1 origin server with CGI/1.1 support",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := defaultConfigPath
			if len(args) == 1 {
				configPath = args[0]
			}
			return runServer(configPath, debug)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().BoolVarP(&debug, "debug", "v", false, "enable debug-level logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return webservapp.ExitCodeFailedStartup
	}
	return 0
}

// runServer mirrors the teacher's cmd/main.go Main(): set GOMAXPROCS
// and GOMEMLIMIT to match any container cgroup quota before doing any
// real work, then load configuration and run the event loop until a
// trapped signal stops it cleanly.
func runServer(configPath string, debug bool) error {
	log, err := webservapp.NewLogger(debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof))
	defer undoMaxProcs()
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithProvider(
			memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem),
		),
	); err != nil {
		log.Debug("failed to set GOMEMLIMIT", zap.Error(err))
	}

	app, err := webservapp.Load(configPath, log)
	if err != nil {
		return err
	}
	return app.Run()
}
