package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	spfcbr "github.com/spf13/cobra"

	libcsl "github.com/Megallm/ultrabalancer-sub000/console"
	libver "github.com/Megallm/ultrabalancer-sub000/version"
)

var (
	buildDate    = "dev"
	buildHash    = "dev"
	buildRelease = "0.0.0"
)

var vers = libver.NewVersion(
	libver.License_MIT,
	"ultrabalancer",
	"High-throughput L4/L7 reverse proxy and load balancer",
	buildDate,
	buildHash,
	buildRelease,
	"UltraBalancer authors",
	"ULTRABALANCER",
	struct{}{},
	0,
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *spfcbr.Command {
	var (
		flagPort        int
		flagAlgo        string
		flagBackends    []string
		flagWorkers     int
		flagConfig      string
		flagCheckMS     int
		flagCheckFails  int
		flagNoCheck     bool
		flagStatsListen string
		flagClusterJoin []string
	)

	root := &spfcbr.Command{
		Use:     "ultrabalancer",
		Short:   vers.GetDescription(),
		Version: vers.GetRelease(),
		RunE: func(cmd *spfcbr.Command, _ []string) error {
			app, err := buildApp(cmd, appFlags{
				Port:        flagPort,
				Algorithm:   flagAlgo,
				Backends:    flagBackends,
				Workers:     flagWorkers,
				ConfigFile:  flagConfig,
				CheckMS:     flagCheckMS,
				CheckFails:  flagCheckFails,
				NoCheck:     flagNoCheck,
				StatsListen: flagStatsListen,
				ClusterJoin: flagClusterJoin,
			})
			if err != nil {
				return err
			}
			return runApp(app)
		},
	}

	root.Flags().IntVarP(&flagPort, "port", "p", 8080, "listen port")
	root.Flags().StringVarP(&flagAlgo, "algorithm", "a", "round-robin",
		"selection algorithm (round-robin|least-conn|ip-hash|weighted|response-time)")
	root.Flags().StringArrayVarP(&flagBackends, "backend", "b", nil,
		"backend HOST:PORT[@WEIGHT] (repeatable)")
	root.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "reactor worker count (default 2x CPUs)")
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "configuration file (yaml, toml or cfg)")
	root.Flags().IntVar(&flagCheckMS, "health-check-interval", 2000, "health probe interval in ms")
	root.Flags().IntVar(&flagCheckFails, "health-check-fails", 3, "consecutive failures before DOWN")
	root.Flags().BoolVar(&flagNoCheck, "no-health-check", false, "disable active health checking")
	root.Flags().StringVar(&flagStatsListen, "stats-listen", "", "statistics HTTP listen address")
	root.Flags().StringArrayVar(&flagClusterJoin, "cluster-join", nil, "cluster member nodeID=raftAddr (repeatable)")

	root.AddCommand(&spfcbr.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(_ *spfcbr.Command, _ []string) {
			libcsl.ColorPrint.Println(vers.GetHeader())
			fmt.Print(vers.GetInfo())
		},
	})

	return root
}

// runApp starts the component manager and blocks until SIGINT/SIGTERM;
// SIGHUP triggers a config reload.
func runApp(app *application) error {
	if err := app.manager.Start(); err != nil {
		app.log().Error("startup failed: %v", err)
		return err
	}
	defer app.manager.Stop()

	app.log().Info("ultrabalancer started: %s", vers.GetAppId())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s == syscall.SIGHUP {
			if err := app.manager.Reload(); err != nil {
				app.log().Error("reload failed: %v", err)
			} else {
				app.log().Info("configuration reloaded")
			}
			continue
		}
		app.log().Info("shutting down on %v", s)
		return nil
	}
	return nil
}
