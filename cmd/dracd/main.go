package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"dracd/internal/config"
	"dracd/internal/dracerr"
	"dracd/internal/node"
	"dracd/internal/reconciler"
	"dracd/internal/wsman"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "dracd",
	Short:   "dracd - Dell iDRAC/RAC out-of-band hardware management driver",
	Long:    `dracd exposes BIOS configuration, boot-device management, and RAID configuration over WS-MAN for Dell servers' out-of-band controllers.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dracd %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	if err := wsman.SelfCheck(); err != nil {
		loadErr := &dracerr.DriverLoadError{Reason: err.Error()}
		log.Fatal().Err(loadErr).Msg("refusing to start: WS-MAN transport is unusable")
	}

	log.Info().Msg("starting dracd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The conductor (external, out of scope) normally owns node records,
	// locks, and persistence. This store lets the binary run standalone;
	// nodes are registered via AddNode rather than discovered from a
	// fleet database.
	store := newMemStore()

	startMetricsServer(ctx, cfg.MetricsAddr)
	startVendorPassthruServer(ctx, cfg.ListenAddr, newVendorPassthruMux(store, cfg))

	newClient := func(creds node.Credentials) reconciler.Client {
		return wsman.NewClient(creds, wsman.ClientConfig{
			Timeout:            cfg.WSManTimeout,
			InsecureSkipVerify: cfg.WSManInsecureSkipVerify,
		})
	}

	metrics := reconciler.NewMetrics(prometheus.DefaultRegisterer)
	rec := reconciler.New(reconciler.Config{
		Interval: cfg.QueryRaidJobStatusInterval,
		Workers:  cfg.ReconcilerWorkers,
	}, store, store, newClient, metrics)
	go rec.Run(ctx)

	var watcher *config.Watcher
	if w, err := config.NewWatcher("/etc/dracd/dracd.env", cfg); err != nil {
		log.Warn().Err(err).Msg("failed to start config watcher, dracd.env changes will require a restart")
	} else {
		watcher = w
		go watcher.Run()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	cancel()
	if watcher != nil {
		watcher.Stop()
	}
}
