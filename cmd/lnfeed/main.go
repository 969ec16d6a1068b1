// Package main provides the lnfeed daemon - a channel-management control
// plane for a single Lightning node.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lnfeed/lnfeed/internal/config"
	"github.com/lnfeed/lnfeed/internal/loop"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/statusapi"
	"github.com/lnfeed/lnfeed/internal/store"
	"github.com/lnfeed/lnfeed/pkg/helpers"
	"github.com/lnfeed/lnfeed/pkg/logging"
)

// Exit codes, per spec §6: 0 success; 2 config error; 3 unrecoverable
// store error; 1 any other.
const (
	exitOK          = 0
	exitGeneral     = 1
	exitConfigError = 2
	exitStoreError  = 3
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitGeneral
	}

	configPath := "~/.lnfeed/config.yaml"
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			configPath = args[i+1]
		}
	}

	switch args[0] {
	case "daemon":
		return runDaemon(configPath)
	case "run-once":
		return runOnce(configPath)
	case "status":
		return runStatus(configPath)
	case "--version", "-version":
		fmt.Printf("lnfeed %s\n", version)
		return exitOK
	default:
		usage()
		return exitGeneral
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lnfeed <daemon|run-once|status> [--config <path>]")
}

// bootstrap loads config, opens the store, and constructs the remote
// client and loop shared by every subcommand.
func bootstrap(configPath string, log *logging.Logger) (*config.Config, *store.Store, *loop.Loop, int) {
	cfg, err := config.Load(config.ExpandPath(configPath))
	if err != nil {
		log.Error("failed to load config", "error", err)
		return nil, nil, nil, exitConfigError
	}
	log.SetLevel(logging.ParseLevel(cfg.General.LogLevel))

	st, err := store.Open(config.ExpandPath(cfg.Store.Path))
	if err != nil {
		log.Error("failed to open store", "error", err)
		return nil, nil, nil, exitStoreError
	}

	client, err := remoteclient.New(remoteclient.Config{
		BaseURL:     cfg.Server.BaseURL,
		APIKey:      cfg.Server.APIKey,
		TLSCertPath: cfg.Server.TLSCertPath,
	})
	if err != nil {
		log.Error("failed to construct remote client", "error", err)
		st.Close()
		return nil, nil, nil, exitConfigError
	}

	l := loop.New(cfg, st, client, log)
	return cfg, st, l, exitOK
}

func runOnce(configPath string) int {
	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	_, st, l, code := bootstrap(configPath, log)
	if code != exitOK {
		return code
	}
	defer st.Close()

	if err := l.RunOnce(context.Background()); err != nil {
		log.Error("cycle failed", "error", err)
		return exitGeneral
	}
	return exitOK
}

func runDaemon(configPath string) int {
	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, st, l, code := bootstrap(configPath, log)
	if code != exitOK {
		return code
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *statusapi.Hub
	if cfg.General.StatusSocket != "" {
		hub = statusapi.NewHub()
		stop := make(chan struct{})
		go hub.Run(stop)
		go func() { <-ctx.Done(); close(stop) }()

		mux := http.NewServeMux()
		mux.HandleFunc("/status", hub.ServeHTTP)
		server := &http.Server{Addr: cfg.General.StatusSocket, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status server failed", "error", err)
			}
		}()
		go func() { <-ctx.Done(); server.Close() }()

		l = l.WithStatusHub(hub)
		log.Info("status feed listening", "addr", cfg.General.StatusSocket)
	}

	ticker := time.NewTicker(cfg.General.CycleInterval())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("lnfeed daemon starting", "version", version, "cycle_interval", cfg.General.CycleInterval())

	if err := l.RunOnce(ctx); err != nil {
		log.Error("initial cycle failed", "error", err)
	}

	for {
		select {
		case <-sigCh:
			log.Info("shutting down")
			cancel()
			return exitOK

		case <-ticker.C:
			if err := l.RunOnce(ctx); err != nil {
				log.Error("cycle failed", "error", err)
			}
		}
	}
}

func runStatus(configPath string) int {
	log := logging.New(&logging.Config{Level: "error", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.Load(config.ExpandPath(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfigError
	}

	st, err := store.Open(config.ExpandPath(cfg.Store.Path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		return exitStoreError
	}
	defer st.Close()

	counts, err := st.ActionCounts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read action counts: %v\n", err)
		return exitStoreError
	}

	recent, err := st.RecentActions(5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read recent actions: %v\n", err)
		return exitStoreError
	}

	fmt.Println("Action counts:")
	for kind, n := range counts {
		fmt.Printf("  %-14s %d\n", kind, n)
	}

	fmt.Println("Last actions:")
	for _, a := range recent {
		fmt.Printf("  [%s] %s success=%v dry_run=%v outcome=%s\n",
			a.OccurredAt.Format(time.RFC3339), a.Kind, a.Success, a.DryRun, a.Outcome)
	}

	peers, err := st.LoadAllPeers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read peers: %v\n", err)
		return exitStoreError
	}
	fmt.Printf("Tracked peers: %d\n", len(peers))

	var totalEarnedMsat uint64
	for _, p := range peers {
		if p.FeesEarnedMsat > 0 {
			totalEarnedMsat += uint64(p.FeesEarnedMsat)
		}
	}
	fmt.Printf("Total fees earned: %s sats\n", helpers.MsatToSat(totalEarnedMsat))

	return exitOK
}
