package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/me/apron/internal/config"
	"github.com/me/apron/internal/logging"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/internal/server"
	"github.com/me/apron/internal/source"
	"github.com/me/apron/internal/store"
	"github.com/me/apron/internal/tracing"
)

func main() {
	cfg := config.Default()

	// A config file replaces the defaults before flags are applied on top.
	if path := configPathFromArgs(os.Args[1:]); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	flag.String("config", "", "YAML config file")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Movement journal path (\":memory:\" keeps it in process)")
	flag.StringVar(&cfg.FlightsPath, "flights", cfg.FlightsPath, "Flight source admitted at startup (.csv, .yaml, .db)")
	flag.StringVar(&cfg.TraceFile, "trace", cfg.TraceFile, "Write OpenTelemetry spans to this file")
	flag.DurationVar(&cfg.AutoDispatch, "auto-dispatch", cfg.AutoDispatch, "Schedule waiting flights on this interval (0 disables)")
	flag.DurationVar(&cfg.RunwayOccupancy, "runway-occupancy", cfg.RunwayOccupancy, "How long a runway stays occupied")
	flag.DurationVar(&cfg.GateOccupancy, "gate-occupancy", cfg.GateOccupancy, "How long a gate stays occupied")
	flag.StringVar(&cfg.OnSelectionFailure, "on-selection-failure", cfg.OnSelectionFailure, "What happens to a flight whose runway pick fails (requeue, drop)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), format)

	// Tracing is off unless a span file is configured.
	if cfg.TraceFile != "" {
		f, err := os.Create(cfg.TraceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		shutdown, err := tracing.Init("apron", server.Version, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init tracing: %v\n", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
		logger.Info("tracing enabled", "file", cfg.TraceFile)
	}

	// Open journal and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate journal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("journal ready", "path", cfg.DBPath)

	runways, gates, err := cfg.Pools()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pools: %v\n", err)
		os.Exit(1)
	}
	schedCfg, err := cfg.Scheduler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
	sched := scheduler.New(runways, gates, schedCfg, logger, scheduler.WithJournal(st))
	defer sched.Close()

	// Load errors are reported and startup continues with whatever loaded.
	if cfg.FlightsPath != "" {
		n, err := source.Feed(context.Background(), cfg.FlightsPath, sched)
		if err != nil {
			logger.Warn("flight source had errors", "path", cfg.FlightsPath, "error", err)
		}
		logger.Info("flights loaded", "path", cfg.FlightsPath, "admitted", n)
	}

	serverOpts := []server.Option{server.WithStore(st)}
	var loop *scheduler.Loop
	if cfg.AutoDispatch > 0 {
		loop = scheduler.NewLoop(sched, scheduler.LoopConfig{PollInterval: cfg.AutoDispatch}, logger)
		serverOpts = append(serverOpts, server.WithDispatch(loop))
	}

	srv := server.New(cfg, sched, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartDispatch(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "runways", cfg.Runways, "gates", cfg.Gates)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop dispatch before the HTTP server.
	if loop != nil {
		if err := loop.Stop(); err != nil {
			logger.Error("dispatch stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// configPathFromArgs finds -config before flag.Parse so the file can supply
// defaults that explicit flags then override.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
