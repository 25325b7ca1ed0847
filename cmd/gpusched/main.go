// gpusched runs the job scheduler core against the simulated GPU and serves
// the debug/control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gpusched/internal/config"
	"github.com/me/gpusched/internal/devloop"
	"github.com/me/gpusched/internal/logging"
	"github.com/me/gpusched/internal/scheduler"
	"github.com/me/gpusched/internal/server"
	"github.com/me/gpusched/internal/sim"
	"github.com/me/gpusched/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	dbPath := flag.String("db", "", "Trace database path (overrides config)")
	jobSlots := flag.Uint("slots", 0, "Number of job slots (overrides config)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *jobSlots != 0 {
		cfg.JobSlots = uint32(*jobSlots)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	st, err := trace.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open trace database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate trace database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("trace database ready", "path", cfg.DBPath)

	device := sim.NewDevice(cfg.SimJobDuration.Std(), logger)
	sched := scheduler.New(device, cfg.JobSlots,
		scheduler.WithLogger(logger),
		scheduler.WithRecorder(trace.NewRecorder(st, logger)),
		scheduler.WithConfig(scheduler.Config{
			ExecutionTimeout: cfg.ExecutionTimeout.Std(),
			SemaphoreTimeout: cfg.SemaphoreTimeout.Std(),
			HangGracePeriod:  cfg.HangGracePeriod.Std(),
		}),
	)
	loop := devloop.New(sched, logger)
	device.Bind(loop)

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Start(context.Background())
	}()

	srv := server.New(loop, st, device, logger)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := loop.Stop(); err != nil {
		logger.Error("device loop shutdown", "error", err)
	}
	<-loopErr
	logger.Info("shutdown complete")
}
