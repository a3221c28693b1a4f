package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/Dacada/simple-monitor/internal/alarm"
	"github.com/Dacada/simple-monitor/internal/api"
	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/logging"
	"github.com/Dacada/simple-monitor/internal/monitor"
	"github.com/Dacada/simple-monitor/internal/notify"
	"github.com/Dacada/simple-monitor/internal/telemetry"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "start":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStart()
	case "stop":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStop()
	case "status":
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdStatus()
	case "run":
		// Foreground mode (also used internally by daemon child)
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		cmdRun()
	case "version":
		fmt.Printf("simple-monitor %s\n", version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `Simple Monitor — Lightweight Host Monitoring Agent (%s)

Usage:
  %s <command> [flags]

Commands:
  start          Start the agent (background)
  stop           Stop the agent
  status         Show agent status
  run            Run in foreground
  version        Print version

Flags:
  -config PATH   Config file path
  -listen ADDR   Status server listen address (default: 127.0.0.1:8080)
  -pid-file P    PID file path
  -log-file P    Log file path

Examples:
  %s start
  %s start -config /etc/simple-monitor/config.yaml
  %s stop
  %s status
  %s run
`, version, exe, exe, exe, exe, exe, exe)
}

// ---------------------------------------------------------------------------
// run: foreground agent (also used by daemon child)
// ---------------------------------------------------------------------------

func cmdRun() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting up",
		"version", version,
		"node", cfg.Name,
		"config", cfg.ConfigPath,
		"monitors", len(cfg.Monitors),
		"notifiers", len(cfg.Notifiers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Probe pool for samplers that must not block the sample loop.
	pool := monitor.NewProbePool(cfg.ProbeWorkers, logger)
	pool.Start(ctx)

	// One bus connection shared by every systemd monitor.
	var sysconn *sysdbus.Conn
	if cfg.NeedsSystemd() {
		sysconn, err = sysdbus.NewWithContext(ctx)
		if err != nil {
			logger.Error("connect to systemd bus", "error", err)
			os.Exit(1)
		}
		defer sysconn.Close()
	}

	registry, err := monitor.BuildRegistry(cfg, pool, sysconn, logger)
	if err != nil {
		logger.Error("build monitors", "error", err)
		os.Exit(1)
	}

	// One tracker per notifier, each with its own reminder clocks.
	var trackers []*alarm.Tracker
	var closers []func() error
	for _, nc := range cfg.Notifiers {
		notifier, closeFn, err := notify.Build(nc, logger)
		if err != nil {
			logger.Error("build notifier", "kind", nc.Kind, "error", err)
			os.Exit(1)
		}
		closers = append(closers, closeFn)
		trackers = append(trackers, alarm.NewTracker(cfg.Name, notifier, logger))
	}

	manager := alarm.NewManager(registry, trackers,
		time.Duration(cfg.AlarmGranularity)*time.Second, logger)

	telemetry.Init(registry.ActiveAlarmCount)

	hub := api.NewHub(logger)
	go hub.Run(ctx)
	registry.SetBroadcast(hub.BroadcastStatus)

	// First signal shuts down cleanly; a second one forces exit.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, shutdownSignals...)
	go func() {
		s := <-sigCh
		logger.Info("exit signal received", "signal", s)
		cancel()
		s = <-sigCh
		logger.Warn("second exit signal, forcing exit", "signal", s)
		os.Exit(1)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		registry.Run(ctx, cancel)
	}()
	go func() {
		defer wg.Done()
		manager.Run(ctx, cancel)
	}()

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewRouter(registry, hub, logger),
	}
	go func() {
		logger.Info("status server listening", "addr", "http://"+cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)

	wg.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close notifier", "error", err)
		}
	}

	os.Remove(cfg.PidFile)
	logger.Info("goodbye")
}

// buildForwardFlags generates flags to forward the loaded config to the child.
func buildForwardFlags(cfg *config.Config) []string {
	var args []string
	args = append(args, "-config", cfg.ConfigPath)
	if cfg.LogFile != "" {
		args = append(args, "-log-file", cfg.LogFile)
	}
	return args
}

// ---------------------------------------------------------------------------
// PID file helpers
// ---------------------------------------------------------------------------

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s", path)
	}
	return pid, nil
}
