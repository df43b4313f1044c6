package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/watchgap/watchgap/internal/config"
	"github.com/watchgap/watchgap/internal/db"
	"github.com/watchgap/watchgap/internal/ingest"
	"github.com/watchgap/watchgap/internal/pipeline"
	"github.com/watchgap/watchgap/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	periodicRunInterval = 15 * time.Minute
	watcherDebounce     = 500 * time.Millisecond
	shutdownTimeout     = 5 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "analyze":
			runAnalyze(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("watchgap %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runAnalyze(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`watchgap %s - sleep inference from YouTube watch history

Reads a Google Takeout history export, infers sleep intervals from
viewing inactivity gaps, and aggregates activity-bounded days into
weekly tables. Results are stored in SQLite and can be served over
a local REST API.

Usage:
  watchgap [flags]            Run the analysis once (default command)
  watchgap analyze [flags]    Run the analysis once (explicit)
  watchgap serve [flags]      Serve the results over HTTP
  watchgap version            Show version information
  watchgap help               Show this help

Analysis flags:
  -history-dir string  Directory containing watch-history.json
  -timezone string     Civil timezone (default "America/New_York")
  -gap-hours float     Minimum inactivity gap counted as sleep (default 5)
  -strict              Duration and time-of-day plausibility checks (default true)
  -start string        Analysis range start (YYYY-MM-DD)
  -end string          Analysis range end (YYYY-MM-DD)
  -recent-days int     Length of the trailing recent view (default 30)

Server flags (serve only):
  -host string         Host to bind to (default "127.0.0.1")
  -port int            Port to listen on (default 8080)

Environment variables:
  WATCHGAP_HISTORY_DIR  History export directory
  WATCHGAP_DATA_DIR     Data directory (database, config)
  WATCHGAP_TIMEZONE     Civil timezone

Data is stored in ~/.watchgap/ by default.
`, version)
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	config.RegisterAnalysisFlags(fs)
	cfg := mustLoadConfig(fs, args)

	engine := mustBuildEngine(cfg)
	rep, err := engine.Run()
	if err != nil && !emptyDataErr(err) {
		log.Fatalf("analysis failed: %v", err)
	}

	printReport(rep, engine)
	if err != nil {
		fmt.Printf("\nnote: %v\n", err)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	config.RegisterServeFlags(fs)
	cfg := mustLoadConfig(fs, args)

	engine := mustBuildEngine(cfg)
	if _, err := engine.Run(); err != nil && !emptyDataErr(err) {
		log.Printf("initial analysis: %v", err)
	}

	stopWatcher := startFileWatcher(cfg, engine)
	defer stopWatcher()

	go startPeriodicRuns(engine)

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, engine.DB(), engine,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	fmt.Printf("watchgap %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-sigCh:
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func mustLoadConfig(fs *flag.FlagSet, args []string) config.Config {
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustBuildEngine(cfg config.Config) *ingest.Engine {
	opts, err := cfg.Options()
	if err != nil {
		log.Fatalf("invalid analysis options: %v", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}

	return ingest.NewEngine(database, cfg.HistoryDir, opts)
}

func startFileWatcher(
	cfg config.Config, engine *ingest.Engine,
) func() {
	onChange := func() {
		if _, err := engine.Run(); err != nil && !emptyDataErr(err) {
			log.Printf("re-analysis: %v", err)
		}
	}
	watcher, err := ingest.NewWatcher(watcherDebounce, onChange)
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}

	if _, err := os.Stat(cfg.HistoryDir); err == nil {
		if err := watcher.Watch(cfg.HistoryDir); err != nil {
			log.Printf("warning: watching %s: %v", cfg.HistoryDir, err)
		}
	}
	watcher.Start()
	return watcher.Stop
}

func startPeriodicRuns(engine *ingest.Engine) {
	ticker := time.NewTicker(periodicRunInterval)
	defer ticker.Stop()
	for range ticker.C {
		log.Println("Running scheduled analysis...")
		if _, err := engine.Run(); err != nil && !emptyDataErr(err) {
			log.Printf("scheduled analysis: %v", err)
		}
	}
}

func printReport(rep pipeline.Report, engine *ingest.Engine) {
	stats := engine.LastLoadStats()
	fmt.Printf("Parsed %d records (%d accepted, %d ads, %d not watched, %d bad timestamps)\n",
		stats.Total(), stats.Accepted, stats.AdFiltered,
		stats.NotWatched, stats.BadTimestamp)
	fmt.Printf("Events in range:  %d\n", rep.EventCount)
	fmt.Printf("Sleep intervals:  %d\n", len(rep.Intervals))
	fmt.Printf("Day windows:      %d\n", len(rep.Days))

	if n := len(rep.Intervals); n > 0 {
		var dur, bed, wake float64
		for _, iv := range rep.Intervals {
			dur += iv.Duration.Hours()
			bed += iv.StartHour
			wake += iv.EndHour
		}
		fmt.Printf("Avg sleep:        %.1fh (bed %.1fh, wake %.1fh)\n",
			dur/float64(n), bed/float64(n), wake/float64(n))
	}

	if len(rep.WeeklySleep) > 0 {
		fmt.Println("\nWeekly sleep:")
		fmt.Println("  week  intervals  bed    wake")
		for _, w := range rep.WeeklySleep {
			fmt.Printf("  %4d  %9d  %5.2f  %5.2f\n",
				w.Week, w.Intervals, w.AvgStartHour, w.AvgEndHour)
		}
	}

	if len(rep.SleepHist) > 0 {
		fmt.Println("\nSleep duration distribution:")
		for _, b := range rep.SleepHist {
			fmt.Printf("  %-10s %d\n", b.Label, b.Count)
		}
	}
}

func emptyDataErr(err error) bool {
	return errors.Is(err, pipeline.ErrNoEvents) ||
		errors.Is(err, pipeline.ErrNoIntervals) ||
		errors.Is(err, pipeline.ErrNoWindows)
}
