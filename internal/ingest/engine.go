package ingest

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/watchgap/watchgap/internal/db"
	"github.com/watchgap/watchgap/internal/history"
	"github.com/watchgap/watchgap/internal/pipeline"
)

const (
	watchHistoryFile  = "watch-history.json"
	searchHistoryFile = "search-history.json"
)

// Engine runs the analysis pipeline over the history export
// and replaces the database snapshot with the result.
type Engine struct {
	db         *db.DB
	historyDir string
	opts       pipeline.Options

	runMu sync.Mutex // serializes full analysis runs
	mu    sync.RWMutex
	lastRun    time.Time
	lastReport pipeline.Report
	lastStats  history.LoadStats
	lastErr    error
}

// NewEngine creates an analysis engine reading from historyDir
// and writing snapshots to database.
func NewEngine(database *db.DB, historyDir string, opts pipeline.Options) *Engine {
	return &Engine{
		db:         database,
		historyDir: historyDir,
		opts:       opts,
	}
}

// DB returns the engine's snapshot database. May be nil when the
// engine runs without persistence.
func (e *Engine) DB() *db.DB {
	return e.db
}

// LastRun returns the time of the last completed analysis.
func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// LastReport returns the report from the last analysis along
// with the error it produced, if any.
func (e *Engine) LastReport() (pipeline.Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport, e.lastErr
}

// LastLoadStats returns parse statistics from the last analysis.
func (e *Engine) LastLoadStats() history.LoadStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStats
}

// Run loads the history export, runs the pipeline, and replaces
// the database snapshot. Empty-data pipeline errors (no events,
// no qualifying gaps) are recorded and returned but still
// produce a snapshot of whatever was computed.
func (e *Engine) Run() (pipeline.Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	t0 := time.Now()

	events, stats, err := e.loadEvents()
	if err != nil {
		e.record(pipeline.Report{}, stats, err)
		return pipeline.Report{}, err
	}

	rep, runErr := pipeline.Run(events, e.opts)
	if runErr != nil && !isEmptyDataErr(runErr) {
		e.record(rep, stats, runErr)
		return rep, runErr
	}

	if e.db != nil {
		if dbErr := e.db.ReplaceSnapshot(events, rep); dbErr != nil {
			err := fmt.Errorf("storing snapshot: %w", dbErr)
			e.record(rep, stats, err)
			return rep, err
		}
	}

	log.Printf(
		"analysis: %d events, %d intervals, %d day windows in %s",
		rep.EventCount, len(rep.Intervals), len(rep.Days),
		time.Since(t0).Round(time.Millisecond),
	)

	e.record(rep, stats, runErr)
	return rep, runErr
}

// loadEvents reads watch-history.json and, when present,
// search-history.json from the history directory. The search
// file is optional; the watch file is not.
func (e *Engine) loadEvents() ([]history.Event, history.LoadStats, error) {
	watchPath := filepath.Join(e.historyDir, watchHistoryFile)
	events, stats, err := history.LoadFile(watchPath)
	if err != nil {
		return nil, stats, err
	}

	searchPath := filepath.Join(e.historyDir, searchHistoryFile)
	searchEvents, searchStats, err := history.LoadFile(searchPath)
	switch {
	case err == nil:
		events = append(events, searchEvents...)
		stats.Add(searchStats)
	case errors.Is(err, os.ErrNotExist):
		// search history is optional
	default:
		return nil, stats, err
	}

	return events, stats, nil
}

func (e *Engine) record(rep pipeline.Report, stats history.LoadStats, err error) {
	e.mu.Lock()
	e.lastRun = time.Now()
	e.lastReport = rep
	e.lastStats = stats
	e.lastErr = err
	e.mu.Unlock()
}

// isEmptyDataErr reports whether err is one of the pipeline's
// empty-data sentinels rather than a real failure.
func isEmptyDataErr(err error) bool {
	return errors.Is(err, pipeline.ErrNoEvents) ||
		errors.Is(err, pipeline.ErrNoIntervals) ||
		errors.Is(err, pipeline.ErrNoWindows)
}
