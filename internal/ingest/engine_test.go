package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/watchgap/watchgap/internal/db"
	"github.com/watchgap/watchgap/internal/pipeline"
)

// watchFixture holds four events around a 7.5h overnight gap
// (03:00 to 10:30 UTC) plus trailing activity, so detection with
// UTC civil time yields exactly one sleep interval.
const watchFixture = `[
  {"title": "Watched Late video", "time": "2024-06-01T02:30:00Z"},
  {"title": "Watched Last before bed", "time": "2024-06-01T03:00:00Z"},
  {"title": "Watched First after waking", "time": "2024-06-01T10:30:00Z"},
  {"title": "Watched Morning video", "time": "2024-06-01T10:40:00Z"},
  {"title": "Watched Midday video", "time": "2024-06-01T11:00:00Z"}
]`

const searchFixture = `[
  {"title": "Watched Another morning video", "time": "2024-06-01T10:45:00Z"},
  {"title": "Searched for something", "time": "2024-06-01T10:46:00Z"}
]`

func utcOptions() pipeline.Options {
	return pipeline.Options{Location: time.UTC}
}

func writeHistory(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

func newTestEngine(t *testing.T, historyDir string) *Engine {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "watchgap.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return NewEngine(d, historyDir, utcOptions())
}

func TestEngineRun(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, watchHistoryFile, watchFixture)
	e := newTestEngine(t, dir)

	rep, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.EventCount != 5 {
		t.Errorf("EventCount = %d, want 5", rep.EventCount)
	}
	if len(rep.Intervals) != 1 {
		t.Fatalf("got %d intervals, want 1", len(rep.Intervals))
	}

	want := pipeline.SleepInterval{
		Start:     time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		Duration:  7*time.Hour + 30*time.Minute,
		StartHour: 3,
		EndHour:   10.5,
	}
	if diff := cmp.Diff(want, rep.Intervals[0]); diff != "" {
		t.Errorf("interval mismatch (-want +got):\n%s", diff)
	}

	if !e.LastRun().After(time.Time{}) {
		t.Error("LastRun not recorded")
	}
	stored, storedErr := e.LastReport()
	if storedErr != nil {
		t.Errorf("LastReport error = %v", storedErr)
	}
	if diff := cmp.Diff(rep, stored); diff != "" {
		t.Errorf("stored report mismatch (-run +stored):\n%s", diff)
	}
}

func TestEngineMergesSearchHistory(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, watchHistoryFile, watchFixture)
	writeHistory(t, dir, searchHistoryFile, searchFixture)
	e := newTestEngine(t, dir)

	rep, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One accepted record from the search file; the
	// "Searched for" entry is dropped.
	if rep.EventCount != 6 {
		t.Errorf("EventCount = %d, want 6", rep.EventCount)
	}
	stats := e.LastLoadStats()
	if stats.NotWatched != 1 {
		t.Errorf("NotWatched = %d, want 1", stats.NotWatched)
	}
}

func TestEngineMissingWatchFile(t *testing.T) {
	e := newTestEngine(t, t.TempDir())

	if _, err := e.Run(); err == nil {
		t.Fatal("Run succeeded without watch-history.json")
	}
	if _, err := e.LastReport(); err == nil {
		t.Error("LastReport did not retain the error")
	}
}

func TestEngineNoIntervalsStillSnapshots(t *testing.T) {
	dir := t.TempDir()
	// Two events 10 minutes apart: no qualifying gap.
	writeHistory(t, dir, watchHistoryFile, `[
  {"title": "Watched A", "time": "2024-06-01T10:00:00Z"},
  {"title": "Watched B", "time": "2024-06-01T10:10:00Z"}
]`)
	e := newTestEngine(t, dir)

	rep, err := e.Run()
	if !errors.Is(err, pipeline.ErrNoIntervals) {
		t.Fatalf("Run error = %v, want ErrNoIntervals", err)
	}
	if rep.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", rep.EventCount)
	}

	// The partial report is still persisted.
	stats, statsErr := e.db.GetStats(context.Background())
	if statsErr != nil {
		t.Fatalf("GetStats: %v", statsErr)
	}
	if stats.EventCount != 2 || stats.IntervalCount != 0 {
		t.Errorf("stats = %+v, want 2 events and 0 intervals", stats)
	}
}

func TestEngineRunsWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	writeHistory(t, dir, watchHistoryFile, watchFixture)
	e := NewEngine(nil, dir, utcOptions())

	rep, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Intervals) != 1 {
		t.Errorf("got %d intervals, want 1", len(rep.Intervals))
	}
}
