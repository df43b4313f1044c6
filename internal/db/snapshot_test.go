package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/watchgap/watchgap/internal/history"
	"github.com/watchgap/watchgap/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "watchgap.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return parsed.UTC()
}

func sampleReport(t *testing.T) ([]history.Event, pipeline.Report) {
	t.Helper()
	events := []history.Event{
		{Timestamp: ts(t, "2024-06-01T10:00:00Z"), Title: "Watched A"},
		{Timestamp: ts(t, "2024-06-01T16:10:00Z"), Title: "Watched B"},
	}
	rep := pipeline.Report{
		EventCount: 2,
		Intervals: []pipeline.SleepInterval{
			{
				Start:     ts(t, "2024-06-01T10:00:00Z"),
				End:       ts(t, "2024-06-01T16:10:00Z"),
				Duration:  6*time.Hour + 10*time.Minute,
				StartHour: 10,
				EndHour:   16 + 10.0/60,
			},
		},
		Days: []pipeline.DayWindow{
			{
				Start:        ts(t, "2024-06-01T16:10:00Z"),
				End:          ts(t, "2024-06-02T01:00:00Z"),
				EventCount:   3,
				EstimatedSec: 1500,
				AvgGapSec:    750,
				GapDiffSec:   -300,
			},
		},
	}
	return events, rep
}

func TestReplaceSnapshotRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	events, rep := sampleReport(t)

	if err := d.ReplaceSnapshot(events, rep); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}

	intervals, err := d.ListIntervals(ctx)
	if err != nil {
		t.Fatalf("ListIntervals: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("got %d intervals, want 1", len(intervals))
	}
	iv := intervals[0]
	want := rep.Intervals[0]
	if !iv.Start.Equal(want.Start) || !iv.End.Equal(want.End) {
		t.Errorf("interval bounds = %v..%v, want %v..%v",
			iv.Start, iv.End, want.Start, want.End)
	}
	if iv.Duration != want.Duration {
		t.Errorf("duration = %v, want %v", iv.Duration, want.Duration)
	}
	if iv.StartHour != want.StartHour || iv.EndHour != want.EndHour {
		t.Errorf("hours = %v/%v, want %v/%v",
			iv.StartHour, iv.EndHour, want.StartHour, want.EndHour)
	}

	days, err := d.ListDayWindows(ctx)
	if err != nil {
		t.Fatalf("ListDayWindows: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("got %d day windows, want 1", len(days))
	}
	if days[0].EventCount != 3 || days[0].GapDiffSec != -300 {
		t.Errorf("day window = %+v, want count 3 and diff -300", days[0])
	}
}

func TestReplaceSnapshotOverwrites(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	events, rep := sampleReport(t)

	if err := d.ReplaceSnapshot(events, rep); err != nil {
		t.Fatalf("first ReplaceSnapshot: %v", err)
	}
	// Second snapshot with no intervals or windows.
	empty := pipeline.Report{EventCount: 1}
	if err := d.ReplaceSnapshot(events[:1], empty); err != nil {
		t.Fatalf("second ReplaceSnapshot: %v", err)
	}

	stats, err := d.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", stats.EventCount)
	}
	if stats.IntervalCount != 0 || stats.WindowCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0",
			stats.IntervalCount, stats.WindowCount)
	}
	if stats.LastRunAt == "" {
		t.Error("LastRunAt empty after snapshot")
	}
}

func TestGetStatsEmptyDB(t *testing.T) {
	d := openTestDB(t)

	stats, err := d.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EventCount != 0 || stats.LastRunAt != "" {
		t.Errorf("stats = %+v, want zero values", stats)
	}
}

func TestListEmptyDB(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	intervals, err := d.ListIntervals(ctx)
	if err != nil {
		t.Fatalf("ListIntervals: %v", err)
	}
	if len(intervals) != 0 {
		t.Errorf("got %d intervals, want 0", len(intervals))
	}

	days, err := d.ListDayWindows(ctx)
	if err != nil {
		t.Fatalf("ListDayWindows: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("got %d day windows, want 0", len(days))
	}
}
