package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/watchgap/watchgap/internal/history"
	"github.com/watchgap/watchgap/internal/pipeline"
)

// timeFormat is the canonical timestamp encoding: RFC3339Nano, UTC.
const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ReplaceSnapshot atomically replaces the stored analysis snapshot
// with the given events and pipeline output, and records the run.
func (db *DB) ReplaceSnapshot(
	events []history.Event, rep pipeline.Report,
) error {
	return db.Update(func(tx *sql.Tx) error {
		for _, table := range []string{
			"events", "sleep_intervals", "day_windows",
		} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		if err := insertEvents(tx, events); err != nil {
			return err
		}
		if err := insertIntervals(tx, rep.Intervals); err != nil {
			return err
		}
		if err := insertWindows(tx, rep.Days); err != nil {
			return err
		}

		_, err := tx.Exec(
			`INSERT INTO analysis_runs
			 (ran_at, event_count, interval_count, window_count)
			 VALUES (?, ?, ?, ?)`,
			encodeTime(time.Now()),
			len(events), len(rep.Intervals), len(rep.Days),
		)
		if err != nil {
			return fmt.Errorf("recording analysis run: %w", err)
		}
		return nil
	})
}

func insertEvents(tx *sql.Tx, events []history.Event) error {
	stmt, err := tx.Prepare(
		`INSERT INTO events (timestamp, title) VALUES (?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(
			encodeTime(ev.Timestamp), ev.Title,
		); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
	}
	return nil
}

func insertIntervals(tx *sql.Tx, intervals []pipeline.SleepInterval) error {
	stmt, err := tx.Prepare(
		`INSERT INTO sleep_intervals
		 (start_at, end_at, duration_ns, start_hour, end_hour)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing interval insert: %w", err)
	}
	defer stmt.Close()

	for _, iv := range intervals {
		if _, err := stmt.Exec(
			encodeTime(iv.Start), encodeTime(iv.End),
			int64(iv.Duration), iv.StartHour, iv.EndHour,
		); err != nil {
			return fmt.Errorf("inserting interval: %w", err)
		}
	}
	return nil
}

func insertWindows(tx *sql.Tx, days []pipeline.DayWindow) error {
	stmt, err := tx.Prepare(
		`INSERT INTO day_windows
		 (start_at, end_at, event_count,
		  estimated_sec, avg_gap_sec, gap_diff_sec)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing window insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range days {
		if _, err := stmt.Exec(
			encodeTime(d.Start), encodeTime(d.End), d.EventCount,
			d.EstimatedSec, d.AvgGapSec, d.GapDiffSec,
		); err != nil {
			return fmt.Errorf("inserting window: %w", err)
		}
	}
	return nil
}

// ListIntervals returns all stored sleep intervals ordered by start.
func (db *DB) ListIntervals(
	ctx context.Context,
) ([]pipeline.SleepInterval, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT start_at, end_at, duration_ns, start_hour, end_hour
		 FROM sleep_intervals ORDER BY start_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying intervals: %w", err)
	}
	defer rows.Close()

	var intervals []pipeline.SleepInterval
	for rows.Next() {
		var startAt, endAt string
		var durNS int64
		var iv pipeline.SleepInterval
		if err := rows.Scan(
			&startAt, &endAt, &durNS, &iv.StartHour, &iv.EndHour,
		); err != nil {
			return nil, fmt.Errorf("scanning interval: %w", err)
		}
		if iv.Start, err = decodeTime(startAt); err != nil {
			return nil, err
		}
		if iv.End, err = decodeTime(endAt); err != nil {
			return nil, err
		}
		iv.Duration = time.Duration(durNS)
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating intervals: %w", err)
	}
	return intervals, nil
}

// ListDayWindows returns all stored day windows ordered by start.
func (db *DB) ListDayWindows(
	ctx context.Context,
) ([]pipeline.DayWindow, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT start_at, end_at, event_count,
		        estimated_sec, avg_gap_sec, gap_diff_sec
		 FROM day_windows ORDER BY start_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying day windows: %w", err)
	}
	defer rows.Close()

	var days []pipeline.DayWindow
	for rows.Next() {
		var startAt, endAt string
		var d pipeline.DayWindow
		if err := rows.Scan(
			&startAt, &endAt, &d.EventCount,
			&d.EstimatedSec, &d.AvgGapSec, &d.GapDiffSec,
		); err != nil {
			return nil, fmt.Errorf("scanning day window: %w", err)
		}
		if d.Start, err = decodeTime(startAt); err != nil {
			return nil, err
		}
		if d.End, err = decodeTime(endAt); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating day windows: %w", err)
	}
	return days, nil
}

// Stats holds snapshot counts and the time of the last analysis run.
type Stats struct {
	EventCount    int    `json:"event_count"`
	IntervalCount int    `json:"interval_count"`
	WindowCount   int    `json:"window_count"`
	LastRunAt     string `json:"last_run_at,omitempty"`
}

// GetStats returns counts for the current snapshot.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM sleep_intervals),
			(SELECT COUNT(*) FROM day_windows),
			COALESCE(
				(SELECT ran_at FROM analysis_runs
				 ORDER BY id DESC LIMIT 1), '')`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.EventCount, &s.IntervalCount, &s.WindowCount, &s.LastRunAt,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
