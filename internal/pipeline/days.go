package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/watchgap/watchgap/internal/history"
)

// BucketDays partitions the event stream into day windows bounded by
// consecutive sleep interval end times (inferred wake times). When
// activity continues past the last detected sleep, the latest event
// timestamp is appended as a synthetic trailing boundary so that
// trailing same-day activity is not lost. Windows are half-open
// [start, end); windows containing no events are dropped.
//
// It returns an error only when a computed window would violate
// end > start, which signals a pipeline defect rather than bad data.
func BucketDays(
	events []history.Event, intervals []SleepInterval, opts Options,
) ([]DayWindow, error) {
	opts = opts.withDefaults()
	if len(events) == 0 || len(intervals) == 0 {
		return nil, nil
	}

	sorted := sortedByTime(events)
	bounds := dayBoundaries(intervals, sorted[len(sorted)-1].Timestamp)

	var windows []DayWindow
	lo := 0
	for i := 1; i < len(bounds); i++ {
		start, end := bounds[i-1], bounds[i]
		if end.Before(start) {
			return nil, fmt.Errorf(
				"day window end %s before start %s", end, start,
			)
		}

		// Advance to the first event at or after start, then take
		// everything strictly before end.
		for lo < len(sorted) && sorted[lo].Timestamp.Before(start) {
			lo++
		}
		hi := lo
		for hi < len(sorted) && sorted[hi].Timestamp.Before(end) {
			hi++
		}
		if hi == lo {
			lo = hi
			continue // empty window, never emitted
		}

		windows = append(windows,
			windowMetrics(sorted[lo:hi], start, end, opts.GapCap))
		lo = hi
	}
	return windows, nil
}

// dayBoundaries collects interval end times sorted ascending and
// appends the latest event timestamp when it falls past the last
// boundary.
func dayBoundaries(
	intervals []SleepInterval, latest time.Time,
) []time.Time {
	bounds := make([]time.Time, 0, len(intervals)+1)
	for _, iv := range intervals {
		bounds = append(bounds, iv.End)
	}
	sort.Slice(bounds, func(i, j int) bool {
		return bounds[i].Before(bounds[j])
	})
	if latest.After(bounds[len(bounds)-1]) {
		bounds = append(bounds, latest)
	}
	return bounds
}

// windowMetrics computes per-window activity metrics over a non-empty
// ascending slice of events. Each inter-event gap is capped so that
// one long in-day pause does not inflate the estimated watch time.
func windowMetrics(
	events []history.Event, start, end time.Time, gapCap time.Duration,
) DayWindow {
	w := DayWindow{
		Start:      start,
		End:        end,
		EventCount: len(events),
	}

	var first, last, total float64
	gaps := 0
	for i := 1; i < len(events); i++ {
		gap := events[i].Timestamp.Sub(events[i-1].Timestamp)
		if gap > gapCap {
			gap = gapCap
		}
		sec := gap.Seconds()
		if gaps == 0 {
			first = sec
		}
		last = sec
		total += sec
		gaps++
	}

	if gaps > 0 {
		w.EstimatedSec = total
		w.AvgGapSec = total / float64(gaps)
		w.GapDiffSec = first - last
	}
	return w
}
