package pipeline

import (
	"sort"

	"github.com/watchgap/watchgap/internal/history"
)

// DetectSleepIntervals finds inactivity gaps longer than the
// configured threshold in an event stream and returns them as sleep
// intervals, ordered by start time. The input order does not matter;
// events are sorted internally. Fewer than two events yields nil.
//
// When strict validation is enabled, a candidate survives only if
// its duration falls inside [MinSleep, MaxSleep], the last event
// before the gap lands in the bedtime hour window, and the first
// event after it lands in the wake hour window — all evaluated in
// the configured civil timezone.
func DetectSleepIntervals(
	events []history.Event, opts Options,
) []SleepInterval {
	opts = opts.withDefaults()
	if len(events) < 2 {
		return nil
	}

	sorted := sortedByTime(events)

	var intervals []SleepInterval
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap <= opts.GapThreshold {
			continue
		}

		iv := SleepInterval{
			Start:     prev.Timestamp,
			End:       cur.Timestamp,
			Duration:  gap,
			StartHour: civilHour(prev.Timestamp, opts.Location),
			EndHour:   civilHour(cur.Timestamp, opts.Location),
		}
		if opts.StrictValidation && !plausible(iv, opts) {
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals
}

// plausible applies the strict-mode sanity checks to a candidate.
func plausible(iv SleepInterval, opts Options) bool {
	if iv.Duration < opts.MinSleep || iv.Duration > opts.MaxSleep {
		return false
	}
	if iv.StartHour < opts.BedtimeStartHour ||
		iv.StartHour > opts.BedtimeEndHour {
		return false
	}
	if iv.EndHour < opts.WakeStartHour ||
		iv.EndHour > opts.WakeEndHour {
		return false
	}
	return true
}

// sortedByTime returns a copy of events sorted ascending by
// timestamp. The sort is stable so tie order is preserved.
func sortedByTime(events []history.Event) []history.Event {
	sorted := make([]history.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
