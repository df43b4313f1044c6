package pipeline

import (
	"errors"
	"time"

	"github.com/watchgap/watchgap/internal/history"
)

// Distinguishable empty terminal states. Callers decide how to
// present them; none indicates a defect.
var (
	// ErrNoEvents means no accepted events fell inside the
	// analysis range.
	ErrNoEvents = errors.New("no watch events in range")
	// ErrNoIntervals means no inactivity gap qualified as sleep.
	ErrNoIntervals = errors.New("no sleep intervals detected")
	// ErrNoWindows means no day window contained any events.
	ErrNoWindows = errors.New("no day windows computed")
)

// Run executes the full pipeline: range filter, sleep interval
// detection, day bucketing, and periodic rollups. The returned
// Report always reflects whatever stages produced output; the error,
// when non-nil, is one of the ErrNo* sentinels describing the first
// empty stage, or an invariant violation from day bucketing.
//
// Run is a pure function of its inputs and may be called repeatedly
// or concurrently on independent data.
func Run(events []history.Event, opts Options) (Report, error) {
	opts = opts.withDefaults()

	inRange := filterRange(events, opts.RangeStart, opts.RangeEnd)
	rep := Report{EventCount: len(inRange)}
	if len(inRange) == 0 {
		return rep, ErrNoEvents
	}

	rep.Intervals = DetectSleepIntervals(inRange, opts)
	if len(rep.Intervals) == 0 {
		return rep, ErrNoIntervals
	}
	rep.SleepHist = SleepDurationHistogram(rep.Intervals)

	days, err := BucketDays(inRange, rep.Intervals, opts)
	if err != nil {
		return rep, err
	}
	rep.Days = days
	if len(rep.Days) == 0 {
		return rep, ErrNoWindows
	}
	rep.GapDiffHist = GapDiffHistogram(rep.Days)

	ref := opts.ReferenceStart
	if ref.IsZero() {
		ref = opts.RangeStart
	}
	if ref.IsZero() {
		ref = earliest(inRange)
	}
	rep.WeeklyDays = WeeklyDayRollup(rep.Days, ref)
	rep.WeeklySleep = WeeklySleepRollup(rep.Intervals, ref)

	recentEnd := opts.RecentEnd
	if recentEnd.IsZero() {
		recentEnd = opts.RangeEnd
	}
	if recentEnd.IsZero() {
		recentEnd = latest(inRange)
	}
	rep.RecentSleep = RecentSleepByDay(
		rep.Intervals, recentEnd, opts.RecentWindow, opts.Location,
	)
	rep.RecentDays = RecentDayWindows(
		rep.Days, recentEnd, opts.RecentWindow,
	)

	return rep, nil
}

// filterRange keeps events inside [start, end], inclusive on both
// ends. Zero bounds are open.
func filterRange(
	events []history.Event, start, end time.Time,
) []history.Event {
	if start.IsZero() && end.IsZero() {
		return events
	}
	var kept []history.Event
	for _, ev := range events {
		if !start.IsZero() && ev.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && ev.Timestamp.After(end) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

func earliest(events []history.Event) time.Time {
	t := events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(t) {
			t = ev.Timestamp
		}
	}
	return t
}

func latest(events []history.Event) time.Time {
	t := events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.After(t) {
			t = ev.Timestamp
		}
	}
	return t
}
