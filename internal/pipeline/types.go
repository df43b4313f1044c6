// Package pipeline turns a raw stream of watch events into inferred
// sleep intervals, activity-bounded day windows, and week-level
// rollups. Every stage is a pure function of its inputs.
package pipeline

import (
	"time"
)

// SleepInterval is an inferred rest period: the last event before an
// inactivity gap and the first event after it. StartHour and EndHour
// are fractional hours of day in the configured civil timezone.
type SleepInterval struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Duration  time.Duration `json:"duration_ns"`
	StartHour float64       `json:"start_hour"`
	EndHour   float64       `json:"end_hour"`
}

// DayWindow is an activity-bounded day: the span between two
// consecutive inferred wake times. Boundaries come from sleep
// interval end times, not calendar midnight.
type DayWindow struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	EventCount   int       `json:"event_count"`
	EstimatedSec float64   `json:"estimated_sec"`
	AvgGapSec    float64   `json:"avg_gap_sec"`
	GapDiffSec   float64   `json:"gap_diff_sec"`
}

// DayRollup aggregates day windows into one week bucket.
type DayRollup struct {
	Week         int     `json:"week"`
	Days         int     `json:"days"`
	EventCount   int     `json:"event_count"`
	EstimatedSec float64 `json:"estimated_sec"`
	AvgGapSec    float64 `json:"avg_gap_sec"`
	GapDiffSec   float64 `json:"gap_diff_sec"`
}

// SleepRollup aggregates sleep intervals into one week bucket.
type SleepRollup struct {
	Week         int     `json:"week"`
	Intervals    int     `json:"intervals"`
	AvgStartHour float64 `json:"avg_start_hour"`
	AvgEndHour   float64 `json:"avg_end_hour"`
}

// RecentSleepDay holds averaged sleep boundary hours for one civil
// calendar date inside the trailing window.
type RecentSleepDay struct {
	Date         string  `json:"date"` // YYYY-MM-DD in the civil zone
	Intervals    int     `json:"intervals"`
	AvgStartHour float64 `json:"avg_start_hour"`
	AvgEndHour   float64 `json:"avg_end_hour"`
}

// DistributionBucket is a labeled count for histogram display.
type DistributionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Report is the full output of one pipeline run.
type Report struct {
	EventCount  int                  `json:"event_count"`
	Intervals   []SleepInterval      `json:"intervals"`
	Days        []DayWindow          `json:"days"`
	WeeklyDays  []DayRollup          `json:"weekly_days"`
	WeeklySleep []SleepRollup        `json:"weekly_sleep"`
	RecentSleep []RecentSleepDay     `json:"recent_sleep"`
	RecentDays  []DayWindow          `json:"recent_days"`
	SleepHist   []DistributionBucket `json:"sleep_duration_hist"`
	GapDiffHist []DistributionBucket `json:"gap_diff_hist"`
}

// Default tuning values. All of them are configurable via Options.
const (
	DefaultGapThreshold = 5 * time.Hour
	DefaultMinSleep     = 3 * time.Hour
	DefaultMaxSleep     = 12 * time.Hour
	DefaultGapCap       = 900 * time.Second
	DefaultRecentWindow = 30 * 24 * time.Hour

	DefaultBedtimeStartHour = 2.0
	DefaultBedtimeEndHour   = 7.0
	DefaultWakeStartHour    = 10.0
	DefaultWakeEndHour      = 14.0

	DefaultTimezone = "America/New_York"
)

// Options configures a pipeline run. The zero value plus
// withDefaults reproduces the standard tuning.
type Options struct {
	// GapThreshold is the minimum inactivity gap that qualifies as
	// a sleep candidate. Strict comparison: a gap equal to the
	// threshold does not qualify.
	GapThreshold time.Duration

	// StrictValidation enables the duration and time-of-day
	// plausibility checks on candidate intervals.
	StrictValidation bool

	// Plausibility bounds, used only when StrictValidation is set.
	// Duration bounds are inclusive, as are the hour windows.
	MinSleep         time.Duration
	MaxSleep         time.Duration
	BedtimeStartHour float64 // predecessor local hour window
	BedtimeEndHour   float64
	WakeStartHour    float64 // successor local hour window
	WakeEndHour      float64

	// GapCap limits each in-day inter-event gap when estimating
	// watch time, so a long pause does not count as watching.
	GapCap time.Duration

	// Location is the civil timezone for plausibility evaluation
	// and calendar-day bucketing. Nil means America/New_York.
	Location *time.Location

	// RangeStart and RangeEnd bound the analysis (inclusive).
	// Zero values mean unbounded.
	RangeStart time.Time
	RangeEnd   time.Time

	// ReferenceStart anchors week indexing. Zero means RangeStart,
	// falling back to the earliest event in range.
	ReferenceStart time.Time

	// RecentWindow is the length of the trailing recent view.
	// RecentEnd is its end; zero means the end of the data range.
	RecentWindow time.Duration
	RecentEnd    time.Time
}

// withDefaults fills zero-valued fields with the standard tuning.
func (o Options) withDefaults() Options {
	if o.GapThreshold <= 0 {
		o.GapThreshold = DefaultGapThreshold
	}
	if o.MinSleep <= 0 {
		o.MinSleep = DefaultMinSleep
	}
	if o.MaxSleep <= 0 {
		o.MaxSleep = DefaultMaxSleep
	}
	if o.BedtimeEndHour <= 0 {
		o.BedtimeStartHour = DefaultBedtimeStartHour
		o.BedtimeEndHour = DefaultBedtimeEndHour
	}
	if o.WakeEndHour <= 0 {
		o.WakeStartHour = DefaultWakeStartHour
		o.WakeEndHour = DefaultWakeEndHour
	}
	if o.GapCap <= 0 {
		o.GapCap = DefaultGapCap
	}
	if o.Location == nil {
		o.Location = defaultLocation()
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	return o
}

func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// civilHour returns the fractional hour of day of t in loc.
func civilHour(t time.Time, loc *time.Location) float64 {
	lt := t.In(loc)
	return float64(lt.Hour()) +
		float64(lt.Minute())/60 +
		float64(lt.Second())/3600
}
