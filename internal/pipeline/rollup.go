package pipeline

import (
	"math"
	"sort"
	"time"
)

// weekIndex returns the number of whole 7-day spans between ref and t.
func weekIndex(ref, t time.Time) int {
	days := int(t.Sub(ref) / (24 * time.Hour))
	return days / 7
}

// WeeklyDayRollup aggregates day windows into week buckets keyed by
// whole 7-day spans since ref. Event counts and estimated seconds
// are summed; the gap average and differential are averaged across
// the windows in each bucket. Output is sorted by week index.
func WeeklyDayRollup(days []DayWindow, ref time.Time) []DayRollup {
	byWeek := make(map[int]*DayRollup)
	for _, d := range days {
		w := weekIndex(ref, d.Start)
		r, ok := byWeek[w]
		if !ok {
			r = &DayRollup{Week: w}
			byWeek[w] = r
		}
		r.Days++
		r.EventCount += d.EventCount
		r.EstimatedSec += d.EstimatedSec
		r.AvgGapSec += d.AvgGapSec
		r.GapDiffSec += d.GapDiffSec
	}

	rollups := make([]DayRollup, 0, len(byWeek))
	for _, r := range byWeek {
		n := float64(r.Days)
		r.AvgGapSec = round1(r.AvgGapSec / n)
		r.GapDiffSec = round1(r.GapDiffSec / n)
		r.EstimatedSec = round1(r.EstimatedSec)
		rollups = append(rollups, *r)
	}
	sort.Slice(rollups, func(i, j int) bool {
		return rollups[i].Week < rollups[j].Week
	})
	return rollups
}

// WeeklySleepRollup averages sleep boundary hours per week bucket of
// the interval start time. Output is sorted by week index.
func WeeklySleepRollup(
	intervals []SleepInterval, ref time.Time,
) []SleepRollup {
	byWeek := make(map[int]*SleepRollup)
	for _, iv := range intervals {
		w := weekIndex(ref, iv.Start)
		r, ok := byWeek[w]
		if !ok {
			r = &SleepRollup{Week: w}
			byWeek[w] = r
		}
		r.Intervals++
		r.AvgStartHour += iv.StartHour
		r.AvgEndHour += iv.EndHour
	}

	rollups := make([]SleepRollup, 0, len(byWeek))
	for _, r := range byWeek {
		n := float64(r.Intervals)
		r.AvgStartHour = round2(r.AvgStartHour / n)
		r.AvgEndHour = round2(r.AvgEndHour / n)
		rollups = append(rollups, *r)
	}
	sort.Slice(rollups, func(i, j int) bool {
		return rollups[i].Week < rollups[j].Week
	})
	return rollups
}

// RecentSleepByDay buckets sleep intervals by civil calendar date of
// their start time inside [end-window, end], averaging the boundary
// hours per date. Output is sorted by date.
func RecentSleepByDay(
	intervals []SleepInterval, end time.Time,
	window time.Duration, loc *time.Location,
) []RecentSleepDay {
	start := end.Add(-window)

	byDate := make(map[string]*RecentSleepDay)
	for _, iv := range intervals {
		if iv.Start.Before(start) || iv.Start.After(end) {
			continue
		}
		date := iv.Start.In(loc).Format("2006-01-02")
		r, ok := byDate[date]
		if !ok {
			r = &RecentSleepDay{Date: date}
			byDate[date] = r
		}
		r.Intervals++
		r.AvgStartHour += iv.StartHour
		r.AvgEndHour += iv.EndHour
	}

	recent := make([]RecentSleepDay, 0, len(byDate))
	for _, r := range byDate {
		n := float64(r.Intervals)
		r.AvgStartHour = round2(r.AvgStartHour / n)
		r.AvgEndHour = round2(r.AvgEndHour / n)
		recent = append(recent, *r)
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].Date < recent[j].Date
	})
	return recent
}

// RecentDayWindows returns the day windows whose start falls inside
// [end-window, end], preserving order.
func RecentDayWindows(
	days []DayWindow, end time.Time, window time.Duration,
) []DayWindow {
	start := end.Add(-window)
	var recent []DayWindow
	for _, d := range days {
		if d.Start.Before(start) || d.Start.After(end) {
			continue
		}
		recent = append(recent, d)
	}
	return recent
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
