package pipeline

import "sort"

// sleepDurationBucket returns the bucket label for a sleep duration
// in hours.
func sleepDurationBucket(hours float64) string {
	switch {
	case hours < 3:
		return "<3h"
	case hours < 5:
		return "3-5h"
	case hours < 7:
		return "5-7h"
	case hours < 9:
		return "7-9h"
	case hours < 12:
		return "9-12h"
	default:
		return "12h+"
	}
}

// gapDiffBucket returns the bucket label for a gap differential in
// seconds. Negative values mean the last in-day gap was longer than
// the first.
func gapDiffBucket(sec float64) string {
	switch {
	case sec < -600:
		return "<-10m"
	case sec < -60:
		return "-10m..-1m"
	case sec < 60:
		return "-1m..1m"
	case sec < 600:
		return "1m..10m"
	default:
		return "10m+"
	}
}

var (
	sleepDurationOrder = map[string]int{
		"<3h": 0, "3-5h": 1, "5-7h": 2,
		"7-9h": 3, "9-12h": 4, "12h+": 5,
	}
	gapDiffOrder = map[string]int{
		"<-10m": 0, "-10m..-1m": 1, "-1m..1m": 2,
		"1m..10m": 3, "10m+": 4,
	}
)

// mapToBuckets converts a label→count map to buckets sorted by the
// given order.
func mapToBuckets(
	m map[string]int, order map[string]int,
) []DistributionBucket {
	buckets := make([]DistributionBucket, 0, len(m))
	for label, count := range m {
		buckets = append(buckets, DistributionBucket{
			Label: label, Count: count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return order[buckets[i].Label] < order[buckets[j].Label]
	})
	return buckets
}

// SleepDurationHistogram bins interval durations into labeled
// hour-range buckets.
func SleepDurationHistogram(
	intervals []SleepInterval,
) []DistributionBucket {
	counts := make(map[string]int)
	for _, iv := range intervals {
		counts[sleepDurationBucket(iv.Duration.Hours())]++
	}
	return mapToBuckets(counts, sleepDurationOrder)
}

// GapDiffHistogram bins day-window gap differentials into labeled
// second-range buckets.
func GapDiffHistogram(days []DayWindow) []DistributionBucket {
	counts := make(map[string]int)
	for _, d := range days {
		counts[gapDiffBucket(d.GapDiffSec)]++
	}
	return mapToBuckets(counts, gapDiffOrder)
}
