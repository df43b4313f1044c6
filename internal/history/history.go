// Package history loads YouTube history exports (Google Takeout
// watch-history.json and search-history.json) and filters them down
// to accepted watch events.
package history

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Event is one accepted watch event. Timestamps are normalized to UTC.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
}

// LoadStats counts records dropped while loading. Telemetry only:
// dropped records are never surfaced as errors and the counters do
// not influence which records are accepted.
type LoadStats struct {
	Accepted     int `json:"accepted"`
	AdFiltered   int `json:"ad_filtered"`
	NotWatched   int `json:"not_watched"`
	BadTimestamp int `json:"bad_timestamp"`
}

// Total returns the number of records examined.
func (s LoadStats) Total() int {
	return s.Accepted + s.AdFiltered + s.NotWatched + s.BadTimestamp
}

// Add accumulates counts from another LoadStats.
func (s *LoadStats) Add(o LoadStats) {
	s.Accepted += o.Accepted
	s.AdFiltered += o.AdFiltered
	s.NotWatched += o.NotWatched
	s.BadTimestamp += o.BadTimestamp
}

const (
	watchedPrefix = "Watched"
	adDetailName  = "From Google Ads"
)

// LoadFile reads a history export file and returns its accepted
// events. The file must contain a JSON array of records.
func LoadFile(path string) ([]Event, LoadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("reading %s: %w", path, err)
	}
	events, stats := Parse(data)
	return events, stats, nil
}

// Parse filters a raw JSON array of history records down to accepted
// events. A record is accepted when it carries no "From Google Ads"
// detail, its title starts with "Watched", and its time field parses
// as an RFC 3339 timestamp. Everything else is dropped silently.
// Malformed input yields zero events, not an error.
func Parse(data []byte) ([]Event, LoadStats) {
	var (
		events []Event
		stats  LoadStats
	)
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, stats
	}
	root.ForEach(func(_, rec gjson.Result) bool {
		ev, reason := parseRecord(rec)
		switch reason {
		case dropNone:
			events = append(events, ev)
			stats.Accepted++
		case dropAd:
			stats.AdFiltered++
		case dropNotWatched:
			stats.NotWatched++
		case dropBadTimestamp:
			stats.BadTimestamp++
		}
		return true
	})
	return events, stats
}

type dropReason int

const (
	dropNone dropReason = iota
	dropAd
	dropNotWatched
	dropBadTimestamp
)

func parseRecord(rec gjson.Result) (Event, dropReason) {
	if isAd(rec) {
		return Event{}, dropAd
	}
	title := rec.Get("title").Str
	if !strings.HasPrefix(title, watchedPrefix) {
		return Event{}, dropNotWatched
	}
	ts, ok := parseTimestamp(rec.Get("time").Str)
	if !ok {
		return Event{}, dropBadTimestamp
	}
	return Event{Timestamp: ts, Title: title}, dropNone
}

// isAd reports whether any entry in the optional details list names
// the Google Ads source. Comparison trims surrounding whitespace.
func isAd(rec gjson.Result) bool {
	ad := false
	rec.Get("details").ForEach(func(_, d gjson.Result) bool {
		if strings.TrimSpace(d.Get("name").Str) == adDetailName {
			ad = true
			return false
		}
		return true
	})
	return ad
}

// parseTimestamp tries RFC3339Nano then RFC3339 and normalizes to UTC.
func parseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
	}
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
