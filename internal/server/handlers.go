package server

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/watchgap/watchgap/internal/history"
	"github.com/watchgap/watchgap/internal/pipeline"
)

func (s *Server) handleListIntervals(
	w http.ResponseWriter, r *http.Request,
) {
	intervals, err := s.db.ListIntervals(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if intervals == nil {
		intervals = []pipeline.SleepInterval{}
	}
	writeJSON(w, http.StatusOK, intervals)
}

func (s *Server) handleListDays(
	w http.ResponseWriter, r *http.Request,
) {
	days, err := s.db.ListDayWindows(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if days == nil {
		days = []pipeline.DayWindow{}
	}
	writeJSON(w, http.StatusOK, days)
}

// report returns the last computed report, or false after writing
// a 503 when no analysis has completed yet.
func (s *Server) report(w http.ResponseWriter) (pipeline.Report, bool) {
	if s.engine == nil || s.engine.LastRun().IsZero() {
		writeError(
			w, http.StatusServiceUnavailable,
			"analysis has not run yet",
		)
		return pipeline.Report{}, false
	}
	rep, _ := s.engine.LastReport()
	return rep, true
}

func (s *Server) handleWeeklyRollup(
	w http.ResponseWriter, _ *http.Request,
) {
	rep, ok := s.report(w)
	if !ok {
		return
	}
	if rep.WeeklyDays == nil {
		rep.WeeklyDays = []pipeline.DayRollup{}
	}
	writeJSON(w, http.StatusOK, rep.WeeklyDays)
}

func (s *Server) handleSleepRollup(
	w http.ResponseWriter, _ *http.Request,
) {
	rep, ok := s.report(w)
	if !ok {
		return
	}
	if rep.WeeklySleep == nil {
		rep.WeeklySleep = []pipeline.SleepRollup{}
	}
	writeJSON(w, http.StatusOK, rep.WeeklySleep)
}

type recentResponse struct {
	Sleep []pipeline.RecentSleepDay `json:"sleep"`
	Days  []pipeline.DayWindow      `json:"days"`
}

func (s *Server) handleRecent(
	w http.ResponseWriter, _ *http.Request,
) {
	rep, ok := s.report(w)
	if !ok {
		return
	}
	resp := recentResponse{
		Sleep: rep.RecentSleep,
		Days:  rep.RecentDays,
	}
	if resp.Sleep == nil {
		resp.Sleep = []pipeline.RecentSleepDay{}
	}
	if resp.Days == nil {
		resp.Days = []pipeline.DayWindow{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type summaryResponse struct {
	EventCount    int                           `json:"event_count"`
	IntervalCount int                           `json:"interval_count"`
	DayCount      int                           `json:"day_count"`
	AvgSleepHours float64                       `json:"avg_sleep_hours"`
	AvgBedHour    float64                       `json:"avg_bed_hour"`
	AvgWakeHour   float64                       `json:"avg_wake_hour"`
	Load          history.LoadStats             `json:"load"`
	SleepHist     []pipeline.DistributionBucket `json:"sleep_duration_hist"`
	GapDiffHist   []pipeline.DistributionBucket `json:"gap_diff_hist"`
	LastRunAt     string                        `json:"last_run_at"`
}

func (s *Server) handleSummary(
	w http.ResponseWriter, _ *http.Request,
) {
	rep, ok := s.report(w)
	if !ok {
		return
	}

	resp := summaryResponse{
		EventCount:    rep.EventCount,
		IntervalCount: len(rep.Intervals),
		DayCount:      len(rep.Days),
		Load:          s.engine.LastLoadStats(),
		SleepHist:     rep.SleepHist,
		GapDiffHist:   rep.GapDiffHist,
		LastRunAt:     s.engine.LastRun().UTC().Format(time.RFC3339),
	}
	if resp.SleepHist == nil {
		resp.SleepHist = []pipeline.DistributionBucket{}
	}
	if resp.GapDiffHist == nil {
		resp.GapDiffHist = []pipeline.DistributionBucket{}
	}

	if n := len(rep.Intervals); n > 0 {
		var dur, bed, wake float64
		for _, iv := range rep.Intervals {
			dur += iv.Duration.Hours()
			bed += iv.StartHour
			wake += iv.EndHour
		}
		resp.AvgSleepHours = round2(dur / float64(n))
		resp.AvgBedHour = round2(bed / float64(n))
		resp.AvgWakeHour = round2(wake / float64(n))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type refreshResponse struct {
	EventCount    int    `json:"event_count"`
	IntervalCount int    `json:"interval_count"`
	DayCount      int    `json:"day_count"`
	Warning       string `json:"warning,omitempty"`
}

func (s *Server) handleRefresh(
	w http.ResponseWriter, _ *http.Request,
) {
	rep, err := s.engine.Run()
	if err != nil && !isEmptyDataErr(err) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := refreshResponse{
		EventCount:    rep.EventCount,
		IntervalCount: len(rep.Intervals),
		DayCount:      len(rep.Days),
	}
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func isEmptyDataErr(err error) bool {
	return errors.Is(err, pipeline.ErrNoEvents) ||
		errors.Is(err, pipeline.ErrNoIntervals) ||
		errors.Is(err, pipeline.ErrNoWindows)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
