// Package config layers application configuration from defaults,
// an optional config.json in the data directory, environment
// variables, and explicitly-set CLI flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/watchgap/watchgap/internal/pipeline"
)

// Config holds all application configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	HistoryDir   string        `json:"history_dir"`
	DataDir      string        `json:"data_dir"`
	DBPath       string        `json:"-"`
	WriteTimeout time.Duration `json:"-"`

	// Analysis tuning.
	Timezone          string  `json:"timezone"`
	GapThresholdHours float64 `json:"gap_threshold_hours"`
	Strict            bool    `json:"strict"`
	MinSleepHours     float64 `json:"min_sleep_hours"`
	MaxSleepHours     float64 `json:"max_sleep_hours"`
	BedtimeStartHour  float64 `json:"bedtime_start_hour"`
	BedtimeEndHour    float64 `json:"bedtime_end_hour"`
	WakeStartHour     float64 `json:"wake_start_hour"`
	WakeEndHour       float64 `json:"wake_end_hour"`
	GapCapSec         float64 `json:"gap_cap_sec"`
	RecentDays        int     `json:"recent_days"`

	// RangeStart and RangeEnd bound the analysis, as YYYY-MM-DD
	// dates interpreted in the civil timezone. Empty means open.
	RangeStart string `json:"range_start"`
	RangeEnd   string `json:"range_end"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".watchgap")
	return Config{
		Host:              "127.0.0.1",
		Port:              8080,
		HistoryDir:        filepath.Join(home, "Takeout", "YouTube and YouTube Music", "history"),
		DataDir:           dataDir,
		DBPath:            filepath.Join(dataDir, "watchgap.db"),
		WriteTimeout:      30 * time.Second,
		Timezone:          pipeline.DefaultTimezone,
		GapThresholdHours: pipeline.DefaultGapThreshold.Hours(),
		Strict:            true,
		MinSleepHours:     pipeline.DefaultMinSleep.Hours(),
		MaxSleepHours:     pipeline.DefaultMaxSleep.Hours(),
		BedtimeStartHour:  pipeline.DefaultBedtimeStartHour,
		BedtimeEndHour:    pipeline.DefaultBedtimeEndHour,
		WakeStartHour:     pipeline.DefaultWakeStartHour,
		WakeEndHour:       pipeline.DefaultWakeEndHour,
		GapCapSec:         pipeline.DefaultGapCap.Seconds(),
		RecentDays:        int(pipeline.DefaultRecentWindow.Hours() / 24),
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, config file, and env,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	cfg.loadEnv()

	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "watchgap.db")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		HistoryDir        string   `json:"history_dir"`
		Timezone          string   `json:"timezone"`
		GapThresholdHours *float64 `json:"gap_threshold_hours"`
		Strict            *bool    `json:"strict"`
		MinSleepHours     *float64 `json:"min_sleep_hours"`
		MaxSleepHours     *float64 `json:"max_sleep_hours"`
		BedtimeStartHour  *float64 `json:"bedtime_start_hour"`
		BedtimeEndHour    *float64 `json:"bedtime_end_hour"`
		WakeStartHour     *float64 `json:"wake_start_hour"`
		WakeEndHour       *float64 `json:"wake_end_hour"`
		GapCapSec         *float64 `json:"gap_cap_sec"`
		RecentDays        *int     `json:"recent_days"`
		RangeStart        string   `json:"range_start"`
		RangeEnd          string   `json:"range_end"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	// loadEnv runs before loadFile, so env wins for the fields
	// it covers; everything else defers to the file.
	if file.HistoryDir != "" && os.Getenv("WATCHGAP_HISTORY_DIR") == "" {
		c.HistoryDir = file.HistoryDir
	}
	if file.Timezone != "" && os.Getenv("WATCHGAP_TIMEZONE") == "" {
		c.Timezone = file.Timezone
	}
	if file.GapThresholdHours != nil {
		c.GapThresholdHours = *file.GapThresholdHours
	}
	if file.Strict != nil {
		c.Strict = *file.Strict
	}
	if file.MinSleepHours != nil {
		c.MinSleepHours = *file.MinSleepHours
	}
	if file.MaxSleepHours != nil {
		c.MaxSleepHours = *file.MaxSleepHours
	}
	if file.BedtimeStartHour != nil {
		c.BedtimeStartHour = *file.BedtimeStartHour
	}
	if file.BedtimeEndHour != nil {
		c.BedtimeEndHour = *file.BedtimeEndHour
	}
	if file.WakeStartHour != nil {
		c.WakeStartHour = *file.WakeStartHour
	}
	if file.WakeEndHour != nil {
		c.WakeEndHour = *file.WakeEndHour
	}
	if file.GapCapSec != nil {
		c.GapCapSec = *file.GapCapSec
	}
	if file.RecentDays != nil {
		c.RecentDays = *file.RecentDays
	}
	if file.RangeStart != "" {
		c.RangeStart = file.RangeStart
	}
	if file.RangeEnd != "" {
		c.RangeEnd = file.RangeEnd
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("WATCHGAP_HISTORY_DIR"); v != "" {
		c.HistoryDir = v
	}
	if v := os.Getenv("WATCHGAP_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("WATCHGAP_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	RegisterAnalysisFlags(fs)
}

// RegisterAnalysisFlags registers the analysis tuning flags
// shared by the analyze and serve commands.
func RegisterAnalysisFlags(fs *flag.FlagSet) {
	fs.String("history-dir", "", "Directory containing watch-history.json")
	fs.String("timezone", pipeline.DefaultTimezone, "Civil timezone for day bucketing")
	fs.Float64("gap-hours", pipeline.DefaultGapThreshold.Hours(),
		"Minimum inactivity gap counted as sleep, in hours")
	fs.Bool("strict", true, "Apply duration and time-of-day plausibility checks")
	fs.String("start", "", "Analysis range start (YYYY-MM-DD)")
	fs.String("end", "", "Analysis range end (YYYY-MM-DD)")
	fs.Int("recent-days", int(pipeline.DefaultRecentWindow.Hours()/24),
		"Length of the trailing recent view, in days")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "history-dir":
			cfg.HistoryDir = f.Value.String()
		case "timezone":
			cfg.Timezone = f.Value.String()
		case "gap-hours":
			cfg.GapThresholdHours, _ = strconv.ParseFloat(f.Value.String(), 64)
		case "strict":
			cfg.Strict = f.Value.String() == "true"
		case "start":
			cfg.RangeStart = f.Value.String()
		case "end":
			cfg.RangeEnd = f.Value.String()
		case "recent-days":
			cfg.RecentDays, _ = strconv.Atoi(f.Value.String())
		}
	})
}

// Options converts the configuration into pipeline options,
// resolving the timezone and parsing the range dates.
func (c *Config) Options() (pipeline.Options, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf(
			"loading timezone %q: %w", c.Timezone, err,
		)
	}

	opts := pipeline.Options{
		GapThreshold:     durationHours(c.GapThresholdHours),
		StrictValidation: c.Strict,
		MinSleep:         durationHours(c.MinSleepHours),
		MaxSleep:         durationHours(c.MaxSleepHours),
		BedtimeStartHour: c.BedtimeStartHour,
		BedtimeEndHour:   c.BedtimeEndHour,
		WakeStartHour:    c.WakeStartHour,
		WakeEndHour:      c.WakeEndHour,
		GapCap:           time.Duration(c.GapCapSec * float64(time.Second)),
		Location:         loc,
		RecentWindow:     time.Duration(c.RecentDays) * 24 * time.Hour,
	}

	if c.RangeStart != "" {
		t, err := time.ParseInLocation("2006-01-02", c.RangeStart, loc)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf(
				"parsing range start: %w", err,
			)
		}
		opts.RangeStart = t
	}
	if c.RangeEnd != "" {
		t, err := time.ParseInLocation("2006-01-02", c.RangeEnd, loc)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf(
				"parsing range end: %w", err,
			)
		}
		// The end date is inclusive: cover the whole civil day.
		opts.RangeEnd = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	return opts, nil
}

func durationHours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
