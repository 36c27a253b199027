package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"github.com/robfig/cron/v3"

	"github.com/raoulx24/dir-archiver/internal/apperr"
)

// Config is loaded once at startup and never mutated afterwards; components
// receive it (or the slice of it they need) by pointer.
type Config struct {
	Destination string `koanf:"destination" yaml:"destination"`
	Exclude     string `koanf:"exclude" yaml:"exclude"` // comma-separated glob patterns

	DailyKeep   int `koanf:"daily_keep" yaml:"daily_keep"`
	WeeklyKeep  int `koanf:"weekly_keep" yaml:"weekly_keep"`
	MonthlyKeep int `koanf:"monthly_keep" yaml:"monthly_keep"`

	MinFreeMB       int64  `koanf:"min_free_mb" yaml:"min_free_mb"`
	SnapshotFile    string `koanf:"snapshot_file" yaml:"snapshot_file"`
	Prefix          string `koanf:"prefix" yaml:"prefix"`
	TimestampFormat string `koanf:"timestamp_format" yaml:"timestamp_format"` // strftime, e.g. %Y%m%d-%H%M%S

	LockFile string `koanf:"lock_file" yaml:"lock_file"`
	LogFile  string `koanf:"log_file" yaml:"log_file"`
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	VerifyBeforeRestore bool          `koanf:"verify_before_restore" yaml:"verify_before_restore"`
	OperationTimeout    time.Duration `koanf:"operation_timeout" yaml:"operation_timeout"` // 0 = no limit

	Schedule     string        `koanf:"schedule" yaml:"schedule"`     // cron spec for --daemon
	WatchMode    string        `koanf:"watch_mode" yaml:"watch_mode"` // "off", "poll", "fsnotify", "auto"
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	Debounce     time.Duration `koanf:"debounce" yaml:"debounce"`

	MetricsTextfile string `koanf:"metrics_textfile" yaml:"metrics_textfile"`

	// Path of the file the values came from; empty when running on defaults.
	Path string `koanf:"-" yaml:"-"`
}

// RetentionPolicy is the generational keep policy applied after each backup.
type RetentionPolicy struct {
	DailyKeep   int
	WeeklyKeep  int
	MonthlyKeep int
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Destination:         "/var/backups/dir-archiver",
		Exclude:             "*.tmp,*.swp,.cache,node_modules",
		DailyKeep:           7,
		WeeklyKeep:          4,
		MonthlyKeep:         3,
		MinFreeMB:           500,
		SnapshotFile:        "/var/lib/dir-archiver/snapshot.json",
		Prefix:              "backup",
		TimestampFormat:     "%Y%m%d-%H%M%S",
		LockFile:            "/tmp/dir-archiver.lock",
		LogFile:             "/var/log/dir-archiver.log",
		LogLevel:            "info",
		VerifyBeforeRestore: true,
		Schedule:            "0 2 * * *",
		WatchMode:           "off",
		PollInterval:        time.Minute,
		Debounce:            30 * time.Second,
	}
}

// Retention extracts the keep policy.
func (c *Config) Retention() RetentionPolicy {
	return RetentionPolicy{
		DailyKeep:   c.DailyKeep,
		WeeklyKeep:  c.WeeklyKeep,
		MonthlyKeep: c.MonthlyKeep,
	}
}

// ExcludePatterns splits Exclude on commas, dropping blanks.
func (c *Config) ExcludePatterns() []string {
	var out []string
	for _, p := range strings.Split(c.Exclude, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TimeLayout converts TimestampFormat into a Go time layout.
func (c *Config) TimeLayout() (string, error) {
	layout, err := strftime.Layout(c.TimestampFormat)
	if err != nil {
		return "", fmt.Errorf("%w: timestamp_format %q: %v", apperr.ErrInvalidArguments, c.TimestampFormat, err)
	}
	return layout, nil
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Destination) == "" {
		problems = append(problems, "destination must be set")
	}
	if strings.TrimSpace(c.Prefix) == "" || strings.ContainsAny(c.Prefix, `/\`) {
		problems = append(problems, "prefix must be a non-empty file name fragment")
	}
	if c.DailyKeep < 0 || c.WeeklyKeep < 0 || c.MonthlyKeep < 0 {
		problems = append(problems, "retention counts must be >= 0")
	}
	if c.MinFreeMB < 0 {
		problems = append(problems, "min_free_mb must be >= 0")
	}
	if c.LockFile == "" {
		problems = append(problems, "lock_file must be set")
	}
	if c.OperationTimeout < 0 {
		problems = append(problems, "operation_timeout must be >= 0")
	}
	if layout, err := strftime.Layout(c.TimestampFormat); err != nil || layout == "" {
		problems = append(problems, fmt.Sprintf("timestamp_format %q is not a valid strftime pattern", c.TimestampFormat))
	} else if strings.ContainsAny(layout, `/\`) {
		problems = append(problems, "timestamp_format must not produce path separators")
	}

	switch c.WatchMode {
	case "off", "poll", "fsnotify", "auto":
	default:
		problems = append(problems, fmt.Sprintf("watch_mode %q must be one of off, poll, fsnotify, auto", c.WatchMode))
	}
	if c.WatchMode == "poll" && c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be > 0 in poll mode")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("schedule %q: %v", c.Schedule, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidArguments, strings.Join(problems, "; "))
	}
	return nil
}
