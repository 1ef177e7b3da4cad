package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/bit2swaz/cache-janitor/internal/logging"
)

const (
	KeyCacheDirs            = "CACHE_DIRS"
	KeyFileExpiredTime      = "FILE_EXPIRED_TIME"
	KeyDeepCleanExpiredTime = "DEEP_CLEAN_FILE_EXPIRED_TIME"
	KeyFreeSpaceThreshold   = "FREE_SPACE_THRESHOLD"
	KeySleepTime            = "SLEEP_TIME"
	KeyCapacityProbe        = "CAPACITY_PROBE"
	KeyMetricsTextfile      = "METRICS_TEXTFILE"
	KeyLogLevel             = "LOG_LEVEL"
	KeyLogFormat            = "LOG_FORMAT"
	KeyLogFile              = "LOG_FILE"
	KeyLogMaxSizeMB         = "LOG_MAX_SIZE_MB"
	KeyLogMaxBackups        = "LOG_MAX_BACKUPS"
	KeyLogMaxAgeDays        = "LOG_MAX_AGE_DAYS"
)

const (
	ProbeDf     = "df"
	ProbeStatfs = "statfs"
)

const (
	DefaultFileExpiredMillis      int64 = 7 * 24 * 60 * 60 * 1000
	DefaultDeepCleanExpiredMillis int64 = 5 * 24 * 60 * 60 * 1000
	DefaultFreeSpaceThreshold           = 60
	DefaultSleepMillis            int64 = 60 * 60 * 1000
)

// ErrInvalid wraps every validation failure so callers can tell a bad
// deployment apart from an I/O problem.
var ErrInvalid = errors.New("invalid configuration")

// Config is resolved once at startup and never mutated afterwards.
type Config struct {
	RootDirectories           []string
	NormalExpiry              time.Duration
	DeepExpiry                time.Duration
	FreeSpaceThresholdPercent int
	PollInterval              time.Duration

	CapacityProbe   string
	MetricsTextfile string
	Log             logging.Config
}

// LoadFromEnv reads the process environment, layered over an optional config
// file. Environment variables win over file values; overrides (typically from
// command-line flags) win over both.
func LoadFromEnv(configFile string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	return Load(v)
}

// Load resolves and validates a Config from v. Unset keys fall back to the
// documented defaults.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	dirs, err := rootDirectories(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RootDirectories: dirs,
		CapacityProbe:   strings.ToLower(strings.TrimSpace(v.GetString(KeyCapacityProbe))),
		MetricsTextfile: strings.TrimSpace(v.GetString(KeyMetricsTextfile)),
		Log: logging.Config{
			Level:  v.GetString(KeyLogLevel),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
			File:   strings.TrimSpace(v.GetString(KeyLogFile)),
		},
	}

	normal, err := millis(v, KeyFileExpiredTime)
	if err != nil {
		return nil, err
	}
	deep, err := millis(v, KeyDeepCleanExpiredTime)
	if err != nil {
		return nil, err
	}
	sleep, err := millis(v, KeySleepTime)
	if err != nil {
		return nil, err
	}
	threshold, err := integer(v, KeyFreeSpaceThreshold)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: %s must be between 0 and 100, got %d", ErrInvalid, KeyFreeSpaceThreshold, threshold)
	}

	cfg.NormalExpiry = normal
	cfg.DeepExpiry = deep
	cfg.PollInterval = sleep
	cfg.FreeSpaceThresholdPercent = int(threshold)

	for _, field := range []struct {
		key string
		dst *int
	}{
		{KeyLogMaxSizeMB, &cfg.Log.MaxSizeMB},
		{KeyLogMaxBackups, &cfg.Log.MaxBackups},
		{KeyLogMaxAgeDays, &cfg.Log.MaxAgeDays},
	} {
		n, err := integer(v, field.key)
		if err != nil {
			return nil, err
		}
		*field.dst = int(n)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks every invariant. Load already calls it; it is exported
// for configs assembled by hand in tests and tools.
func (c *Config) Validate() error {
	if len(c.RootDirectories) == 0 {
		return fmt.Errorf("%w: %s must not be null", ErrInvalid, KeyCacheDirs)
	}
	for _, dir := range c.RootDirectories {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%w: %s must not contain empty paths", ErrInvalid, KeyCacheDirs)
		}
	}
	if c.NormalExpiry < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyFileExpiredTime)
	}
	if c.DeepExpiry < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyDeepCleanExpiredTime)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeySleepTime)
	}
	if c.FreeSpaceThresholdPercent < 0 || c.FreeSpaceThresholdPercent > 100 {
		return fmt.Errorf("%w: %s must be between 0 and 100, got %d", ErrInvalid, KeyFreeSpaceThreshold, c.FreeSpaceThresholdPercent)
	}
	switch c.CapacityProbe {
	case ProbeDf, ProbeStatfs:
	default:
		return fmt.Errorf("%w: %s must be %q or %q, got %q", ErrInvalid, KeyCapacityProbe, ProbeDf, ProbeStatfs, c.CapacityProbe)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// LogValue renders the resolved configuration as one summary line.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("cache_dirs", c.RootDirectories),
		slog.Duration("file_expired_time", c.NormalExpiry),
		slog.Duration("deep_clean_file_expired_time", c.DeepExpiry),
		slog.Int("free_space_threshold", c.FreeSpaceThresholdPercent),
		slog.Duration("sleep_time", c.PollInterval),
		slog.String("capacity_probe", c.CapacityProbe),
		slog.String("metrics_textfile", c.MetricsTextfile),
		slog.Group("log",
			slog.String("level", c.Log.Level),
			slog.String("format", c.Log.Format),
			slog.String("file", c.Log.File),
			slog.Int("max_size_mb", c.Log.MaxSizeMB),
			slog.Int("max_backups", c.Log.MaxBackups),
			slog.Int("max_age_days", c.Log.MaxAgeDays),
		),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyFileExpiredTime, DefaultFileExpiredMillis)
	v.SetDefault(KeyDeepCleanExpiredTime, DefaultDeepCleanExpiredMillis)
	v.SetDefault(KeyFreeSpaceThreshold, DefaultFreeSpaceThreshold)
	v.SetDefault(KeySleepTime, DefaultSleepMillis)
	v.SetDefault(KeyCapacityProbe, ProbeDf)

	logDefaults := logging.DefaultConfig()
	v.SetDefault(KeyLogLevel, logDefaults.Level)
	v.SetDefault(KeyLogFormat, logDefaults.Format)
	v.SetDefault(KeyLogMaxSizeMB, logDefaults.MaxSizeMB)
	v.SetDefault(KeyLogMaxBackups, logDefaults.MaxBackups)
	v.SetDefault(KeyLogMaxAgeDays, logDefaults.MaxAgeDays)
}

func rootDirectories(v *viper.Viper) ([]string, error) {
	raw := v.Get(KeyCacheDirs)
	if raw == nil {
		return nil, fmt.Errorf("%w: %s must not be null", ErrInvalid, KeyCacheDirs)
	}

	var parts []string
	if s, ok := raw.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: %s must not be null", ErrInvalid, KeyCacheDirs)
		}
		parts = strings.Split(s, ",")
	} else {
		list, err := cast.ToStringSliceE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, KeyCacheDirs, err)
		}
		parts = list
	}

	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: %s must not contain empty paths", ErrInvalid, KeyCacheDirs)
		}
		dirs = append(dirs, p)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %s must not be null", ErrInvalid, KeyCacheDirs)
	}
	return dirs, nil
}

// integer parses strictly; a typo in the environment must not become zero.
func integer(v *viper.Viper, key string) (int64, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, key, s)
		}
		return n, nil
	}
	n, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func millis(v *viper.Viper, key string) (time.Duration, error) {
	ms, err := integer(v, key)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalid, key, ms)
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}
