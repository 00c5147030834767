package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate.
type Config struct {
	ListenAddr string

	// DatabaseURL selects the Postgres store when set; empty runs the
	// whole pipeline against the in-memory store.
	DatabaseURL string

	// RetentionDays bounds how long raw event log rows are kept. The
	// aggregate sums are never expired.
	RetentionDays int

	// Simulation shape.
	VideoCount            int
	UserCount             int
	MaxConcurrentSessions int

	// TimeCompression divides every simulated wait: 1 is real time.
	TimeCompression float64

	// FlushInterval is how often the aggregator's partial sums are
	// merged into the store.
	FlushInterval time.Duration

	// DropoffThresholdPct is the default relative decrease (percent)
	// that flags a significant dropoff when the query omits one.
	DropoffThresholdPct float64

	Seed int64
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		ListenAddr:            getenv("APP_LISTEN_ADDR", ":8080"),
		DatabaseURL:           os.Getenv("APP_DATABASE_URL"),
		RetentionDays:         30,
		VideoCount:            10,
		UserCount:             100,
		MaxConcurrentSessions: 8,
		TimeCompression:       60,
		FlushInterval:         5 * time.Second,
		DropoffThresholdPct:   10,
		Seed:                  time.Now().UnixNano(),
	}

	if n, ok := getint("APP_RETENTION_DAYS"); ok {
		cfg.RetentionDays = n
	}
	if n, ok := getint("APP_VIDEO_COUNT"); ok {
		cfg.VideoCount = n
	}
	if n, ok := getint("APP_USER_COUNT"); ok {
		cfg.UserCount = n
	}
	if n, ok := getint("APP_MAX_CONCURRENT_SESSIONS"); ok {
		cfg.MaxConcurrentSessions = n
	}
	if v := os.Getenv("APP_TIME_COMPRESSION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.TimeCompression = f
		}
	}
	if v := os.Getenv("APP_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.FlushInterval = d
		}
	}
	if v := os.Getenv("APP_DROPOFF_THRESHOLD_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DropoffThresholdPct = f
		}
	}
	if v := os.Getenv("APP_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
