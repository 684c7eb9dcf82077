package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	ReaderBrowser = "browser"
	ReaderHTTP    = "http"

	CredentialsEnv = "ELECTRONICS_GCLOUD_KEY_JSON"
)

type Config struct {
	Profile   string
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	Browser   BrowserConfig
	Drive     DriveConfig
	Output    OutputConfig
	Logging   LoggingConfig
	Status    StatusConfig
	Redis     RedisConfig
	Memcache  MemcacheConfig
	Database  DatabaseConfig
}

type ScraperConfig struct {
	Reader        string
	SiteTimezone  string
	PageTimeout   time.Duration
	DetailTimeout time.Duration
	WaitTimeout   time.Duration
	PageDelay     time.Duration
	PageJitter    time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	UserAgent     string
}

type SchedulerConfig struct {
	ChunkSize    int
	MaxParallel  int
	StaggerDelay time.Duration
	ChunkDelay   time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type DriveConfig struct {
	Enabled           bool
	CredentialsJSON   string
	ParentFolderID    string
	RemoveAfterUpload bool
}

type OutputConfig struct {
	Dir       string
	ReportDir string
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

type StatusConfig struct {
	Addr string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

type MemcacheConfig struct {
	Servers []string
	TTL     time.Duration
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

func Load() (*Config, error) {
	cfg := &Config{
		Profile: getEnvOrDefault("HARVEST_PROFILE", ProfileElectronics),
		Scraper: ScraperConfig{
			Reader:        strings.ToLower(getEnvOrDefault("PAGE_READER", ReaderBrowser)),
			SiteTimezone:  getEnvOrDefault("SITE_TIMEZONE", "Asia/Kuwait"),
			PageTimeout:   getDurationOrDefault("SCRAPER_PAGE_TIMEOUT", 30*time.Second),
			DetailTimeout: getDurationOrDefault("SCRAPER_DETAIL_TIMEOUT", 60*time.Second),
			WaitTimeout:   getDurationOrDefault("SCRAPER_WAIT_TIMEOUT", 30*time.Second),
			PageDelay:     getDurationOrDefault("SCRAPER_PAGE_DELAY", 3*time.Second),
			PageJitter:    getDurationOrDefault("SCRAPER_PAGE_JITTER", 0),
			MaxAttempts:   getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			BackoffBase:   getDurationOrDefault("SCRAPER_BACKOFF_BASE", 2*time.Second),
			BackoffCap:    getDurationOrDefault("SCRAPER_BACKOFF_CAP", 10*time.Second),
			UserAgent:     getEnvOrDefault("SCRAPER_USER_AGENT", defaultUserAgent),
		},
		Scheduler: SchedulerConfig{
			ChunkSize:    getIntOrDefault("SCHEDULER_CHUNK_SIZE", 2),
			MaxParallel:  getIntOrDefault("SCHEDULER_MAX_PARALLEL", 2),
			StaggerDelay: getDurationOrDefault("SCHEDULER_STAGGER_DELAY", 2*time.Second),
			ChunkDelay:   getDurationOrDefault("SCHEDULER_CHUNK_DELAY", 10*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ar-KW,ar;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Kuwait"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ar-KW"),
			ProxyServer:    os.Getenv("BROWSER_PROXY"),
		},
		Drive: DriveConfig{
			Enabled:           getBoolOrDefault("DRIVE_ENABLED", true),
			CredentialsJSON:   os.Getenv(CredentialsEnv),
			ParentFolderID:    os.Getenv("DRIVE_PARENT_FOLDER_ID"),
			RemoveAfterUpload: getBoolOrDefault("DRIVE_REMOVE_AFTER_UPLOAD", true),
		},
		Output: OutputConfig{
			Dir:       getEnvOrDefault("OUTPUT_DIR", "."),
			ReportDir: getEnvOrDefault("REPORT_DIR", "reports"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   getEnvOrDefault("LOG_FILE", "scraper.log"),
		},
		Status: StatusConfig{
			Addr: os.Getenv("STATUS_ADDR"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "harvest:events"),
			MaxLen:   int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		Memcache: MemcacheConfig{
			Servers: getStringSliceOrDefault("MEMCACHE_ADDR", nil),
			TTL:     getDurationOrDefault("MEMCACHE_TTL", 12*time.Hour),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := ProfileByName(c.Profile); err != nil {
		return err
	}

	if c.Scraper.Reader != ReaderBrowser && c.Scraper.Reader != ReaderHTTP {
		return fmt.Errorf("PAGE_READER must be %q or %q, got %q", ReaderBrowser, ReaderHTTP, c.Scraper.Reader)
	}

	if _, err := time.LoadLocation(c.Scraper.SiteTimezone); err != nil {
		return fmt.Errorf("invalid SITE_TIMEZONE %q: %w", c.Scraper.SiteTimezone, err)
	}

	if c.Scraper.PageJitter < 0 {
		return fmt.Errorf("SCRAPER_PAGE_JITTER cannot be negative")
	}

	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.BackoffBase > c.Scraper.BackoffCap {
		return fmt.Errorf("SCRAPER_BACKOFF_BASE cannot be greater than SCRAPER_BACKOFF_CAP")
	}

	if c.Scheduler.ChunkSize < 1 {
		return fmt.Errorf("SCHEDULER_CHUNK_SIZE must be at least 1")
	}

	if c.Scheduler.MaxParallel < 1 {
		return fmt.Errorf("SCHEDULER_MAX_PARALLEL must be at least 1")
	}

	if c.Drive.Enabled && strings.TrimSpace(c.Drive.CredentialsJSON) == "" {
		return fmt.Errorf("%s environment variable not found", CredentialsEnv)
	}

	return nil
}

// Location returns the site time zone used to compute the date window.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scraper.SiteTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return defaultValue
}
