package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Cache settings
	CacheSize int
	CacheTTL  time.Duration

	// Portal settings
	PortalURL string
	CourtName string
	Timezone  string

	// Scraper settings
	ScraperTimeout     time.Duration
	ElementTimeout     time.Duration
	HeadlessMode       bool
	UserAgent          string
	BrowserPath        string
	MaxCaptchaAttempts int
	MaxPages           int

	// Capture settings
	DownloadDir     string
	CaptchaDir      string
	DownloadRetries int
	DownloadBackoff time.Duration

	// CAPTCHA service
	TwoCaptchaKey string

	// API settings
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not an error if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/ecourts_data.db"),
		DatabaseDSN:    getEnv("DATABASE_DSN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		PortalURL:      getEnv("PORTAL_URL", "https://services.ecourts.gov.in/ecourtindia_v6/?p=cause_list/index"),
		CourtName:      getEnv("COURT_NAME", "Unknown Court"),
		Timezone:       getEnv("TIMEZONE", "Asia/Kolkata"),
		UserAgent:      getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		BrowserPath:    getEnv("ROD_BROWSER_PATH", ""),
		DownloadDir:    getEnv("DOWNLOAD_DIR", "./downloads"),
		CaptchaDir:     getEnv("CAPTCHA_DIR", "./data/captchas"),
		TwoCaptchaKey:  getEnv("TWOCAPTCHA_API_KEY", ""),
	}

	var err error
	if cfg.CacheSize, err = getInt("CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 30, time.Minute); err != nil {
		return nil, err
	}
	if cfg.ScraperTimeout, err = getDuration("SCRAPER_TIMEOUT", 30, time.Second); err != nil {
		return nil, err
	}
	if cfg.ElementTimeout, err = getDuration("ELEMENT_TIMEOUT", 15, time.Second); err != nil {
		return nil, err
	}

	cfg.HeadlessMode = getEnv("HEADLESS_MODE", "true") == "true"

	if cfg.MaxCaptchaAttempts, err = getInt("MAX_CAPTCHA_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = getInt("MAX_PAGES", 10); err != nil {
		return nil, err
	}
	if cfg.DownloadRetries, err = getInt("DOWNLOAD_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.DownloadBackoff, err = getDuration("DOWNLOAD_BACKOFF", 500, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = getInt("API_RATE_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.APIRateWindow, err = getDuration("API_RATE_WINDOW", 60, time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.MaxCaptchaAttempts < 1 {
		return fmt.Errorf("MAX_CAPTCHA_ATTEMPTS must be at least 1")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("DOWNLOAD_RETRIES must not be negative")
	}
	switch c.DatabaseDriver {
	case "sqlite":
	case "mysql":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the zone used for "today/tomorrow" windows.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue int, unit time.Duration) (time.Duration, error) {
	v, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * unit, nil
}
