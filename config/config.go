package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Listings site
	BaseURL       string
	StartPage     int
	PagesToScrape int
	PageTimeout   time.Duration
	MaxRetries    int
	RateLimitMs   int
	ChromeBin     string
	Headless      bool

	// Geocoding
	City              string
	NominatimURL      string
	PostcodesURL      string
	GeocodeUserAgent  string
	GeocodeTimeout    time.Duration
	NominatimRPS      float64
	PostcodesRPS      float64
	WardOverridesPath string
	DefaultArea       string
	BackfillWorkers   int

	// Outputs and process
	CSVOutputPath string
	LockPath      string
	HTTPAddr      string
	LogLevel      string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "housing"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "housing123"),
		PostgresDB:       getEnv("POSTGRES_DB", "housing_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		BaseURL:       getEnv("LISTINGS_BASE_URL", "https://www.unihomes.co.uk/student-accommodation/manchester"),
		StartPage:     getEnvInt("START_PAGE", 1),
		PagesToScrape: getEnvInt("PAGES_TO_SCRAPE", 18),
		PageTimeout:   getEnvDuration("PAGE_TIMEOUT", 90*time.Second),
		MaxRetries:    getEnvInt("MAX_RETRIES", 3),
		RateLimitMs:   getEnvInt("RATE_LIMIT_MS", 2000),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		Headless:      getEnvBool("HEADLESS", true),

		City:              getEnv("GEOCODE_CITY", "Manchester, United Kingdom"),
		NominatimURL:      getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		PostcodesURL:      getEnv("POSTCODES_URL", "https://api.postcodes.io"),
		GeocodeUserAgent:  getEnv("GEOCODE_USER_AGENT", "housing-scraper/1.0"),
		GeocodeTimeout:    getEnvDuration("GEOCODE_TIMEOUT", 15*time.Second),
		NominatimRPS:      getEnvFloat("NOMINATIM_RPS", 1),
		PostcodesRPS:      getEnvFloat("POSTCODES_RPS", 5),
		WardOverridesPath: getEnv("WARD_OVERRIDES_PATH", ""),
		DefaultArea:       getEnv("DEFAULT_AREA", "Manchester"),
		BackfillWorkers:   getEnvInt("BACKFILL_WORKERS", 4),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/raw_cards.csv"),
		LockPath:      getEnv("LOCK_PATH", "./output/scrape.lock"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
