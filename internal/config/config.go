package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	// UsageTimezone is the IANA zone the monthly accounting window is
	// anchored to. Validated once at startup; see ProvideLocation.
	UsageTimezone        string
	UsageRetentionMonths int

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	HTTPAddr string

	RateLimit RateLimitConfig

	Appraisal AppraisalConfig
	GlowUp    GlowUpConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	GlowUpRate    float64
	GlowUpBurst   int
}

type AppraisalConfig struct {
	Provider string // "mock" or "housecanary"
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

type GlowUpConfig struct {
	Provider       string // "fake" or "replicate"
	ReplicateToken string
	ReplicateBase  string
	ReplicateModel string
	PromptTemplate string
	Workers        int

	// Accepted values for job submissions. Empty slices accept anything.
	RoomTypes []string
	Styles    []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "pixrworth"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		UsageTimezone:        getenv("USAGE_TIMEZONE", "UTC"),
		UsageRetentionMonths: getenvInt("USAGE_RETENTION_MONTHS", 12),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pixrworth"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			GlowUpRate:    getenvFloat("RATE_LIMIT_GLOWUP_RATE", 0.5),
			GlowUpBurst:   getenvInt("RATE_LIMIT_GLOWUP_BURST", 3),
		},

		Appraisal: AppraisalConfig{
			Provider: getenv("APPRAISAL_PROVIDER", "mock"),
			BaseURL:  getenv("APPRAISAL_BASE_URL", "https://api.housecanary.com/v2"),
			APIKey:   getenv("APPRAISAL_API_KEY", ""),
			CacheTTL: time.Duration(getenvInt("APPRAISAL_CACHE_TTL_HOURS", 24)) * time.Hour,
		},

		GlowUp: GlowUpConfig{
			Provider:       getenv("GLOWUP_PROVIDER", "fake"),
			ReplicateToken: getenv("REPLICATE_TOKEN", ""),
			ReplicateBase:  getenv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
			ReplicateModel: getenv("REPLICATE_MODEL", "seedream-4"),
			PromptTemplate: getenv("GLOWUP_PROMPT_TEMPLATE", "Redecorate this %s in %s style, photorealistic, keep the room layout"),
			Workers:        getenvInt("GLOWUP_WORKERS", 2),
			RoomTypes:      getenvList("GLOWUP_ROOM_TYPES", defaultRoomTypes),
			Styles:         getenvList("GLOWUP_STYLES", defaultStyles),
		},
	}
}

// ProvideLocation resolves and validates the configured usage time zone.
// An invalid zone fails application startup instead of every quota call.
func ProvideLocation(cfg Config) (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.UsageTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid usage timezone %q: %w", cfg.UsageTimezone, err)
	}
	return loc, nil
}

var (
	defaultRoomTypes = []string{"living_room", "bedroom", "kitchen", "bathroom", "dining_room", "office", "exterior"}
	defaultStyles    = []string{"scandinavian", "modern", "industrial", "boho", "farmhouse", "japandi", "coastal"}
)

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
