package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPromptConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	// NodeID seeds snowflake reading IDs and must differ per replica.
	NodeID int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Vision  VisionConfig
	Images  ImageConfig
	Billing BillingConfig
	Ingest  IngestConfig
}

type VisionConfig struct {
	// Provider is gemini or static.
	Provider       string
	StaticText     string
	GeminiAPIKey   string
	GeminiModel    string
	TimeoutSeconds int
	MaxAttempts    int
}

type ImageConfig struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

type BillingConfig struct {
	// Timezone decides which calendar month a submission belongs to.
	Timezone string
}

type IngestConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RatePerSecond float64
	Burst         int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "meterscan"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "meterscan"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "meterscan.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Vision: VisionConfig{
			Provider:       strings.ToLower(getenv("VISION_PROVIDER", "gemini")),
			StaticText:     getenv("VISION_STATIC_TEXT", ""),
			GeminiAPIKey:   strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			GeminiModel:    getenv("GEMINI_MODEL", "gemini-1.5-flash"),
			TimeoutSeconds: getenvInt("VISION_TIMEOUT_SECONDS", 60),
			MaxAttempts:    getenvInt("VISION_MAX_ATTEMPTS", 1),
		},
		Images: ImageConfig{
			Dir:      getenv("IMAGE_DIR", "./uploads"),
			BaseURL:  strings.TrimRight(getenv("IMAGE_BASE_URL", "http://localhost:8080/images"), "/"),
			MaxBytes: getenvInt64("IMAGE_MAX_BYTES", 10<<20),
		},
		Billing: BillingConfig{
			Timezone: getenv("BILLING_TIMEZONE", "UTC"),
		},
		Ingest: IngestConfig{
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			RatePerSecond: getenvFloat("INGEST_RATE_PER_SECOND", 0.2),
			Burst:         getenvInt("INGEST_BURST", 3),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
