package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DefaultCurrency string

	Detection   DetectionConfig
	Scheduler   SchedulerConfig
	Categorizer CategorizerConfig
}

// DetectionConfig carries the detection tunables. Zero values fall back to the
// detection package defaults.
type DetectionConfig struct {
	LookbackDays    int
	MinSpanDays     int
	PeerLimit       int
	AnalysisWorkers int
	MinTransactions int
	MinConfidence   float64
	MatchThreshold  float64
}

// SchedulerConfig carries the sweep-loop tunables. Zero values fall back to
// the scheduler package defaults.
type SchedulerConfig struct {
	RunInterval   time.Duration
	RunTimeout    time.Duration
	UserBatchSize int
	LookbackDays  int
	LockTTL       time.Duration
}

// CategorizerConfig controls the external categorization collaborator.
type CategorizerConfig struct {
	Enabled bool
	Model   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "recurra"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "postgres"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 0)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 0)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 0)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 0)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		DefaultCurrency: strings.ToUpper(getenv("DEFAULT_CURRENCY", "USD")),

		Detection: DetectionConfig{
			LookbackDays:    int(getenvInt64("DETECTION_LOOKBACK_DAYS", 0)),
			MinSpanDays:     int(getenvInt64("DETECTION_MIN_SPAN_DAYS", 0)),
			PeerLimit:       int(getenvInt64("DETECTION_PEER_LIMIT", 0)),
			AnalysisWorkers: int(getenvInt64("DETECTION_ANALYSIS_WORKERS", 0)),
			MinTransactions: int(getenvInt64("DETECTION_MIN_TRANSACTIONS", 0)),
			MinConfidence:   getenvFloat("DETECTION_MIN_CONFIDENCE", 0),
			MatchThreshold:  getenvFloat("DETECTION_MATCH_THRESHOLD", 0),
		},

		Scheduler: SchedulerConfig{
			RunInterval:   time.Duration(getenvInt64("SCHEDULER_RUN_INTERVAL_SECONDS", 0)) * time.Second,
			RunTimeout:    time.Duration(getenvInt64("SCHEDULER_RUN_TIMEOUT_SECONDS", 0)) * time.Second,
			UserBatchSize: int(getenvInt64("SCHEDULER_USER_BATCH_SIZE", 0)),
			LookbackDays:  int(getenvInt64("SCHEDULER_LOOKBACK_DAYS", 0)),
			LockTTL:       time.Duration(getenvInt64("SCHEDULER_LOCK_TTL_SECONDS", 0)) * time.Second,
		},

		Categorizer: CategorizerConfig{
			Enabled: getenvBool("CATEGORIZER_ENABLED", false),
			Model:   getenv("CATEGORIZER_MODEL", "gemini-2.0-flash"),
		},
	}

	return cfg
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
