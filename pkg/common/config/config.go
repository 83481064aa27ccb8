package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	PatientTopic     string
	AuditWorkerGroup string

	// Upstream patient store
	UpstreamBaseURL        string
	UpstreamRequestTimeout time.Duration
	UpstreamRetryAttempts  int
	UpstreamRetryBaseDelay time.Duration

	// Cache TTLs
	ListCacheTTL    time.Duration
	DetailCacheTTL  time.Duration
	ProcessCacheTTL time.Duration
	DurableCacheTTL time.Duration

	// Process rate limiting
	ProcessRateLimitPerMinute int

	// HTTP rate limiting
	RateLimitRPS   int
	RateLimitBurst int

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Units catalog
	UnitCatalogPath string

	// CORS
	CORSAllowedOrigins []string
}

func Load() *Config {
	// Missing .env is fine, the environment wins either way.
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "patientsync"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "patientsync123"),
		PostgresDB:       getEnv("POSTGRES_DB", "patientsync"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "patientsync"),
		PatientTopic:     getEnv("PATIENT_EVENTS_TOPIC", "patient-events"),
		AuditWorkerGroup: getEnv("AUDIT_WORKER_GROUP", "patientsync-audit"),

		UpstreamBaseURL:        getEnv("UPSTREAM_BASE_URL", "http://localhost:9000"),
		UpstreamRequestTimeout: getDuration("UPSTREAM_REQUEST_TIMEOUT", 10*time.Second),
		UpstreamRetryAttempts:  getIntEnv("UPSTREAM_RETRY_ATTEMPTS", 3),
		UpstreamRetryBaseDelay: getDuration("UPSTREAM_RETRY_BASE_DELAY", 100*time.Millisecond),

		ListCacheTTL:    getDuration("LIST_CACHE_TTL", 30*time.Second),
		DetailCacheTTL:  getDuration("DETAIL_CACHE_TTL", 5*time.Minute),
		ProcessCacheTTL: getDuration("PROCESS_CACHE_TTL", 10*time.Minute),
		DurableCacheTTL: getDuration("DURABLE_CACHE_TTL", 24*time.Hour),

		ProcessRateLimitPerMinute: getIntEnv("PROCESS_RATE_LIMIT_PER_MINUTE", 30),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		UnitCatalogPath: getEnv("UNIT_CATALOG_PATH", ""),

		CORSAllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
