package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreDatabase = "database"

	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr         string
	HTTPMaxBodyBytes int64

	LogLevel          string
	LogFormat         string
	OTLPEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OTLPSamplingRatio float64

	StoreBackend       string
	RegistryConfigFile string

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

	RedisURL    string
	LockBackend string
	LockTTL     time.Duration
	LockTimeout time.Duration

	RateLimitEnabled bool
	RateLimitRate    float64
	RateLimitBurst   int

	KafkaBrokers        []string
	KafkaTopic          string
	OutboxRelayInterval time.Duration

	AuthJWTSecret string
	AuthJWTIssuer string
	AuthTokenTTL  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	redisURL := strings.TrimSpace(getenv("REDIS_URL", ""))
	lockBackend := strings.ToLower(strings.TrimSpace(getenv("LOCK_BACKEND", "")))
	if lockBackend == "" {
		lockBackend = LockLocal
		if redisURL != "" {
			lockBackend = LockRedis
		}
	}

	return Config{
		AppName:             getenv("APP_SERVICE", "kitties"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         getenv("ENVIRONMENT", "development"),
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		HTTPMaxBodyBytes:    getenvInt64("HTTP_MAX_BODY_BYTES", 1<<20),
		LogLevel:            strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTLPEnabled:         getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:        getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:        strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OTLPSamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		StoreBackend:        normalizeStore(getenv("STORE_BACKEND", StoreMemory)),
		RegistryConfigFile:  strings.TrimSpace(getenv("REGISTRY_CONFIG_FILE", "")),
		DBType:              strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:              getenv("DATABASE_HOST", "localhost"),
		DBPort:              getenv("DATABASE_PORT", "5432"),
		DBName:              getenv("DATABASE_NAME", "kitties"),
		DBUser:              getenv("DATABASE_USER", "postgres"),
		DBPassword:          getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:           getenv("DATABASE_SSLMODE", "disable"),
		DBPath:              getenv("DATABASE_PATH", "kitties.db"),
		DBMaxIdleConn:       getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:       getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:   getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:   getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisURL:            redisURL,
		LockBackend:         lockBackend,
		LockTTL:             getenvDuration("LOCK_TTL", 10*time.Second),
		LockTimeout:         getenvDuration("LOCK_TIMEOUT", 5*time.Second),
		RateLimitEnabled:    getenvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRate:       getenvFloat("RATE_LIMIT_RATE", 5),
		RateLimitBurst:      getenvInt("RATE_LIMIT_BURST", 20),
		KafkaBrokers:        parseList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:          getenv("KAFKA_TOPIC", "kitties.events"),
		OutboxRelayInterval: getenvDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
		AuthJWTSecret:       strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer:       getenv("AUTH_JWT_ISSUER", "kitties"),
		AuthTokenTTL:        getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
	}
}

func (c Config) UsesDatabase() bool {
	return c.StoreBackend == StoreDatabase
}

func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func normalizeStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreDatabase, "db", "sql":
		return StoreDatabase
	default:
		return StoreMemory
	}
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

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
