package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionStoreRedis = "redis"
	SessionStoreSQL   = "sql"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DataStoreURL     string
	DataStoreTimeout time.Duration

	JWTSecret    []byte
	CSRFEnabled  bool
	CookieSecure bool
	CORSOrigins  []string

	SessionStore  string
	SessionTTL    time.Duration
	RedisAddress  string
	RedisPassword string
	DatabaseURL   string

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string
}

// Load reads the optional env files first, then the process environment.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			log.Printf("notice: %s not loaded: %v. Using system environment variables", f, err)
		}
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "farmers-market"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DataStoreURL:     EnvDefault("DATASTORE_URL", "http://localhost:3001"),
		DataStoreTimeout: EnvDurationDefault("DATASTORE_TIMEOUT", 5*time.Second),

		JWTSecret:    []byte(os.Getenv("JWT_SECRET")),
		CSRFEnabled:  EnvBoolDefault("CSRF_ENABLED", true),
		CookieSecure: EnvBoolDefault("COOKIE_SECURE", false),
		CORSOrigins:  CSV(EnvDefault("CORS_ORIGINS", "http://localhost:5173")),

		SessionStore:  strings.ToLower(EnvDefault("SESSION_STORE", SessionStoreSQL)),
		SessionTTL:    EnvDurationDefault("SESSION_TTL", 30*24*time.Hour),
		RedisAddress:  EnvDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   EnvDefault("DATABASE_URL", "sqlite://sessions.db"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "products"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
