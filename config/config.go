package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// insecureJWTSecret is the fallback used when JWT_SECRET is not set.
// Fine for local development, never for production.
const insecureJWTSecret = "taskboard-dev-secret"

const DefaultPageSize = 10

type Config struct {
	HTTPAddr  string
	MongoURI  string
	Database  string
	JWTSecret string
	TokenTTL  time.Duration
	PageSize  int
	LogFile   string
}

// Load reads the environment (optionally seeded from a .env file) into a Config.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:  getenv("HTTP_ADDR", ":8080"),
		MongoURI:  getenv("MONGO_URI", "mongodb://localhost:27017"),
		Database:  getenv("MONGO_DATABASE", "taskboard"),
		JWTSecret: getenv("JWT_SECRET", insecureJWTSecret),
		TokenTTL:  getDuration("TOKEN_TTL", time.Hour),
		PageSize:  getInt("PAGE_SIZE", DefaultPageSize),
		LogFile:   getenv("LOG_FILE", "logs/taskboard.log"),
	}
}

// UsingFallbackSecret reports whether the insecure development secret is active.
func (c *Config) UsingFallbackSecret() bool {
	return c.JWTSecret == insecureJWTSecret
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
