// File: internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Relay server
	ServerPort   string
	DatabasePath string
	JWTSecretKey string

	// Client engine
	APIBaseURL     string
	LiveChannelURL string

	// Reconciliation tuning. MergeWindow bounds how far apart an optimistic
	// send and its server echo may be and still collapse to one message;
	// TypingTimeout is how long a typing signal stays live without refresh.
	MergeWindow   time.Duration
	TypingTimeout time.Duration

	Environment string
}

// Load reads configuration from environment variables or a .env file.
func Load() *Config {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "carelink.db"),
		JWTSecretKey:   getEnv("JWT_SECRET_KEY", ""),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		LiveChannelURL: getEnv("LIVE_CHANNEL_URL", "ws://localhost:8080/ws"),
		MergeWindow:    getEnvAsDuration("MERGE_WINDOW", 10*time.Second),
		TypingTimeout:  getEnvAsDuration("TYPING_TIMEOUT", 5*time.Second),
		Environment:    env,
	}

	if strings.ToLower(env) == "production" {
		missing := []string{}
		if cfg.JWTSecretKey == "" {
			missing = append(missing, "JWT_SECRET_KEY")
		}
		if cfg.APIBaseURL == "" {
			missing = append(missing, "API_BASE_URL")
		}
		if cfg.LiveChannelURL == "" {
			missing = append(missing, "LIVE_CHANNEL_URL")
		}
		if len(missing) > 0 {
			log.Fatalf("Missing required production environment variables: %v", missing)
		}
	}

	return cfg
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsDuration gets an env var holding seconds, with a fallback.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	secs, err := strconv.Atoi(strValue)
	if err != nil || secs <= 0 {
		log.Printf("Warning: could not parse env var %s as seconds. Using default value.", key)
		return defaultValue
	}
	return time.Duration(secs) * time.Second
}
