package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the viewer's runtime settings.
type Config struct {
	Port        string
	BackendURL  string
	FPS         float64
	LangTag     string
	TTSCommand  string
	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration
	JPEGQuality int
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from the environment, falling back to defaults for
// anything unset or unparsable.
func FromEnv() Config {
	return Config{
		Port:        GetEnv("PORT", "8080"),
		BackendURL:  GetEnv("BACKEND_URL", "http://localhost:8000"),
		FPS:         GetEnvFloat("FPS", 30),
		LangTag:     GetEnv("LANG_TAG", "en-GB"),
		TTSCommand:  GetEnv("TTS_COMMAND", ""),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		LogFormat:   GetEnv("LOG_FORMAT", "json"),
		HTTPTimeout: GetEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		JPEGQuality: GetEnvInt("JPEG_QUALITY", 85),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values. Non-positive values
// are rejected in favour of fallback.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "30s" or "1m".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
