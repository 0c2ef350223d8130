package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service settings read from the environment.
type Config struct {
	ListenAddr string

	// Postgres
	DatabaseDSN   string
	AutoMigrate   bool
	JWTSecret     string
	TokenLifetime time.Duration

	// Redis for the job queue
	RedisAddr string

	// Recognition backends
	TesseractEnabled bool
	TesseractLangs   []string
	TessdataPrefix   string
	RemoteOCRURL     string
	RemoteOCRToken   string
	BackendTimeout   time.Duration

	// Translation
	DeepLURL        string
	DeepLToken      string
	TranslateTarget string
	TranslateRate   float64

	UploadDir         string
	FontPath          string
	ProfilePath       string
	Profile           string
	WorkerConcurrency int
	LogLevel          string
}

// Load reads .env (when present, without overriding the environment) and
// then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:        getEnvOrDefault("LISTEN_ADDR", ":8081"),
		DatabaseDSN:       os.Getenv("DB_DSN"),
		AutoMigrate:       getEnvAsBoolOrDefault("DB_AUTO_MIGRATE", true),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", "dev-insecure-secret-change"),
		TokenLifetime:     getEnvAsDurationOrDefault("JWT_TTL", 24*time.Hour),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		TesseractEnabled:  getEnvAsBoolOrDefault("TESSERACT_ENABLED", true),
		TesseractLangs:    splitList(getEnvOrDefault("TESSERACT_LANGS", "jpn")),
		TessdataPrefix:    os.Getenv("TESSDATA_PREFIX"),
		RemoteOCRURL:      os.Getenv("OCR_REMOTE_URL"),
		RemoteOCRToken:    os.Getenv("OCR_REMOTE_TOKEN"),
		BackendTimeout:    getEnvAsDurationOrDefault("OCR_BACKEND_TIMEOUT", 30*time.Second),
		DeepLURL:          os.Getenv("DEEPL_URL"),
		DeepLToken:        os.Getenv("DEEPL_TOKEN"),
		TranslateTarget:   getEnvOrDefault("TRANSLATE_TARGET", "en"),
		TranslateRate:     getEnvAsFloatOrDefault("TRANSLATE_RATE", 1),
		UploadDir:         getEnvOrDefault("UPLOAD_BASE", "uploads"),
		FontPath:          os.Getenv("FONT_PATH"),
		ProfilePath:       os.Getenv("PROFILE_PATH"),
		Profile:           getEnvOrDefault("PROFILE", DefaultProfile),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges. Required-ness of DB_DSN and friends is left
// to the command that needs them.
func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency)
	}
	if c.TranslateRate < 0 {
		return fmt.Errorf("TRANSLATE_RATE must not be negative, got %v", c.TranslateRate)
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("OCR_BACKEND_TIMEOUT must not be negative, got %v", c.BackendTimeout)
	}
	if c.TokenLifetime <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %v", c.TokenLifetime)
	}
	if c.TesseractEnabled && len(c.TesseractLangs) == 0 {
		return fmt.Errorf("TESSERACT_LANGS must name at least one language")
	}
	return nil
}

// TranslationEnabled reports whether a DeepL token was configured.
func (c *Config) TranslationEnabled() bool { return c.DeepLToken != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBoolOrDefault treats false/0/no/off as false, anything else set as true.
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return defaultValue
	case "false", "0", "no", "off":
		return false
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		out = append(out, p)
	}
	return out
}
