package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database (server mode only)
	DatabaseURL string

	// Redis (server mode only)
	RedisURL string

	// JWT (server mode only, signs run-scoped websocket tokens)
	JWTSecret string

	// Gemini AI
	GeminiAPIKey string
	GeminiModel  string

	// Output
	OutputDir string

	// Pipeline
	TargetCount         int
	BasicPercent        int
	IntermediatePercent int

	// Worker pool
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		Env:                 getEnvOrDefault("ENV", "development"),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:            getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:           getEnvOrDefault("JWT_SECRET", ""),
		GeminiAPIKey:        getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:         getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		OutputDir:           getEnvOrDefault("PAPERGEN_OUTPUT_DIR", "question_paper"),
		TargetCount:         getEnvAsIntOrDefault("PAPERGEN_TARGET_COUNT", 25),
		BasicPercent:        getEnvAsIntOrDefault("PAPERGEN_BASIC_PERCENT", 32),
		IntermediatePercent: getEnvAsIntOrDefault("PAPERGEN_INTERMEDIATE_PERCENT", 40),
		WorkerCount:         getEnvAsIntOrDefault("PAPERGEN_WORKERS", 3),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
