package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             string
	DBPath           string
	OutputDir        string
	StylePath        string
	DrainIntervalSec int
	ReapIntervalMin  int
	RetentionHours   int
}

func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "exports.db"),
		OutputDir:        getEnv("OUTPUT_DIR", "exports"),
		StylePath:        getEnv("STYLE_PATH", ""),
		DrainIntervalSec: getEnvInt("DRAIN_INTERVAL_SEC", 5),
		ReapIntervalMin:  getEnvInt("REAP_INTERVAL_MIN", 60),
		RetentionHours:   getEnvInt("RETENTION_HOURS", 24),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
