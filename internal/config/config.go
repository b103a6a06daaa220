package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	RedisAddr     string
	KafkaBrokers  string
	KafkaTopic    string
	ArchiveBucket string
	ArchivePrefix string
	JWTSecret     string
	BrandName     string
	ScorerURL     string
	MinSimilarity float64
	RecalcEvery   time.Duration
	DecayEvery    time.Duration
}

const (
	defaultAddr          = ":8074"
	defaultKafkaTopic    = "governance.alerts"
	defaultMinSimilarity = 0.75
	defaultRecalcEvery   = 24 * time.Hour
	defaultDecayEvery    = 7 * 24 * time.Hour
)

func Load() (Config, error) {
	cfg := Config{
		Addr:          getEnv("GOVERNANCE_ADDR", defaultAddr),
		DatabaseURL:   firstNonEmpty(os.Getenv("GOVERNANCE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		RedisAddr:     os.Getenv("GOVERNANCE_REDIS_ADDR"),
		KafkaBrokers:  os.Getenv("GOVERNANCE_KAFKA_BROKERS"),
		KafkaTopic:    getEnv("GOVERNANCE_KAFKA_TOPIC", defaultKafkaTopic),
		ArchiveBucket: os.Getenv("GOVERNANCE_ARCHIVE_BUCKET"),
		ArchivePrefix: os.Getenv("GOVERNANCE_ARCHIVE_PREFIX"),
		JWTSecret:     os.Getenv("GOVERNANCE_JWT_SECRET"),
		BrandName:     getEnv("GOVERNANCE_BRAND_NAME", "Shelfline"),
		ScorerURL:     os.Getenv("GOVERNANCE_SCORER_URL"),
		MinSimilarity: getFloat("GOVERNANCE_MIN_SIMILARITY", defaultMinSimilarity),
		RecalcEvery:   getDuration("GOVERNANCE_RECALC_EVERY", defaultRecalcEvery),
		DecayEvery:    getDuration("GOVERNANCE_DECAY_EVERY", defaultDecayEvery),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or GOVERNANCE_DATABASE_URL required")
	}
	if os.Getenv("NODE_ENV") == "production" && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("GOVERNANCE_JWT_SECRET required in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
