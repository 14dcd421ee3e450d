// Package config builds process configuration from environment variables so
// main stays lean. Optional backends (Postgres, Redis, Kafka, scoring) are
// enabled by presence of their setting.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the verifyd process needs at startup.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	// DataDir is the root for staged uploads and certified artifacts.
	DataDir string

	// CertifyThreshold is the minimum authenticity score for
	// auto-certification. Scores below it park the submission for review.
	CertifyThreshold int

	// FreeUploadLimit is the number of submissions an unsubscribed identity
	// may make. Zero disables the free tier entirely.
	FreeUploadLimit int

	// StampConcurrency bounds parallel stamping runs; transcoding is
	// CPU-heavy and must not scale with request volume.
	StampConcurrency int

	// MaxUploadBytes caps the accepted request body size.
	MaxUploadBytes int64

	FFmpegPath string
	LogoPath   string

	// ScoringURL points at the external scoring oracle. Empty means the
	// fixed fallback score is used.
	ScoringURL string
	// FallbackScore is used when no scoring backend is configured.
	FallbackScore int

	// PostgresDSN enables durable stores when set; otherwise in-memory.
	PostgresDSN string

	Redis RedisConfig

	// KafkaBrokers enables the audit Kafka sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// AdminSigningKey signs operator tokens for approve/subscribe endpoints.
	AdminSigningKey string
}

// RedisConfig configures the optional Redis quota backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults. The admin signing key default exists only so local runs work;
// override it in any real deployment.
func FromEnv() Config {
	cfg := Config{
		Addr:             getEnv("VERIFYD_ADDR", ":8080"),
		ShutdownTimeout:  10 * time.Second,
		DataDir:          getEnv("VERIFYD_DATA_DIR", "data"),
		CertifyThreshold: getEnvInt("VERIFYD_CERTIFY_THRESHOLD", 80),
		FreeUploadLimit:  getEnvInt("VERIFYD_FREE_UPLOAD_LIMIT", 10),
		StampConcurrency: getEnvInt("VERIFYD_STAMP_CONCURRENCY", 2),
		MaxUploadBytes:   getEnvInt64("VERIFYD_MAX_UPLOAD_BYTES", 512<<20),
		FFmpegPath:       getEnv("VERIFYD_FFMPEG_PATH", "ffmpeg"),
		LogoPath:         getEnv("VERIFYD_LOGO_PATH", "assets/logo.png"),
		ScoringURL:       os.Getenv("VERIFYD_SCORING_URL"),
		FallbackScore:    getEnvInt("VERIFYD_FALLBACK_SCORE", 100),
		PostgresDSN:      os.Getenv("VERIFYD_POSTGRES_DSN"),
		KafkaTopic:       getEnv("VERIFYD_KAFKA_TOPIC", "verifyd.audit"),
		AdminSigningKey:  getEnv("VERIFYD_ADMIN_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("VERIFYD_REDIS_URL"),
		PoolSize:     getEnvInt("VERIFYD_REDIS_POOL_SIZE", 10),
		MinIdleConns: getEnvInt("VERIFYD_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if brokers := os.Getenv("VERIFYD_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
