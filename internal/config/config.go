package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config は同期層全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote API
	APIBaseURL     string
	RequestTimeout time.Duration

	// Rate Limit（リモートAPIへのアウトバウンド呼び出し）
	APIRate  float64 // req/sec
	APIBurst int

	// Media Prefetch
	PrefetchEnabled       bool
	PrefetchTimeout       time.Duration
	PrefetchMaxSize       int64
	PrefetchMaxConcurrent int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = os.Getenv("FEED_API_BASE_URL")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: FEED_API_BASE_URL")
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("FEED_REQUEST_TIMEOUT", 10*time.Second)
	cfg.APIRate = getEnvFloat("FEED_API_RATE", 5.0)
	cfg.APIBurst = getEnvInt("FEED_API_BURST", 10)
	cfg.PrefetchEnabled = getEnvBool("FEED_PREFETCH_ENABLED", false)
	cfg.PrefetchTimeout = getEnvDuration("FEED_PREFETCH_TIMEOUT", 5*time.Second)
	cfg.PrefetchMaxSize = getEnvInt64("FEED_PREFETCH_MAX_SIZE", 5242880)
	cfg.PrefetchMaxConcurrent = getEnvInt("FEED_PREFETCH_MAX_CONCURRENT", 4)

	return cfg, nil
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
