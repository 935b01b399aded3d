package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	MatrixPath   string
	CacheTTL     time.Duration
	ConnectorTTL time.Duration

	OperaBaseURL string
	OperaRegion  string
	PropertyID   string

	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
	RetryMaxAttempts        int

	MonitorInterval time.Duration
	MonitorWorkers  int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),

		MatrixPath:   env("MATRIX_PATH", "configs/matrix.yaml"),
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		ConnectorTTL: time.Duration(atoi("CONNECTOR_TTL_SECONDS", 900)) * time.Second,

		OperaBaseURL: env("OPERA_BASE_URL", ""),
		OperaRegion:  env("OPERA_REGION", "eu"),
		PropertyID:   env("PROPERTY_ID", "sandbox-1"),

		BreakerFailureThreshold: atoi("BREAKER_FAILURE_THRESHOLD", 0),
		BreakerRecoveryTimeout:  time.Duration(atoi("BREAKER_RECOVERY_TIMEOUT_SECONDS", 0)) * time.Second,
		RetryMaxAttempts:        atoi("RETRY_MAX_ATTEMPTS", 0),

		MonitorInterval: time.Duration(atoi("MONITOR_INTERVAL_SECONDS", 60)) * time.Second,
		MonitorWorkers:  atoi("MONITOR_WORKERS", 4),
	}
	if c.OperaBaseURL == "" {
		log.Warn().Msg("OPERA_BASE_URL is empty, opera vendor disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
