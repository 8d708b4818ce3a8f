package config

import "time"

// APIConfig holds runtime configuration for the metrics API service.
type APIConfig struct {
	Environment string
	Addr        string
	AdminToken  string

	MaxLatencyMS     float64
	MinSuccessRate   float64
	MaxCostPerHour   float64
	MaxTokensPerHour int
	MaxErrorsPerHour int
	MaxRecords       int
	RetentionWindow  time.Duration
	AlertRetention   time.Duration

	StreamInterval    time.Duration
	StreamLifetime    time.Duration
	SystemSampleEvery time.Duration

	// Comma-separated name=url pairs probed for the system snapshot's
	// service availability map.
	ServiceProbes string

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":8090"),
		AdminToken:         GetString("METRICS_ADMIN_TOKEN", ""),
		MaxLatencyMS:       GetFloat("MAX_LATENCY_MS", 30000),
		MinSuccessRate:     GetFloat("MIN_SUCCESS_RATE", 0.9),
		MaxCostPerHour:     GetFloat("MAX_COST_PER_HOUR", 5.0),
		MaxTokensPerHour:   GetInt("MAX_TOKENS_PER_HOUR", 500000),
		MaxErrorsPerHour:   GetInt("MAX_ERRORS_PER_HOUR", 10),
		MaxRecords:         GetInt("MAX_METRIC_RECORDS", 1000),
		RetentionWindow:    time.Duration(GetInt("METRIC_RETENTION_HOURS", 24)) * time.Hour,
		AlertRetention:     time.Duration(GetInt("ALERT_RETENTION_DAYS", 7)) * 24 * time.Hour,
		StreamInterval:     time.Duration(GetInt("STREAM_INTERVAL_SECONDS", 30)) * time.Second,
		StreamLifetime:     time.Duration(GetInt("STREAM_LIFETIME_SECONDS", 300)) * time.Second,
		SystemSampleEvery:  time.Duration(GetInt("SYSTEM_SAMPLE_SECONDS", 60)) * time.Second,
		ServiceProbes:      GetString("SERVICE_PROBE_URLS", ""),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
