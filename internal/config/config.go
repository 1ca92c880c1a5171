package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSAddr         string
	NATSSubjectBase  string
	JWTSecret        string
	JWTRefreshSecret string

	JudgeBaseURL     string
	JudgeAPIKey      string
	JudgeAPIHost     string
	JudgeHTTPTimeout time.Duration
	PollInterval     time.Duration
	PollMaxInterval  time.Duration
	PollBackoff      float64
	PollMaxAttempts  int
	CaseDelay        time.Duration

	CatalogCacheTTL time.Duration
	LevelDurations  map[string]int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEQUEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CodeQuest API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject_base", "codequest.sessions")
	v.SetDefault("judge.http_timeout", "30s")
	v.SetDefault("judge.poll_interval", "1s")
	v.SetDefault("judge.poll_max_interval", "8s")
	v.SetDefault("judge.poll_backoff", 1.5)
	v.SetDefault("judge.poll_max_attempts", 20)
	v.SetDefault("judge.case_delay", "500ms")
	v.SetDefault("catalog.cache_ttl", "1m")
	v.SetDefault("session.level1_duration_sec", 1800)
	v.SetDefault("session.level2_duration_sec", 2700)
	v.SetDefault("session.level3_duration_sec", 3600)

	parseDuration := func(key string) (time.Duration, error) {
		value := v.GetString(key)
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return parsed, nil
	}

	httpTimeout, err := parseDuration("judge.http_timeout")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDuration("judge.poll_interval")
	if err != nil {
		return Config{}, err
	}
	pollMaxInterval, err := parseDuration("judge.poll_max_interval")
	if err != nil {
		return Config{}, err
	}
	caseDelay, err := parseDuration("judge.case_delay")
	if err != nil {
		return Config{}, err
	}
	catalogTTL, err := parseDuration("catalog.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSAddr:         v.GetString("nats.addr"),
		NATSSubjectBase:  v.GetString("nats.subject_base"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTRefreshSecret: v.GetString("jwt.refresh_secret"),
		JudgeBaseURL:     v.GetString("judge.base_url"),
		JudgeAPIKey:      v.GetString("judge.api_key"),
		JudgeAPIHost:     v.GetString("judge.api_host"),
		JudgeHTTPTimeout: httpTimeout,
		PollInterval:     pollInterval,
		PollMaxInterval:  pollMaxInterval,
		PollBackoff:      v.GetFloat64("judge.poll_backoff"),
		PollMaxAttempts:  v.GetInt("judge.poll_max_attempts"),
		CaseDelay:        caseDelay,
		CatalogCacheTTL:  catalogTTL,
		LevelDurations: map[string]int{
			"level1": v.GetInt("session.level1_duration_sec"),
			"level2": v.GetInt("session.level2_duration_sec"),
			"level3": v.GetInt("session.level3_duration_sec"),
		},
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.JudgeBaseURL == "" {
		return Config{}, fmt.Errorf("judge base url must be provided")
	}

	return cfg, nil
}
