package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ledgerline.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LEDGERLINE_PORT")
	setString(&cfg.Server.CORSOrigin, "LEDGERLINE_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimit, "LEDGERLINE_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "LEDGERLINE_RATE_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LEDGERLINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LEDGERLINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "LEDGERLINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "LEDGERLINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "LEDGERLINE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Logging.Level, "LEDGERLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LEDGERLINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LEDGERLINE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "LEDGERLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LEDGERLINE_BREAKER_TIMEOUT")
	setString(&cfg.Director.Model, "LEDGERLINE_DIRECTOR_MODEL")
	setInt(&cfg.Director.MaxTokens, "LEDGERLINE_DIRECTOR_MAX_TOKENS")
	setFloat64(&cfg.Director.Temperature, "LEDGERLINE_DIRECTOR_TEMPERATURE")
	setInt(&cfg.Director.StepTokenLimit, "LEDGERLINE_DIRECTOR_STEP_TOKEN_LIMIT")
	setInt(&cfg.Director.TotalTokenLimit, "LEDGERLINE_DIRECTOR_TOTAL_TOKEN_LIMIT")
	setString(&cfg.Safety.Model, "LEDGERLINE_SAFETY_MODEL")
	setInt(&cfg.Safety.MaxTokens, "LEDGERLINE_SAFETY_MAX_TOKENS")
	setBool(&cfg.Poller.Enabled, "LEDGERLINE_POLLER_ENABLED")
	setDuration(&cfg.Poller.Interval, "LEDGERLINE_POLLER_INTERVAL")
	setInt(&cfg.Poller.BatchLimit, "LEDGERLINE_POLLER_BATCH_LIMIT")
	setFloat64(&cfg.Payables.DualApprovalThreshold, "LEDGERLINE_AP_DUAL_APPROVAL_THRESHOLD")
	setBool(&cfg.Telemetry.Enabled, "LEDGERLINE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "LEDGERLINE_OTEL_ENDPOINT")
	setString(&cfg.Notify.Provider, "LEDGERLINE_NOTIFY_PROVIDER")
	setString(&cfg.Notify.SlackWebhook, "LEDGERLINE_SLACK_WEBHOOK")
	setString(&cfg.Notify.DiscordWebhook, "LEDGERLINE_DISCORD_WEBHOOK")
	setString(&cfg.Notify.SMTPHost, "LEDGERLINE_SMTP_HOST")
	setInt(&cfg.Notify.SMTPPort, "LEDGERLINE_SMTP_PORT")
	setString(&cfg.Notify.SMTPFrom, "LEDGERLINE_SMTP_FROM")
	setString(&cfg.Notify.SMTPTo, "LEDGERLINE_SMTP_TO")
	setString(&cfg.Notify.SMTPPassword, "LEDGERLINE_SMTP_PASSWORD")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Director.StepTokenLimit < 1 {
		return errors.New("director.step_token_limit must be >= 1")
	}
	if cfg.Director.TotalTokenLimit < cfg.Director.StepTokenLimit {
		return errors.New("director.total_token_limit must be >= director.step_token_limit")
	}
	if cfg.Poller.BatchLimit < 1 {
		return errors.New("poller.batch_limit must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
