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
const DefaultConfigFile = "courseforge.yaml"

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
	setString(&cfg.Server.Port, "COURSEFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "COURSEFORGE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COURSEFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COURSEFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COURSEFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COURSEFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COURSEFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.BaseURL, "COURSEFORGE_ANTHROPIC_BASE_URL")
	setString(&cfg.Logging.Level, "COURSEFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COURSEFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COURSEFORGE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "COURSEFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COURSEFORGE_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "COURSEFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "COURSEFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "COURSEFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "COURSEFORGE_RATE_MAX_IDLE_TIME")

	// Generator
	setString(&cfg.Generator.Provider, "COURSEFORGE_GENERATOR_PROVIDER")
	setString(&cfg.Generator.Model, "COURSEFORGE_GENERATOR_MODEL")
	setInt64(&cfg.Generator.MaxTokens, "COURSEFORGE_GENERATOR_MAX_TOKENS")
	setFloat64(&cfg.Generator.Temperature, "COURSEFORGE_GENERATOR_TEMPERATURE")

	// Cache
	setBool(&cfg.Cache.Enabled, "COURSEFORGE_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "COURSEFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "COURSEFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "COURSEFORGE_CACHE_L2_TTL")
	setDuration(&cfg.Cache.TTL, "COURSEFORGE_CACHE_TTL")
	setDuration(&cfg.Cache.L1TTL, "COURSEFORGE_CACHE_L1_TTL")

	// Catalog
	setString(&cfg.Catalog.Source, "COURSEFORGE_CATALOG_SOURCE")
	setString(&cfg.Catalog.File, "COURSEFORGE_CATALOG_FILE")
	setString(&cfg.Catalog.RefreshSecret, "COURSEFORGE_CATALOG_REFRESH_SECRET")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxTurns, "COURSEFORGE_ORCH_MAX_TURNS")
	setDuration(&cfg.Orchestrator.TurnTimeout, "COURSEFORGE_ORCH_TURN_TIMEOUT")
	setDuration(&cfg.Orchestrator.RunTimeout, "COURSEFORGE_ORCH_RUN_TIMEOUT")
	setString(&cfg.Orchestrator.Strategy, "COURSEFORGE_ORCH_STRATEGY")
	setString(&cfg.Orchestrator.RouterID, "COURSEFORGE_ORCH_ROUTER_ID")
	setString(&cfg.Orchestrator.AdvisorsFile, "COURSEFORGE_ORCH_ADVISORS_FILE")

	// Schedule
	setInt(&cfg.Schedule.TopN, "COURSEFORGE_SCHEDULE_TOP_N")
	setInt(&cfg.Schedule.CourseCount, "COURSEFORGE_SCHEDULE_COURSE_COUNT")
	setBool(&cfg.Schedule.PhysicalEducationAddon, "COURSEFORGE_SCHEDULE_PE_ADDON")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "COURSEFORGE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "COURSEFORGE_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "COURSEFORGE_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "COURSEFORGE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "COURSEFORGE_OTEL_SAMPLE_RATE")

	// MCP
	setBool(&cfg.MCP.Enabled, "COURSEFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Port, "COURSEFORGE_MCP_PORT")
	setString(&cfg.MCP.APIKey, "COURSEFORGE_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	switch cfg.Catalog.Source {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "file":
		if cfg.Catalog.File == "" {
			return errors.New("catalog.file is required when catalog.source is file")
		}
	default:
		return fmt.Errorf("catalog.source %q must be postgres or file", cfg.Catalog.Source)
	}
	switch cfg.Generator.Provider {
	case "litellm":
		if cfg.LiteLLM.URL == "" {
			return errors.New("litellm.url is required")
		}
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return errors.New("anthropic.api_key is required when generator.provider is anthropic")
		}
	default:
		return fmt.Errorf("generator.provider %q must be litellm or anthropic", cfg.Generator.Provider)
	}
	if cfg.Generator.Model == "" {
		return errors.New("generator.model is required")
	}
	if cfg.Orchestrator.MaxTurns < 1 {
		return errors.New("orchestrator.max_turns must be >= 1")
	}
	if cfg.Orchestrator.TurnTimeout <= 0 {
		return errors.New("orchestrator.turn_timeout must be > 0")
	}
	if cfg.Orchestrator.Strategy != "handoff" && cfg.Orchestrator.Strategy != "fan_out_sequential" {
		return fmt.Errorf("orchestrator.strategy %q must be handoff or fan_out_sequential", cfg.Orchestrator.Strategy)
	}
	if cfg.Schedule.TopN < 0 {
		return errors.New("schedule.top_n must be >= 0")
	}
	if cfg.Schedule.CourseCount < 1 {
		return errors.New("schedule.course_count must be >= 1")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
