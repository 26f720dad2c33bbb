package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Orchestrator.MaxTurns != 10 {
		t.Errorf("expected max_turns 10, got %d", cfg.Orchestrator.MaxTurns)
	}
	if cfg.Orchestrator.Strategy != "handoff" {
		t.Errorf("expected handoff strategy, got %s", cfg.Orchestrator.Strategy)
	}
	if cfg.Schedule.TopN != 3 || cfg.Schedule.CourseCount != 3 || cfg.Schedule.PhysicalEducationAddon {
		t.Errorf("unexpected schedule defaults %+v", cfg.Schedule)
	}
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
postgres:
  max_conns: 20
logging:
  level: "debug"
orchestrator:
  max_turns: 4
  strategy: fan_out_sequential
  turn_timeout: 15s
schedule:
  top_n: 5
  physical_education_addon: true
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Orchestrator.MaxTurns != 4 || cfg.Orchestrator.Strategy != "fan_out_sequential" {
		t.Errorf("unexpected orchestrator %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.TurnTimeout != 15*time.Second {
		t.Errorf("expected turn timeout 15s, got %v", cfg.Orchestrator.TurnTimeout)
	}
	if cfg.Schedule.TopN != 5 || !cfg.Schedule.PhysicalEducationAddon {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Schedule.CourseCount != 3 {
		t.Errorf("expected default course_count 3, got %d", cfg.Schedule.CourseCount)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if err := loadYAML(&cfg, path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("COURSEFORGE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("COURSEFORGE_PG_MAX_CONNS", "25")
	t.Setenv("COURSEFORGE_LOG_LEVEL", "warn")
	t.Setenv("COURSEFORGE_BREAKER_TIMEOUT", "1m")
	t.Setenv("COURSEFORGE_ORCH_MAX_TURNS", "7")
	t.Setenv("COURSEFORGE_ORCH_TURN_TIMEOUT", "20s")
	t.Setenv("COURSEFORGE_SCHEDULE_TOP_N", "0")
	t.Setenv("COURSEFORGE_SCHEDULE_PE_ADDON", "true")
	t.Setenv("COURSEFORGE_GENERATOR_MAX_TOKENS", "1024")
	t.Setenv("COURSEFORGE_CACHE_L1_SIZE_MB", "128")
	t.Setenv("COURSEFORGE_CACHE_L1_TTL", "15s")
	t.Setenv("COURSEFORGE_CATALOG_REFRESH_SECRET", "hook-secret")
	t.Setenv("COURSEFORGE_MCP_API_KEY", "mcp-key")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("unexpected DSN: %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Orchestrator.MaxTurns != 7 || cfg.Orchestrator.TurnTimeout != 20*time.Second {
		t.Errorf("unexpected orchestrator %+v", cfg.Orchestrator)
	}
	if cfg.Schedule.TopN != 0 || !cfg.Schedule.PhysicalEducationAddon {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	if cfg.Generator.MaxTokens != 1024 {
		t.Errorf("expected max tokens 1024, got %d", cfg.Generator.MaxTokens)
	}
	if cfg.Cache.L1MaxSizeMB != 128 || cfg.Cache.L1TTL != 15*time.Second {
		t.Errorf("unexpected cache %+v", cfg.Cache)
	}
	if cfg.Catalog.RefreshSecret != "hook-secret" || cfg.MCP.APIKey != "mcp-key" {
		t.Errorf("unexpected secrets: refresh=%q mcp=%q", cfg.Catalog.RefreshSecret, cfg.MCP.APIKey)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("unexpected anthropic key %q", cfg.Anthropic.APIKey)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("COURSEFORGE_ORCH_MAX_TURNS", "ten")
	t.Setenv("COURSEFORGE_ORCH_TURN_TIMEOUT", "soon")
	t.Setenv("COURSEFORGE_SCHEDULE_PE_ADDON", "maybe")

	loadEnv(&cfg)

	if cfg.Orchestrator.MaxTurns != 10 {
		t.Errorf("invalid int should be ignored, got %d", cfg.Orchestrator.MaxTurns)
	}
	if cfg.Orchestrator.TurnTimeout != 60*time.Second {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Orchestrator.TurnTimeout)
	}
	if cfg.Schedule.PhysicalEducationAddon {
		t.Error("invalid bool should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"empty nats", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"zero breaker", func(c *Config) { c.Breaker.MaxFailures = 0 }, "breaker.max_failures"},
		{"zero burst", func(c *Config) { c.Rate.Burst = 0 }, "rate.burst"},
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }, "postgres.dsn"},
		{"file catalog without path", func(c *Config) { c.Catalog.Source = "file" }, "catalog.file"},
		{"file catalog ignores dsn", func(c *Config) { c.Catalog.Source = "file"; c.Catalog.File = "courses.json"; c.Postgres.DSN = "" }, ""},
		{"unknown catalog", func(c *Config) { c.Catalog.Source = "sqlite" }, "catalog.source"},
		{"unknown provider", func(c *Config) { c.Generator.Provider = "local" }, "generator.provider"},
		{"anthropic without key", func(c *Config) { c.Generator.Provider = "anthropic" }, "anthropic.api_key"},
		{"empty model", func(c *Config) { c.Generator.Model = "" }, "generator.model"},
		{"zero max turns", func(c *Config) { c.Orchestrator.MaxTurns = 0 }, "orchestrator.max_turns"},
		{"zero turn timeout", func(c *Config) { c.Orchestrator.TurnTimeout = 0 }, "orchestrator.turn_timeout"},
		{"unknown strategy", func(c *Config) { c.Orchestrator.Strategy = "parallel" }, "orchestrator.strategy"},
		{"negative top n", func(c *Config) { c.Schedule.TopN = -1 }, "schedule.top_n"},
		{"zero course count", func(c *Config) { c.Schedule.CourseCount = 0 }, "schedule.course_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
