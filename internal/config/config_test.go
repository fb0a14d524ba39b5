package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validJSON = `{
  "engine": { "self_athlete_id": 42, "size_threshold": 25, "age_threshold": "1h" },
  "strava": { "access_token": "tok" },
  "logging": { "level": "INFO", "console": true, "file": { "enabled": false } },
  "storage": { "driver": "sqlite", "path": "./kudobot.db" }
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", validJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Engine.SelfAthleteID != 42 {
		t.Fatalf("self_athlete_id = %d, want 42", cfg.Engine.SelfAthleteID)
	}
	if cfg.Engine.SizeThreshold != 25 {
		t.Fatalf("size_threshold = %d, want 25", cfg.Engine.SizeThreshold)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage.driver = %q", cfg.Storage.Driver)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  self_athlete_id: 42
  quiet_start_hour: 23
  quiet_end_hour: 6
strava:
  access_token: tok
logging:
  level: DEBUG
  console: true
  file:
    enabled: false
storage:
  driver: file
  path: ./kudobot
`
	m := NewManager(writeFile(t, "config.yaml", yaml))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if cfg.Engine.SelfAthleteID != 42 {
		t.Fatalf("self_athlete_id = %d, want 42", cfg.Engine.SelfAthleteID)
	}
	if cfg.Engine.QuietStartHour == nil || *cfg.Engine.QuietStartHour != 23 {
		t.Fatalf("quiet_start_hour = %v, want 23", cfg.Engine.QuietStartHour)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("logging.level = %q", cfg.Logging.Level)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validJSON, `"engine": {`, `"engine": { "typo_field": 1,`, 1)
	m := NewManager(writeFile(t, "config.json", bad))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", validJSON+`{"extra": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func validConfig() *Config {
	return &Config{
		Engine:  EngineConfig{SelfAthleteID: 42},
		Strava:  StravaConfig{AccessToken: "tok"},
		Storage: StorageConfig{Driver: "sqlite", Path: "./kudobot.db"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := 24
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing athlete id", func(c *Config) { c.Engine.SelfAthleteID = 0 }},
		{"bad timezone", func(c *Config) { c.Engine.Timezone = "Mars/Olympus" }},
		{"quiet hour out of range", func(c *Config) { c.Engine.QuietStartHour = &bad }},
		{"bad duration", func(c *Config) { c.Engine.AgeThreshold = "one hour" }},
		{"negative duration", func(c *Config) { c.Engine.SendDelay = "-2s" }},
		{"missing storage driver", func(c *Config) { c.Storage.Driver = "" }},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "redis" }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"no credentials", func(c *Config) { c.Strava = StravaConfig{} }},
		{"partial refresh trio", func(c *Config) {
			c.Strava = StravaConfig{ClientID: "x", ClientSecret: "y"}
		}},
		{"notify enabled without chat", func(c *Config) {
			c.Notify = &NotifyConfig{Enabled: true, Token: "t"}
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	// Refresh-token trio is a valid alternative to a static token.
	cfg := validConfig()
	cfg.Strava = StravaConfig{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("refresh trio rejected: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "90m"); err != nil || d != 90*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for junk")
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "5s", time.Minute); err != nil || d != 5*time.Second {
		t.Fatalf("explicit: got %v, %v", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := validConfig()
	newCfg := validConfig()
	newCfg.Engine.SizeThreshold = 30
	newCfg.Storage.Path = "./other.db"

	sections, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"engine": true, "storage": true}
	if len(sections) != 2 {
		t.Fatalf("sections = %v", sections)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, sections)
		}
	}

	sections, _ = SummarizeChange(oldCfg, validConfig())
	if len(sections) != 0 {
		t.Fatalf("no-change diff reported %v", sections)
	}
}
