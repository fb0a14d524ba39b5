package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks a parsed config for field-level mistakes before it is
// committed. It is also installed as the Watch() validator so a bad edit
// never replaces a good running config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Engine.SelfAthleteID <= 0 {
		return errors.New("engine.self_athlete_id is required")
	}
	if tz := strings.TrimSpace(cfg.Engine.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
	}
	for _, h := range []struct {
		name string
		v    *int
	}{
		{"engine.quiet_start_hour", cfg.Engine.QuietStartHour},
		{"engine.quiet_end_hour", cfg.Engine.QuietEndHour},
	} {
		if h.v != nil && (*h.v < 0 || *h.v > 23) {
			return fmt.Errorf("%s: hour must be in [0,23]", h.name)
		}
	}
	if cfg.Engine.SizeThreshold < 0 {
		return errors.New("engine.size_threshold must be >= 0")
	}
	if cfg.Engine.MaxDrain < 0 {
		return errors.New("engine.max_drain must be >= 0")
	}
	for _, d := range []struct{ name, raw string }{
		{"engine.age_threshold", cfg.Engine.AgeThreshold},
		{"engine.send_delay", cfg.Engine.SendDelay},
		{"engine.poll_interval", cfg.Engine.PollInterval},
		{"strava.timeout", cfg.Strava.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"scheduler.job_timeout", cfg.Scheduler.JobTimeout},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	} {
		if _, err := ParseDurationField(d.name, d.raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3", "file":
	case "", "none":
		return errors.New("storage.driver is required (sqlite or file)")
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}

	haveRefresh := cfg.Strava.ClientID != "" && cfg.Strava.ClientSecret != "" && cfg.Strava.RefreshToken != ""
	haveStatic := strings.TrimSpace(cfg.Strava.AccessToken) != ""
	if !haveRefresh && !haveStatic {
		return errors.New("strava: either access_token or client_id+client_secret+refresh_token is required")
	}

	if cfg.Notify != nil && cfg.Notify.Enabled {
		if strings.TrimSpace(cfg.Notify.Token) == "" || cfg.Notify.ChatID == 0 {
			return errors.New("notify: token and chat_id are required when enabled")
		}
	}

	return nil
}
