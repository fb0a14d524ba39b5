package config

import (
	"reflect"
	"strings"

	logx "kudobot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.size_threshold", newCfg.Engine.SizeThreshold),
			logx.String("engine.age_threshold", newCfg.Engine.AgeThreshold),
			logx.Int("engine.max_drain", newCfg.Engine.MaxDrain),
			logx.String("engine.poll_interval", newCfg.Engine.PollInterval),
		)
	}

	// Strava (never log tokens)
	if oldCfg.Strava.ClientID != newCfg.Strava.ClientID ||
		oldCfg.Strava.ClientSecret != newCfg.Strava.ClientSecret ||
		oldCfg.Strava.RefreshToken != newCfg.Strava.RefreshToken ||
		oldCfg.Strava.AccessToken != newCfg.Strava.AccessToken ||
		strings.TrimSpace(oldCfg.Strava.BaseURL) != strings.TrimSpace(newCfg.Strava.BaseURL) {
		changed = append(changed, "strava")
		attrs = append(attrs,
			logx.Bool("strava.static_token", strings.TrimSpace(newCfg.Strava.AccessToken) != ""),
			logx.Bool("strava.base_url_set", strings.TrimSpace(newCfg.Strava.BaseURL) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)))
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
	}

	return changed, attrs
}
