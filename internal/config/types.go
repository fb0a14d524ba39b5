package config

type Config struct {
	Engine  EngineConfig  `json:"engine"`
	Strava  StravaConfig  `json:"strava"`
	HTTP    HTTPConfig    `json:"http"`
	Logging LoggingConfig `json:"logging"`

	// Storage is required: the engine's batch, dedup, and usage state
	// must survive restarts.
	Storage StorageConfig `json:"storage"`

	Scheduler SchedulerConfig `json:"scheduler,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Pprof     *PprofConfig    `json:"pprof,omitempty"`
}

// EngineConfig controls the batching/dedup/trigger engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1h").
//
// Defaults (when fields are omitted/zero):
//   - size_threshold: 25
//   - age_threshold: "1h"
//   - max_drain: 100
//   - send_delay: "1.5s"
//   - poll_interval: "15m"
//   - quiet_start_hour: 23, quiet_end_hour: 6
//
// QuietStartHour/QuietEndHour are pointers so an explicit 0 can be told
// apart from "omitted". Setting both to the same hour disables the quiet
// window entirely.
type EngineConfig struct {
	SelfAthleteID int64  `json:"self_athlete_id"`
	Timezone      string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/London"

	SizeThreshold int    `json:"size_threshold,omitempty"`
	AgeThreshold  string `json:"age_threshold,omitempty"`
	MaxDrain      int    `json:"max_drain,omitempty"`
	SendDelay     string `json:"send_delay,omitempty"`
	PollInterval  string `json:"poll_interval,omitempty"`

	QuietStartHour *int `json:"quiet_start_hour,omitempty"`
	QuietEndHour   *int `json:"quiet_end_hour,omitempty"`

	// ResetOpenOnPartialDrain controls the batch open timestamp after a
	// flush that leaves ids behind: false (default) preserves the original
	// timestamp, bounding total time-to-flush from first insertion; true
	// re-stamps it, bounding time since last flush.
	ResetOpenOnPartialDrain bool `json:"reset_open_on_partial_drain,omitempty"`
}

// StravaConfig holds API credentials and endpoints.
//
// Either a refresh-token flow (client_id + client_secret + refresh_token)
// or a pre-provisioned static access_token must be configured.
// BaseURL/TokenURL are overridable for tests and proxies.
type StravaConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`

	BaseURL  string `json:"base_url,omitempty"`
	TokenURL string `json:"token_url,omitempty"`

	// Timeout is a Go duration string for outbound API calls (default "10s").
	Timeout string `json:"timeout,omitempty"`
}

// HTTPConfig controls the webhook/status/dashboard server.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8080"

	// PublicURL, when set, enables the keep-alive self-ping job
	// (useful on free-tier hosts that idle out).
	PublicURL string `json:"public_url,omitempty"`

	// VerifyToken is echoed back during webhook subscription validation.
	VerifyToken string `json:"verify_token,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LogFileConfig  `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./kudobot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the background job runner (poll tick, keep-alive).
type SchedulerConfig struct {
	Workers     int    `json:"workers,omitempty"`      // default 1
	HistorySize int    `json:"history_size,omitempty"` // default 50
	JobTimeout  string `json:"job_timeout,omitempty"`  // default "5m"

	// KeepAliveSpec overrides the self-ping schedule (default "@every 10m").
	KeepAliveSpec string `json:"keep_alive_spec,omitempty"`
}

// NotifyConfig controls optional operator notifications over Telegram.
// Disabled unless both token and chat_id are set.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 1
}

// PprofConfig controls the optional pprof HTTP listener.
// Prefer binding to localhost.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
}
