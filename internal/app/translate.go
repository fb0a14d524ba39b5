package app

import (
	"fmt"
	"strings"
	"time"

	"kudobot/internal/config"
	"kudobot/internal/engine"
	"kudobot/internal/httpapi"
	"kudobot/internal/notify"
	"kudobot/internal/services/pprof"
	"kudobot/internal/services/scheduler"
	"kudobot/internal/storage"
	"kudobot/internal/strava"
)

// The map* functions translate the file-level config (string durations,
// optional sections) into the typed configs each component takes. They are
// also run by the reload validator, so a bad edit is rejected before commit.

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	ec := cfg.Engine

	loc := time.UTC
	if tz := strings.TrimSpace(ec.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return engine.Config{}, fmt.Errorf("engine.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}

	age, err := config.ParseDurationOrDefault("engine.age_threshold", ec.AgeThreshold, engine.DefaultAgeThreshold)
	if err != nil {
		return engine.Config{}, err
	}
	delay, err := config.ParseDurationOrDefault("engine.send_delay", ec.SendDelay, engine.DefaultSendDelay)
	if err != nil {
		return engine.Config{}, err
	}
	poll, err := config.ParseDurationOrDefault("engine.poll_interval", ec.PollInterval, engine.DefaultPollInterval)
	if err != nil {
		return engine.Config{}, err
	}

	qs, qe := engine.DefaultQuietStartHour, engine.DefaultQuietEndHour
	if ec.QuietStartHour != nil {
		qs = *ec.QuietStartHour
	}
	if ec.QuietEndHour != nil {
		qe = *ec.QuietEndHour
	}

	return engine.Config{
		SelfAthleteID:           ec.SelfAthleteID,
		Location:                loc,
		SizeThreshold:           ec.SizeThreshold,
		AgeThreshold:            age,
		MaxDrain:                ec.MaxDrain,
		SendDelay:               delay,
		PollInterval:            poll,
		QuietStartHour:          qs,
		QuietEndHour:            qe,
		ResetOpenOnPartialDrain: ec.ResetOpenOnPartialDrain,
	}, nil
}

func mapStravaConfig(cfg *config.Config) (strava.Config, error) {
	sc := cfg.Strava
	timeout, err := config.ParseDurationOrDefault("strava.timeout", sc.Timeout, 10*time.Second)
	if err != nil {
		return strava.Config{}, err
	}
	return strava.Config{
		ClientID:     sc.ClientID,
		ClientSecret: sc.ClientSecret,
		RefreshToken: sc.RefreshToken,
		AccessToken:  sc.AccessToken,
		BaseURL:      sc.BaseURL,
		TokenURL:     sc.TokenURL,
		Timeout:      timeout,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 0)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         hc.Addr,
		VerifyToken:  hc.VerifyToken,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	timeout, err := config.ParseDurationOrDefault("scheduler.job_timeout", sc.JobTimeout, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:     sc.Workers,
		HistorySize: sc.HistorySize,
		JobTimeout:  timeout,
		Timezone:    cfg.Engine.Timezone,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	if cfg.Notify == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	if cfg.Pprof == nil {
		return pprof.Config{}
	}
	return pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
	}
}
