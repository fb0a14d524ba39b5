// Package app wires the bot together: config, logging, storage, the Strava
// client, the kudos engine, and the surrounding services.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kudobot/internal/config"
	"kudobot/internal/engine"
	"kudobot/internal/eventbus"
	"kudobot/internal/httpapi"
	"kudobot/internal/notify"
	"kudobot/internal/runtime/supervisor"
	"kudobot/internal/services/pprof"
	"kudobot/internal/services/scheduler"
	"kudobot/internal/storage"
	"kudobot/internal/strava"
	logx "kudobot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	api   *strava.Client
	eng   *engine.Engine

	sched *scheduler.Service
	http  *httpapi.Server
	notif *notify.Service
	pprof *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	apiCfg, err := mapStravaConfig(cfg)
	if err != nil {
		return nil, err
	}
	api, err := strava.New(apiCfg, log.With(logx.String("comp", "strava")))
	if err != nil {
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, store, api,
		log.With(logx.String("comp", "engine")), bus, engine.SystemClock{})

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	notif, err := notify.New(mapNotifyConfig(cfg), bus, log.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		api:     api,
		eng:     eng,
		sched:   sched,
		notif:   notif,
		pprof:   pprofSvc,
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	// Reloads are transactional: a bad edit is rejected before commit.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStravaConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		_, err := mapSchedulerConfig(cfg)
		return err
	})

	cfg := a.cfgm.Get()

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return err
	}
	a.http = httpapi.New(httpCfg, a.eng, a.sup, a.log.With(logx.String("comp", "http")))
	if err := a.http.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.pprof.Start(a.sup.Context())

	if err := a.registerJobs(cfg); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.startReloadLoop()

	a.log.Info("started",
		logx.Int64("self_athlete_id", cfg.Engine.SelfAthleteID),
		logx.String("http_addr", httpCfg.Addr),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
	}
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.sched.Stop(stopCtx)
	if a.http != nil {
		_ = a.http.Stop(stopCtx)
	}
	a.notif.Stop(stopCtx)
	a.pprof.Stop(stopCtx)

	if a.sup != nil {
		_ = a.sup.Wait(stopCtx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// registerJobs installs the recurring work: the feed poll tick and, when a
// public URL is configured, the keep-alive self-ping.
func (a *App) registerJobs(cfg *config.Config) error {
	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	pollSpec := fmt.Sprintf("@every %s", engCfg.PollInterval)
	if err := a.sched.AddCron("feed.poll", pollSpec, a.eng.PollTick); err != nil {
		return fmt.Errorf("register poll job: %w", err)
	}

	publicURL := strings.TrimSpace(cfg.HTTP.PublicURL)
	if publicURL == "" {
		return nil
	}
	spec := strings.TrimSpace(cfg.Scheduler.KeepAliveSpec)
	if spec == "" {
		spec = "@every 10m"
	}
	target := strings.TrimRight(publicURL, "/") + "/healthz"
	client := &http.Client{Timeout: 15 * time.Second}
	if err := a.sched.AddCron("keepalive.ping", spec, func(c context.Context) error {
		req, err := http.NewRequestWithContext(c, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}); err != nil {
		return fmt.Errorf("register keepalive job: %w", err)
	}
	return nil
}

// startReloadLoop applies committed config changes to the running services.
// Engine thresholds and logging apply live; storage, strava, http, and
// scheduler changes need a restart and are only reported.
func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				if len(sections) == 0 {
					a.log.Debug("config reload received, no effective changes")
					continue
				}
				fields := append([]logx.Field{
					logx.String("changed", strings.Join(sections, ",")),
				}, attrs...)
				a.log.Info("config change", fields...)
				lastApplied = newCfg

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				if engCfg, err := mapEngineConfig(newCfg); err != nil {
					// Validator should have caught this; keep the old config.
					a.log.Warn("invalid engine config on reload", logx.Err(err))
				} else {
					a.eng.Apply(engCfg)
				}

				for _, s := range sections {
					switch s {
					case "storage", "strava", "http", "scheduler", "notify":
						a.log.Warn("section changed; restart required to take effect",
							logx.String("section", s))
					}
				}
			}
		}
	})
}
