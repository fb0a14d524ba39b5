// Package httpapi exposes the bot's HTTP surface: the activity webhook,
// manual trigger endpoints, and the status/health/metrics pages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kudobot/internal/engine"
	"kudobot/internal/runtime/supervisor"
	logx "kudobot/pkg/logx"
)

type Config struct {
	Addr         string
	VerifyToken  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

type Server struct {
	cfg  Config
	eng  *engine.Engine
	sup  *supervisor.Supervisor
	log  logx.Logger
	srv  *http.Server
	done chan struct{}
}

func New(cfg Config, eng *engine.Engine, sup *supervisor.Supervisor, log logx.Logger) *Server {
	return &Server{cfg: cfg.withDefaults(), eng: eng, sup: sup, log: log}
}

func (s *Server) Start(ctx context.Context) error {
	if s.srv != nil {
		return errors.New("httpapi: already started")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.cfg.Addr, err)
	}
	s.srv = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.done = make(chan struct{})
	done := s.done
	go func() {
		defer close(done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	s.srv = nil
	return err
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/webhook", s.handleWebhookVerify)
	r.Post("/webhook", s.handleWebhookEvent)
	r.Post("/trawl", s.handleTrawl)
	r.Post("/fire", s.handleFire)
	r.Get("/status", s.handleStatus)
	r.Get("/dashboard", s.handleDashboard)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// handleWebhookVerify answers the subscription handshake: echo hub.challenge
// back as JSON when the verify token matches.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != s.cfg.VerifyToken {
		s.log.Warn("webhook verification rejected", logx.String("remote", r.RemoteAddr))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": q.Get("hub.challenge")})
}

// handleWebhookEvent acknowledges immediately and processes the event on a
// supervised goroutine. The push provider retries on slow responses, so the
// ack must not wait on API calls.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	var ev engine.ActivityEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	s.sup.Go0("webhook-event", func(ctx context.Context) {
		if err := s.eng.HandleActivityEvent(ctx, ev); err != nil {
			s.log.Error("webhook event failed",
				logx.Int64("object_id", ev.ObjectID),
				logx.Err(err),
			)
		}
	})
}

func (s *Server) handleTrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Trawl(r.Context()); err != nil {
		s.log.Error("manual trawl failed", logx.Err(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.Flush(r.Context())
	if err != nil {
		s.log.Error("manual flush failed", logx.Err(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
