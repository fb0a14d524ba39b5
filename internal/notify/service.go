// Package notify pushes operator-facing summaries (flush outcomes) to a
// Telegram chat. It is best-effort: a failed or dropped notification
// never affects the engine.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"kudobot/internal/engine"
	"kudobot/internal/eventbus"
	logx "kudobot/pkg/logx"
)

type Config struct {
	Enabled    bool
	Token      string
	ChatID     int64
	RatePerSec int
}

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	bot     *tele.Bot
	limiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log, bus: bus}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("notify: token and chat_id are required when enabled")
	}

	// No Poller: this bot only sends.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	s.bot = b

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled && s.bot != nil }

// Start subscribes to the event bus and forwards flush summaries.
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() || s.bus == nil {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	ch, unsub := s.bus.Subscribe(16)
	s.unsub = unsub
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Type != "flush.completed" {
					continue
				}
				res, ok := ev.Data.(engine.FlushResult)
				if !ok {
					continue
				}
				s.send(runCtx, formatFlush(res))
			}
		}
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	unsub := s.unsub
	s.cancel = nil
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) send(ctx context.Context, text string) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), text)
	if err != nil {
		s.log.Warn("notification failed", logx.Err(err))
	}
}

func formatFlush(res engine.FlushResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "kudos flush: sent %d", res.Sent)
	if res.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed", res.Failed)
	}
	if res.Remaining > 0 {
		fmt.Fprintf(&b, ", %d still queued", res.Remaining)
	}
	if res.Took > 0 {
		fmt.Fprintf(&b, " (%s)", res.Took.Round(time.Second))
	}
	return b.String()
}
