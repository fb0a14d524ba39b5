package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "kudobot/pkg/logx"
)

type Config struct {
	Workers     int
	HistorySize int
	JobTimeout  time.Duration
	Timezone    string // IANA TZ, e.g. "Europe/London"
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type task struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	state   *runState
}

// runState lets overlapping cron fires of the same job skip instead of
// piling up behind a slow run.
type runState struct {
	mu      sync.Mutex
	running bool
}

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	state   *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	s.queue = make(chan task, 64)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// re-register existing defs (if any)
	for i := range s.defs {
		s.addCronLocked(&s.defs[i])
	}

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go s.worker(ctx, s.stopCh, s.queue, i)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// AddCron registers a named job. Valid before or after Start; jobs added
// before Start are registered when the cron runner comes up.
func (s *Service) AddCron(name, spec string, job func(ctx context.Context) error) error {
	spec = strings.TrimSpace(spec)
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	def := scheduleDef{
		name:    name,
		spec:    spec,
		timeout: s.cfg.JobTimeout,
		job:     job,
		state:   &runState{},
	}
	s.defs = append(s.defs, def)
	if s.c != nil {
		s.addCronLocked(&s.defs[len(s.defs)-1])
	}
	return nil
}

func (s *Service) addCronLocked(def *scheduleDef) {
	d := def
	id, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(task{name: d.name, timeout: d.timeout, run: d.job, state: d.state})
	})
	if err != nil {
		s.log.Error("cron registration failed", logx.String("job", d.name), logx.Err(err))
		return
	}
	d.entryID = id
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("task", t.name))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping task",
			logx.String("task", t.name),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
		)
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task, idx int) {
	defer s.workerWG.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduler worker",
				logx.Int("worker", idx),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	// Skip if the previous fire of the same job is still running.
	if t.state != nil {
		t.state.mu.Lock()
		if t.state.running {
			t.state.mu.Unlock()
			s.log.Debug("skipping overlapping run", logx.String("task", t.name))
			return
		}
		t.state.running = true
		t.state.mu.Unlock()
		defer func() {
			t.state.mu.Lock()
			t.state.running = false
			t.state.mu.Unlock()
		}()
	}

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("panic in job",
					logx.String("task", t.name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
		}()
		return t.run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	took := time.Since(start)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("job failed", logx.String("task", t.name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("job done", logx.String("task", t.name), logx.Duration("took", took))
	}

	item := HistoryItem{Name: t.name, Started: start, Duration: took}
	if err != nil {
		item.Error = err.Error()
	}
	s.appendHistory(item)
}

func (s *Service) appendHistory(item HistoryItem) {
	limit := s.cfg.HistorySize
	if limit <= 0 {
		limit = 50
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

// History returns a copy of the recent run history, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}
