package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kudobot/internal/eventbus"
	"kudobot/internal/metrics"
	"kudobot/internal/storage"
	logx "kudobot/pkg/logx"
)

type Engine struct {
	store storage.Store
	api   API
	log   logx.Logger
	bus   eventbus.Bus
	clock Clock

	// cfg and limiter are swapped together on hot reload.
	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter

	// flushMu serializes flushes; see package doc.
	flushMu sync.Mutex

	pollMu     sync.Mutex
	lastPollAt time.Time
	nextPollAt time.Time
}

func New(cfg Config, store storage.Store, api API, log logx.Logger, bus eventbus.Bus, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		store: store,
		api:   api,
		log:   log,
		bus:   bus,
		clock: clock,
	}
	e.Apply(cfg)
	return e
}

// Apply swaps thresholds and pacing at runtime. Safe to call concurrently;
// an in-flight flush keeps the limiter it started with.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.SendDelay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.SendDelay), 1)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.limiter = lim
	e.mu.Unlock()
}

func (e *Engine) config() (Config, *rate.Limiter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.limiter
}

// HandleActivityEvent is the push ingestion path.
//
// Creation events for our own activities fan out to the related ids
// (other participants' copies of the same logged activity); everything
// else contributes the single reported id. Push ids skip the dedup check —
// they are freshly discovered — but are still recorded as seen so a later
// poll does not re-add them.
func (e *Engine) HandleActivityEvent(ctx context.Context, ev ActivityEvent) error {
	if ev.ObjectType != "activity" || ev.AspectType != "create" {
		e.log.Debug("ignoring event",
			logx.String("object_type", ev.ObjectType),
			logx.String("aspect_type", ev.AspectType),
		)
		return nil
	}

	cfg, _ := e.config()

	var ids []int64
	if ev.OwnerID == cfg.SelfAthleteID {
		related, err := e.api.RelatedActivities(ctx, ev.ObjectID)
		if err != nil {
			return fmt.Errorf("related activities for %d: %w", ev.ObjectID, err)
		}
		ids = related
	} else {
		ids = []int64{ev.ObjectID}
	}
	if len(ids) == 0 {
		return nil
	}

	// Record into the seen set so the pull path skips these later.
	if _, err := e.store.MarkSeen(ctx, ids...); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return e.addAndTrigger(ctx, ids, "push")
}

// PollTick is the scheduled pull path. Ticks inside the quiet window are
// no-ops (no feed fetch, no state mutation).
func (e *Engine) PollTick(ctx context.Context) error {
	cfg, _ := e.config()
	now := e.clock.Now().In(cfg.Location)

	e.pollMu.Lock()
	e.nextPollAt = now.Add(cfg.PollInterval)
	e.pollMu.Unlock()

	if inQuietWindow(now.Hour(), cfg.QuietStartHour, cfg.QuietEndHour) {
		e.log.Debug("poll suppressed (quiet window)", logx.Int("hour", now.Hour()))
		return nil
	}
	return e.Trawl(ctx)
}

// Trawl fetches the following feed and routes unseen ids into the batch.
// The manual trawl action calls this directly, bypassing the quiet window.
func (e *Engine) Trawl(ctx context.Context) error {
	cfg, _ := e.config()

	feed, err := e.api.FollowingFeed(ctx)
	if err != nil {
		return fmt.Errorf("following feed: %w", err)
	}

	e.pollMu.Lock()
	e.lastPollAt = e.clock.Now()
	e.pollMu.Unlock()

	candidates := make([]int64, 0, len(feed))
	for _, f := range feed {
		if f.AthleteID == cfg.SelfAthleteID {
			continue
		}
		candidates = append(candidates, f.ActivityID)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Only ids never seen before are forwarded; this is what makes the
	// pull path idempotent across overlapping polls and webhooks.
	newly, err := e.store.MarkSeen(ctx, candidates...)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	e.log.Debug("poll complete",
		logx.Int("feed", len(feed)),
		logx.Int("new", len(newly)),
	)
	if len(newly) == 0 {
		return nil
	}
	return e.addAndTrigger(ctx, newly, "poll")
}

// addAndTrigger unions ids into the pending batch and evaluates the flush
// trigger exactly once.
func (e *Engine) addAndTrigger(ctx context.Context, ids []int64, source string) error {
	cfg, _ := e.config()
	now := e.clock.Now()

	added, err := e.store.AddPending(ctx, ids, now)
	if err != nil {
		return fmt.Errorf("add pending: %w", err)
	}
	metrics.IngestedIDs.WithLabelValues(source).Add(float64(added))

	size, openedAt, err := e.store.PendingState(ctx)
	if err != nil {
		return fmt.Errorf("pending state: %w", err)
	}
	metrics.PendingBatchSize.Set(float64(size))

	if added > 0 {
		e.log.Info("ids queued",
			logx.String("source", source),
			logx.Int("added", added),
			logx.Int("queue", size),
		)
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: "ingest.added", Time: now, Data: added})
		}
	}

	var age time.Duration
	if !openedAt.IsZero() {
		age = now.Sub(openedAt)
	}
	if !shouldFlush(size, age, cfg.SizeThreshold, cfg.AgeThreshold) {
		return nil
	}

	e.log.Info("flush triggered",
		logx.Int("queue", size),
		logx.Duration("age", age),
	)
	if _, err := e.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Status assembles the read-only view for the status surface.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	led, err := e.store.Ledger(ctx)
	if err != nil {
		return Status{}, err
	}
	size, openedAt, err := e.store.PendingState(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		TotalSent:     led.TotalSent,
		ActiveDays:    led.ActiveDays,
		QueueSize:     size,
		BatchOpenedAt: openedAt,
		LastFlushAt:   led.LastFlushAt,
	}
	if led.ActiveDays > 0 {
		st.AvgPerDay = float64(led.TotalSent) / float64(led.ActiveDays)
	}

	e.pollMu.Lock()
	st.LastPollAt = e.lastPollAt
	st.NextPollAt = e.nextPollAt
	e.pollMu.Unlock()

	return st, nil
}
