// Package supervisor manages the bot's long-lived goroutines: named for
// logging, recovered on panic, and waited on during shutdown.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logx "kudobot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	// Best-effort operational counters, not a synchronization primitive.
	started uint64
	active  int64

	log logx.Logger
	wg  sync.WaitGroup

	errMu    sync.Mutex
	firstErr error
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for goroutines to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first error reported by a supervised goroutine.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

func (s *Supervisor) recordErr(err error) {
	s.errMu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.errMu.Unlock()
}

// Counters reports total-started and currently-active goroutine counts.
func (s *Supervisor) Counters() (started uint64, active int64) {
	if s == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&s.started), atomic.LoadInt64(&s.active)
}

// Go runs fn on a new goroutine tied to the supervisor context.
// Panics are recovered and logged; the first non-nil error is retained.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	atomic.AddUint64(&s.started, 1)
	atomic.AddInt64(&s.active, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer atomic.AddInt64(&s.active, -1)
		defer func() {
			if r := recover(); r != nil {
				if !s.log.IsZero() {
					s.log.Error("panic in goroutine",
						logx.String("name", name),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
				}
			}
		}()
		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.recordErr(err)
			if !s.log.IsZero() {
				s.log.Error("goroutine exited with error", logx.String("name", name), logx.Err(err))
			}
		}
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Stop cancels the context and waits for all goroutines, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines exit or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
