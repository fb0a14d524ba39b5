package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	logx "kudobot/pkg/logx"
)

func TestAddCronValidatesSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	ok := []string{"@every 10m", "@hourly", "*/5 * * * *", "0 6 * * 1"}
	for _, spec := range ok {
		if err := s.AddCron("job", spec, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("AddCron(%q): %v", spec, err)
		}
	}
	bad := []string{"", "every 10m", "* * *", "@every tenminutes"}
	for _, spec := range bad {
		if err := s.AddCron("job", spec, func(ctx context.Context) error { return nil }); err == nil {
			t.Fatalf("AddCron(%q) accepted invalid spec", spec)
		}
	}
}

func TestJobRunsAndRecordsHistory(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, JobTimeout: time.Second}, logx.Nop())

	var runs int64
	err := s.AddCron("tick", "@every 50ms", func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("add cron: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt64(&runs) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hist := s.History()
	if len(hist) == 0 {
		t.Fatal("no history recorded")
	}
	if hist[0].Name != "tick" {
		t.Fatalf("history name = %q", hist[0].Name)
	}
	if hist[0].Error != "" {
		t.Fatalf("unexpected error: %s", hist[0].Error)
	}
}

func TestJobPanicIsRecovered(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	s.execOne(context.Background(), task{
		name:  "boom",
		state: &runState{},
		run: func(ctx context.Context) error {
			panic("kaboom")
		},
	})

	hist := s.History()
	if len(hist) != 1 {
		t.Fatalf("history len = %d", len(hist))
	}
	if hist[0].Error == "" {
		t.Fatal("panic not recorded as error")
	}
}

func TestOverlappingRunSkipped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	state := &runState{}
	state.running = true

	ran := false
	s.execOne(context.Background(), task{
		name:  "slow",
		state: state,
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	if ran {
		t.Fatal("overlapping run executed")
	}
	if len(s.History()) != 0 {
		t.Fatal("skipped run recorded in history")
	}
}

func TestJobTimeoutPropagates(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	s.execOne(context.Background(), task{
		name:    "sleepy",
		timeout: 20 * time.Millisecond,
		state:   &runState{},
		run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})
	hist := s.History()
	if len(hist) != 1 || hist[0].Error == "" {
		t.Fatalf("timeout not surfaced: %+v", hist)
	}
}

func TestHistoryRingBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 3}, logx.Nop())
	for i := 0; i < 5; i++ {
		s.appendHistory(HistoryItem{Name: fmt.Sprintf("job-%d", i)})
	}
	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3", len(hist))
	}
	if hist[0].Name != "job-2" || hist[2].Name != "job-4" {
		t.Fatalf("wrong items kept: %+v", hist)
	}
}
