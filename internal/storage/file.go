package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "kudobot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// All state lives in one JSON snapshot (<prefix>.state.json) rewritten
// atomically (temp file + rename) on every mutation. The state is small —
// two id sets plus a handful of counters — so rewrite-on-mutation is a fair
// trade for crash safety without a journal. Used by tests and minimal
// deployments; sqlite is the default driver.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	st   fileState
	open bool
}

type fileState struct {
	Seen     []int64 `json:"seen"`
	Pending  []int64 `json:"pending"`
	OpenedAt string  `json:"opened_at,omitempty"`

	TotalSent     int64  `json:"total_sent"`
	ActiveDays    int64  `json:"active_days"`
	LastActiveDay string `json:"last_active_day,omitempty"`
	LastFlushAt   string `json:"last_flush_at,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	snapPath := filepath.Join(dir, base) + ".state.json"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: snapPath, open: true}
	if b, err := os.ReadFile(snapPath); err == nil {
		if err := json.Unmarshal(b, &s.st); err != nil {
			return nil, errors.New("corrupt state snapshot: " + err.Error())
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// persistLocked writes the snapshot atomically. Callers hold s.mu.
func (s *fileStore) persistLocked() error {
	b, err := json.Marshal(s.st)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) MarkSeen(ctx context.Context, ids ...int64) ([]int64, error) {
	_ = ctx
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrClosed
	}

	have := make(map[int64]struct{}, len(s.st.Seen))
	for _, id := range s.st.Seen {
		have[id] = struct{}{}
	}
	var newly []int64
	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		s.st.Seen = append(s.st.Seen, id)
		newly = append(newly, id)
	}
	if len(newly) == 0 {
		return nil, nil
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return newly, nil
}

func (s *fileStore) AddPending(ctx context.Context, ids []int64, now time.Time) (int, error) {
	_ = ctx
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, ErrClosed
	}

	wasEmpty := len(s.st.Pending) == 0
	have := make(map[int64]struct{}, len(s.st.Pending))
	for _, id := range s.st.Pending {
		have[id] = struct{}{}
	}
	added := 0
	for _, id := range ids {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		s.st.Pending = append(s.st.Pending, id)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if wasEmpty {
		s.st.OpenedAt = now.UTC().Format(time.RFC3339Nano)
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *fileStore) PendingState(ctx context.Context) (int, time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, time.Time{}, ErrClosed
	}
	if len(s.st.Pending) == 0 || s.st.OpenedAt == "" {
		return len(s.st.Pending), time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.st.OpenedAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	return len(s.st.Pending), t, nil
}

func (s *fileStore) DrainPending(ctx context.Context, n int, now time.Time, resetOpen bool) ([]int64, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrClosed
	}

	if n > len(s.st.Pending) {
		n = len(s.st.Pending)
	}
	out := append([]int64(nil), s.st.Pending[:n]...)
	s.st.Pending = append([]int64(nil), s.st.Pending[n:]...)

	if len(s.st.Pending) == 0 {
		s.st.OpenedAt = ""
	} else if resetOpen {
		s.st.OpenedAt = now.UTC().Format(time.RFC3339Nano)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) Ledger(ctx context.Context) (Ledger, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return Ledger{}, ErrClosed
	}
	led := Ledger{
		TotalSent:     s.st.TotalSent,
		ActiveDays:    s.st.ActiveDays,
		LastActiveDay: s.st.LastActiveDay,
	}
	if s.st.LastFlushAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, s.st.LastFlushAt); err == nil {
			led.LastFlushAt = t
		}
	}
	return led, nil
}

func (s *fileStore) RecordSends(ctx context.Context, n int) error {
	_ = ctx
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	s.st.TotalSent += int64(n)
	return s.persistLocked()
}

func (s *fileStore) MarkActiveDay(ctx context.Context, day string) (bool, error) {
	_ = ctx
	day = strings.TrimSpace(day)
	if day == "" {
		return false, errors.New("empty day")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false, ErrClosed
	}
	if s.st.LastActiveDay == day {
		return false, nil
	}
	s.st.ActiveDays++
	s.st.LastActiveDay = day
	if err := s.persistLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) SetLastFlush(ctx context.Context, t time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	s.st.LastFlushAt = t.UTC().Format(time.RFC3339Nano)
	return s.persistLocked()
}
