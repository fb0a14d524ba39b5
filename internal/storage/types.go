package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": dependency-free file backend (JSON snapshot)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Ledger is the persistent usage counters.
//
// Invariants:
//   - TotalSent counts individually successful outbound sends only.
//   - ActiveDays increments at most once per distinct calendar day
//     (in the engine's reference time zone) with a successful flush.
//   - LastActiveDay always names the most recent day counted
//     ("2006-01-02", empty if none yet).
type Ledger struct {
	TotalSent     int64
	ActiveDays    int64
	LastActiveDay string
	LastFlushAt   time.Time // zero if never flushed
}
