package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "kudobot/pkg/logx"
)

// Store is the persistence API used by the engine.
//
// Every method is atomic on its own: concurrent callers may interleave
// between calls but never observe a half-applied mutation.
type Store interface {
	// MarkSeen records ids into the seen set and returns the subset that
	// was newly inserted (ids not seen before, in input order).
	MarkSeen(ctx context.Context, ids ...int64) ([]int64, error)

	// AddPending unions ids into the pending batch and returns how many
	// were actually added. If the batch was empty before the call and at
	// least one id was added, the batch open timestamp is stamped to now.
	AddPending(ctx context.Context, ids []int64, now time.Time) (int, error)

	// PendingState reports the batch cardinality and open timestamp
	// (zero time if the batch is empty).
	PendingState(ctx context.Context) (size int, openedAt time.Time, err error)

	// DrainPending atomically removes and returns up to n arbitrary
	// members. If the batch empties, the open timestamp is cleared; if
	// ids remain and resetOpen is true, it is re-stamped to now.
	DrainPending(ctx context.Context, n int, now time.Time, resetOpen bool) ([]int64, error)

	Ledger(ctx context.Context) (Ledger, error)

	// RecordSends adds n to the total-sent counter.
	RecordSends(ctx context.Context, n int) error

	// MarkActiveDay counts day ("2006-01-02") as active if it differs
	// from the last counted day; reports whether the counter moved.
	MarkActiveDay(ctx context.Context, day string) (bool, error)

	SetLastFlush(ctx context.Context, t time.Time) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
