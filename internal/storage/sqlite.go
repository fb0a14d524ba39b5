package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "kudobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	keyOpenedAt      = "opened_at"
	keyTotalSent     = "total_sent"
	keyActiveDays    = "active_days"
	keyLastActiveDay = "last_active_day"
	keyLastFlushAt   = "last_flush_at"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) MarkSeen(ctx context.Context, ids ...int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	newly := make([]int64, 0, len(ids))
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seen(id) VALUES(?)`, id)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			newly = append(newly, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return newly, nil
}

func (s *sqliteStore) AddPending(ctx context.Context, ids []int64, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var before int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`).Scan(&before); err != nil {
		return 0, err
	}

	added := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO pending(id) VALUES(?)`, id)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	// Stamp opened_at exactly on the empty -> non-empty transition.
	if before == 0 && added > 0 {
		if err := setState(ctx, tx, keyOpenedAt, now.UTC().Format(time.RFC3339Nano)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *sqliteStore) PendingState(ctx context.Context) (int, time.Time, error) {
	var size int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`).Scan(&size); err != nil {
		return 0, time.Time{}, err
	}
	if size == 0 {
		return 0, time.Time{}, nil
	}
	raw, ok, err := getStateDB(ctx, s.db, keyOpenedAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	if !ok {
		return size, time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("corrupt opened_at %q: %w", raw, err)
	}
	return size, t, nil
}

func (s *sqliteStore) DrainPending(ctx context.Context, n int, now time.Time, resetOpen bool) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT id FROM pending LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range out {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE id = ?`, id); err != nil {
			return nil, err
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending`).Scan(&remaining); err != nil {
		return nil, err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE k = ?`, keyOpenedAt); err != nil {
			return nil, err
		}
	} else if resetOpen {
		if err := setState(ctx, tx, keyOpenedAt, now.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) Ledger(ctx context.Context) (Ledger, error) {
	var led Ledger
	if raw, ok, err := getStateDB(ctx, s.db, keyTotalSent); err != nil {
		return led, err
	} else if ok {
		led.TotalSent, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, ok, err := getStateDB(ctx, s.db, keyActiveDays); err != nil {
		return led, err
	} else if ok {
		led.ActiveDays, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, ok, err := getStateDB(ctx, s.db, keyLastActiveDay); err != nil {
		return led, err
	} else if ok {
		led.LastActiveDay = raw
	}
	if raw, ok, err := getStateDB(ctx, s.db, keyLastFlushAt); err != nil {
		return led, err
	} else if ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			led.LastFlushAt = t
		}
	}
	return led, nil
}

func (s *sqliteStore) RecordSends(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	cur := int64(0)
	if raw, ok, err := getStateTx(ctx, tx, keyTotalSent); err != nil {
		return err
	} else if ok {
		cur, _ = strconv.ParseInt(raw, 10, 64)
	}
	if err := setState(ctx, tx, keyTotalSent, strconv.FormatInt(cur+int64(n), 10)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) MarkActiveDay(ctx context.Context, day string) (bool, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		return false, errors.New("empty day")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	last, _, err := getStateTx(ctx, tx, keyLastActiveDay)
	if err != nil {
		return false, err
	}
	if last == day {
		return false, tx.Rollback()
	}

	days := int64(0)
	if raw, ok, err := getStateTx(ctx, tx, keyActiveDays); err != nil {
		return false, err
	} else if ok {
		days, _ = strconv.ParseInt(raw, 10, 64)
	}
	if err := setState(ctx, tx, keyActiveDays, strconv.FormatInt(days+1, 10)); err != nil {
		return false, err
	}
	if err := setState(ctx, tx, keyLastActiveDay, day); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *sqliteStore) SetLastFlush(ctx context.Context, t time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if err := setState(ctx, tx, keyLastFlushAt, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

func setState(ctx context.Context, tx *sql.Tx, k, v string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO state(k, v) VALUES(?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		k, v,
	)
	return err
}

func getStateTx(ctx context.Context, tx *sql.Tx, k string) (string, bool, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT v FROM state WHERE k = ?`, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func getStateDB(ctx context.Context, db *sql.DB, k string) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT v FROM state WHERE k = ?`, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
