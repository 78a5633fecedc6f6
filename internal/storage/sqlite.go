package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"dreampulse/internal/domain"
	"dreampulse/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	logMax int

	// Delivery-log pruning is amortized: every pruneEvery appends we trim
	// the user's log back to the bound.
	opCount    atomic.Uint64
	pruneEvery uint64
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

	st := &sqliteStore{db: db, log: log, logMax: cfg.deliveryLogMax(), pruneEvery: 64}

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

func (s *sqliteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var lastUpdate int64
	err := s.db.QueryRowContext(ctx, `SELECT last_token_update FROM users WHERE id = ?`, id).Scan(&lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u := &domain.User{ID: id}
	if lastUpdate > 0 {
		u.LastTokenUpdate = time.Unix(lastUpdate, 0).UTC()
	}

	if err := s.loadRecipients(ctx, u); err != nil {
		return nil, err
	}
	if err := s.loadSchedules(ctx, u); err != nil {
		return nil, err
	}
	// Older rows may predate the built-in schedule; backfill defaults.
	if u.RealityCheck.ID == "" {
		u.RealityCheck = domain.NewRealityCheckSchedule()
	}
	return u, nil
}

func (s *sqliteStore) loadRecipients(ctx context.Context, u *domain.User) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, device_info, added_at FROM recipients WHERE user_id = ? ORDER BY added_at, token`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.Recipient
		var addedAt int64
		if err := rows.Scan(&r.Token, &r.DeviceInfo, &addedAt); err != nil {
			return err
		}
		r.AddedAt = time.Unix(addedAt, 0).UTC()
		u.Recipients = append(u.Recipients, r)
	}
	return rows.Err()
}

func (s *sqliteStore) loadSchedules(ctx context.Context, u *domain.User) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, is_builtin, enabled, frequency, custom_interval, start_time, end_time, days_of_week, timezone, message
		 FROM schedules WHERE user_id = ? ORDER BY is_builtin DESC, position`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sc domain.Schedule
		var builtin, enabled int
		var freq, days string
		if err := rows.Scan(&sc.ID, &builtin, &enabled, &freq, &sc.CustomIntervalMinutes,
			&sc.StartTime, &sc.EndTime, &days, &sc.Timezone, &sc.Message); err != nil {
			return err
		}
		sc.Enabled = enabled != 0
		sc.Frequency = domain.Frequency(freq)
		sc.DaysOfWeek = splitDays(days)
		if builtin != 0 {
			u.RealityCheck = sc
		} else {
			u.CustomSchedules = append(u.CustomSchedules, sc)
		}
	}
	return rows.Err()
}

func (s *sqliteStore) PutUser(ctx context.Context, u *domain.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lastUpdate int64
	if !u.LastTokenUpdate.IsZero() {
		lastUpdate = u.LastTokenUpdate.Unix()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, last_token_update) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_token_update = excluded.last_token_update`,
		u.ID, lastUpdate); err != nil {
		return err
	}

	// Replace the user's recipient and schedule sets whole. Every
	// read-modify-write funnels through the registry's lock, so this
	// stays simple.
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE user_id = ?`, u.ID); err != nil {
		return err
	}
	for _, r := range u.Recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipients (user_id, token, device_info, added_at) VALUES (?, ?, ?, ?)`,
			u.ID, r.Token, r.DeviceInfo, r.AddedAt.Unix()); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE user_id = ?`, u.ID); err != nil {
		return err
	}
	if err := insertSchedule(ctx, tx, u.ID, u.RealityCheck, true, 0); err != nil {
		return err
	}
	for i, sc := range u.CustomSchedules {
		if err := insertSchedule(ctx, tx, u.ID, sc, false, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSchedule(ctx context.Context, tx *sql.Tx, userID string, sc domain.Schedule, builtin bool, pos int) error {
	b := 0
	if builtin {
		b = 1
	}
	en := 0
	if sc.Enabled {
		en = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (user_id, id, is_builtin, position, enabled, frequency, custom_interval,
		                        start_time, end_time, days_of_week, timezone, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, sc.ID, b, pos, en, string(sc.Frequency), sc.CustomIntervalMinutes,
		sc.StartTime, sc.EndTime, joinDays(sc.DaysOfWeek), sc.Timezone, sc.Message)
	return err
}

func (s *sqliteStore) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM delivery_log WHERE user_id = ?`,
		`DELETE FROM schedules WHERE user_id = ?`,
		`DELETE FROM recipients WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListArmable(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT u.id FROM users u
		 WHERE EXISTS (SELECT 1 FROM schedules sc WHERE sc.user_id = u.id AND sc.enabled = 1)
		   AND EXISTS (SELECT 1 FROM recipients r WHERE r.user_id = u.id)`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, userID string, e domain.DeliveryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	succ := 0
	if e.Success {
		succ = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_log (user_id, type, title, body, at, success, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, e.Type, e.Title, e.Body, e.At.Unix(), succ, e.Error)
	if err != nil {
		return err
	}
	if s.opCount.Add(1)%s.pruneEvery == 0 {
		s.pruneDeliveries(ctx, userID)
	}
	return nil
}

func (s *sqliteStore) pruneDeliveries(ctx context.Context, userID string) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_log WHERE user_id = ? AND seq NOT IN
		 (SELECT seq FROM delivery_log WHERE user_id = ? ORDER BY seq DESC LIMIT ?)`,
		userID, userID, s.logMax)
	if err != nil {
		s.log.Warn("delivery log prune failed", logx.String("user", userID), logx.Err(err))
	}
}

func (s *sqliteStore) ListDeliveries(ctx context.Context, userID string, limit int) ([]domain.DeliveryEntry, error) {
	if limit <= 0 || limit > s.logMax {
		limit = s.logMax
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, title, body, at, success, error FROM delivery_log
		 WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DeliveryEntry
	for rows.Next() {
		var e domain.DeliveryEntry
		var at int64
		var succ int
		if err := rows.Scan(&e.Type, &e.Title, &e.Body, &at, &succ, &e.Error); err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0).UTC()
		e.Success = succ != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func joinDays(days []string) string { return strings.Join(days, ",") }

func splitDays(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
