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
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
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

func (s *sqliteStore) UpsertChat(ctx context.Context, c ChatRow) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if c.LastSeen.IsZero() {
		c.LastSeen = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, name, is_group, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_group = excluded.is_group,
			last_seen = excluded.last_seen`,
		c.ID, c.Name, boolToInt(c.IsGroup), c.LastSeen.Unix())
	return err
}

func (s *sqliteStore) ListChats(ctx context.Context) ([]ChatRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_group, last_seen FROM chats ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var (
			c       ChatRow
			isGroup int
			seen    int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &isGroup, &seen); err != nil {
			return nil, err
		}
		c.IsGroup = isGroup != 0
		c.LastSeen = time.Unix(seen, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (at, reminder_id, kind, targets, ok, fail, error, took_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.Unix(), e.ReminderID, e.Kind, e.Targets, e.OK, e.Fail, e.Error, e.TookMS)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
