package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/storage"
)

const table = "campaignsync_activity"

// SQL stores entries in a table shared with the settings database.
type SQL struct {
	db      *sql.DB
	dialect storage.Dialect
	keep    int
	now     func() time.Time
}

// NewSQL wraps an open handle.
func NewSQL(db *sql.DB, dialect storage.Dialect, keep int) *SQL {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &SQL{db: db, dialect: dialect, keep: keep, now: time.Now}
}

// Open returns the log described by cfg: Nop when disabled, otherwise a
// migrated SQL log.
func Open(ctx context.Context, cfg config.ActivityConfig) (Log, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	dialect := storage.Dialect(cfg.Driver)
	if dialect != storage.DialectPostgres && dialect != storage.DialectSQLite {
		return nil, fmt.Errorf("activity: unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("activity: dsn is required")
	}
	db, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	l := NewSQL(db, dialect, cfg.Keep)
	if err := l.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQL) ph(n int) string {
	if l.dialect == storage.DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Migrate creates the activity table.
func (l *SQL) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		id        VARCHAR(36) PRIMARY KEY,
		logged_at TIMESTAMP NOT NULL,
		text      TEXT NOT NULL,
		state     VARCHAR(55) NOT NULL DEFAULT 'info',
		context   VARCHAR(55) NOT NULL DEFAULT '',
		slug      VARCHAR(55) NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// Record inserts e and trims the table to the newest entries.
func (l *SQL) Record(ctx context.Context, e Entry) error {
	e = prepare(e, l.now())
	q := fmt.Sprintf(`INSERT INTO %s (id, logged_at, text, state, context, slug) VALUES (%s, %s, %s, %s, %s, %s)`,
		table, l.ph(1), l.ph(2), l.ph(3), l.ph(4), l.ph(5), l.ph(6))
	if _, err := l.db.ExecContext(ctx, q, e.ID, e.Time, e.Text, e.State, e.Context, e.Slug); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	prune := fmt.Sprintf(`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY logged_at DESC LIMIT %s)`,
		table, table, l.ph(1))
	if _, err := l.db.ExecContext(ctx, prune, l.keep); err != nil {
		return fmt.Errorf("prune activity: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (l *SQL) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > l.keep {
		limit = l.keep
	}
	q := fmt.Sprintf(`SELECT id, logged_at, text, state, context, slug FROM %s ORDER BY logged_at DESC LIMIT %s`, table, l.ph(1))
	rows, err := l.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Time, &e.Text, &e.State, &e.Context, &e.Slug); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the handle.
func (l *SQL) Close() error { return l.db.Close() }
