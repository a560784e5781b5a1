package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
)

// Dialect picks driver name and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores records in an option_name/option_value table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// OpenSQL connects, pings and creates the table if missing.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string) (*SQL, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s, err := NewSQL(db, dialect, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open handle without touching the schema.
func NewSQL(db *sql.DB, dialect Dialect, table string) (*SQL, error) {
	if table == "" {
		table = "campaignsync_options"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("storage: invalid table name %q", table)
	}
	return &SQL{db: db, dialect: dialect, table: table}, nil
}

// DB exposes the handle so other components can share the connection.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect reports the driver in use.
func (s *SQL) Dialect() Dialect { return s.dialect }

// Close closes the handle.
func (s *SQL) Close() error { return s.db.Close() }

// Migrate creates the options table.
func (s *SQL) Migrate(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		option_name  VARCHAR(191) PRIMARY KEY,
		option_value TEXT NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	q := fmt.Sprintf("SELECT option_value FROM %s WHERE option_name = %s", s.table, s.dialect.placeholder(1))
	var value string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (option_name, option_value, updated_at) VALUES (%s, %s, %s)
		ON CONFLICT (option_name) DO UPDATE SET option_value = excluded.option_value, updated_at = excluded.updated_at`,
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3))
	if _, err := s.db.ExecContext(ctx, q, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE option_name = %s", s.table, s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Keys(ctx context.Context, prefix string) ([]string, error) {
	q := fmt.Sprintf("SELECT option_name FROM %s WHERE option_name LIKE %s ESCAPE '\\' ORDER BY option_name",
		s.table, s.dialect.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
