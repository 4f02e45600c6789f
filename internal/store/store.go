package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Store persists the key inventory: login keys, device bindings, injectors,
// resellers, admin accounts, and panel settings. It speaks SQLite (embedded
// default), MySQL, or PostgreSQL through sqlx.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the given backend. Supported drivers: "sqlite", "mysql",
// "postgres". The DSN is driver-specific; for sqlite it is a file path or
// ":memory:".
func Open(driver, dsn string) (*Store, error) {
	var driverName string
	switch driver {
	case "sqlite", "":
		driver = "sqlite"
		driverName = "sqlite"
		if dsn == "" || dsn == ":memory:" {
			dsn = ":memory:?_journal_mode=WAL"
		} else if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case "mysql":
		driverName = "mysql"
		dsn = mysqlDSN(dsn)
	case "postgres":
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// mysqlDSN normalizes a MySQL DSN. parseTime makes DATETIME columns scan
// into time.Time. clientFoundRows makes RowsAffected() count matched rows
// instead of changed rows; without it an idempotent UPDATE that leaves the
// row unchanged reports zero rows and gets mistaken for ErrNotFound.
func mysqlDSN(dsn string) string {
	for _, param := range []string{"parseTime=true", "clientFoundRows=true"} {
		name := param[:strings.Index(param, "=")]
		if strings.Contains(dsn, name) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}

// NewStore opens the embedded SQLite backend under dataDir. Pass empty
// string for in-memory (tests).
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return Open("sqlite", ":memory:")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return Open("sqlite", filepath.Join(dataDir, "keygate.db"))
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind converts `?` placeholders to the driver's bind style.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// insertGetID runs a named INSERT and returns the generated id. PostgreSQL
// has no LastInsertId, so the query gets a RETURNING clause there.
func (s *Store) insertGetID(ctx context.Context, query string, arg interface{}) (int64, error) {
	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// txInsertGetID is insertGetID inside an existing transaction.
func (s *Store) txInsertGetID(ctx context.Context, tx *sqlx.Tx, query string, arg interface{}) (int64, error) {
	if s.driver == "postgres" {
		rows, err := tx.NamedQuery(query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// any of the supported backends.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
