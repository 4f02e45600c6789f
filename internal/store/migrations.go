package store

import (
	"fmt"
	"strings"
)

// schemaFor returns the DDL statements for the given driver. The schema is
// identical across backends apart from id generation, boolean, and text
// column syntax.
func schemaFor(driver string) []string {
	var (
		pk   string
		boolT string
		keyT string
	)
	switch driver {
	case "postgres":
		pk = "BIGSERIAL PRIMARY KEY"
		boolT = "BOOLEAN"
		keyT = "TEXT"
	case "mysql":
		pk = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		boolT = "BOOLEAN"
		keyT = "VARCHAR(255)" // MySQL can't index bare TEXT
	default: // sqlite
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
		boolT = "INTEGER"
		keyT = "TEXT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS login_keys (
			id %PK%,
			key_string %KEY% UNIQUE NOT NULL,
			injector_id BIGINT,
			reseller_id BIGINT,
			expires_at %TS%,
			max_devices BIGINT,
			device_count BIGINT NOT NULL DEFAULT 0,
			used BIGINT NOT NULL DEFAULT 0,
			blocked %BOOL% NOT NULL DEFAULT %FALSE%,
			created_at %TS% NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS devices (
			key_id BIGINT NOT NULL,
			device_id %KEY% NOT NULL,
			first_seen %TS% NOT NULL,
			UNIQUE (key_id, device_id)
		)`,

		`CREATE TABLE IF NOT EXISTS injectors (
			id %PK%,
			name %KEY% NOT NULL,
			redirect_url TEXT,
			status %BOOL% NOT NULL DEFAULT %TRUE%,
			created_at %TS% NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resellers (
			id %PK%,
			username %KEY% UNIQUE NOT NULL,
			password_hash %KEY% NOT NULL,
			credits BIGINT NOT NULL DEFAULT 0,
			last_login %TS%,
			created_at %TS% NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS admins (
			id %PK%,
			username %KEY% UNIQUE NOT NULL,
			password_hash %KEY% NOT NULL,
			last_login %TS%,
			created_at %TS% NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			name %KEY% PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_login_keys_key ON login_keys(key_string)`,
		`CREATE INDEX IF NOT EXISTS idx_login_keys_injector ON login_keys(injector_id)`,
		`CREATE INDEX IF NOT EXISTS idx_login_keys_reseller ON login_keys(reseller_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_key ON devices(key_id)`,
	}

	ts := "DATETIME"
	if driver == "postgres" {
		ts = "TIMESTAMPTZ"
	}
	falseLit, trueLit := "0", "1"
	if driver == "postgres" {
		falseLit, trueLit = "FALSE", "TRUE"
	}

	r := strings.NewReplacer(
		"%PK%", pk,
		"%BOOL%", boolT,
		"%KEY%", keyT,
		"%TS%", ts,
		"%FALSE%", falseLit,
		"%TRUE%", trueLit,
	)
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = r.Replace(s)
	}
	return out
}

func (s *Store) migrate() error {
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.Exec(stmt); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; treat an existing
			// index as a no-op so migrations stay idempotent.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
