package sqlstore

import (
	"embed"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema/*.sql
var schemaFiles embed.FS

// Dialect isolates the few places where Postgres and SQLite differ.
type Dialect interface {
	Name() string
	// Table is the qualified jobs table.
	Table() string
	// Rebind rewrites $n placeholders into the driver's syntax.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// Schema returns the DDL statements creating the jobs table.
	Schema() ([]string, error)
}

type postgresDialect struct{}

// Postgres is the lib/pq dialect.
var Postgres Dialect = postgresDialect{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Table() string { return "cron_control.jobs" }

func (postgresDialect) Rebind(query string) string { return query }

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (postgresDialect) Schema() ([]string, error) {
	return readSchema("schema/postgres.sql")
}

type sqliteDialect struct{}

// SQLite is the go-sqlite3 dialect.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Table() string { return "cron_control_jobs" }

// Rebind turns $n into ?n, which SQLite binds by explicit position.
func (sqliteDialect) Rebind(query string) string {
	return strings.ReplaceAll(query, "$", "?")
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (sqliteDialect) Schema() ([]string, error) {
	return readSchema("schema/sqlite.sql")
}

func readSchema(name string) ([]string, error) {
	content, err := schemaFiles.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	var statements []string
	for _, stmt := range strings.Split(string(content), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}
