package db

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/stellar/go/support/db"
)

//go:embed sqlmigrations/*.sql
var sqlMigrations embed.FS

// openInMemory opens a private sqlite database living in memory. It is gone
// once the session is closed.
func openInMemory() (*db.Session, error) {
	// Every connection to a named shared-cache memory database sees the same
	// data, a single connection keeps it alive and serializes writers.
	dsn := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	session, err := db.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	session.DB.SetMaxOpenConns(1)
	session.DB.SetMaxIdleConns(1)
	session.DB.SetConnMaxLifetime(0)
	session.DB.SetConnMaxIdleTime(0)

	if err = runSQLMigrations(session.DB.DB, "sqlite3"); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("could not run SQL migrations: %w", err)
	}
	return session, nil
}

func openSession(namespace string, registry *prometheus.Registry) (db.SessionInterface, error) {
	session, err := openInMemory()
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return session, nil
	}
	return db.RegisterMetrics(session, namespace, "journal", registry), nil
}

func runSQLMigrations(db *sql.DB, dialect string) error {
	m := &migrate.AssetMigrationSource{
		Asset: sqlMigrations.ReadFile,
		AssetDir: func(path string) ([]string, error) {
			dirEntry, err := sqlMigrations.ReadDir(path)
			if err != nil {
				return nil, err
			}
			entries := make([]string, 0, len(dirEntry))
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}
			return entries, nil
		},
		Dir: "sqlmigrations",
	}
	_, err := migrate.ExecMax(db, dialect, m, migrate.Up, 0)
	return err
}
