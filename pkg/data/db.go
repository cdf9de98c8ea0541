package data

import (
	"database/sql"
	"embed"
	"log/slog"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	// schemaVersion is the newest run history layout this build can read.
	schemaVersion = 1

	// concurrent CLI and server writers wait for the lock instead of failing
	dsnOptions = "?_pragma=busy_timeout(5000)"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
	errSchemaTooNew     = errors.New("run history was created by a newer version")
)

// Init creates the run history at dbFilePath or brings an existing one up to the current schema.
// Every statement in the schema is idempotent so Init is safe to call on each start.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return errors.Wrapf(err, "error opening database: %s", dbFilePath)
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.Exec(string(b)); err != nil {
		return errors.Wrapf(err, "failed to apply database schema in: %s", dbFilePath)
	}

	v, err := currentVersion(db)
	if err != nil {
		return err
	}
	if v > schemaVersion {
		return errors.Wrapf(errSchemaTooNew, "%s has schema version %d, supported %d", dbFilePath, v, schemaVersion)
	}

	slog.Debug("run history ready", "path", dbFilePath, "schema", v)
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	return conn, nil
}

// Contains checks for val in list
func Contains[T comparable](list []T, val T) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
