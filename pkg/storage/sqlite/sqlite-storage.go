package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var ErrSchemaMismatch = errors.New("schema mismatch")

// Storage owns the database connection pool shared by every repository.
type Storage struct {
	Connection *sql.DB
	logger     logrus.FieldLogger
}

// New opens the database at path, creating the file and its schema when missing. An existing database is only
// accepted when its tables match the embedded schema.
func New(logger logrus.FieldLogger, path string) (*Storage, error) {
	logger.Info("initialising SQLite DB")

	var connection *sql.DB
	var err error

	// the database already exists, check for its contents
	if _, statErr := os.Stat(path); statErr == nil {
		connection, err = getValidConnection(path)
		if err != nil {
			logger.WithError(err).Error("error while verifying existing database")
			return nil, err
		}
	} else {
		// create the file and initialise the schema; mind the explicit need for foreign keys constraints
		connection, err = sql.Open("sqlite3", getConnectionString(path))
		if err != nil {
			logger.WithError(err).Error("error while creating new database")
			return nil, err
		}
		if _, err = connection.Exec(schema); err != nil {
			logger.WithError(err).Error("error while building database schema")
			_ = connection.Close()
			return nil, err
		}
	}

	// opening the DB will fail silently when the package is compiled without CGO_ENABLED
	if err = connection.Ping(); err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Storage{Connection: connection, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	s.logger.Debug("database stopping")
	return s.Connection.Close()
}

func getValidConnection(path string) (connection *sql.DB, err error) {
	connection, err = sql.Open("sqlite3", getConnectionString(path))
	if err != nil {
		return nil, err
	}

	// read the schema as defined in the storage package
	desired, err := sql.Open("sqlite3", getConnectionString(":memory:"))
	if err != nil {
		return nil, err
	}
	defer desired.Close()
	// a single connection keeps the in-memory database alive between statements
	desired.SetMaxOpenConns(1)
	if _, err = desired.Exec(schema); err != nil {
		return nil, err
	}

	// compare the defined schema with the actual one found in the existing database
	desiredTables, err := mapSchema(desired)
	if err != nil {
		return nil, err
	}
	actualTables, err := mapSchema(connection)
	if err != nil {
		return nil, err
	}

	// the database already exists and its schema matches the desired one
	if sameSchemaMap(desiredTables, actualTables) {
		return connection, nil
	}
	_ = connection.Close()
	return nil, ErrSchemaMismatch
}

func mapSchema(connection *sql.DB) (tables map[string]string, err error) {

	rows, err := connection.Query(`SELECT name, sql FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// for some reason in memory and on file sqlite schemas differ, possibly due to the hosting platform
	var replacer = strings.NewReplacer(
		"\n\t\t", "",
		"\r\n\t\t", "",
		"\r\n", "",
		"\n", "",
	)

	tables = make(map[string]string)
	var name, sqlCode string
	for rows.Next() {
		if err = rows.Scan(&name, &sqlCode); err != nil {
			return tables, err
		}
		tables[name] = replacer.Replace(sqlCode)
	}

	return tables, rows.Err()
}

func sameSchemaMap(first, second map[string]string) bool {
	// the second map might be larger than the first, hence the additional length check
	if len(first) != len(second) {
		return false
	}
	for firstKey, firstValue := range first {
		if secondValue, found := second[firstKey]; !found || secondValue != firstValue {
			return false
		}
	}
	return true
}

// getConnectionString provides a configuration string that enables foreign keys constraints and waits on locks
// rather than failing immediately under concurrent writes.
func getConnectionString(path string) string {
	return path + "?_fk=on&_busy_timeout=5000"
}

// IsConstraint reports whether err is an SQLite constraint violation of the given extended kind.
func IsConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

// CloseRows discards the error of a deferred rows.Close; rows.Err carries the relevant one.
func CloseRows(rows *sql.Rows) {
	_ = rows.Close()
}
