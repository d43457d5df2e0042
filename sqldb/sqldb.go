package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"xorkevin.dev/kerrors"
)

const (
	// DriverSQLite is the name of the pure go sqlite driver
	DriverSQLite = "sqlite"
)

var (
	// ErrConn is returned when a connection cannot be established
	ErrConn errConn
	// ErrInvalidMode is returned when a file open mode is not recognized
	ErrInvalidMode errInvalidMode
)

type (
	errConn        struct{}
	errInvalidMode struct{}
)

func (e errConn) Error() string {
	return "Failed connecting to db"
}

func (e errInvalidMode) Error() string {
	return "Invalid open mode"
}

type (
	// Executor is the interface of the subset of methods shared by [sql.DB] and [sql.Tx]
	Executor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) Row
	}

	// Result is [sql.Result]
	Result = sql.Result

	// Rows is the interface boundary of [sql.Rows]
	Rows interface {
		Next() bool
		Columns() ([]string, error)
		Scan(dest ...interface{}) error
		Err() error
		Close() error
	}

	// Row is the interface boundary of [sql.Row]
	Row interface {
		Scan(dest ...interface{}) error
		Err() error
	}

	// Conn is an [Executor] that owns its connection
	Conn interface {
		Executor
		Close() error
	}

	// Opener acquires connections
	Opener interface {
		Open(ctx context.Context) (Conn, error)
	}
)

// Mode is the sqlite file open mode
type Mode string

const (
	ModeReadOnly        Mode = "ro"
	ModeReadWrite       Mode = "rw"
	ModeReadWriteCreate Mode = "rwc"
)

// uriPathEscaper escapes the characters that end or alter the path of a
// sqlite uri filename
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// FileDSN returns a sqlite uri for a database file
func FileDSN(path string, mode Mode) (string, error) {
	switch mode {
	case ModeReadOnly, ModeReadWrite, ModeReadWriteCreate:
	default:
		return "", kerrors.WithKind(nil, ErrInvalidMode, fmt.Sprintf("Invalid sqlite open mode: %s", mode))
	}
	return fmt.Sprintf("file:%s?mode=%s", uriPathEscaper.Replace(path), mode), nil
}

type (
	// SQLOpener opens a single connection db handle per call
	SQLOpener struct {
		Driver string
		DSN    string
	}
)

func NewSQLOpener(driver, dsn string) *SQLOpener {
	if driver == "" {
		driver = DriverSQLite
	}
	return &SQLOpener{
		Driver: driver,
		DSN:    dsn,
	}
}

// Open connects to the db and verifies the connection
func (o *SQLOpener) Open(ctx context.Context) (Conn, error) {
	db, err := sqlx.Open(o.Driver, o.DSN)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrConn, "Failed to open db")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, kerrors.WithKind(err, ErrConn, "Failed to ping db")
	}
	return &DB{db: db}, nil
}

type (
	// DB wraps [sqlx.DB] as a [Conn]
	DB struct {
		db *sqlx.DB
	}
)

func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *DB) Close() error {
	return d.db.Close()
}
