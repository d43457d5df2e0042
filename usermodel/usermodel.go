package usermodel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"xorkevin.dev/kerrors"
	"xorkevin.dev/pquery/sqldb"
)

const (
	// DefaultTableName is the table queried by default
	DefaultTableName = "users"

	insertColNum = 4
	maxPrealloc  = 256
)

var (
	// ErrInvalidIdent is returned for table names that are not sql identifiers
	ErrInvalidIdent errInvalidIdent
	// ErrInvalidPage is returned for negative limits or offsets
	ErrInvalidPage errInvalidPage
)

type (
	errInvalidIdent struct{}
	errInvalidPage  struct{}
)

func (e errInvalidIdent) Error() string {
	return "Invalid identifier"
}

func (e errInvalidPage) Error() string {
	return "Invalid page"
}

var regexIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type (
	// Model is a user row
	Model struct {
		Userid       int64
		Username     string
		FirstName    string
		LastName     string
		CreationTime int64
	}

	// ModelTable is the users table
	ModelTable struct {
		TableName string
	}
)

// New returns a users table. Table names are interpolated into statements
// and must be identifiers.
func New(table string) (*ModelTable, error) {
	if !regexIdent.MatchString(table) {
		return nil, kerrors.WithKind(nil, ErrInvalidIdent, fmt.Sprintf("Invalid table name: %q", table))
	}
	return &ModelTable{
		TableName: table,
	}, nil
}

func (t *ModelTable) Setup(ctx context.Context, d sqldb.Executor) error {
	_, err := d.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+t.TableName+" (userid INTEGER PRIMARY KEY, username TEXT NOT NULL UNIQUE, first_name TEXT NOT NULL, last_name TEXT NOT NULL, creation_time INTEGER NOT NULL);")
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS "+t.TableName+"_creation_time_index ON "+t.TableName+" (creation_time);")
	if err != nil {
		return err
	}
	return nil
}

func (t *ModelTable) InsertBulk(ctx context.Context, d sqldb.Executor, models []*Model, allowConflict bool) error {
	if len(models) == 0 {
		return nil
	}
	conflictSQL := ""
	if allowConflict {
		conflictSQL = " ON CONFLICT DO NOTHING"
	}
	placeholders := make([]string, 0, len(models))
	args := make([]interface{}, 0, len(models)*insertColNum)
	for _, m := range models {
		placeholders = append(placeholders, "(?, ?, ?, ?)")
		args = append(args, m.Username, m.FirstName, m.LastName, m.CreationTime)
	}
	_, err := d.ExecContext(ctx, "INSERT INTO "+t.TableName+" (username, first_name, last_name, creation_time) VALUES "+strings.Join(placeholders, ", ")+conflictSQL+";", args...)
	if err != nil {
		return err
	}
	return nil
}

func (t *ModelTable) GetModelAll(ctx context.Context, d sqldb.Executor, limit, offset int) (_ []Model, retErr error) {
	if limit < 0 || offset < 0 {
		return nil, kerrors.WithKind(nil, ErrInvalidPage, fmt.Sprintf("Invalid limit %d and offset %d", limit, offset))
	}
	res := make([]Model, 0, min(limit, maxPrealloc))
	rows, err := d.QueryContext(ctx, "SELECT userid, username, first_name, last_name, creation_time FROM "+t.TableName+" ORDER BY userid LIMIT ? OFFSET ?;", limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			retErr = errors.Join(retErr, fmt.Errorf("Failed to close db rows: %w", err))
		}
	}()
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.Userid, &m.Username, &m.FirstName, &m.LastName, &m.CreationTime); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
