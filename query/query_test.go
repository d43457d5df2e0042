package query

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/sqlcheck"
	"xorkevin.dev/pquery/sqldb"
)

const (
	userQuery = "SELECT * FROM users WHERE username = ?"
)

type (
	trackingOpener struct {
		mu      sync.Mutex
		opener  sqldb.Opener
		opened  int
		closed  int
		queries []string
	}

	trackingConn struct {
		sqldb.Conn
		o *trackingOpener
	}
)

func (o *trackingOpener) Open(ctx context.Context) (sqldb.Conn, error) {
	conn, err := o.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
	return &trackingConn{Conn: conn, o: o}, nil
}

func (o *trackingOpener) open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened - o.closed
}

func (c *trackingConn) QueryContext(ctx context.Context, query string, args ...interface{}) (sqldb.Rows, error) {
	c.o.mu.Lock()
	c.o.queries = append(c.o.queries, query)
	c.o.mu.Unlock()
	return c.Conn.QueryContext(ctx, query, args...)
}

func (c *trackingConn) Close() error {
	c.o.mu.Lock()
	c.o.closed++
	c.o.mu.Unlock()
	return c.Conn.Close()
}

func setupDB(t *testing.T) string {
	t.Helper()

	assert := require.New(t)

	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "example.db")
	dsn, err := sqldb.FileDSN(file, sqldb.ModeReadWriteCreate)
	assert.NoError(err)
	conn, err := sqldb.NewSQLOpener("", dsn).Open(ctx)
	assert.NoError(err)
	defer func() {
		assert.NoError(conn.Close())
	}()
	_, err = conn.ExecContext(ctx, "CREATE TABLE users (userid INTEGER PRIMARY KEY, username TEXT NOT NULL UNIQUE, first_name TEXT NOT NULL);")
	assert.NoError(err)
	for _, i := range [][]interface{}{
		{1, "admin", "Admin"},
		{2, "alice", "Alice"},
		{3, "o'brien", "Obrien"},
		{4, `bob"; --`, "Bob"},
	} {
		_, err := conn.ExecContext(ctx, "INSERT INTO users (userid, username, first_name) VALUES (?, ?, ?);", i...)
		assert.NoError(err)
	}
	return file
}

func newTrackingOpener(t *testing.T, file string) *trackingOpener {
	t.Helper()

	dsn, err := sqldb.FileDSN(file, sqldb.ModeReadOnly)
	require.NoError(t, err)
	return &trackingOpener{
		opener: sqldb.NewSQLOpener("", dsn),
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()

	file := setupDB(t)

	for _, tc := range []struct {
		Name     string
		Username string
		Rows     [][]interface{}
	}{
		{
			Name:     "returns matching user",
			Username: "admin",
			Rows: [][]interface{}{
				{int64(1), "admin", "Admin"},
			},
		},
		{
			Name:     "returns empty on no match",
			Username: "nobody",
			Rows:     [][]interface{}{},
		},
		{
			Name:     "matches quotes literally",
			Username: "o'brien",
			Rows: [][]interface{}{
				{int64(3), "o'brien", "Obrien"},
			},
		},
		{
			Name:     "matches sql metacharacters literally",
			Username: `bob"; --`,
			Rows: [][]interface{}{
				{int64(4), `bob"; --`, "Bob"},
			},
		},
		{
			Name:     "does not evaluate tautologies",
			Username: "admin' OR '1'='1",
			Rows:     [][]interface{}{},
		},
		{
			Name:     "does not execute stacked statements",
			Username: "'; DROP TABLE users; --",
			Rows:     [][]interface{}{},
		},
		{
			Name:     "does not treat wildcards as patterns",
			Username: "%",
			Rows:     [][]interface{}{},
		},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			assert := require.New(t)

			opener := newTrackingOpener(t, file)
			ex := New(opener, klog.Discard{}, Opts{
				Validate: true,
				ReadOnly: true,
			})
			res, err := ex.Execute(context.Background(), userQuery, tc.Username)
			assert.NoError(err)
			assert.Equal([]string{"userid", "username", "first_name"}, res.Columns)
			assert.NotNil(res.Rows)
			assert.Equal(tc.Rows, res.Rows)
			assert.Equal(0, opener.open())
			assert.Equal([]string{userQuery}, opener.queries)
		})
	}

	t.Run("table survives injection attempts", func(t *testing.T) {
		t.Parallel()

		assert := require.New(t)

		ex := New(newTrackingOpener(t, file), klog.Discard{}, Opts{})
		res, err := ex.Execute(context.Background(), "SELECT COUNT(*) FROM users")
		assert.NoError(err)
		assert.Equal([][]interface{}{{int64(4)}}, res.Rows)
	})
}

func TestExecuteQueryIndependentOfArgs(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	file := setupDB(t)
	opener := newTrackingOpener(t, file)
	ex := New(opener, klog.Discard{}, Opts{})
	usernames := []string{"admin", "nobody", "o'brien", "x' UNION SELECT 1, 2, 3 --", "?", ""}
	for _, i := range usernames {
		_, err := ex.Execute(context.Background(), userQuery, i)
		assert.NoError(err)
	}
	assert.Len(opener.queries, len(usernames))
	for _, i := range opener.queries {
		assert.Equal(userQuery, i)
	}
}

func TestExecuteReleasesConnections(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	file := setupDB(t)
	opener := newTrackingOpener(t, file)
	ex := New(opener, klog.Discard{}, Opts{})

	const n = 8
	for i := 0; i < n; i++ {
		_, err := ex.Execute(context.Background(), userQuery, "admin")
		assert.NoError(err)
		_, err = ex.Execute(context.Background(), "SELECT * FROM missing WHERE username = ?", "admin")
		assert.Error(err)
		_, err = ex.Execute(context.Background(), "SELEC * FRM users", "admin")
		assert.Error(err)
		_, err = ex.Execute(context.Background(), userQuery)
		assert.Error(err)
	}
	assert.Equal(3*n, opener.opened)
	assert.Equal(0, opener.open())
}

func TestExecuteChecksArgCountWithoutValidation(t *testing.T) {
	t.Parallel()

	file := setupDB(t)

	for _, tc := range []struct {
		Name string
		Args []interface{}
	}{
		{
			Name: "extra arg",
			Args: []interface{}{"admin", "alice"},
		},
		{
			Name: "missing arg",
			Args: nil,
		},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			assert := require.New(t)

			opener := newTrackingOpener(t, file)
			ex := New(opener, klog.Discard{}, Opts{})
			_, err := ex.Execute(context.Background(), userQuery, tc.Args...)
			assert.ErrorIs(err, sqlcheck.ErrParamCount)
			assert.Equal(0, opener.opened)
		})
	}

	t.Run("leaves write statements to the driver", func(t *testing.T) {
		t.Parallel()

		assert := require.New(t)

		opener := newTrackingOpener(t, file)
		ex := New(opener, klog.Discard{}, Opts{ReadOnly: true})
		_, err := ex.Execute(context.Background(), "DELETE FROM users WHERE username = ?", "nobody")
		assert.Error(err)
		assert.NotErrorIs(err, sqlcheck.ErrReadOnly)
		assert.Equal(1, opener.opened)
		assert.Equal(0, opener.open())
	})
}

func TestExecuteValidation(t *testing.T) {
	t.Parallel()

	file := setupDB(t)

	for _, tc := range []struct {
		Name  string
		Query string
		Args  []interface{}
		Err   error
	}{
		{
			Name:  "missing arg",
			Query: userQuery,
			Args:  nil,
			Err:   sqlcheck.ErrParamCount,
		},
		{
			Name:  "extra arg",
			Query: userQuery,
			Args:  []interface{}{"admin", "alice"},
			Err:   sqlcheck.ErrParamCount,
		},
		{
			Name:  "write statement",
			Query: "DELETE FROM users WHERE username = ?",
			Args:  []interface{}{"admin"},
			Err:   sqlcheck.ErrReadOnly,
		},
		{
			Name:  "malformed",
			Query: "SELECT FROM WHERE",
			Args:  []interface{}{"admin"},
			Err:   sqlcheck.ErrInvalidQuery,
		},
	} {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			assert := require.New(t)

			opener := newTrackingOpener(t, file)
			ex := New(opener, klog.Discard{}, Opts{
				Validate: true,
				ReadOnly: true,
			})
			_, err := ex.Execute(context.Background(), tc.Query, tc.Args...)
			assert.ErrorIs(err, tc.Err)
			assert.Equal(0, opener.opened)
		})
	}
}

func TestExecuteOpenError(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	opener := newTrackingOpener(t, filepath.Join(t.TempDir(), "missing.db"))
	ex := New(opener, klog.Discard{}, Opts{})
	_, err := ex.Execute(context.Background(), userQuery, "admin")
	assert.ErrorIs(err, sqldb.ErrConn)
	assert.Equal(0, opener.opened)
}
