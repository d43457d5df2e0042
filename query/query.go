package query

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"xorkevin.dev/kerrors"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/sqlcheck"
	"xorkevin.dev/pquery/sqldb"
)

type (
	// Opts are query executor options
	Opts struct {
		// Validate rejects queries that fail to parse before connecting.
		// Arg counts of parseable queries are always checked.
		Validate bool
		// ReadOnly rejects statements other than select when validating
		ReadOnly bool
	}

	// Result holds every row of a query in memory
	Result struct {
		Columns []string
		Rows    [][]interface{}
	}

	// Executor runs parameterized queries on a fresh connection per call
	Executor struct {
		opener sqldb.Opener
		log    *klog.LevelLogger
		opts   Opts
	}
)

func New(opener sqldb.Opener, log klog.Logger, opts Opts) *Executor {
	return &Executor{
		opener: opener,
		log:    klog.NewLevelLogger(log),
		opts:   opts,
	}
}

// Execute runs query with args bound by the driver and returns all rows.
//
// The connection is acquired for the duration of the call and always
// released before returning.
func (e *Executor) Execute(ctx context.Context, query string, args ...interface{}) (_ *Result, retErr error) {
	ctx = klog.CtxWithAttrs(ctx, klog.AAny("query.args", len(args)))
	stmt, err := sqlcheck.Inspect(query)
	if err != nil {
		if e.opts.Validate {
			return nil, err
		}
		e.log.Debug(ctx, "Unparsed query left to the driver", klog.AString("query", query))
	} else if err := stmt.Check(len(args), e.opts.Validate && e.opts.ReadOnly); err != nil {
		return nil, err
	}

	conn, err := e.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			retErr = errors.Join(retErr, kerrors.WithMsg(err, "Failed to close db connection"))
		}
	}()

	res, err := fetchAll(ctx, conn, query, args)
	if err != nil {
		return nil, err
	}
	e.log.Debug(ctx, "Executed query", klog.AString("query", query), klog.AAny("rows", len(res.Rows)))
	return res, nil
}

func fetchAll(ctx context.Context, d sqldb.Executor, query string, args []interface{}) (_ *Result, retErr error) {
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed to execute query")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			retErr = errors.Join(retErr, kerrors.WithMsg(err, "Failed to close db rows"))
		}
	}()
	cols, err := rows.Columns()
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed to read columns")
	}
	res := &Result{
		Columns: cols,
		Rows:    [][]interface{}{},
	}
	for rows.Next() {
		row, err := sqlx.SliceScan(rows)
		if err != nil {
			return nil, kerrors.WithMsg(err, "Failed to scan row")
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, kerrors.WithMsg(err, "Failed iterating rows")
	}
	return res, nil
}
