package qs

import (
	"context"

	"github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/protocol"
)

// prepare ensures a server-side prepared statement exists for sql, reusing
// the connection's cache when persistent is true and a cache entry already
// exists for its fingerprint. On a cache miss it sends Parse immediately
// followed by Flush and waits for ParseComplete before returning, per the
// same prepare-then-flush-then-wait ordering used by every extended-query
// round trip on this connection.
func (c *Conn) prepare(sql string, persistent bool, paramOIDs []uint32) (stmt string, err error) {
	hash := fingerprint(sql)

	if persistent {
		if name, ok := c.getStatement(hash); ok {
			return name, nil
		}
	}

	if persistent {
		stmt = nextStatementName()
	} else {
		stmt = unnamedStatement
	}

	protocol.WriteParse(c.t.writer, stmt, sql, paramOIDs)
	protocol.WriteFlush(c.t.writer)
	if err := c.t.flush(); err != nil {
		return "", err
	}

	msg, err := c.recv()
	if err != nil {
		// After an error the server skips every message until Sync, so
		// send one and drain to its ReadyForQuery.
		protocol.WriteSync(c.t.writer)
		c.armSync()
		if c.t.flush() == nil {
			_ = c.ensureSynced()
		}
		return "", err
	}
	if _, ok := msg.(protocol.ParseComplete); !ok {
		return "", errors.Newf(errors.Protocol, "unexpected message in phase prepare: %T", msg)
	}

	if persistent {
		c.addStatement(hash, stmt)
	}

	return stmt, nil
}

// bindExecute binds the unnamed portal to stmt, describes it, executes it
// requesting all rows, and sends Sync — the entire burst in one buffered
// write followed by a single flush. armSync is set before the flush so that
// any return path short of observing ReadyForQuery knows to drain on
// cleanup.
func (c *Conn) bindExecute(stmt string, params []protocol.EncodedParam) error {
	protocol.WriteBind(c.t.writer, unnamedPortal, stmt, params)
	protocol.WriteDescribe(c.t.writer, protocol.DescribePortal, unnamedPortal)
	protocol.WriteExecute(c.t.writer, unnamedPortal, 0)
	protocol.WriteSync(c.t.writer)

	c.armSync()
	return c.t.flush()
}

func toEncodedParams(params []Param) []protocol.EncodedParam {
	out := make([]protocol.EncodedParam, len(params))
	for i, p := range params {
		out[i] = protocol.EncodedParam{OID: uint32(p.OID), Value: p.Value, IsNull: p.IsNull}
	}
	return out
}

func paramOIDs(params []Param) []uint32 {
	out := make([]uint32, len(params))
	for i, p := range params {
		out[i] = uint32(p.OID)
	}
	return out
}

// Rows is the cursor over a result set produced by Query. Call Next to
// advance, Row to view the current row, and Close (directly or via defer)
// to release the connection's ready-latch if iteration is abandoned before
// exhaustion.
type Rows struct {
	conn *Conn
	desc *RowDescription
	row  Row

	done bool
	err  error

	rowsAffected int64
}

// Query prepares (or reuses) sql, binds and executes it with args, and
// returns a cursor positioned before the first row. sqlArg is either a plain
// string, persistent by default, or a Once-wrapped string sent unnamed.
func (c *Conn) Query(ctx context.Context, sqlArg any, args ...Encoder) (*Rows, error) {
	text, persistent, err := sqlOf(sqlArg)
	if err != nil {
		return nil, err
	}

	params := encodeAll(args)

	stmt, err := c.prepare(text, persistent, paramOIDs(params))
	if err != nil {
		return nil, err
	}

	if err := c.bindExecute(stmt, toEncodedParams(params)); err != nil {
		return nil, err
	}

	msg, err := c.recv()
	if err != nil {
		_ = c.ensureSynced()
		return nil, err
	}
	if _, ok := msg.(protocol.BindComplete); !ok {
		_ = c.ensureSynced()
		return nil, errors.Newf(errors.Protocol, "unexpected message in phase bind: %T", msg)
	}

	rows := &Rows{conn: c}

	msg, err = c.recv()
	if err != nil {
		_ = c.ensureSynced()
		return nil, err
	}

	switch m := msg.(type) {
	case protocol.RowDescription:
		rows.desc = newRowDescription(m)
	case protocol.NoData:
		rows.desc = nil
	default:
		_ = c.ensureSynced()
		return nil, errors.Newf(errors.Protocol, "unexpected message in phase describe: %T", msg)
	}

	return rows, nil
}

// Next advances the cursor, returning false once the result set is
// exhausted or an error occurs. Callers must check Err after a false
// return to distinguish the two.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	for {
		msg, err := r.conn.recv()
		if err != nil {
			r.fail(err)
			return false
		}

		switch m := msg.(type) {
		case protocol.DataRow:
			r.row = newRow(r.desc, m)
			return true
		case protocol.CommandComplete:
			r.rowsAffected = protocol.RowsAffected(m.Tag)
			return r.finish()
		case protocol.EmptyQueryResponse:
			r.fail(errors.New(errors.EmptyQuery, "server reported an empty query string"))
			return false
		case protocol.PortalSuspended:
			return r.finish()
		default:
			r.fail(errors.Newf(errors.Protocol, "unexpected message in phase row execution: %T", msg))
			return false
		}
	}
}

// finish drains the connection to ReadyForQuery and marks iteration done,
// without recording an error.
func (r *Rows) finish() bool {
	r.done = true
	if err := r.conn.ensureSynced(); err != nil {
		r.err = err
	}
	return false
}

func (r *Rows) fail(err error) {
	r.done = true
	r.err = err
	_ = r.conn.ensureSynced()
}

// Row returns the row the most recent call to Next positioned the cursor
// on. Calling it before Next is a programmer error and returns the zero
// Row; after Next returns false it still returns the last row Next
// positioned on, if any.
func (r *Rows) Row() Row {
	return r.row
}

// Err returns the first error encountered during iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// RowsAffected returns the count parsed from the terminating
// CommandComplete tag. It is only meaningful after iteration completes
// normally.
func (r *Rows) RowsAffected() int64 {
	return r.rowsAffected
}

// Close abandons iteration, draining the connection to ReadyForQuery if it
// has not already been reached. It is the explicit counterpart of the
// automatic drain-on-drop a cooperatively scheduled client would perform
// when a fetch future or stream is dropped mid-flight; Go has no destructor
// to hook, so callers must defer Close themselves.
func (r *Rows) Close() error {
	if r.done {
		return r.err
	}
	r.done = true
	return r.conn.ensureSynced()
}

// RowFunc decodes a single row into a T, returning an error the caller is
// responsible for turning into a fatal failure of the whole fetch.
type RowFunc[T any] func(Row) (T, error)

// FetchAll runs a query to completion and decodes every row with scan. A
// decoding error aborts the fetch immediately, still draining the
// connection to ReadyForQuery before returning.
func FetchAll[T any](ctx context.Context, c *Conn, scan RowFunc[T], sqlArg any, args ...Encoder) ([]T, error) {
	rows, err := c.Query(ctx, sqlArg, args...)
	if err != nil {
		return nil, err
	}

	var out []T
	for rows.Next() {
		v, err := scan(rows.Row())
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// FetchOptional runs a query expected to return at most one row. It
// reports ok=false, with no error, when the result set is empty.
func FetchOptional[T any](ctx context.Context, c *Conn, scan RowFunc[T], sqlArg any, args ...Encoder) (value T, ok bool, err error) {
	rows, err := c.Query(ctx, sqlArg, args...)
	if err != nil {
		return value, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return value, false, rows.Err()
	}

	value, err = scan(rows.Row())
	if err != nil {
		return value, false, err
	}

	return value, true, nil
}

// FetchOne runs a query expected to return exactly one row, reporting
// RowNotFound if the result set is empty.
func FetchOne[T any](ctx context.Context, c *Conn, scan RowFunc[T], sqlArg any, args ...Encoder) (T, error) {
	value, ok, err := FetchOptional(ctx, c, scan, sqlArg, args...)
	if err != nil {
		return value, err
	}
	if !ok {
		return value, errors.New(errors.RowNotFound, "fetch_one found no rows")
	}
	return value, nil
}

// Execute runs sql for its side effects and returns the affected row count
// reported by the server, discarding any returned rows.
func Execute(ctx context.Context, c *Conn, sqlArg any, args ...Encoder) (int64, error) {
	rows, err := c.Query(ctx, sqlArg, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
	}

	if err := rows.Err(); err != nil {
		return 0, err
	}

	return rows.RowsAffected(), nil
}
