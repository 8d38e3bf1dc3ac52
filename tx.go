package qs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/protocol"
)

// simpleExec runs sql through the simple query protocol, used only for the
// fixed BEGIN/COMMIT/ROLLBACK statements that never take parameters or
// return rows. It drains through CommandComplete to the terminating
// ReadyForQuery.
func (c *Conn) simpleExec(sql string) error {
	protocol.WriteQuery(c.t.writer, sql)
	c.armSync()
	if err := c.t.flush(); err != nil {
		return err
	}

	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case protocol.CommandComplete, protocol.EmptyQueryResponse:
			continue
		case protocol.ReadyForQuery:
			c.disarmSync(m.Status)
			return nil
		default:
			return errors.Newf(errors.Protocol, "unexpected message in phase simple query: %T", msg)
		}
	}
}

// Tx wraps a connection inside a BEGIN/COMMIT block. A connection has at
// most one open transaction at a time; the query methods on the underlying
// Conn continue to work unchanged while a Tx is open, they simply run
// inside it.
type Tx struct {
	conn *Conn
	id   string
	done bool
}

// Begin issues BEGIN and returns a handle scoping the transaction. The
// caller must eventually call Commit or Rollback (or Close, which rolls
// back); Go offers no destructor to run ROLLBACK automatically the way a
// dropped future would, so abandoning a Tx without closing it leaks an
// open transaction on the connection until the caller notices.
//
// Each Tx carries a random ID, useful for correlating BEGIN/COMMIT/ROLLBACK
// log lines for the same transaction when a connection is shared across
// several in sequence.
func Begin(ctx context.Context, c *Conn) (*Tx, error) {
	if err := c.simpleExec("BEGIN"); err != nil {
		return nil, err
	}

	if c.txStatus != protocol.TxBlock {
		return nil, errors.Newf(errors.Protocol, "BEGIN did not open a transaction, status %q", c.txStatus)
	}

	id := uuid.New().String()
	c.logger.Debug("tx: begin", slog.String("tx_id", id))
	return &Tx{conn: c, id: id}, nil
}

// Conn exposes the underlying connection for issuing statements inside the
// transaction.
func (tx *Tx) Conn() *Conn {
	return tx.conn
}

// ID returns the transaction's random correlation ID.
func (tx *Tx) ID() string {
	return tx.id
}

// Commit issues COMMIT, ending the transaction successfully.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.conn.logger.Debug("tx: commit", slog.String("tx_id", tx.id))
	return tx.conn.simpleExec("COMMIT")
}

// Rollback issues ROLLBACK, discarding every statement run since Begin.
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.conn.logger.Debug("tx: rollback", slog.String("tx_id", tx.id))
	return tx.conn.simpleExec("ROLLBACK")
}

// Close rolls back the transaction if it has not already been committed or
// rolled back. It is the explicit stand-in for the drop-triggered rollback
// a cooperatively scheduled client performs automatically; callers should
// defer it immediately after Begin succeeds.
func (tx *Tx) Close() error {
	if tx.done {
		return nil
	}
	return tx.Rollback(context.Background())
}
