package qs

import (
	"context"
	"log/slog"

	"github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/protocol"
)

// Conn is a single PostgreSQL connection: the byte transport plus the
// per-connection prepared-statement cache. A Conn is exclusively owned at
// any moment by exactly one of the pool worker, a pool handle's checkout, or
// user code — ownership passes explicitly through the checkout/checkin
// protocol in package pool.
type Conn struct {
	cfg    Config
	t      *transport
	cache  *statementCache
	logger *slog.Logger

	backendPID    int32
	backendSecret int32
	txStatus      protocol.TransactionStatus

	// needsSync is the Go stand-in for the spec's "ready-latch": once an
	// extended-query burst is underway, needsSync is true until a
	// ReadyForQuery has actually been observed. Any abnormal exit path
	// (a cancelled fetch, a mid-stream error, an uncommitted
	// transaction) calls ensureSynced before the connection is reused.
	needsSync bool
	closed    bool
}

// ConnOption configures a Conn at construction time.
type ConnOption func(*Conn)

// WithLogger overrides the connection's logger, which otherwise defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) ConnOption {
	return func(c *Conn) { c.logger = logger }
}

// WithStatementCacheSize overrides the default prepared-statement cache
// capacity of 24.
func WithStatementCacheSize(size int) ConnOption {
	return func(c *Conn) { c.cache = newStatementCache(size) }
}

// Connect dials and performs the startup handshake against cfg, returning a
// ready-to-use connection. Only cleartext-password and trust authentication
// are supported; any other method requested by the server is fatal.
func Connect(ctx context.Context, cfg Config, opts ...ConnOption) (*Conn, error) {
	t, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		cfg:    cfg,
		t:      t,
		cache:  newStatementCache(DefaultStatementCacheSize),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.startup(ctx); err != nil {
		_ = t.close()
		return nil, err
	}

	return c, nil
}

func (c *Conn) startup(ctx context.Context) error {
	protocol.WriteStartup(c.t.writer, c.cfg.User, c.cfg.Database, "")
	if err := c.t.flush(); err != nil {
		return err
	}

	if err := c.authenticate(); err != nil {
		return err
	}

	for {
		msg, err := c.recvRaw()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case protocol.BackendKeyData:
			c.backendPID = m.ProcessID
			c.backendSecret = m.SecretKey
		case protocol.ParameterStatus:
			c.logger.Debug("server parameter", slog.String("name", m.Name), slog.String("value", m.Value))
		case protocol.NoticeResponse:
			c.logger.Debug("notice", slog.Any("fields", m.Fields))
		case protocol.NegotiateProtocolVersion:
			return errors.New(errors.Protocol, "server requested protocol negotiation, which is unsupported")
		case protocol.ReadyForQuery:
			c.txStatus = m.Status
			return nil
		default:
			return errors.Newf(errors.Protocol, "unexpected message in phase startup: %T", msg)
		}
	}
}

func (c *Conn) authenticate() error {
	for {
		msg, err := c.recvRaw()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case protocol.AuthenticationOK:
			return nil
		case protocol.AuthenticationCleartextPassword:
			protocol.WritePasswordMessage(c.t.writer, c.cfg.Password)
			if err := c.t.flush(); err != nil {
				return err
			}
		default:
			_ = m
			return errors.New(errors.UnsupportedAuth, "server requested an unsupported authentication method")
		}
	}
}

// recvRaw reads exactly one backend message, converting ErrorResponse into
// a Database error but otherwise applying no filtering. The startup/auth
// handshake calls it directly; recv builds on it to swallow notices.
func (c *Conn) recvRaw() (protocol.Message, error) {
	tag, r, err := c.t.recv()
	if err != nil {
		return nil, err
	}

	msg, err := protocol.Decode(tag, r)
	if err != nil {
		return nil, errors.Wrap(errors.Protocol, err)
	}

	if errResp, ok := msg.(protocol.ErrorResponse); ok {
		return nil, errors.FromFields(errResp.Fields)
	}

	return msg, nil
}

// recv reads one backend message, transparently swallowing
// NoticeResponse and converting ErrorResponse into a Database error. Used
// by the query engine once the connection is past startup.
func (c *Conn) recv() (protocol.Message, error) {
	for {
		msg, err := c.recvRaw()
		if err != nil {
			return nil, err
		}

		if notice, ok := msg.(protocol.NoticeResponse); ok {
			c.logger.Debug("notice", slog.Any("fields", notice.Fields))
			continue
		}

		return msg, nil
	}
}

// armSync marks the connection as owing a ReadyForQuery before it can be
// reused — the state after sending a Sync but before observing the
// matching ReadyForQuery.
func (c *Conn) armSync() {
	c.needsSync = true
}

func (c *Conn) disarmSync(status protocol.TransactionStatus) {
	c.needsSync = false
	c.txStatus = status
}

// ensureSynced drains backend messages until ReadyForQuery if the connection
// currently owes one — the explicit equivalent of the spec's lazily-armed
// ready-latch, invoked at every point a future async-cancellation or
// mid-fetch error would otherwise leave the connection unsynced: stream
// abandonment, a mapping error, and the pool's health check (PollReady)
// all call this.
func (c *Conn) ensureSynced() error {
	if !c.needsSync {
		return nil
	}

	for {
		msg, err := c.recv()
		if err != nil {
			return err
		}

		if rfq, ok := msg.(protocol.ReadyForQuery); ok {
			c.disarmSync(rfq.Status)
			return nil
		}
	}
}

// getStatement looks up a cached server-side prepared statement name for
// the given SQL fingerprint.
func (c *Conn) getStatement(hash uint64) (string, bool) {
	return c.cache.get(hash)
}

// addStatement records a prepared statement name for the given fingerprint.
// It is only called once the server has acknowledged the corresponding
// Parse with ParseComplete.
func (c *Conn) addStatement(hash uint64, name string) {
	c.cache.add(hash, name)
}

// PollReady performs the connection health check: send Sync, flush, and
// consume messages until ReadyForQuery. A successful return means the
// connection is live and synced; an error means it should be discarded.
// Exported for use by package pool, which owns no access to Conn's
// unexported extended-query machinery.
func (c *Conn) PollReady(ctx context.Context) error {
	if err := c.ensureSynced(); err != nil {
		return err
	}

	protocol.WriteSync(c.t.writer)
	if err := c.t.flush(); err != nil {
		return err
	}

	c.armSync()
	return c.ensureSynced()
}

// TxStatus reports the most recently observed transaction-state byte: 'I'
// idle, 'T' in transaction, or 'E' in a failed transaction.
func (c *Conn) TxStatus() byte {
	return byte(c.txStatus)
}

// Close terminates the connection gracefully, sending Terminate before
// closing the socket.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	protocol.WriteTerminate(c.t.writer)
	_ = c.t.flush()
	return c.t.close()
}
