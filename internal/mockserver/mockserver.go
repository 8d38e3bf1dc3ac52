// Package mockserver emulates the backend half of the PostgreSQL wire
// protocol for tests: where the rest of this module only ever needs to
// encode frontend messages and decode backend ones, this package needs
// exactly the opposite, so it gets its own small, test-only codec rather
// than stretching the client-facing one to serve double duty.
package mockserver

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/qspg/qs/internal/buffer"
	"github.com/qspg/qs/internal/protocol"
)

// Listener accepts connections one at a time; each Accept returns a
// Backend through which the test scripts the server side of the session.
type Listener struct {
	ln net.Listener
	t  *testing.T
}

// Start opens a loopback listener and returns it; Addr reports its dial
// address. Call Accept once per connection the test expects.
func Start(t *testing.T) *Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mockserver: listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return &Listener{ln: ln, t: t}
}

// Addr returns the address clients should dial.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Accept blocks for the next incoming connection and wraps it as a Backend.
func (l *Listener) Accept() *Backend {
	conn, err := l.ln.Accept()
	if err != nil {
		l.t.Fatalf("mockserver: accept: %v", err)
	}
	return &Backend{t: l.t, conn: conn, r: buffer.NewReader(conn, buffer.DefaultBufferSize), w: buffer.NewWriter(conn)}
}

// Backend is one scripted server-side connection. Every method either
// reads one expected frontend message or writes one backend message,
// failing the test immediately on any mismatch — the same
// read-or-t.Fatal shape a hand-rolled protocol mock uses on the client
// side of this same codec.
type Backend struct {
	t    *testing.T
	conn net.Conn
	r    *buffer.Reader
	w    *buffer.Writer
}

func (b *Backend) Close() {
	_ = b.conn.Close()
}

func (b *Backend) flush() {
	if err := b.w.Flush(); err != nil {
		b.t.Fatalf("mockserver: flush: %v", err)
	}
}

// ExpectStartup reads the untagged Startup message and returns its
// parameter map (user, database, ...).
func (b *Backend) ExpectStartup() map[string]string {
	if err := b.r.ReadUntypedMsg(); err != nil {
		b.t.Fatalf("mockserver: read startup: %v", err)
	}

	version := binary.BigEndian.Uint32(b.r.Remaining()[:4])
	b.r.GetBytes(4) //nolint:errcheck // length already validated by readFrame
	if version != protocol.ProtocolVersion {
		b.t.Fatalf("mockserver: unexpected protocol version %d", version)
	}

	params := make(map[string]string)
	for {
		key, err := b.r.GetString()
		if err != nil {
			b.t.Fatalf("mockserver: read startup key: %v", err)
		}
		if key == "" {
			break
		}
		value, err := b.r.GetString()
		if err != nil {
			b.t.Fatalf("mockserver: read startup value: %v", err)
		}
		params[key] = value
	}

	return params
}

// SendAuthOK writes AuthenticationOK.
func (b *Backend) SendAuthOK() {
	b.w.Start('R')
	b.w.AddInt32(0)
	b.w.End()
	b.flush()
}

// SendAuthCleartextPassword writes an AuthenticationCleartextPassword
// request and reads back the client's PasswordMessage.
func (b *Backend) SendAuthCleartextPassword() string {
	b.w.Start('R')
	b.w.AddInt32(3)
	b.w.End()
	b.flush()

	tag, err := b.r.ReadTypedMsg()
	if err != nil {
		b.t.Fatalf("mockserver: read password message: %v", err)
	}
	if tag != protocol.TagPassword {
		b.t.Fatalf("mockserver: expected password message, got tag %q", tag)
	}

	pw, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read password value: %v", err)
	}
	return pw
}

// SendBackendKeyData writes BackendKeyData.
func (b *Backend) SendBackendKeyData(pid, secret int32) {
	b.w.Start('K')
	b.w.AddInt32(pid)
	b.w.AddInt32(secret)
	b.w.End()
	b.flush()
}

// SendParameterStatus writes a single ParameterStatus entry.
func (b *Backend) SendParameterStatus(name, value string) {
	b.w.Start('S')
	b.w.AddString(name)
	b.w.AddNullTerminate()
	b.w.AddString(value)
	b.w.AddNullTerminate()
	b.w.End()
	b.flush()
}

// SendReadyForQuery writes ReadyForQuery with the given status byte.
func (b *Backend) SendReadyForQuery(status byte) {
	b.w.Start('Z')
	b.w.AddByte(status)
	b.w.End()
	b.flush()
}

// SendError writes an ErrorResponse built from the given field map.
func (b *Backend) SendError(fields map[byte]string) {
	b.w.Start('E')
	for k, v := range fields {
		b.w.AddByte(k)
		b.w.AddString(v)
		b.w.AddNullTerminate()
	}
	b.w.AddByte(0)
	b.w.End()
	b.flush()
}

// ReadFrontendTag reads the tag byte of the next frontend message, leaving
// its body in the reader's scratch buffer for a type-specific Expect* call.
func (b *Backend) ReadFrontendTag() byte {
	tag, err := b.r.ReadTypedMsg()
	if err != nil {
		b.t.Fatalf("mockserver: read frontend message: %v", err)
	}
	return tag
}

// ExpectQuery decodes the most recently read message as a simple Query and
// returns its SQL text. Like the other Expect* decoders below, it does not
// check the tag; callers compare the value ReadFrontendTag returned.
func (b *Backend) ExpectQuery() string {
	sql, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read query text: %v", err)
	}
	return sql
}

// ParseRequest is a decoded frontend Parse message.
type ParseRequest struct {
	Statement string
	SQL       string
	ParamOIDs []uint32
}

// ExpectParse decodes the most recently read message as a Parse.
func (b *Backend) ExpectParse() ParseRequest {
	name, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read parse name: %v", err)
	}
	sql, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read parse sql: %v", err)
	}
	count, err := b.r.GetInt16()
	if err != nil {
		b.t.Fatalf("mockserver: read parse oid count: %v", err)
	}

	oids := make([]uint32, count)
	for i := range oids {
		oids[i], err = b.r.GetUint32()
		if err != nil {
			b.t.Fatalf("mockserver: read parse oid: %v", err)
		}
	}

	return ParseRequest{Statement: name, SQL: sql, ParamOIDs: oids}
}

// SendParseComplete writes ParseComplete.
func (b *Backend) SendParseComplete() {
	b.w.Start('1')
	b.w.End()
	b.flush()
}

// BindRequest is a decoded frontend Bind message; parameter values are
// returned in binary wire format exactly as received.
type BindRequest struct {
	Portal    string
	Statement string
	Params    [][]byte
}

// ExpectBind decodes the most recently read message as a Bind, assuming the single-binary-format-code encoding this client always
// sends.
func (b *Backend) ExpectBind() BindRequest {
	portal, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read bind portal: %v", err)
	}
	stmt, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read bind statement: %v", err)
	}

	formatCount, err := b.r.GetInt16()
	if err != nil {
		b.t.Fatalf("mockserver: read bind format count: %v", err)
	}
	for i := int16(0); i < formatCount; i++ {
		if _, err := b.r.GetInt16(); err != nil {
			b.t.Fatalf("mockserver: read bind format code: %v", err)
		}
	}

	paramCount, err := b.r.GetInt16()
	if err != nil {
		b.t.Fatalf("mockserver: read bind param count: %v", err)
	}

	params := make([][]byte, paramCount)
	for i := range params {
		length, err := b.r.GetInt32()
		if err != nil {
			b.t.Fatalf("mockserver: read bind param length: %v", err)
		}
		params[i], err = b.r.GetBytes(int(length))
		if err != nil {
			b.t.Fatalf("mockserver: read bind param value: %v", err)
		}
	}

	return BindRequest{Portal: portal, Statement: stmt, Params: params}
}

// SendBindComplete writes BindComplete.
func (b *Backend) SendBindComplete() {
	b.w.Start('2')
	b.w.End()
	b.flush()
}

// ExpectDescribe decodes the most recently read message as a Describe and
// returns its kind byte ('S' or 'P') and name.
func (b *Backend) ExpectDescribe() (kind byte, name string) {
	k, err := b.r.GetBytes(1)
	if err != nil {
		b.t.Fatalf("mockserver: read describe kind: %v", err)
	}
	name, err = b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read describe name: %v", err)
	}
	return k[0], name
}

// ExpectExecute decodes the most recently read message as an Execute and
// returns its portal name and requested row limit.
func (b *Backend) ExpectExecute() (portal string, maxRows uint32) {
	name, err := b.r.GetString()
	if err != nil {
		b.t.Fatalf("mockserver: read execute portal: %v", err)
	}
	maxRows, err = b.r.GetUint32()
	if err != nil {
		b.t.Fatalf("mockserver: read execute max rows: %v", err)
	}
	return name, maxRows
}

// ResultColumn describes one column of a scripted RowDescription.
type ResultColumn struct {
	Name string
	OID  uint32
}

// SendRowDescription writes a RowDescription naming every column as
// binary-format with the given OID.
func (b *Backend) SendRowDescription(cols []ResultColumn) {
	b.w.Start('T')
	b.w.AddInt16(int16(len(cols)))
	for _, c := range cols {
		b.w.AddString(c.Name)
		b.w.AddNullTerminate()
		b.w.AddUint32(0)
		b.w.AddInt16(0)
		b.w.AddUint32(c.OID)
		b.w.AddInt16(-1)
		b.w.AddInt32(-1)
		b.w.AddInt16(int16(protocol.BinaryFormat))
	}
	b.w.End()
	b.flush()
}

// SendNoData writes NoData.
func (b *Backend) SendNoData() {
	b.w.Start('n')
	b.w.End()
	b.flush()
}

// SendDataRow writes one DataRow. A nil entry in values encodes a SQL NULL.
func (b *Backend) SendDataRow(values [][]byte) {
	b.w.Start('D')
	b.w.AddInt16(int16(len(values)))
	for _, v := range values {
		if v == nil {
			b.w.AddInt32(-1)
			continue
		}
		b.w.AddInt32(int32(len(v)))
		b.w.AddBytes(v)
	}
	b.w.End()
	b.flush()
}

// SendCommandComplete writes CommandComplete with the given tag string.
func (b *Backend) SendCommandComplete(tag string) {
	b.w.Start('C')
	b.w.AddString(tag)
	b.w.AddNullTerminate()
	b.w.End()
	b.flush()
}

// ExpectSync asserts the most recently read tag was Sync. Callers read the
// tag themselves via ReadFrontendTag and pass it here for clarity at call
// sites.
func (b *Backend) ExpectSync(tag byte) {
	if tag != protocol.TagSync {
		b.t.Fatalf("mockserver: expected sync, got tag %q", tag)
	}
}
