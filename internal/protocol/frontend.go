package protocol

import (
	"github.com/qspg/qs/internal/buffer"
)

// EncodedParam is a single bound parameter: its PostgreSQL type OID and its
// wire-format value bytes. A nil Value with IsNull true encodes to wire
// length -1; a nil Value with IsNull false encodes to a zero-length value,
// distinct on the wire.
type EncodedParam struct {
	OID    uint32
	Value  []byte
	IsNull bool
}

// WriteStartup encodes the Startup message. It carries no tag byte — a
// historical quirk of the protocol — and begins directly with its length.
func WriteStartup(w *buffer.Writer, user, database, replication string) {
	w.StartUntagged()
	w.AddUint32(ProtocolVersion)

	writeParam(w, "user", user)
	if database != "" {
		writeParam(w, "database", database)
	}
	if replication != "" {
		writeParam(w, "replication", replication)
	}

	w.AddNullTerminate()
	w.EndUntagged()
}

func writeParam(w *buffer.Writer, key, value string) {
	w.AddString(key)
	w.AddNullTerminate()
	w.AddString(value)
	w.AddNullTerminate()
}

// WritePasswordMessage encodes a cleartext PasswordMessage.
func WritePasswordMessage(w *buffer.Writer, password string) {
	w.Start(TagPassword)
	w.AddString(password)
	w.AddNullTerminate()
	w.End()
}

// WriteQuery encodes a simple-query message.
func WriteQuery(w *buffer.Writer, sql string) {
	w.Start(TagQuery)
	w.AddString(sql)
	w.AddNullTerminate()
	w.End()
}

// WriteParse encodes a Parse message, naming the statement (empty for
// unnamed) and optionally pre-specifying parameter OIDs.
func WriteParse(w *buffer.Writer, name, sql string, paramOIDs []uint32) {
	w.Start(TagParse)
	w.AddString(name)
	w.AddNullTerminate()
	w.AddString(sql)
	w.AddNullTerminate()
	w.AddInt16(int16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		w.AddUint32(oid)
	}
	w.End()
}

// WriteBind encodes a Bind message binding a named (or unnamed) portal to a
// named (or unnamed) prepared statement. All parameters are sent in binary
// format and all result columns are requested in binary format, matching
// this client's single supported wire representation.
//
// The payload size is known from the sum of its components before a single
// byte is written; Reserve/Done asserts the encoder wrote exactly that many
// bytes, failing loudly on a bookkeeping bug rather than emitting a
// corrupt frame silently.
func WriteBind(w *buffer.Writer, portal, statement string, params []EncodedParam) {
	size := len(portal) + 1 + len(statement) + 1
	size += 2 + 2 // one parameter format code
	size += 2     // parameter count
	for _, p := range params {
		size += 4
		if !p.IsNull {
			size += len(p.Value)
		}
	}
	size += 2 + 2 // one result format code

	w.Start(TagBind)
	r := w.Reserve(size)

	w.AddString(portal)
	w.AddNullTerminate()
	w.AddString(statement)
	w.AddNullTerminate()

	w.AddInt16(1)
	w.AddInt16(int16(BinaryFormat))

	w.AddInt16(int16(len(params)))
	for _, p := range params {
		if p.IsNull {
			w.AddInt32(-1)
			continue
		}

		w.AddInt32(int32(len(p.Value)))
		w.AddBytes(p.Value)
	}

	w.AddInt16(1)
	w.AddInt16(int16(BinaryFormat))

	r.Done()
	w.End()
}

// WriteDescribe encodes a Describe message for either a statement or a
// portal.
func WriteDescribe(w *buffer.Writer, kind DescribeKind, name string) {
	w.Start(TagDescribe)
	w.AddByte(byte(kind))
	w.AddString(name)
	w.AddNullTerminate()
	w.End()
}

// WriteExecute encodes an Execute message. maxRows of 0 requests all
// remaining rows.
func WriteExecute(w *buffer.Writer, portal string, maxRows uint32) {
	w.Start(TagExecute)
	w.AddString(portal)
	w.AddNullTerminate()
	w.AddUint32(maxRows)
	w.End()
}

// WriteSync encodes a Sync message.
func WriteSync(w *buffer.Writer) {
	w.Start(TagSync)
	w.End()
}

// WriteFlush encodes a Flush message.
func WriteFlush(w *buffer.Writer) {
	w.Start(TagFlush)
	w.End()
}

// WriteClose encodes a Close message for either a statement or a portal.
func WriteClose(w *buffer.Writer, kind DescribeKind, name string) {
	w.Start(TagClose)
	w.AddByte(byte(kind))
	w.AddString(name)
	w.AddNullTerminate()
	w.End()
}

// WriteTerminate encodes a Terminate message.
func WriteTerminate(w *buffer.Writer) {
	w.Start(TagTerminate)
	w.End()
}
