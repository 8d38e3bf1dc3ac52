package qs

import (
	"encoding/binary"
	"math"

	"github.com/lib/pq/oid"
)

// Param is a single bound query parameter: a PostgreSQL type OID paired with
// its binary wire-format value. The OID lets the server pick the matching
// binary decoder; the client never sends parameters in text format.
type Param struct {
	OID    oid.Oid
	Value  []byte
	IsNull bool
}

// Encoder is implemented by any Go value that can be bound as a query
// parameter. Third-party packages (date/JSON libraries, decimal types) are
// expected to implement it for their own types; the encoders below cover
// the primitive set this client understands natively.
type Encoder interface {
	Encode() Param
}

// Null encodes a typed SQL NULL. The OID still matters: it tells the server
// which column type to expect even though no bytes are sent.
func Null(typeOID oid.Oid) Param {
	return Param{OID: typeOID, IsNull: true}
}

// Bool encodes a boolean as a single byte, 1 or 0.
type boolParam bool

func Bool(v bool) Encoder { return boolParam(v) }

func (v boolParam) Encode() Param {
	b := byte(0)
	if v {
		b = 1
	}
	return Param{OID: oid.T_bool, Value: []byte{b}}
}

type int16Param int16

func Int16(v int16) Encoder { return int16Param(v) }

func (v int16Param) Encode() Param {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return Param{OID: oid.T_int2, Value: buf}
}

type int32Param int32

func Int32(v int32) Encoder { return int32Param(v) }

func (v int32Param) Encode() Param {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return Param{OID: oid.T_int4, Value: buf}
}

type int64Param int64

func Int64(v int64) Encoder { return int64Param(v) }

func (v int64Param) Encode() Param {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return Param{OID: oid.T_int8, Value: buf}
}

type float64Param float64

func Float64(v float64) Encoder { return float64Param(v) }

func (v float64Param) Encode() Param {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(float64(v)))
	return Param{OID: oid.T_float8, Value: buf}
}

type textParam string

// Text encodes a string using the server's textual binary representation
// (PostgreSQL's "binary" format for text types is simply the UTF-8 bytes).
func Text(v string) Encoder { return textParam(v) }

func (v textParam) Encode() Param {
	return Param{OID: oid.T_text, Value: []byte(v)}
}

type bytesParam []byte

// Bytes encodes a raw byte slice as bytea.
func Bytes(v []byte) Encoder { return bytesParam(v) }

func (v bytesParam) Encode() Param {
	if v == nil {
		return Param{OID: oid.T_bytea, IsNull: true}
	}
	return Param{OID: oid.T_bytea, Value: v}
}

// encodeAll runs Encode over a slice of user-supplied parameters, in bind
// order, matching the SQL text's positional $1, $2, … placeholders.
func encodeAll(args []Encoder) []Param {
	params := make([]Param, len(args))
	for i, a := range args {
		params[i] = a.Encode()
	}
	return params
}
