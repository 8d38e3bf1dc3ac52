package qs

import (
	"encoding/binary"
	"time"
	"unicode/utf8"

	"github.com/lib/pq/oid"
	"github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/protocol"
)

// RowDescription describes the shape of every row in a result set. It is
// parsed exactly once after Bind/Describe and shared by reference across
// every Row produced by the same fetch — columns are never reparsed per
// row.
type RowDescription struct {
	fields []protocol.FieldDescription
	byName map[string]int
}

func newRowDescription(msg protocol.RowDescription) *RowDescription {
	rd := &RowDescription{fields: msg.Fields, byName: make(map[string]int, len(msg.Fields))}
	for i, f := range msg.Fields {
		rd.byName[f.Name] = i
	}
	return rd
}

// NumFields returns the number of columns described.
func (rd *RowDescription) NumFields() int {
	if rd == nil {
		return 0
	}
	return len(rd.fields)
}

// FieldName returns the name of the column at the given positional index.
func (rd *RowDescription) FieldName(i int) string {
	return rd.fields[i].Name
}

// FieldOID returns the PostgreSQL type OID of the column at i.
func (rd *RowDescription) FieldOID(i int) uint32 {
	return rd.fields[i].TypeOID
}

// Row carries a single DataRow's raw column bytes alongside a shared
// reference to the result set's row description. Columns are lazily
// parsed on lookup.
type Row struct {
	desc *RowDescription
	cols [][]byte
}

func newRow(desc *RowDescription, msg protocol.DataRow) Row {
	return Row{desc: desc, cols: msg.Columns}
}

// NumColumns reports the number of columns in this row.
func (r Row) NumColumns() int {
	return len(r.cols)
}

// Column returns the decoder-facing view of the column at the given
// positional index.
func (r Row) Column(i int) (Column, error) {
	if i < 0 || i >= len(r.cols) {
		return Column{}, errors.Newf(errors.ColumnNotFound, "column index %d out of range", i)
	}

	return Column{
		name:  r.desc.FieldName(i),
		oid:   r.desc.FieldOID(i),
		raw:   r.cols[i],
		isNil: r.cols[i] == nil,
	}, nil
}

// ColumnByName looks up a column by its result-set name, returning
// ColumnNotFound if no field with that name was described.
func (r Row) ColumnByName(name string) (Column, error) {
	i, ok := r.desc.byName[name]
	if !ok {
		return Column{}, errors.Newf(errors.ColumnNotFound, "no column named %q in result", name)
	}

	return r.Column(i)
}

// Column is the interface exposed to result decoders: third-party packages
// that know how to turn a PostgreSQL wire value into a Go type implement
// against this, never against Row directly.
type Column struct {
	name  string
	oid   uint32
	raw   []byte
	isNil bool
}

// Name returns the column's name as reported by the server.
func (c Column) Name() string { return c.name }

// OID returns the column's PostgreSQL type OID.
func (c Column) OID() uint32 { return c.oid }

// IsNull reports whether the server sent a SQL NULL for this column.
func (c Column) IsNull() bool { return c.isNil }

// Bytes returns the column's raw binary-format bytes.
func (c Column) Bytes() []byte { return c.raw }

// expectOID returns OidMismatch when the column's OID differs from
// wanted, letting typed accessors fail fast instead of misinterpreting
// bytes.
func (c Column) expectOID(wanted uint32) error {
	if c.oid != wanted {
		return errors.Newf(errors.OidMismatch, "expected OID %d, column %q has OID %d", wanted, c.name, c.oid)
	}
	return nil
}

// Int32 decodes a fixed-width 4-byte binary integer column.
func (c Column) Int32() (int32, error) {
	if err := c.expectOID(uint32(oid.T_int4)); err != nil {
		return 0, err
	}
	if err := c.requireLen(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(c.raw)), nil
}

// Int64 decodes a fixed-width 8-byte binary integer column.
func (c Column) Int64() (int64, error) {
	if err := c.expectOID(uint32(oid.T_int8)); err != nil {
		return 0, err
	}
	if err := c.requireLen(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(c.raw)), nil
}

// Bool decodes a single-byte binary boolean column.
func (c Column) Bool() (bool, error) {
	if err := c.expectOID(uint32(oid.T_bool)); err != nil {
		return false, err
	}
	if err := c.requireLen(1); err != nil {
		return false, err
	}
	return c.raw[0] != 0, nil
}

// String decodes a UTF-8 text column, surfacing a Utf8 error on invalid
// bytes rather than silently producing an invalid string.
func (c Column) String() (string, error) {
	if !utf8.Valid(c.raw) {
		return "", errors.New(errors.Utf8, "column value is not valid UTF-8")
	}
	return string(c.raw), nil
}

// postgresEpoch is the zero point binary timestamp/timestamptz values count
// microseconds from, per the wire format (not the Unix epoch).
var postgresEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Timestamp decodes the binary timestamp representation: a signed 8-byte
// count of microseconds before or after 2000-01-01 00:00:00 UTC, matching
// the binary result format every column on this connection is bound with.
func (c Column) Timestamp() (time.Time, error) {
	if err := c.expectOID(uint32(oid.T_timestamp)); err != nil {
		return time.Time{}, err
	}
	if err := c.requireLen(8); err != nil {
		return time.Time{}, err
	}

	micros := int64(binary.BigEndian.Uint64(c.raw))
	return postgresEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}

func (c Column) requireLen(n int) error {
	if len(c.raw) != n {
		return errors.Newf(errors.Protocol, "expected %d-byte value for column %q, got %d", n, c.name, len(c.raw))
	}
	return nil
}

