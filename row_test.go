package qs_test

import (
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/require"

	qs "github.com/qspg/qs"
)

func TestEncode_Scalars(t *testing.T) {
	cases := []struct {
		name string
		enc  qs.Encoder
		oid  oid.Oid
	}{
		{"bool", qs.Bool(true), oid.T_bool},
		{"int16", qs.Int16(7), oid.T_int2},
		{"int32", qs.Int32(7), oid.T_int4},
		{"int64", qs.Int64(7), oid.T_int8},
		{"float64", qs.Float64(3.25), oid.T_float8},
		{"text", qs.Text("hi"), oid.T_text},
		{"bytes", qs.Bytes([]byte("hi")), oid.T_bytea},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.enc.Encode()
			require.Equal(t, tc.oid, p.OID)
			require.False(t, p.IsNull)
		})
	}
}

func TestEncode_NullBytes(t *testing.T) {
	p := qs.Bytes(nil).Encode()
	require.True(t, p.IsNull)
	require.Equal(t, oid.T_bytea, p.OID)
}

func TestEncode_Null(t *testing.T) {
	p := qs.Null(oid.T_int4)
	require.True(t, p.IsNull)
	require.Equal(t, oid.T_int4, p.OID)
}
