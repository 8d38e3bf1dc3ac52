package qs_test

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"testing"
	"time"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/require"

	qs "github.com/qspg/qs"
	qserrors "github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/mockserver"
)

// TestQuery_PrepareCacheHit exercises end-to-end scenario 1: a repeated
// query text is Parsed once and reused by fingerprint on the second call.
func TestQuery_PrepareCacheHit(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	conn, be := dialMock(t, ln, cfg)
	defer be.Close()
	defer conn.Close()

	const sql = "SELECT $1::int4"

	run := func(t *testing.T, want int32) int32 {
		resultCh := make(chan int32, 1)
		errCh := make(chan error, 1)

		go func() {
			v, err := qs.FetchOne(context.Background(), conn, func(r qs.Row) (int32, error) {
				col, err := r.Column(0)
				if err != nil {
					return 0, err
				}
				return col.Int32()
			}, sql, qs.Int32(want))
			if err != nil {
				errCh <- err
				return
			}
			resultCh <- v
		}()

		select {
		case err := <-errCh:
			t.Fatalf("fetch failed: %v", err)
		case v := <-resultCh:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
		return 0
	}

	// First call: cache miss, expect Parse+Flush.
	first := runServerSide(t, be, true, 42)
	require.Equal(t, int32(42), run(t, 42))
	<-first

	// Second call: cache hit, no Parse expected.
	second := runServerSide(t, be, false, 7)
	require.Equal(t, int32(7), run(t, 7))
	<-second
}

// runServerSide plays the server half of one bind-execute round trip,
// optionally preceded by a Parse/Flush on a cache miss, returning a channel
// closed once the script completes.
func runServerSide(t *testing.T, be *mockserver.Backend, expectParse bool, value int32) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})

	go func() {
		defer close(done)

		if expectParse {
			tag := be.ReadFrontendTag()
			require.Equal(t, byte('P'), tag)
			_ = be.ExpectParse()
			require.Equal(t, byte('H'), be.ReadFrontendTag())
			be.SendParseComplete()
		}

		tag := be.ReadFrontendTag()
		require.Equal(t, byte('B'), tag)
		_ = be.ExpectBind()
		be.SendBindComplete()

		tag = be.ReadFrontendTag()
		require.Equal(t, byte('D'), tag)
		_, _ = be.ExpectDescribe()
		be.SendRowDescription([]mockserver.ResultColumn{{Name: "int4", OID: uint32(oid.T_int4)}})

		tag = be.ReadFrontendTag()
		require.Equal(t, byte('E'), tag)
		_, _ = be.ExpectExecute()

		buf := make([]byte, 4)
		putInt32(buf, value)
		be.SendDataRow([][]byte{buf})
		be.SendCommandComplete("SELECT 1")

		tag = be.ReadFrontendTag()
		be.ExpectSync(tag)
		be.SendReadyForQuery('I')
	}()

	return done
}

func putInt32(buf []byte, v int32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

// TestFetchOne_BinaryTimestamp drives a real timestamp column through the
// wire as the binary microseconds-since-2000-01-01 representation Bind's
// result-format code actually requests, rather than hand-building a Row in
// memory, so a regression back to textual decoding would fail here.
func TestFetchOne_BinaryTimestamp(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	conn, be := dialMock(t, ln, cfg)
	defer be.Close()
	defer conn.Close()

	want := time.Date(2024, 3, 1, 12, 30, 0, 500_000_000, time.UTC)
	micros := want.Sub(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)).Microseconds()

	resultCh := make(chan time.Time, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := qs.FetchOne(context.Background(), conn, func(r qs.Row) (time.Time, error) {
			col, err := r.Column(0)
			if err != nil {
				return time.Time{}, err
			}
			return col.Timestamp()
		}, "SELECT created_at FROM events LIMIT 1")
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	tag := be.ReadFrontendTag()
	require.Equal(t, byte('P'), tag)
	_ = be.ExpectParse()
	require.Equal(t, byte('H'), be.ReadFrontendTag())
	be.SendParseComplete()

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('B'), tag)
	_ = be.ExpectBind()
	be.SendBindComplete()

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('D'), tag)
	_, _ = be.ExpectDescribe()
	be.SendRowDescription([]mockserver.ResultColumn{{Name: "created_at", OID: uint32(oid.T_timestamp)}})

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('E'), tag)
	_, _ = be.ExpectExecute()

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	be.SendDataRow([][]byte{buf})
	be.SendCommandComplete("SELECT 1")

	tag = be.ReadFrontendTag()
	be.ExpectSync(tag)
	be.SendReadyForQuery('I')

	select {
	case err := <-errCh:
		t.Fatalf("fetch failed: %v", err)
	case v := <-resultCh:
		require.True(t, want.Equal(v), "got %v, want %v", v, want)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

// TestFetchOne_Empty exercises the first half of end-to-end scenario 2:
// FetchOne against an empty result reports RowNotFound.
func TestFetchOne_Empty(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	conn, be := dialMock(t, ln, cfg)
	defer be.Close()
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := qs.FetchOne(context.Background(), conn, func(r qs.Row) (int32, error) {
			col, err := r.Column(0)
			if err != nil {
				return 0, err
			}
			return col.Int32()
		}, "SELECT 1 WHERE false")
		errCh <- err
	}()

	tag := be.ReadFrontendTag()
	require.Equal(t, byte('P'), tag)
	_ = be.ExpectParse()
	require.Equal(t, byte('H'), be.ReadFrontendTag())
	be.SendParseComplete()

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('B'), tag)
	_ = be.ExpectBind()
	be.SendBindComplete()

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('D'), tag)
	_, _ = be.ExpectDescribe()
	be.SendRowDescription([]mockserver.ResultColumn{{Name: "int4", OID: uint32(oid.T_int4)}})

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('E'), tag)
	_, _ = be.ExpectExecute()
	be.SendCommandComplete("SELECT 0")

	tag = be.ReadFrontendTag()
	be.ExpectSync(tag)
	be.SendReadyForQuery('I')

	select {
	case err := <-errCh:
		require.True(t, stderrors.Is(err, qserrors.Sentinel(qserrors.RowNotFound)))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
