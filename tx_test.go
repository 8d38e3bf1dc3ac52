package qs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	qs "github.com/qspg/qs"
	"github.com/qspg/qs/internal/mockserver"
)

// TestTx_CloseRollsBackWithoutCommit exercises end-to-end scenario 3: a Tx
// abandoned via Close without Commit issues ROLLBACK and leaves the
// connection idle ('I').
func TestTx_CloseRollsBackWithoutCommit(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	conn, be := dialMock(t, ln, cfg)
	defer be.Close()
	defer conn.Close()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)

		tx, err := qs.Begin(context.Background(), conn)
		require.NoError(t, err)
		require.NotEmpty(t, tx.ID())

		require.NoError(t, tx.Close())
	}()

	tag := be.ReadFrontendTag()
	require.Equal(t, byte('Q'), tag)
	require.Equal(t, "BEGIN", be.ExpectQuery())
	be.SendCommandComplete("BEGIN")
	be.SendReadyForQuery('T')

	tag = be.ReadFrontendTag()
	require.Equal(t, byte('Q'), tag)
	require.Equal(t, "ROLLBACK", be.ExpectQuery())
	be.SendCommandComplete("ROLLBACK")
	be.SendReadyForQuery('I')

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	require.Equal(t, byte('I'), conn.TxStatus())
}

// TestTx_CommitIsIdempotentWithClose confirms a deferred Close after an
// explicit Commit is a no-op (no second ROLLBACK on the wire).
func TestTx_CommitIsIdempotentWithClose(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	conn, be := dialMock(t, ln, cfg)
	defer be.Close()
	defer conn.Close()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)

		tx, err := qs.Begin(context.Background(), conn)
		require.NoError(t, err)
		defer tx.Close()

		require.NoError(t, tx.Commit(context.Background()))
	}()

	tag := be.ReadFrontendTag()
	require.Equal(t, "BEGIN", be.ExpectQuery())
	_ = tag
	be.SendCommandComplete("BEGIN")
	be.SendReadyForQuery('T')

	tag = be.ReadFrontendTag()
	require.Equal(t, "COMMIT", be.ExpectQuery())
	_ = tag
	be.SendCommandComplete("COMMIT")
	be.SendReadyForQuery('I')

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
