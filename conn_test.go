package qs_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	qs "github.com/qspg/qs"
	"github.com/qspg/qs/internal/mockserver"
)

func dialMock(t *testing.T, ln *mockserver.Listener, cfg qs.Config) (*qs.Conn, *mockserver.Backend) {
	t.Helper()

	connCh := make(chan *qs.Conn, 1)
	errCh := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, err := qs.Connect(ctx, cfg, qs.WithLogger(slogt.New(t)))
		if err != nil {
			errCh <- err
			return
		}
		connCh <- c
	}()

	be := ln.Accept()
	be.ExpectStartup()
	be.SendAuthOK()
	be.SendBackendKeyData(42, 99)
	be.SendParameterStatus("server_version", "16.0")
	be.SendReadyForQuery('I')

	select {
	case c := <-connCh:
		return c, be
	case err := <-errCh:
		t.Fatalf("connect failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect")
	}
	return nil, nil
}

func localConfig(t *testing.T, ln *mockserver.Listener) qs.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	return qs.Config{User: "tester", Database: "testdb", Host: host, Port: uint16(port)}
}

func TestConnect_CleartextPassword(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)
	cfg.Password = "secret"

	connCh := make(chan *qs.Conn, 1)
	errCh := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, err := qs.Connect(ctx, cfg, qs.WithLogger(slogt.New(t)))
		if err != nil {
			errCh <- err
			return
		}
		connCh <- c
	}()

	be := ln.Accept()
	be.ExpectStartup()
	pw := be.SendAuthCleartextPassword()
	require.Equal(t, "secret", pw)
	be.SendAuthOK()
	be.SendBackendKeyData(1, 2)
	be.SendReadyForQuery('I')

	select {
	case c := <-connCh:
		require.Equal(t, byte('I'), c.TxStatus())
		require.NoError(t, c.Close())
	case err := <-errCh:
		t.Fatalf("connect failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect")
	}
}

func TestConnect_ServerErrorDuringStartup(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := qs.Connect(ctx, cfg, qs.WithLogger(slogt.New(t)))
		errCh <- err
	}()

	be := ln.Accept()
	be.ExpectStartup()
	be.SendError(map[byte]string{
		'S': "FATAL",
		'C': "28000",
		'M': "role \"tester\" does not exist",
	})

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect to fail")
	}
}

func TestConn_PollReady(t *testing.T) {
	ln := mockserver.Start(t)
	cfg := localConfig(t, ln)

	c, be := dialMock(t, ln, cfg)
	defer be.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.PollReady(context.Background())
	}()

	tag := be.ReadFrontendTag()
	be.ExpectSync(tag)
	be.SendReadyForQuery('I')

	require.NoError(t, <-errCh)
	require.NoError(t, c.Close())
}
