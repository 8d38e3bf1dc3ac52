package pool_test

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	qs "github.com/qspg/qs"
	"github.com/qspg/qs/internal/mockserver"
	"github.com/qspg/qs/internal/protocol"
	"github.com/qspg/qs/pool"
)

// serveConn plays a minimal startup handshake, then answers every Sync with
// a ReadyForQuery (the pool health-checks a connection on most Releases)
// until it reads Terminate, which Pool.Close sends to every idle
// connection when the pool shuts down.
func serveConn(t *testing.T, be *mockserver.Backend) {
	t.Helper()
	be.ExpectStartup()
	be.SendAuthOK()
	be.SendBackendKeyData(1, 1)
	be.SendReadyForQuery('I')

	for {
		tag := be.ReadFrontendTag()
		if tag == protocol.TagTerminate {
			return
		}
		be.ExpectSync(tag)
		be.SendReadyForQuery('I')
	}
}

func mockConfig(t *testing.T, ln *mockserver.Listener) qs.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	return qs.Config{User: "tester", Database: "testdb", Host: host, Port: uint16(port)}
}

// TestPool_Saturation exercises end-to-end scenario 4: MaxConns=2 but 8
// concurrent acquires all eventually complete, and the live count never
// exceeds MaxConns.
func TestPool_Saturation(t *testing.T) {
	ln := mockserver.Start(t)

	const maxConns = 2
	go func() {
		for i := 0; i < maxConns; i++ {
			be := ln.Accept()
			go serveConn(t, be)
		}
	}()

	p := pool.New(pool.Config{
		Conn:     mockConfig(t, ln),
		MaxConns: 2,
		Logger:   slogt.New(t),
	})
	defer p.Close()

	var wg sync.WaitGroup
	var maxSeen int32
	var liveCount int32

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := p.Acquire(ctx)
			require.NoError(t, err)

			n := atomic.AddInt32(&liveCount, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}

			time.Sleep(20 * time.Millisecond)

			atomic.AddInt32(&liveCount, -1)
			p.Release(conn)
		}()
	}

	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}

// TestPool_ConnectRetryExhaustion exercises the first half of end-to-end
// scenario 5: a pool pointed at a host nothing listens on fails the head
// waiter only after exhausting its retries (one retry, 10ms apart).
func TestPool_ConnectRetryExhaustion(t *testing.T) {
	p := pool.New(pool.Config{
		Conn: qs.Config{
			User: "tester", Database: "testdb",
			Host: "127.0.0.1", Port: 1, // nothing listens on port 1
		},
		MaxConns:       1,
		MaxRetry:       1,
		RetryDelay:     10 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
		Logger:         slogt.New(t),
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := p.Acquire(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
