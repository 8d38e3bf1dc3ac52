package qs

import (
	"context"
	"fmt"
	"net"

	"github.com/qspg/qs/errors"
	"github.com/qspg/qs/internal/buffer"
)

// transport owns a single TCP or Unix-domain stream plus its read and write
// buffers. It never decodes message bodies — that is the protocol codec's
// job — only frames them.
type transport struct {
	conn   net.Conn
	reader *buffer.Reader
	writer *buffer.Writer
}

// dial opens a stream for the given Config. When Host is "localhost" a Unix
// domain socket is tried automatically before falling back to TCP, matching
// the common local-Postgres deployment convention.
func dial(ctx context.Context, cfg Config) (*transport, error) {
	var d net.Dialer

	if cfg.Socket != "" {
		conn, err := d.DialContext(ctx, "unix", cfg.Socket)
		if err != nil {
			return nil, errors.Wrap(errors.Io, err)
		}
		return newTransport(conn), nil
	}

	if cfg.Host == "localhost" {
		socket := fmt.Sprintf("/var/run/postgresql/.s.PGSQL.%d", cfg.Port)
		if conn, err := d.DialContext(ctx, "unix", socket); err == nil {
			return newTransport(conn), nil
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.Io, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	return newTransport(conn), nil
}

func newTransport(conn net.Conn) *transport {
	return &transport{
		conn:   conn,
		reader: buffer.NewReader(conn, buffer.DefaultBufferSize),
		writer: buffer.NewWriter(conn),
	}
}

// send buffers a frontend message. It never touches the network.
func (t *transport) send(fn func(*buffer.Writer)) {
	fn(t.writer)
}

// flush drains the write buffer to the stream.
func (t *transport) flush() error {
	if err := t.writer.Flush(); err != nil {
		return errors.Wrap(errors.Io, err)
	}
	return nil
}

// recv reads exactly one framed backend message and returns its tag and a
// reader positioned at the message body.
func (t *transport) recv() (byte, *buffer.Reader, error) {
	tag, err := t.reader.ReadTypedMsg()
	if err != nil {
		return 0, nil, errors.Wrap(errors.Io, err)
	}
	return tag, t.reader, nil
}

func (t *transport) close() error {
	return t.conn.Close()
}
