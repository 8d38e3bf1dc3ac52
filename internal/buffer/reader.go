// Package buffer provides the framed reader and writer used by the qs
// wire-protocol codec to speak the PostgreSQL frontend/backend protocol.
package buffer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"unsafe"
)

// DefaultBufferSize is the initial capacity of a Reader's scratch buffer.
const DefaultBufferSize = 1024

// Reader reads framed PostgreSQL backend messages: a 1-byte tag, a 4-byte
// big-endian length (length-inclusive, tag-exclusive) and the payload.
type Reader struct {
	src    *bufio.Reader
	Msg    []byte
	header [4]byte
}

// NewReader constructs a Reader around the given io.Reader.
func NewReader(src io.Reader, bufferSize int) *Reader {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{src: bufio.NewReaderSize(src, bufferSize)}
}

func (reader *Reader) reset(size int) {
	if cap(reader.Msg) >= size {
		reader.Msg = reader.Msg[:size]
		return
	}

	allocSize := size
	if allocSize < DefaultBufferSize {
		allocSize = DefaultBufferSize
	}

	reader.Msg = make([]byte, size, allocSize)
}

// ReadByte reads a single, untyped byte from the underlying stream.
func (reader *Reader) ReadByte() (byte, error) {
	return reader.src.ReadByte()
}

// ReadTypedMsg reads a tagged backend message: one byte of tag, then a
// length-prefixed payload. It blocks until a full frame is available.
func (reader *Reader) ReadTypedMsg() (tag byte, err error) {
	tag, err = reader.src.ReadByte()
	if err != nil {
		return 0, err
	}

	if err = reader.readFrame(); err != nil {
		return 0, err
	}

	return tag, nil
}

// ReadUntypedMsg reads a length-prefixed message with no leading tag byte.
// Used by the mock server to read the client's Startup message, which
// carries no tag byte (a historical quirk of the protocol).
func (reader *Reader) ReadUntypedMsg() error {
	return reader.readFrame()
}

func (reader *Reader) readFrame() error {
	if _, err := io.ReadFull(reader.src, reader.header[:]); err != nil {
		return err
	}

	size := int(binary.BigEndian.Uint32(reader.header[:])) - 4
	if size < 0 {
		return NewProtocolError("negative message length")
	}

	reader.reset(size)
	_, err := io.ReadFull(reader.src, reader.Msg)
	return err
}

// GetString reads a NUL-terminated string from the remaining message bytes.
func (reader *Reader) GetString() (string, error) {
	pos := bytes.IndexByte(reader.Msg, 0)
	if pos == -1 {
		return "", NewProtocolError("missing NUL terminator")
	}

	s := reader.Msg[:pos]
	reader.Msg = reader.Msg[pos+1:]

	// Avoids a copy; safe because the scratch buffer is never reused while
	// the returned string is alive.
	return *(*string)(unsafe.Pointer(&s)), nil
}

// GetBytes returns the next n bytes. n == -1 denotes a SQL NULL and yields a
// nil slice, distinct from a zero-length (empty) value.
func (reader *Reader) GetBytes(n int) ([]byte, error) {
	if n == -1 {
		return nil, nil
	}

	if len(reader.Msg) < n {
		return nil, NewProtocolError("insufficient data in message")
	}

	v := reader.Msg[:n]
	reader.Msg = reader.Msg[n:]
	return v, nil
}

// GetInt16 reads a big-endian int16.
func (reader *Reader) GetInt16() (int16, error) {
	if len(reader.Msg) < 2 {
		return 0, NewProtocolError("insufficient data in message")
	}

	v := int16(binary.BigEndian.Uint16(reader.Msg[:2]))
	reader.Msg = reader.Msg[2:]
	return v, nil
}

// GetUint32 reads a big-endian uint32.
func (reader *Reader) GetUint32() (uint32, error) {
	if len(reader.Msg) < 4 {
		return 0, NewProtocolError("insufficient data in message")
	}

	v := binary.BigEndian.Uint32(reader.Msg[:4])
	reader.Msg = reader.Msg[4:]
	return v, nil
}

// GetInt32 reads a big-endian int32.
func (reader *Reader) GetInt32() (int32, error) {
	v, err := reader.GetUint32()
	return int32(v), err
}

// Remaining returns the unread tail of the current message.
func (reader *Reader) Remaining() []byte {
	return reader.Msg
}
