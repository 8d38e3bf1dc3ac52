package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates encoded frontend messages in a byte buffer and flushes
// them to the underlying stream on demand. Send never blocks; Flush is the
// only operation that touches the network.
type Writer struct {
	dst   io.Writer
	frame bytes.Buffer
	// msgStart is the offset inside frame where the currently open
	// message's length prefix begins, or -1 when no message is open.
	msgStart int
}

// NewWriter constructs a Writer around the given io.Writer.
func NewWriter(dst io.Writer) *Writer {
	w := &Writer{dst: dst}
	w.frame.Grow(DefaultBufferSize)
	w.msgStart = -1
	return w
}

// Start begins a new tagged frontend message. The tag byte and a 4-byte
// placeholder length are written immediately; End() backfills the length
// once the payload is known.
func (w *Writer) Start(tag byte) {
	w.msgStart = w.frame.Len()
	w.frame.WriteByte(tag)
	w.frame.Write([]byte{0, 0, 0, 0})
}

// StartUntagged begins the Startup message, which has no leading tag byte
// (a historical quirk of the protocol) and begins directly with its length.
func (w *Writer) StartUntagged() {
	w.msgStart = w.frame.Len()
	w.frame.Write([]byte{0, 0, 0, 0})
}

func (w *Writer) AddInt16(v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	w.frame.Write(b[:])
}

func (w *Writer) AddInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.frame.Write(b[:])
}

func (w *Writer) AddUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.frame.Write(b[:])
}

func (w *Writer) AddString(s string) {
	w.frame.WriteString(s)
}

func (w *Writer) AddBytes(b []byte) {
	w.frame.Write(b)
}

func (w *Writer) AddByte(b byte) {
	w.frame.WriteByte(b)
}

func (w *Writer) AddNullTerminate() {
	w.frame.WriteByte(0)
}

// End backfills the length prefix of the currently open message. The length
// covers the prefix itself but excludes the tag byte.
func (w *Writer) End() {
	if w.msgStart == -1 {
		panic("buffer: End called without a matching Start")
	}

	buf := w.frame.Bytes()
	lenOffset := w.msgStart + 1
	length := uint32(len(buf) - w.msgStart - 1)
	binary.BigEndian.PutUint32(buf[lenOffset:lenOffset+4], length)
	w.msgStart = -1
}

// EndUntagged backfills the length prefix of an untagged (Startup) message.
// Here the length includes the length field itself.
func (w *Writer) EndUntagged() {
	if w.msgStart == -1 {
		panic("buffer: EndUntagged called without a matching StartUntagged")
	}

	buf := w.frame.Bytes()
	length := uint32(len(buf) - w.msgStart)
	binary.BigEndian.PutUint32(buf[w.msgStart:w.msgStart+4], length)
	w.msgStart = -1
}

// Reserve pre-allocates size bytes for a message body whose length is known
// up front (the extended-query Bind payload). The returned reservation's
// Done panics if the caller wrote a different number of bytes than
// reserved — the encoder is trusted to precompute sizes exactly.
func (w *Writer) Reserve(size int) reservation {
	w.frame.Grow(size)
	return reservation{start: w.frame.Len(), want: size, w: w}
}

type reservation struct {
	w     *Writer
	start int
	want  int
}

// Done asserts that exactly the reserved number of bytes were written since
// Reserve, panicking otherwise. This is a programmer error, never a runtime
// condition a caller should recover from.
func (r reservation) Done() {
	got := r.w.frame.Len() - r.start
	if got != r.want {
		panic(fmt.Sprintf("buffer: reserved %d bytes for message payload but wrote %d", r.want, got))
	}
}

// Flush drains the accumulated frame to the underlying stream.
func (w *Writer) Flush() error {
	if w.frame.Len() == 0 {
		return nil
	}

	_, err := w.dst.Write(w.frame.Bytes())
	w.frame.Reset()
	return err
}

// Pending reports how many bytes are buffered but not yet flushed.
func (w *Writer) Pending() int {
	return w.frame.Len()
}
