package mux

import (
	"bufio"
	"io"
)

// Carrier is the transport a Session multiplexes over: one exclusively-owned
// duplex byte stream carrying the frame wire format from frame.go. Closing
// it must unblock any goroutine currently blocked in Read, Discard, or
// Write, since that's how the writer and reader loops are torn down on
// disposal (spec.md §4.4).
//
// Discard lets the reader loop skip the payload of a control code it
// doesn't recognize (reserved for forward compatibility) without
// allocating a buffer for bytes it has no handler for.
type Carrier interface {
	io.Reader
	io.ByteReader

	// Discard skips the next n bytes without returning them, reporting how
	// many were actually skipped. The returned error must be non-nil if and
	// only if discarded != n.
	Discard(n int) (discarded int, err error)

	io.Writer
	io.Closer
}

// bufioCarrier adapts an io.ReadWriteCloser to Carrier by wrapping its read
// side in a bufio.Reader, which supplies ByteReader and Discard for free;
// writes and Close pass straight through to the underlying stream.
type bufioCarrier struct {
	*bufio.Reader
	io.Writer
	io.Closer
}

// NewCarrierFromStream wraps stream as a Carrier. stream's Close method must
// unblock any Read or Write call already in progress on it; net.Conn and
// most pipe implementations satisfy this.
func NewCarrierFromStream(stream io.ReadWriteCloser) Carrier {
	return &bufioCarrier{
		Reader: bufio.NewReader(stream),
		Writer: stream,
		Closer: stream,
	}
}
