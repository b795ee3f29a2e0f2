package mux

import (
	"io"
	"net"
	"sync"
)

// isClosed checks if a signaling channel is closed without blocking.
func isClosed(channel <-chan struct{}) bool {
	select {
	case <-channel:
		return true
	default:
		return false
	}
}

// channelState is one of the four states in spec.md §4.3's state machine.
type channelState int

const (
	stateOffered channelState = iota
	stateAccepted
	stateRejectedOrCanceled
	stateTerminated
)

// inboundChunk is one element of a Channel's inbound payload queue. A nil
// payload with eof set is the sentinel appended on ContentWritingCompleted
// (spec.md §3/§4.3).
type inboundChunk struct {
	payload []byte
	eof     bool
}

// Channel is a single multiplexed, named-or-anonymous logical byte stream.
// It implements enough of net.Conn (Read/Write/Close/LocalAddr/RemoteAddr)
// to be usable as a drop-in transport by higher layers, matching how the
// teacher's own Stream type is consumed by its callers.
type Channel struct {
	session *Session
	id      uint32
	name    string

	mu    sync.Mutex
	state channelState

	// options holds the channel's current ChannelOptions: the pre-accept
	// default until tryAcceptOffer replaces it (spec.md §4.5).
	options *ChannelOptions

	// acceptance resolves with the channel itself on entry to Accepted, or
	// rejects on entry to RejectedOrCanceled or Terminated-from-Offered
	// (spec.md §4.3).
	acceptance *future[*Channel]
	// completion resolves when the channel leaves any live state, carrying
	// the termination reason as its error (nil for a clean local close).
	completion *future[struct{}]

	// writeBuffer accumulates locally written bytes before acceptance; it is
	// flushed as Content frames once the channel transitions to Accepted
	// (spec.md §4.3).
	writeBuffer []byte

	// closedWriteOnce guards sending ContentWritingCompleted exactly once.
	closedWriteOnce sync.Once
	// localClosedWrite records whether the local side has half-closed.
	localClosedWrite bool

	// inbound is the ordered queue of undelivered payload chunks, terminated
	// by an eof sentinel (spec.md §3/§4.3). It is produced solely by the
	// Session's reader loop and consumed solely by the application.
	inbound     chan inboundChunk
	readPending []byte // unread remainder of the most recently dequeued chunk
	readEOF     bool
}

// newChannel constructs a channel in the Offered state. It does not
// register the channel with the Session; callers do that separately.
func newChannel(session *Session, id uint32, name string, options *ChannelOptions) *Channel {
	capacity := options.capacity()
	if capacity <= 0 {
		capacity = 64
	}
	return &Channel{
		session:    session,
		id:         id,
		name:       name,
		state:      stateOffered,
		options:    options,
		acceptance: newFuture[*Channel](nil),
		completion: newFuture[struct{}](nil),
		inbound:    make(chan inboundChunk, capacity),
	}
}

// ID returns the channel's 32-bit identifier.
func (c *Channel) ID() uint32 { return c.id }

// Name returns the channel's name, or "" if it is anonymous.
func (c *Channel) Name() string { return c.name }

// closedSignal is always-ready; used so future.wait never blocks on the
// cancel argument when callers only want a non-blocking outcome snapshot.
var closedSignal = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Accepted returns a channel that becomes readable once the channel is
// accepted, rejected, or terminated before acceptance.
func (c *Channel) Accepted() <-chan struct{} { return c.acceptance.signal() }

// AcceptanceErr returns the error associated with the acceptance outcome:
// nil if accepted, otherwise the rejection/termination reason. It must only
// be called after Accepted() has fired.
func (c *Channel) AcceptanceErr() error {
	_, err := c.acceptance.wait(closedSignal)
	return err
}

// Completion returns a channel that becomes readable once the channel
// leaves any live state (terminated locally or remotely).
func (c *Channel) Completion() <-chan struct{} { return c.completion.signal() }

// CompletionErr returns the reason the channel terminated, or nil for a
// clean local close. It must only be called after Completion() has fired.
func (c *Channel) CompletionErr() error {
	_, err := c.completion.wait(closedSignal)
	return err
}

// tryAcceptOffer transitions the channel from Offered to Accepted,
// replacing its options with the ones supplied at accept time (spec.md
// §4.3/§6). It returns true exactly once; subsequent or out-of-state calls
// return false.
func (c *Channel) tryAcceptOffer(options *ChannelOptions) bool {
	c.mu.Lock()
	if c.state != stateOffered {
		c.mu.Unlock()
		return false
	}
	c.state = stateAccepted
	c.options = options
	// Nothing is delivered before acceptance, so the inbound queue can still
	// be resized to the capacity the accepting side asked for.
	if capacity := options.capacity(); capacity > 0 && capacity != cap(c.inbound) && len(c.inbound) == 0 {
		c.inbound = make(chan inboundChunk, capacity)
	}
	pending := c.writeBuffer
	c.writeBuffer = nil
	c.mu.Unlock()

	c.acceptance.resolve(c)
	if len(pending) > 0 {
		c.session.flushContent(c, pending)
	}
	return true
}

// tryCancelOffer transitions the channel from Offered to
// RejectedOrCanceled. It returns true exactly once.
func (c *Channel) tryCancelOffer() bool {
	c.mu.Lock()
	if c.state != stateOffered {
		c.mu.Unlock()
		return false
	}
	c.state = stateRejectedOrCanceled
	c.mu.Unlock()

	c.acceptance.reject(ErrCancelled)
	c.completion.reject(ErrCancelled)
	return true
}

// onAccepted is invoked by the reader loop when an OfferAccepted frame
// arrives for this channel. It returns false if the offer had already left
// the Offered state (the cancellation and acceptance crossed in flight, per
// spec.md §4.5/§8 scenario 6).
func (c *Channel) onAccepted() bool {
	c.mu.Lock()
	if c.state != stateOffered {
		c.mu.Unlock()
		return false
	}
	c.state = stateAccepted
	pending := c.writeBuffer
	c.writeBuffer = nil
	c.mu.Unlock()

	c.acceptance.resolve(c)
	if len(pending) > 0 {
		c.session.flushContent(c, pending)
	}
	return true
}

// terminate transitions the channel out of whatever live state it is in
// and into Terminated, resolving completion with cause (nil for a clean
// close). It is idempotent.
func (c *Channel) terminate(cause error) {
	c.mu.Lock()
	if c.state == stateTerminated {
		c.mu.Unlock()
		return
	}
	wasOffered := c.state == stateOffered
	c.state = stateTerminated
	c.mu.Unlock()

	if wasOffered {
		c.acceptance.reject(causeOrRejected(cause))
	}
	c.completion.reject(cause)
	c.closeInbound()
}

func causeOrRejected(cause error) error {
	if cause != nil {
		return cause
	}
	return ErrOfferRejected
}

// closeInbound appends the end-of-stream sentinel to the inbound queue,
// unblocking any pending Read. It is safe to call more than once.
func (c *Channel) closeInbound() {
	select {
	case c.inbound <- inboundChunk{eof: true}:
	default:
	}
}

// deliver appends a Content payload to the inbound queue. It blocks if the
// queue is at capacity, propagating backpressure to the reader loop (and
// hence, transitively, to the wire) per spec.md §9.
func (c *Channel) deliver(payload []byte) {
	c.inbound <- inboundChunk{payload: payload}
}

// deliverEOF appends the end-of-stream sentinel, invoked by the reader loop
// on ContentWritingCompleted.
func (c *Channel) deliverEOF() {
	c.inbound <- inboundChunk{eof: true}
}

// Read implements io.Reader. It returns io.EOF once the remote has
// half-closed (ContentWritingCompleted) and all buffered payload has been
// drained.
func (c *Channel) Read(buffer []byte) (int, error) {
	if c.readEOF && len(c.readPending) == 0 {
		return 0, io.EOF
	}
	for len(c.readPending) == 0 {
		chunk, ok := <-c.inbound
		if !ok {
			return 0, net.ErrClosed
		}
		if chunk.eof {
			c.readEOF = true
			return 0, io.EOF
		}
		c.readPending = chunk.payload
	}
	n := copy(buffer, c.readPending)
	c.readPending = c.readPending[n:]
	return n, nil
}

// Write implements io.Writer. Before acceptance, data is buffered locally
// without bound; afterward, it is chunked into Content frames of at most
// maxPayloadSize bytes each (spec.md §4.3).
func (c *Channel) Write(data []byte) (int, error) {
	c.mu.Lock()
	switch c.state {
	case stateTerminated:
		c.mu.Unlock()
		return 0, net.ErrClosed
	case stateRejectedOrCanceled:
		c.mu.Unlock()
		return 0, ErrNoLongerAvailable
	}
	if c.localClosedWrite {
		c.mu.Unlock()
		return 0, ErrWriteClosed
	}
	if c.state == stateOffered {
		c.writeBuffer = append(c.writeBuffer, data...)
		c.mu.Unlock()
		return len(data), nil
	}
	c.mu.Unlock()

	if err := c.session.flushContent(c, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// CloseWrite half-closes the channel's write side, sending
// ContentWritingCompleted exactly once (spec.md §4.3). Subsequent writes
// fail with ErrWriteClosed.
func (c *Channel) CloseWrite() error {
	var err error
	c.closedWriteOnce.Do(func() {
		c.mu.Lock()
		c.localClosedWrite = true
		c.mu.Unlock()
		err = c.session.sendFrame(controlContentWritingCompleted, c.id)
	})
	return err
}

// Close terminates the channel, notifying the remote via ChannelTerminated
// (the notification is a silent no-op if the Session has already been
// disposed, per spec.md §4.6).
func (c *Channel) Close() error {
	c.session.terminateLocal(c)
	return nil
}

// LocalAddr implements net.Conn.LocalAddr.
func (c *Channel) LocalAddr() net.Addr { return &channelAddr{remote: false, id: c.id} }

// RemoteAddr implements net.Conn.RemoteAddr.
func (c *Channel) RemoteAddr() net.Addr { return &channelAddr{remote: true, id: c.id} }

// ErrWriteClosed is returned from Write after CloseWrite has been called.
var ErrWriteClosed = &writeClosedError{}

type writeClosedError struct{}

func (*writeClosedError) Error() string { return "channel closed for writing" }
