package mux

import (
	"context"
	"math"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/chanduplex/muxstream/pkg/logging"
)

// Session is a MultiplexingStream: it owns a transport Carrier exclusively,
// performs the handshake on construction, and lets either side offer,
// accept, reject, and terminate channels concurrently (spec.md §1/§4.4).
type Session struct {
	carrier Carrier
	odd     bool
	logger  *logging.Logger

	writeCh chan frameWrite

	registryLock           sync.Mutex
	channels               map[uint32]*Channel
	queues                 *nameQueues
	channelOfferedHandlers []handlerEntry
	nextID                 uint32
	idsExhausted           bool

	disposeOnce sync.Once
	completion  *future[struct{}]
}

// frameWrite is a single logical frame enqueued for the writer goroutine.
// header and payload are written as one contiguous operation, never
// interleaved with another frame's bytes (spec.md §4.6).
type frameWrite struct {
	header  [frameHeaderSize]byte
	payload []byte
}

// NewSession performs the handshake on carrier and, once it succeeds,
// starts the reader and writer goroutines. carrier is owned exclusively by
// the returned Session from this point on. ctx only bounds the handshake
// itself (spec.md §4.1's cancellable handshake); it does not bound the
// Session's subsequent lifetime.
func NewSession(ctx context.Context, carrier Carrier, options *SessionOptions) (*Session, error) {
	odd, err := handshake(ctx, carrier)
	if err != nil {
		return nil, err
	}

	logger := options.logger()
	session := &Session{
		carrier:    carrier,
		odd:        odd,
		logger:     logger,
		writeCh:    make(chan frameWrite, 64),
		channels:   make(map[uint32]*Channel),
		queues:     newNameQueues(),
		completion: newFuture[struct{}](nil),
	}
	if odd {
		session.nextID = 1
	} else {
		session.nextID = 2
	}

	go session.writerLoop()
	go session.readerLoop()

	logger.Debugf("handshake complete: odd=%v", odd)
	return session, nil
}

// Addr returns a net.Addr identifying this session's handshake-resolved
// role (odd or even), mirroring the teacher's Multiplexer.Addr.
func (s *Session) Addr() net.Addr { return &sessionAddr{odd: s.odd} }

// Completion returns a channel that becomes readable once the Session is
// disposed, whether by an internal error or a call to Close.
func (s *Session) Completion() <-chan struct{} { return s.completion.signal() }

// Err returns the internal error that caused disposal, or nil if Close was
// called directly without a prior protocol/transport error.
func (s *Session) Err() error {
	_, err := s.completion.wait(closedSignal)
	if errors.Is(err, errCleanDispose) {
		return nil
	}
	return err
}

// errCleanDispose is the sentinel completion error used for a direct Close
// call, distinguished from a fatal internal error so that Err() can report
// nil for the former while still unblocking completion.wait for both.
var errCleanDispose = errors.New("session disposed")

func (s *Session) isDisposed() bool {
	return isClosed(s.completion.signal())
}

// allocateID returns the next outbound channel id for this party, stepping
// by 2 within the party's parity (spec.md §3). It returns
// ErrIdentifiersExhausted once the 32-bit space is exhausted.
func (s *Session) allocateID() (uint32, error) {
	s.registryLock.Lock()
	defer s.registryLock.Unlock()
	if s.idsExhausted {
		return 0, ErrIdentifiersExhausted
	}
	id := s.nextID
	if math.MaxUint32-id < 2 {
		s.idsExhausted = true
	} else {
		s.nextID = id + 2
	}
	return id, nil
}

// CreateChannel creates an anonymous channel, sends its Offer frame, and
// returns immediately without waiting for acceptance (spec.md §4.4).
func (s *Session) CreateChannel(options *ChannelOptions) (*Channel, error) {
	return s.createChannel("", options)
}

func (s *Session) createChannel(name string, options *ChannelOptions) (*Channel, error) {
	if s.isDisposed() {
		return nil, ErrAlreadyDisposed
	}
	id, err := s.allocateID()
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = DefaultChannelOptions()
	}
	ch := newChannel(s, id, name, options)

	s.registryLock.Lock()
	s.channels[id] = ch
	s.registryLock.Unlock()

	if err := s.sendOffer(id, name); err != nil {
		return nil, err
	}
	s.logger.Debugf("offered channel %d (name=%q)", id, name)
	return ch, nil
}

// OfferChannel offers a named channel and waits for it to be accepted,
// rejected, or for ctx to be cancelled (spec.md §4.4). Name must be UTF-8
// encodable in at most maxPayloadSize bytes.
func (s *Session) OfferChannel(ctx context.Context, name string, options *ChannelOptions) (*Channel, error) {
	if len(name) > maxPayloadSize {
		return nil, ErrNameTooLong
	}

	ch, err := s.createChannel(name, options)
	if err != nil {
		return nil, err
	}

	select {
	case <-ch.Accepted():
		if err := ch.AcceptanceErr(); err != nil {
			return nil, err
		}
		return ch, nil
	case <-ctx.Done():
		s.cancelOffer(ch)
		return nil, ErrCancelled
	case <-s.Completion():
		return nil, errors.Wrap(ErrStreamClosed, "session closed while awaiting offer acceptance")
	}
}

// cancelOffer implements spec.md §4.4's offerChannelAsync cancellation: the
// channel is locally cancelled and a ChannelTerminated frame is sent,
// regardless of whether an OfferAccepted crosses in flight (spec.md §8
// scenario 6). The channel stays registered under its id (only its
// name-queue entry is pulled) so a crossing OfferAccepted still finds it;
// dispatchOfferAccepted reaps the entry once it confirms the crossing.
func (s *Session) cancelOffer(ch *Channel) {
	if !ch.tryCancelOffer() {
		return
	}
	s.registryLock.Lock()
	s.queues.removeOffer(ch)
	s.registryLock.Unlock()
	s.sendFrame(controlChannelTerminated, ch.id)
}

// AcceptChannel accepts a known channel id, which must already be present
// in the registry (spec.md §4.4).
func (s *Session) AcceptChannel(id uint32, options *ChannelOptions) (*Channel, error) {
	if s.isDisposed() {
		return nil, ErrAlreadyDisposed
	}

	s.registryLock.Lock()
	ch, ok := s.channels[id]
	if ok {
		s.queues.removeOffer(ch)
	}
	s.registryLock.Unlock()
	if !ok {
		return nil, ErrUnknownChannel
	}

	if options == nil {
		options = DefaultChannelOptions()
	}
	if !ch.tryAcceptOffer(options) {
		return nil, acceptRefusalError(ch)
	}

	if err := s.sendFrame(controlOfferAccepted, id); err != nil {
		return nil, err
	}
	return ch, nil
}

func acceptRefusalError(ch *Channel) error {
	ch.mu.Lock()
	state := ch.state
	ch.mu.Unlock()
	switch state {
	case stateAccepted:
		return ErrAlreadyAccepted
	case stateRejectedOrCanceled, stateTerminated:
		return ErrNoLongerAvailable
	default:
		return ErrNotAcceptable
	}
}

// AcceptChannelByName accepts the oldest live remote offer queued under
// name, or registers a pending accepter and waits for one to arrive
// (spec.md §4.4). Stale queue entries (already accepted or cancelled
// offers) are discarded transparently.
func (s *Session) AcceptChannelByName(ctx context.Context, name string, options *ChannelOptions) (*Channel, error) {
	if s.isDisposed() {
		return nil, ErrAlreadyDisposed
	}
	if options == nil {
		options = DefaultChannelOptions()
	}

	for {
		s.registryLock.Lock()
		ch := s.queues.popOffer(name)
		s.registryLock.Unlock()
		if ch == nil {
			break
		}
		if accepted, err := s.tryAcceptQueuedOffer(ch, options); accepted || err != nil {
			return ch, err
		}
		// The offer was already accepted or cancelled out from under us;
		// discard it and keep looking, per spec.md §4.4.
	}

	accepter := &pendingAccepter{
		name:    name,
		future:  newFuture[*Channel](options),
		options: options,
	}
	s.registryLock.Lock()
	s.queues.pushAccepter(accepter)
	s.registryLock.Unlock()

	select {
	case <-accepter.future.signal():
		return accepter.future.wait(closedSignal)
	case <-ctx.Done():
		s.registryLock.Lock()
		s.queues.removeAccepter(accepter)
		s.registryLock.Unlock()
		accepter.future.reject(ErrCancelled)
		return nil, ErrCancelled
	case <-s.Completion():
		return nil, errors.Wrap(ErrStreamClosed, "session closed while awaiting named accept")
	}
}

// tryAcceptQueuedOffer attempts to accept a channel popped from the offer
// queue, reporting accepted=false (with a nil error) if it turned out to
// already be unavailable so the caller can loop to the next one.
func (s *Session) tryAcceptQueuedOffer(ch *Channel, options *ChannelOptions) (accepted bool, err error) {
	if !ch.tryAcceptOffer(options) {
		return false, nil
	}
	if err := s.sendFrame(controlOfferAccepted, ch.id); err != nil {
		return true, err
	}
	return true, nil
}

// RejectChannel rejects a known channel id, disposing it and notifying the
// remote via ChannelTerminated (spec.md §4.4).
func (s *Session) RejectChannel(id uint32) error {
	if s.isDisposed() {
		return ErrAlreadyDisposed
	}

	s.registryLock.Lock()
	ch, ok := s.channels[id]
	if ok {
		delete(s.channels, id)
		s.queues.removeOffer(ch)
	}
	s.registryLock.Unlock()
	if !ok {
		return ErrUnknownChannel
	}

	ch.terminate(nil)
	return s.sendFrame(controlChannelTerminated, id)
}

// terminateLocal implements Channel.Close: it removes the channel from the
// registry, terminates it locally, and sends ChannelTerminated unless the
// Session has already been disposed.
func (s *Session) terminateLocal(ch *Channel) {
	s.registryLock.Lock()
	delete(s.channels, ch.id)
	s.queues.removeOffer(ch)
	s.registryLock.Unlock()

	ch.terminate(nil)
	s.sendFrame(controlChannelTerminated, ch.id)
}

// sendOffer sends an Offer frame for id, with name as its UTF-8 payload
// (empty for an anonymous channel).
func (s *Session) sendOffer(id uint32, name string) error {
	return s.sendFrameWithPayload(controlOffer, id, []byte(name))
}

// flushContent chunks data into Content frames of at most maxPayloadSize
// bytes each and enqueues them for transmission (spec.md §4.3).
func (s *Session) flushContent(ch *Channel, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > maxPayloadSize {
			n = maxPayloadSize
		}
		if err := s.sendFrameWithPayload(controlContent, ch.id, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// sendFrame enqueues a payload-less frame for transmission. It is the
// fire-and-forget wrapper described in spec.md §4.6: once the Session has
// completed, it is a silent no-op (post-disposal terminations need no wire
// notice).
func (s *Session) sendFrame(code controlCode, id uint32) error {
	return s.sendFrameWithPayload(code, id, nil)
}

func (s *Session) sendFrameWithPayload(code controlCode, id uint32, payload []byte) error {
	if s.isDisposed() {
		return nil
	}
	header := encodeHeader(code, id, uint32(len(payload)))
	select {
	case s.writeCh <- frameWrite{header: header, payload: payload}:
		return nil
	case <-s.Completion():
		return nil
	}
}

// writerLoop is the single serialized writer path: it accepts frames from
// writeCh and writes header-then-payload as one logical operation, never
// interleaving two frames' bytes on the transport (spec.md §4.6).
func (s *Session) writerLoop() {
	for {
		select {
		case fw := <-s.writeCh:
			if _, err := s.carrier.Write(fw.header[:]); err != nil {
				s.closeWithError(errors.Wrap(err, "unable to write frame header"))
				return
			}
			if len(fw.payload) > 0 {
				if _, err := s.carrier.Write(fw.payload); err != nil {
					s.closeWithError(errors.Wrap(err, "unable to write frame payload"))
					return
				}
			}
		case <-s.completion.signal():
			return
		}
	}
}

// Close disposes the Session: it cancels further operations, closes the
// transport (unblocking the reader loop), and disposes every live channel
// without emitting per-channel termination frames, since transport closure
// implies it (spec.md §4.4).
func (s *Session) Close() error {
	return s.closeWithError(errCleanDispose)
}

func (s *Session) closeWithError(cause error) error {
	var closeErr error
	s.disposeOnce.Do(func() {
		closeErr = s.carrier.Close()
		s.completion.reject(cause)

		s.registryLock.Lock()
		channels := make([]*Channel, 0, len(s.channels))
		for _, ch := range s.channels {
			channels = append(channels, ch)
		}
		s.channels = make(map[uint32]*Channel)
		s.queues = newNameQueues()
		s.registryLock.Unlock()

		// Every live channel's completion resolves with StreamClosed on
		// disposal, clean or not (spec.md §8): Session.Err() separately
		// maps errCleanDispose back to nil for a direct Close() caller, but
		// a channel's own CompletionErr() always reports that the stream
		// closed out from under it.
		terminationCause := ErrStreamClosed
		if !errors.Is(cause, errCleanDispose) {
			terminationCause = errors.Wrap(ErrStreamClosed, cause.Error())
		}
		for _, ch := range channels {
			ch.terminate(terminationCause)
		}
		s.logger.Debugf("session disposed: %v", cause)
	})
	return closeErr
}
