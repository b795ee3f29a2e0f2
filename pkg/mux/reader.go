package mux

import (
	"io"

	"github.com/pkg/errors"
)

// readerLoop is the Session's single reader goroutine. It runs until
// end-of-transport or disposal. Each dispatch takes registryLock around its
// registry and name-queue accesses, so that all registry mutations from
// remote events are serialized with local public-API mutations (spec.md
// §4.5/§5).
func (s *Session) readerLoop() {
	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(s.carrier, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				s.closeWithError(errCleanDispose)
			} else {
				s.closeWithError(errors.Wrap(err, "unable to read frame header"))
			}
			return
		}

		code, id, payloadLength, err := decodeHeader(header[:])
		if err != nil {
			s.closeWithError(err)
			return
		}

		if !recognizedControlCode(code) {
			// Reserved for forward compatibility: skip the payload without
			// allocating a buffer for bytes no handler in this version
			// will ever read.
			if payloadLength > 0 {
				if _, err := s.carrier.Discard(int(payloadLength)); err != nil {
					s.closeWithError(errors.Wrap(err, "unable to discard unrecognized frame payload"))
					return
				}
			}
			continue
		}

		var payload []byte
		if payloadLength > 0 {
			payload = make([]byte, payloadLength)
			if _, err := io.ReadFull(s.carrier, payload); err != nil {
				s.closeWithError(errors.Wrap(err, "unable to read frame payload"))
				return
			}
		}

		if err := s.dispatch(code, id, payload); err != nil {
			s.closeWithError(err)
			return
		}
	}
}

// dispatch handles a single decoded frame per spec.md §4.5. Unknown control
// codes are ignored outright (reserved for forward compatibility).
func (s *Session) dispatch(code controlCode, id uint32, payload []byte) error {
	switch code {
	case controlOffer:
		return s.dispatchOffer(id, payload)
	case controlOfferAccepted:
		return s.dispatchOfferAccepted(id)
	case controlContent:
		s.dispatchContent(id, payload)
		return nil
	case controlContentWritingCompleted:
		s.dispatchContentWritingCompleted(id)
		return nil
	case controlChannelTerminated:
		s.dispatchChannelTerminated(id)
		return nil
	default:
		// readerLoop filters out unrecognized codes before reaching here.
		return nil
	}
}

// dispatchOffer implements spec.md §4.5's Offer handling: pair with the
// oldest live pending accepter if one is queued, otherwise buffer on the
// named-offer queue (or register anonymously), then raise channelOffered.
// Since ch is freshly constructed, tryAcceptOffer on it can never fail.
func (s *Session) dispatchOffer(id uint32, payload []byte) error {
	name := string(payload)

	s.registryLock.Lock()
	ch := newChannel(s, id, name, DefaultChannelOptions())
	s.channels[id] = ch

	var matched *pendingAccepter
	if name != "" {
		for {
			accepter := s.queues.popAccepter(name)
			if accepter == nil {
				s.queues.pushOffer(ch)
				break
			}
			if accepter.future.isDone() {
				// Already resolved by cancellation; discard and keep
				// looking rather than silently swallowing this offer.
				continue
			}
			matched = accepter
			break
		}
	}

	var options *ChannelOptions
	if matched != nil {
		options, _ = matched.future.state.(*ChannelOptions)
		ch.tryAcceptOffer(options)
	}

	event := ChannelOfferedEvent{ID: id, Name: name, WasAutoAccepted: matched != nil}
	handlerErr := s.raiseChannelOffered(event)
	s.registryLock.Unlock()

	if matched != nil {
		matched.future.resolve(ch)
		if err := s.sendFrame(controlOfferAccepted, id); err != nil {
			return err
		}
	}
	return handlerErr
}

// dispatchOfferAccepted implements spec.md §4.5's OfferAccepted handling.
func (s *Session) dispatchOfferAccepted(id uint32) error {
	s.registryLock.Lock()
	ch, ok := s.channels[id]
	s.registryLock.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnexpectedChannel, "channel %d", id)
	}

	if !ch.onAccepted() {
		// Our cancellation and their acceptance crossed in flight: we'd
		// already sent ChannelTerminated for this id, so the acceptance is
		// stale and silently ignored (spec.md §4.5/§8 scenario 6). The
		// registry entry outlived the cancellation only to catch this
		// race; reap it now that it's confirmed.
		s.registryLock.Lock()
		delete(s.channels, id)
		s.registryLock.Unlock()
	}
	return nil
}

// dispatchContent implements spec.md §4.5's Content handling: deliver to
// the channel's inbound queue, or discard if the channel was terminated
// locally just now.
func (s *Session) dispatchContent(id uint32, payload []byte) {
	s.registryLock.Lock()
	ch, ok := s.channels[id]
	s.registryLock.Unlock()
	if !ok {
		return
	}
	ch.deliver(payload)
}

// dispatchContentWritingCompleted implements spec.md §4.5's
// ContentWritingCompleted handling.
func (s *Session) dispatchContentWritingCompleted(id uint32) {
	s.registryLock.Lock()
	ch, ok := s.channels[id]
	s.registryLock.Unlock()
	if !ok {
		return
	}
	ch.deliverEOF()
}

// dispatchChannelTerminated implements spec.md §4.5's ChannelTerminated
// handling: remove from the registry and any named-offer queue, then
// dispose the channel without sending a termination frame of our own.
func (s *Session) dispatchChannelTerminated(id uint32) {
	s.registryLock.Lock()
	ch, ok := s.channels[id]
	if ok {
		delete(s.channels, id)
		s.queues.removeOffer(ch)
	}
	s.registryLock.Unlock()
	if !ok {
		return
	}
	ch.terminate(nil)
}
