package mux

// ChannelOfferedEvent describes a remote Offer observed by the reader loop.
// WasAutoAccepted is true when the offer was immediately paired with a
// pending local accepter registered via AcceptChannelByName (spec.md §4.5).
type ChannelOfferedEvent struct {
	ID              uint32
	Name            string
	WasAutoAccepted bool
}

// ChannelOfferedHandler is invoked synchronously on the Session's reader
// goroutine whenever a remote Offer arrives. Returning a non-nil error
// disposes the Session with that error, per spec.md §9 ("errors in
// listeners dispose the stream with that error").
type ChannelOfferedHandler func(ChannelOfferedEvent) error

// OnChannelOffered registers a handler for the channelOffered event. The
// returned function removes the handler; it is safe to call at most once
// and safe to call concurrently with event dispatch.
func (s *Session) OnChannelOffered(handler ChannelOfferedHandler) (remove func()) {
	s.registryLock.Lock()
	defer s.registryLock.Unlock()
	token := &handler
	s.channelOfferedHandlers = append(s.channelOfferedHandlers, handlerEntry{token, handler})
	return func() {
		s.registryLock.Lock()
		defer s.registryLock.Unlock()
		for i, entry := range s.channelOfferedHandlers {
			if entry.token == token {
				s.channelOfferedHandlers = append(s.channelOfferedHandlers[:i], s.channelOfferedHandlers[i+1:]...)
				return
			}
		}
	}
}

// handlerEntry pairs a handler with a unique identity token so it can be
// removed by identity rather than by value equality (handlers are not
// guaranteed to be comparable).
type handlerEntry struct {
	token   *ChannelOfferedHandler
	handler ChannelOfferedHandler
}

// raiseChannelOffered invokes every registered handler in registration
// order. It must be called with registryLock held (dispatchOffer holds it
// while raising the event); on the first handler error it returns that error so
// the caller can dispose the Session.
func (s *Session) raiseChannelOffered(event ChannelOfferedEvent) error {
	handlers := s.channelOfferedHandlers
	for _, entry := range handlers {
		if err := entry.handler(event); err != nil {
			return err
		}
	}
	return nil
}
