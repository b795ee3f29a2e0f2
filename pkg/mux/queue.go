package mux

// pendingAccepter is a local AcceptChannelByName call waiting for a
// matching remote Offer. Its future resolves with the matched *Channel (the
// reader loop also performs the accept on its behalf using the options
// attached as the future's state) or rejects with ErrCancelled if removed
// by cancellation first.
type pendingAccepter struct {
	name    string
	future  *future[*Channel]
	options *ChannelOptions
}

// nameQueues holds the two FIFO queues described in spec.md §3's invariant:
// "for a given name, at most one of the two rendezvous queues for that name
// is non-empty at any quiescent point". offers holds remote Offers not yet
// claimed by a local accepter; accepters holds local AcceptChannelByName
// calls not yet matched to a remote Offer. Both are keyed by name; empty
// slices are pruned from the maps.
type nameQueues struct {
	offers    map[string][]*Channel
	accepters map[string][]*pendingAccepter
}

func newNameQueues() *nameQueues {
	return &nameQueues{
		offers:    make(map[string][]*Channel),
		accepters: make(map[string][]*pendingAccepter),
	}
}

// pushOffer appends a remote Offer to the back of its name's offer queue.
func (q *nameQueues) pushOffer(ch *Channel) {
	q.offers[ch.name] = append(q.offers[ch.name], ch)
}

// popAccepter removes and returns the oldest pending accepter for name, or
// nil if none is queued. Callers are responsible for skipping already-
// resolved entries (cancelled accepters are removed eagerly by
// removeAccepter, but a race can still leave one in the queue momentarily).
func (q *nameQueues) popAccepter(name string) *pendingAccepter {
	list := q.accepters[name]
	if len(list) == 0 {
		return nil
	}
	accepter := list[0]
	list = list[1:]
	if len(list) == 0 {
		delete(q.accepters, name)
	} else {
		q.accepters[name] = list
	}
	return accepter
}

// popOffer removes and returns the oldest queued remote Offer for name, or
// nil if none is queued.
func (q *nameQueues) popOffer(name string) *Channel {
	list := q.offers[name]
	if len(list) == 0 {
		return nil
	}
	ch := list[0]
	list = list[1:]
	if len(list) == 0 {
		delete(q.offers, name)
	} else {
		q.offers[name] = list
	}
	return ch
}

// pushAccepter appends a pending accepter to the back of its name's queue.
func (q *nameQueues) pushAccepter(accepter *pendingAccepter) {
	q.accepters[accepter.name] = append(q.accepters[accepter.name], accepter)
}

// removeAccepter removes a specific pending accepter by identity (pointer
// equality), as required for cancellation per spec.md §9. It is a no-op if
// the accepter is no longer present (it may have already been popped and
// matched).
func (q *nameQueues) removeAccepter(target *pendingAccepter) {
	list := q.accepters[target.name]
	for i, candidate := range list {
		if candidate == target {
			q.accepters[target.name] = append(list[:i], list[i+1:]...)
			if len(q.accepters[target.name]) == 0 {
				delete(q.accepters, target.name)
			}
			return
		}
	}
}

// removeOffer removes a specific channel's queued offer by identity, used
// when a channel is terminated or accepted out from under its queue entry
// (e.g. rejectChannel, ChannelTerminated dispatch).
func (q *nameQueues) removeOffer(target *Channel) {
	if target.name == "" {
		return
	}
	list := q.offers[target.name]
	for i, candidate := range list {
		if candidate == target {
			q.offers[target.name] = append(list[:i], list[i+1:]...)
			if len(q.offers[target.name]) == 0 {
				delete(q.offers, target.name)
			}
			return
		}
	}
}
