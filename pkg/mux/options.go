package mux

import "github.com/chanduplex/muxstream/pkg/logging"

// SessionOptions configures a Session. A nil *SessionOptions is equivalent
// to the zero value.
type SessionOptions struct {
	// Logger receives debug and diagnostic output from the Session and its
	// channels. A nil Logger (the default) discards all output, matching
	// pkg/logging's nil-safe Logger semantics.
	Logger *logging.Logger
}

func (o *SessionOptions) logger() *logging.Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

// ChannelOptions configures a Channel's local buffering policy. It is
// opaque to the wire protocol: spec.md §6 describes it as influencing "only
// local buffering policy" and being replaced wholesale on accept. A nil
// *ChannelOptions is equivalent to the zero value (the default inbound
// queue depth).
type ChannelOptions struct {
	// InboundQueueCapacity bounds the number of undelivered inbound payload
	// chunks the reader loop will buffer for this channel before blocking
	// dispatch (propagating backpressure to the shared reader, and hence to
	// the wire, per spec.md §9's "Backpressure" note). Zero or negative
	// selects the default of 64 chunks.
	InboundQueueCapacity int
}

func (o *ChannelOptions) capacity() int {
	if o == nil {
		return 0
	}
	return o.InboundQueueCapacity
}

// DefaultChannelOptions returns the zero-value ChannelOptions used for
// channels that have not yet been accepted (spec.md §4.5: "Construct a
// channel with default-accept options (these will be replaced on
// acceptance)").
func DefaultChannelOptions() *ChannelOptions {
	return &ChannelOptions{}
}
