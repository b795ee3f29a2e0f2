package mux

import "github.com/pkg/errors"

// The following are the closed set of error kinds a Session or Channel
// operation can fail with. Callers should compare against these with
// errors.Is (they may arrive wrapped via errors.Wrap for added context).
var (
	// ErrProtocolMismatch indicates that the remote's handshake magic number
	// did not match. Fatal: the handshake cannot proceed.
	ErrProtocolMismatch = errors.New("handshake protocol mismatch")
	// ErrHandshakeCollision indicates that both peers generated identical
	// random handshake bytes, so neither could be determined odd or even.
	// Fatal for this attempt, but safe to retry.
	ErrHandshakeCollision = errors.New("handshake collision")
	// ErrMalformedFrame indicates a structurally invalid frame: an
	// oversized payload, or a non-zero payload on a control code that
	// forbids one. Fatal: the stream is disposed.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnexpectedChannel indicates that OfferAccepted was received for a
	// channel id not present in the registry. Fatal.
	ErrUnexpectedChannel = errors.New("unexpected channel in OfferAccepted")
	// ErrNameTooLong indicates that a channel name's UTF-8 encoding exceeds
	// maxPayloadSize bytes.
	ErrNameTooLong = errors.New("channel name too long")
	// ErrUnknownChannel indicates that AcceptChannel or RejectChannel was
	// called with an id not present in the registry.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrAlreadyAccepted indicates that tryAcceptOffer was called on a
	// channel already in the Accepted state.
	ErrAlreadyAccepted = errors.New("channel already accepted")
	// ErrNoLongerAvailable indicates that tryAcceptOffer was called on a
	// channel that has already been rejected, cancelled, or terminated.
	ErrNoLongerAvailable = errors.New("channel no longer available")
	// ErrNotAcceptable covers any other state-machine refusal to accept.
	ErrNotAcceptable = errors.New("channel not acceptable")
	// ErrOfferRejected indicates that the remote terminated a channel
	// before accepting it.
	ErrOfferRejected = errors.New("channel offer rejected")
	// ErrCancelled indicates that a caller-supplied context was cancelled
	// before the operation completed.
	ErrCancelled = errors.New("operation cancelled")
	// ErrAlreadyDisposed indicates that an operation was attempted after
	// the Session was disposed.
	ErrAlreadyDisposed = errors.New("session already disposed")
	// ErrStreamClosed is the reason attached to every live channel's
	// acceptance/completion signal whenever the Session is disposed, clean
	// or fatal; on a fatal internal error it is wrapped with the root
	// cause's message (the cause itself is not in the error chain).
	ErrStreamClosed = errors.New("session closed")
	// ErrIdentifiersExhausted indicates that a party has allocated every
	// channel id available to it (the 32-bit space, stepping by 2).
	ErrIdentifiersExhausted = errors.New("channel identifiers exhausted")
)
