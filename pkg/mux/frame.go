package mux

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// controlCode encodes a frame's wire control code.
type controlCode byte

const (
	// controlOffer indicates a channel offer. Its payload is the UTF-8
	// encoding of the channel name (empty for an anonymous channel).
	controlOffer controlCode = 1
	// controlOfferAccepted indicates that a previously offered channel was
	// accepted by the remote. It carries no payload.
	controlOfferAccepted controlCode = 2
	// controlContent indicates a block of channel payload data.
	controlContent controlCode = 3
	// controlContentWritingCompleted indicates that the remote has
	// half-closed its write side of the channel. It carries no payload.
	controlContentWritingCompleted controlCode = 4
	// controlChannelTerminated indicates that the channel has been
	// terminated, either by rejection, cancellation, or normal closure. It
	// carries no payload.
	controlChannelTerminated controlCode = 5
)

// maxPayloadSize is the largest payload, in bytes, that a single frame may
// carry. It bounds both Offer names and Content chunks.
const maxPayloadSize = 20480

// frameHeaderSize is the fixed size, in bytes, of an encoded frame header.
const frameHeaderSize = 9

// payloadAllowed reports whether code permits a non-zero payload length.
// The known zero-payload control codes are the only ones ever rejected for
// carrying one; any other code, including one this version doesn't
// recognize, is allowed a payload so a future extension can attach data to
// a new control code without the length check alone breaking old readers.
func payloadAllowed(code controlCode) bool {
	switch code {
	case controlOfferAccepted, controlContentWritingCompleted, controlChannelTerminated:
		return false
	default:
		return true
	}
}

// recognizedControlCode reports whether code is one this version dispatches
// on. readerLoop discards the payload of any other code via Carrier.Discard
// rather than buffering bytes no handler here will read.
func recognizedControlCode(code controlCode) bool {
	switch code {
	case controlOffer, controlOfferAccepted, controlContent, controlContentWritingCompleted, controlChannelTerminated:
		return true
	default:
		return false
	}
}

// encodeHeader serializes a frame header into a 9-byte buffer: a 1-byte
// control code followed by a big-endian uint32 channel id and a big-endian
// uint32 payload length.
func encodeHeader(code controlCode, channelID uint32, payloadLength uint32) [frameHeaderSize]byte {
	var header [frameHeaderSize]byte
	header[0] = byte(code)
	binary.BigEndian.PutUint32(header[1:5], channelID)
	binary.BigEndian.PutUint32(header[5:9], payloadLength)
	return header
}

// decodeHeader deserializes a 9-byte frame header. It returns MalformedFrame
// if the payload length exceeds maxPayloadSize or if a non-zero payload
// length is carried by a control code that forbids one. Unknown control
// codes are passed through uninterpreted (the reader loop ignores them, per
// spec's forward-compatibility requirement) but are still validated for
// length sanity.
func decodeHeader(header []byte) (controlCode, uint32, uint32, error) {
	if len(header) != frameHeaderSize {
		return 0, 0, 0, errors.New("short frame header")
	}
	code := controlCode(header[0])
	channelID := binary.BigEndian.Uint32(header[1:5])
	payloadLength := binary.BigEndian.Uint32(header[5:9])
	if payloadLength > maxPayloadSize {
		return 0, 0, 0, errors.Wrapf(ErrMalformedFrame, "payload length %d exceeds maximum %d", payloadLength, maxPayloadSize)
	}
	if !payloadAllowed(code) && payloadLength != 0 {
		return 0, 0, 0, errors.Wrapf(ErrMalformedFrame, "non-zero payload length %d for control code %#02x", payloadLength, code)
	}
	return code, channelID, payloadLength, nil
}
