package mux

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name          string
		code          controlCode
		channelID     uint32
		payloadLength uint32
	}{
		{"offer with payload", controlOffer, 1, 3},
		{"offer accepted no payload", controlOfferAccepted, 42, 0},
		{"content max payload", controlContent, 7, maxPayloadSize},
		{"content writing completed", controlContentWritingCompleted, 0xFFFFFFFE, 0},
		{"channel terminated", controlChannelTerminated, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := encodeHeader(tt.code, tt.channelID, tt.payloadLength)
			if len(header) != frameHeaderSize {
				t.Fatalf("encoded header length = %d, want %d", len(header), frameHeaderSize)
			}

			code, id, length, err := decodeHeader(header[:])
			if err != nil {
				t.Fatalf("decodeHeader returned error: %v", err)
			}
			if code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if id != tt.channelID {
				t.Errorf("channel id = %d, want %d", id, tt.channelID)
			}
			if length != tt.payloadLength {
				t.Errorf("payload length = %d, want %d", length, tt.payloadLength)
			}
		})
	}
}

func TestDecodeHeaderRejectsOversizedPayload(t *testing.T) {
	header := encodeHeader(controlContent, 1, maxPayloadSize+1)
	if _, _, _, err := decodeHeader(header[:]); err == nil {
		t.Fatal("expected error for oversized payload, got nil")
	}
}

func TestDecodeHeaderRejectsPayloadOnForbiddenCode(t *testing.T) {
	for _, code := range []controlCode{controlOfferAccepted, controlContentWritingCompleted, controlChannelTerminated} {
		header := encodeHeader(code, 1, 0)
		// Corrupt the length field directly, bypassing encodeHeader's
		// caller-side discipline, to simulate a malicious or buggy peer.
		header[5], header[6], header[7], header[8] = 0, 0, 0, 1
		if _, _, _, err := decodeHeader(header[:]); err == nil {
			t.Errorf("code %d: expected error for non-zero payload length, got nil", code)
		}
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	if _, _, _, err := decodeHeader(bytes.Repeat([]byte{0}, frameHeaderSize-1)); err == nil {
		t.Fatal("expected error for short header buffer")
	}
}

func TestDecodeHeaderIgnoresUnknownControlCode(t *testing.T) {
	header := encodeHeader(controlCode(200), 1, 0)
	code, id, length, err := decodeHeader(header[:])
	if err != nil {
		t.Fatalf("unexpected error for unknown control code: %v", err)
	}
	if code != 200 || id != 1 || length != 0 {
		t.Fatalf("unexpected decode result: %v %v %v", code, id, length)
	}
}
