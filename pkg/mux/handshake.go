package mux

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// handshakeMagic is transmitted by both peers at the start of the
// handshake so that each can detect a remote speaking a foreign protocol.
var handshakeMagic = [4]byte{0x2F, 0xDF, 0x1D, 0x50}

// handshakeRandomSize is the number of random bytes each peer contributes to
// role resolution.
const handshakeRandomSize = 16

// handshakePreludeSize is the total size, in bytes, of the handshake
// prelude (magic plus random bytes) exchanged by each peer.
const handshakePreludeSize = 4 + handshakeRandomSize

// handshake performs the magic-number exchange and odd/even role
// resolution described in spec.md §4.1. It writes the local prelude, reads
// the remote's, and returns whether the local party is "odd" (its random
// bytes compared greater than the remote's, byte by byte, at the first
// difference). If ctx is cancelled before the handshake completes, the
// carrier is closed and ctx.Err() is returned.
func handshake(ctx context.Context, carrier Carrier) (odd bool, err error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		odd, err = handshakeSync(carrier)
	}()

	select {
	case <-done:
		return odd, err
	case <-ctx.Done():
		carrier.Close()
		<-done
		return false, ctx.Err()
	}
}

func handshakeSync(carrier Carrier) (bool, error) {
	local := make([]byte, handshakePreludeSize)
	copy(local[:4], handshakeMagic[:])
	if _, err := rand.Read(local[4:]); err != nil {
		return false, errors.Wrap(err, "unable to generate handshake random bytes")
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := carrier.Write(local)
		writeErr <- err
	}()

	remote := make([]byte, handshakePreludeSize)
	if _, err := io.ReadFull(carrier, remote); err != nil {
		<-writeErr
		return false, errors.Wrap(err, "unable to read handshake prelude")
	}
	if err := <-writeErr; err != nil {
		return false, errors.Wrap(err, "unable to write handshake prelude")
	}

	for i := 0; i < 4; i++ {
		if remote[i] != handshakeMagic[i] {
			return false, ErrProtocolMismatch
		}
	}

	for i := 4; i < handshakePreludeSize; i++ {
		if local[i] == remote[i] {
			continue
		}
		return local[i] > remote[i], nil
	}
	return false, ErrHandshakeCollision
}
