package mux

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func newSessionPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	type result struct {
		session *Session
		err     error
	}
	chA := make(chan result, 1)
	chB := make(chan result, 1)
	go func() {
		s, err := NewSession(context.Background(), NewCarrierFromStream(a), nil)
		chA <- result{s, err}
	}()
	go func() {
		s, err := NewSession(context.Background(), NewCarrierFromStream(b), nil)
		chB <- result{s, err}
	}()

	resA := <-chA
	resB := <-chB
	if resA.err != nil {
		t.Fatalf("session A handshake failed: %v", resA.err)
	}
	if resB.err != nil {
		t.Fatalf("session B handshake failed: %v", resB.err)
	}
	t.Cleanup(func() {
		resA.session.Close()
		resB.session.Close()
	})
	return resA.session, resB.session
}

func withTimeout(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestHandshakeAssignsComplementaryRoles exercises spec.md §8's first law:
// exactly one side is odd, and its channel ids are drawn from the odd
// numbers while the other side's are drawn from the evens.
func TestHandshakeAssignsComplementaryRoles(t *testing.T) {
	a, b := newSessionPair(t)

	chA, err := a.CreateChannel(nil)
	if err != nil {
		t.Fatalf("CreateChannel on A failed: %v", err)
	}
	chB, err := b.CreateChannel(nil)
	if err != nil {
		t.Fatalf("CreateChannel on B failed: %v", err)
	}

	if chA.ID()%2 == chB.ID()%2 {
		t.Fatalf("both sides allocated ids with the same parity: a=%d b=%d", chA.ID(), chB.ID())
	}
}

// TestNamedRendezvousAccepterFirst mirrors spec.md §8 scenario 2: the
// accepter registers before the offer arrives.
func TestNamedRendezvousAccepterFirst(t *testing.T) {
	a, b := newSessionPair(t)

	type acceptResult struct {
		ch  *Channel
		err error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		ch, err := b.AcceptChannelByName(context.Background(), "log", nil)
		acceptCh <- acceptResult{ch, err}
	}()

	// Give the accepter a chance to register before the offer arrives.
	time.Sleep(20 * time.Millisecond)

	offered, err := a.OfferChannel(context.Background(), "log", nil)
	if err != nil {
		t.Fatalf("OfferChannel failed: %v", err)
	}

	res := <-acceptCh
	if res.err != nil {
		t.Fatalf("AcceptChannelByName failed: %v", res.err)
	}
	if res.ch.ID() != offered.ID() {
		t.Fatalf("accepted channel id = %d, want %d", res.ch.ID(), offered.ID())
	}
}

// TestAnonymousChannelRoundTrip mirrors spec.md §8 scenario 3: an anonymous
// channel created before acceptance buffers its writes, then flushes them.
func TestAnonymousChannelRoundTrip(t *testing.T) {
	a, b := newSessionPair(t)

	offerCh := make(chan ChannelOfferedEvent, 1)
	b.OnChannelOffered(func(event ChannelOfferedEvent) error {
		offerCh <- event
		return nil
	})

	created, err := a.CreateChannel(nil)
	if err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}
	if _, err := created.Write([]byte("hi")); err != nil {
		t.Fatalf("Write before accept failed: %v", err)
	}

	var event ChannelOfferedEvent
	select {
	case event = <-offerCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channelOffered event")
	}
	if event.Name != "" {
		t.Fatalf("expected anonymous channel, got name %q", event.Name)
	}

	accepted, err := b.AcceptChannel(event.ID, nil)
	if err != nil {
		t.Fatalf("AcceptChannel failed: %v", err)
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(accepted, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf) != "hi" {
		t.Fatalf("received %q, want %q", buf, "hi")
	}
}

// TestRejectChannelFailsRemoteOffer mirrors spec.md §8 scenario 4.
func TestRejectChannelFailsRemoteOffer(t *testing.T) {
	a, b := newSessionPair(t)

	offerCh := make(chan ChannelOfferedEvent, 1)
	b.OnChannelOffered(func(event ChannelOfferedEvent) error {
		offerCh <- event
		return nil
	})

	offerErrCh := make(chan error, 1)
	go func() {
		_, err := a.OfferChannel(context.Background(), "x", nil)
		offerErrCh <- err
	}()

	var event ChannelOfferedEvent
	select {
	case event = <-offerCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channelOffered event")
	}

	if err := b.RejectChannel(event.ID); err != nil {
		t.Fatalf("RejectChannel failed: %v", err)
	}

	select {
	case err := <-offerErrCh:
		if err != ErrOfferRejected {
			t.Fatalf("OfferChannel error = %v, want ErrOfferRejected", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OfferChannel to fail")
	}
}

// TestHalfCloseYieldsEOF mirrors spec.md §8 scenario 5.
func TestHalfCloseYieldsEOF(t *testing.T) {
	a, b := newSessionPair(t)

	offerCh := make(chan ChannelOfferedEvent, 1)
	b.OnChannelOffered(func(event ChannelOfferedEvent) error {
		offerCh <- event
		return nil
	})

	// OfferChannel waits for acceptance, so it runs alongside the accept below.
	type offerResult struct {
		ch  *Channel
		err error
	}
	offerResultCh := make(chan offerResult, 1)
	go func() {
		ch, err := a.OfferChannel(context.Background(), "", nil)
		offerResultCh <- offerResult{ch, err}
	}()

	var event ChannelOfferedEvent
	select {
	case event = <-offerCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channelOffered event")
	}
	accepted, err := b.AcceptChannel(event.ID, nil)
	if err != nil {
		t.Fatalf("AcceptChannel failed: %v", err)
	}

	var offered *Channel
	select {
	case res := <-offerResultCh:
		if res.err != nil {
			t.Fatalf("OfferChannel failed: %v", res.err)
		}
		offered = res.ch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OfferChannel to complete")
	}

	if _, err := accepted.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := accepted.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite failed: %v", err)
	}

	data, err := io.ReadAll(offered)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("received %q, want %q", data, "abc")
	}
}

// TestCancelOfferAfterAcceptCrossesInFlight mirrors spec.md §8 scenario 6.
func TestCancelOfferAfterAcceptCrossesInFlight(t *testing.T) {
	a, b := newSessionPair(t)

	offerCh := make(chan ChannelOfferedEvent, 1)
	b.OnChannelOffered(func(event ChannelOfferedEvent) error {
		offerCh <- event
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	offerErrCh := make(chan error, 1)
	go func() {
		_, err := a.OfferChannel(ctx, "", nil)
		offerErrCh <- err
	}()

	var event ChannelOfferedEvent
	select {
	case event = <-offerCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channelOffered event")
	}

	// Cancel the offer locally before accepting on B, forcing the
	// cross-in-flight race: A sends ChannelTerminated, then B's
	// OfferAccepted (sent just below) arrives after A has already moved on.
	cancel()
	select {
	case err := <-offerErrCh:
		if err != ErrCancelled {
			t.Fatalf("OfferChannel error = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OfferChannel cancellation")
	}

	accepted, err := b.AcceptChannel(event.ID, nil)
	if err != nil {
		t.Fatalf("AcceptChannel failed: %v", err)
	}

	withTimeout(t, accepted.Completion(), "B's channel completion after remote cancellation")
	if err := accepted.CompletionErr(); err == nil {
		t.Fatal("expected a non-nil completion error after remote cancellation")
	}

	// B's AcceptChannel just sent OfferAccepted for an id A already
	// cancelled; give A's reader loop time to receive and absorb it, then
	// confirm A's session is still alive rather than fatally disposed.
	select {
	case <-a.Completion():
		t.Fatalf("session A disposed after a crossing OfferAccepted: %v", a.Err())
	case <-time.After(200 * time.Millisecond):
	}
	if _, err := a.CreateChannel(nil); err != nil {
		t.Fatalf("session A unusable after crossing OfferAccepted: %v", err)
	}
}

func TestOfferChannelNameTooLong(t *testing.T) {
	a, _ := newSessionPair(t)
	longName := make([]byte, maxPayloadSize+1)
	if _, err := a.OfferChannel(context.Background(), string(longName), nil); err != ErrNameTooLong {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}

func TestAcceptUnknownChannel(t *testing.T) {
	a, _ := newSessionPair(t)
	if _, err := a.AcceptChannel(999, nil); err != ErrUnknownChannel {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDisposeResolvesCompletionForAllChannels(t *testing.T) {
	a, b := newSessionPair(t)

	chA, err := a.CreateChannel(nil)
	if err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}

	a.Close()

	withTimeout(t, a.Completion(), "session A completion")
	withTimeout(t, chA.Completion(), "channel completion after session dispose")
	if err := chA.CompletionErr(); err == nil {
		t.Fatal("expected non-nil completion error after dispose")
	}

	withTimeout(t, b.Completion(), "session B completion after transport teardown")
}

func TestOperationsFailAfterDispose(t *testing.T) {
	a, _ := newSessionPair(t)
	a.Close()

	if _, err := a.CreateChannel(nil); err != ErrAlreadyDisposed {
		t.Fatalf("CreateChannel after dispose = %v, want ErrAlreadyDisposed", err)
	}
	if err := a.RejectChannel(1); err != ErrAlreadyDisposed {
		t.Fatalf("RejectChannel after dispose = %v, want ErrAlreadyDisposed", err)
	}
}
