package mux

import (
	"io"
	"net"
	"testing"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	return newChannel(nil, 1, "", DefaultChannelOptions())
}

func TestChannelWriteBeforeAcceptBuffers(t *testing.T) {
	c := newTestChannel(t)
	if _, err := c.Write([]byte("abc")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if string(c.writeBuffer) != "abc" {
		t.Fatalf("writeBuffer = %q, want %q", c.writeBuffer, "abc")
	}
}

func TestChannelTryAcceptOfferOnlyOnce(t *testing.T) {
	c := newTestChannel(t)
	if !c.tryAcceptOffer(DefaultChannelOptions()) {
		t.Fatal("first tryAcceptOffer should succeed")
	}
	if c.tryAcceptOffer(DefaultChannelOptions()) {
		t.Fatal("second tryAcceptOffer should fail")
	}
	select {
	case <-c.Accepted():
	default:
		t.Fatal("Accepted() should be readable after acceptance")
	}
	if err := c.AcceptanceErr(); err != nil {
		t.Fatalf("AcceptanceErr() = %v, want nil", err)
	}
}

func TestChannelTryCancelOfferRejectsAcceptance(t *testing.T) {
	c := newTestChannel(t)
	if !c.tryCancelOffer() {
		t.Fatal("tryCancelOffer should succeed from Offered")
	}
	if err := c.AcceptanceErr(); err != ErrCancelled {
		t.Fatalf("AcceptanceErr() = %v, want ErrCancelled", err)
	}
	if err := c.CompletionErr(); err != ErrCancelled {
		t.Fatalf("CompletionErr() = %v, want ErrCancelled", err)
	}
	if c.tryAcceptOffer(DefaultChannelOptions()) {
		t.Fatal("tryAcceptOffer should fail once cancelled")
	}
}

func TestChannelOnAcceptedFalseAfterCancel(t *testing.T) {
	c := newTestChannel(t)
	c.tryCancelOffer()
	if c.onAccepted() {
		t.Fatal("onAccepted should return false once the offer is cancelled")
	}
}

func TestChannelWriteStatesAfterTerminalTransitions(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		c := newTestChannel(t)
		c.tryCancelOffer()
		if _, err := c.Write([]byte("x")); err != ErrNoLongerAvailable {
			t.Fatalf("Write after cancel = %v, want ErrNoLongerAvailable", err)
		}
	})
	t.Run("terminated", func(t *testing.T) {
		c := newTestChannel(t)
		c.terminate(nil)
		if _, err := c.Write([]byte("x")); err != net.ErrClosed {
			t.Fatalf("Write after terminate = %v, want net.ErrClosed", err)
		}
	})
}

func TestChannelReadEOFAfterDeliverEOF(t *testing.T) {
	c := newTestChannel(t)
	c.deliver([]byte("hi"))
	c.deliverEOF()

	buf := make([]byte, 2)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("first Read returned error: %v", err)
	}
	if n != 2 || string(buf) != "hi" {
		t.Fatalf("first Read = %q, want %q", buf[:n], "hi")
	}

	if _, err := c.Read(buf); err != io.EOF {
		t.Fatalf("second Read = %v, want io.EOF", err)
	}
	// Further reads continue to report EOF rather than blocking.
	if _, err := c.Read(buf); err != io.EOF {
		t.Fatalf("third Read = %v, want io.EOF", err)
	}
}

func TestChannelCloseWriteIsIdempotentAndBlocksFurtherWrites(t *testing.T) {
	session, _ := newSessionPair(t)
	c, err := session.CreateChannel(nil)
	if err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}
	if err := c.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite failed: %v", err)
	}
	if err := c.CloseWrite(); err != nil {
		t.Fatalf("second CloseWrite returned an error: %v", err)
	}
	if _, err := c.Write([]byte("x")); err != ErrWriteClosed {
		t.Fatalf("Write after CloseWrite = %v, want ErrWriteClosed", err)
	}
}

func TestChannelTerminateIdempotent(t *testing.T) {
	c := newTestChannel(t)
	c.terminate(ErrStreamClosed)
	c.terminate(ErrCancelled) // second call must not override the first cause
	if err := c.CompletionErr(); err != ErrStreamClosed {
		t.Fatalf("CompletionErr() = %v, want ErrStreamClosed (first cause wins)", err)
	}
}
