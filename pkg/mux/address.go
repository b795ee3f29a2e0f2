package mux

import "fmt"

// sessionAddr implements net.Addr for Session.Addr.
type sessionAddr struct {
	// odd indicates whether this session resolved to the odd-numbered party
	// during the handshake (spec.md §4.1).
	odd bool
}

// Network implements net.Addr.Network.
func (a *sessionAddr) Network() string { return "multiplexed" }

// String implements net.Addr.String.
func (a *sessionAddr) String() string {
	if a.odd {
		return "session:odd"
	}
	return "session:even"
}

// channelAddr implements net.Addr for Channel.LocalAddr/RemoteAddr.
type channelAddr struct {
	// remote indicates whether this address names the remote or local end.
	remote bool
	// id is the channel identifier.
	id uint32
}

// Network implements net.Addr.Network.
func (a *channelAddr) Network() string { return "multiplexed" }

// String implements net.Addr.String.
func (a *channelAddr) String() string {
	if a.remote {
		return fmt.Sprintf("remote:%d", a.id)
	}
	return fmt.Sprintf("local:%d", a.id)
}
