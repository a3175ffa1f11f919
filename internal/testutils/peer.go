package testutils

import "github.com/srg/btcomm/internal/peer"

// NewPeer builds a deterministic Peer for assertions: name is used
// verbatim as UniqueName (skipping the random device-id suffix real
// peer.New would append) so tests can compare by equality.
func NewPeer(name, address string) peer.Peer {
	return peer.Peer{
		UniqueName: name,
		Handle:     peer.Handle{Address: address},
	}
}
