package testutils

import (
	"errors"
	"sync"

	"github.com/srg/btcomm/internal/chanstate"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
)

// ConnectionFailure is one recorded OnConnectionFailed invocation.
type ConnectionFailure struct {
	Peer     peer.Peer
	Err      error
	Rejected bool
}

// Recorder captures every chanstate.Callbacks invocation so a test can
// assert on them with require.Eventually instead of threading its own
// channels through every test.
type Recorder struct {
	mu sync.Mutex

	connectionRequests []peer.Peer
	connected          []peer.Peer
	failed             []ConnectionFailure
	lost               []peer.Peer
	resumed            []peer.Peer
	messages           []message.Message
	data               []message.Message
	disconnected       []peer.Peer
	disconnectFailed   []peer.Peer
	removed            int
}

func NewRecorder() *Recorder { return &Recorder{} }

// Callbacks returns a chanstate.Callbacks record wired to this
// Recorder. Remove only counts calls (see RemovedCount); package
// connection replaces it with its own channel-set removal.
func (r *Recorder) Callbacks() chanstate.Callbacks {
	return chanstate.Callbacks{
		OnConnectionRequest: func(p peer.Peer) {
			r.mu.Lock()
			r.connectionRequests = append(r.connectionRequests, p)
			r.mu.Unlock()
		},
		OnConnectionSuccess: func(p peer.Peer, _ chanstate.Role) {
			r.mu.Lock()
			r.connected = append(r.connected, p)
			r.mu.Unlock()
		},
		OnConnectionFailed: func(p peer.Peer, err error) {
			rejected := errors.Is(err, &chanstate.Error{State: chanstate.ConnectionRejected})
			r.mu.Lock()
			r.failed = append(r.failed, ConnectionFailure{Peer: p, Err: err, Rejected: rejected})
			r.mu.Unlock()
		},
		OnConnectionLost: func(p peer.Peer) {
			r.mu.Lock()
			r.lost = append(r.lost, p)
			r.mu.Unlock()
		},
		OnConnectionResumed: func(p peer.Peer) {
			r.mu.Lock()
			r.resumed = append(r.resumed, p)
			r.mu.Unlock()
		},
		OnMessageReceived: func(m message.Message, _ chanstate.Role) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		OnDataReceived: func(m message.Message, _ chanstate.Role) {
			r.mu.Lock()
			r.data = append(r.data, m)
			r.mu.Unlock()
		},
		OnDisconnected: func(p peer.Peer) {
			r.mu.Lock()
			r.disconnected = append(r.disconnected, p)
			r.mu.Unlock()
		},
		OnDisconnectionFailed: func(p peer.Peer, _ error) {
			r.mu.Lock()
			r.disconnectFailed = append(r.disconnectFailed, p)
			r.mu.Unlock()
		},
		Remove: func(*chanstate.Channel) {
			r.mu.Lock()
			r.removed++
			r.mu.Unlock()
		},
	}
}

func (r *Recorder) ConnectionRequests() []peer.Peer { r.mu.Lock(); defer r.mu.Unlock(); return append([]peer.Peer(nil), r.connectionRequests...) }
func (r *Recorder) Connected() []peer.Peer          { r.mu.Lock(); defer r.mu.Unlock(); return append([]peer.Peer(nil), r.connected...) }
func (r *Recorder) Failed() []ConnectionFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionFailure(nil), r.failed...)
}
func (r *Recorder) Lost() []peer.Peer         { r.mu.Lock(); defer r.mu.Unlock(); return append([]peer.Peer(nil), r.lost...) }
func (r *Recorder) Resumed() []peer.Peer      { r.mu.Lock(); defer r.mu.Unlock(); return append([]peer.Peer(nil), r.resumed...) }
func (r *Recorder) Messages() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.messages...)
}
func (r *Recorder) Data() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.data...)
}
func (r *Recorder) Disconnected() []peer.Peer { r.mu.Lock(); defer r.mu.Unlock(); return append([]peer.Peer(nil), r.disconnected...) }
func (r *Recorder) DisconnectFailed() []peer.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.Peer(nil), r.disconnectFailed...)
}
func (r *Recorder) RemovedCount() int { r.mu.Lock(); defer r.mu.Unlock(); return r.removed }
