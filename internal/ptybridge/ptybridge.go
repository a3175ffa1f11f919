// Package ptybridge exposes one live Channel's binary stream as a PTY
// device, grounded on the teacher's pkg/ble.Bridge (creack/pty +
// golang.org/x/term.MakeRaw) but generalized from a single-BLE-device
// serial port into a bidirectional bridge over the transport core's
// reliable binary stream: bytes written into the PTY slave are
// delivered as Message payloads to one peer, and payloads received
// from that peer are written back out through the PTY master.
package ptybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/term"

	"github.com/srg/btcomm/internal/groutine"
)

// DefaultBufferSize is the PTY read-loop chunk size; the outbound ring
// buffer holds four times this many bytes.
const DefaultBufferSize = 4096

// SendFunc delivers one chunk of bytes read from the PTY to the
// remote peer; normally Communicator.SendData wrapped to a fixed
// receiver.
type SendFunc func(data []byte) error

// Bridge owns one PTY master/slave pair and the goroutine that drains
// it toward SendFunc. Data arriving from the peer is pushed in by the
// caller via Deliver.
type Bridge struct {
	logger *logrus.Logger
	send   SendFunc

	master *os.File
	slave  *os.File

	// outbound stages peer data on its way into the PTY master. It
	// never overwrites buffered bytes: incoming data that does not fit
	// in its free space is dropped.
	outbound *ringbuffer.RingBuffer

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a Bridge. send is invoked once per chunk read from the
// PTY slave; it must not block indefinitely.
func New(logger *logrus.Logger, send SendFunc) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{
		logger:   logger,
		send:     send,
		outbound: ringbuffer.New(DefaultBufferSize * 4),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start opens the PTY pair, puts the slave in raw mode, and begins
// the read-and-forward loop. It returns the slave device path the
// application should connect a terminal or serial client to.
func (b *Bridge) Start(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return "", fmt.Errorf("ptybridge: already running")
	}

	master, slave, err := pty.Open()
	if err != nil {
		return "", fmt.Errorf("ptybridge: opening pty: %w", err)
	}
	b.master, b.slave = master, slave

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		b.logger.WithError(err).Warn("failed to set pty slave to raw mode")
	}

	b.running = true
	name := slave.Name()
	b.logger.WithField("pty", name).Info("pty bridge ready")

	groutine.Go(ctx, "ptybridge-read", b.readLoop)
	return name, nil
}

func (b *Bridge) readLoop(ctx context.Context) {
	defer close(b.stopped)
	buf := make([]byte, DefaultBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		default:
		}

		n, err := b.master.Read(buf)
		if err != nil {
			if err != io.EOF {
				b.logger.WithError(err).Warn("pty read failed")
			}
			return
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		if b.send != nil {
			if err := b.send(chunk); err != nil {
				b.logger.WithError(err).Warn("failed to forward pty data to peer")
			}
		}
	}
}

// Deliver writes data received from the peer out through the PTY
// master, so whatever is attached to the slave sees it as normal
// serial input. Safe to call concurrently with Start/Stop.
func (b *Bridge) Deliver(data []byte) {
	if _, err := b.outbound.Write(data); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		b.logger.WithError(err).Warn("outbound ring buffer overflow, dropping peer data")
		return
	}

	b.mu.Lock()
	master := b.master
	b.mu.Unlock()
	if master == nil {
		return
	}

	drained := make([]byte, b.outbound.Length())
	n, err := b.outbound.TryRead(drained)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		b.logger.WithError(err).Warn("failed to drain outbound ring buffer")
		return
	}
	if n == 0 {
		return
	}
	if _, err := master.Write(drained[:n]); err != nil {
		b.logger.WithError(err).Warn("failed to write peer data into pty")
	}
}

// Stop closes the PTY pair and waits for the read loop to exit.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("ptybridge: not running")
	}
	b.running = false
	master, slave := b.master, b.slave
	b.mu.Unlock()

	close(b.stop)
	_ = master.Close()
	<-b.stopped
	return slave.Close()
}

// Name returns the PTY slave's device path, or "" before Start.
func (b *Bridge) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slave == nil {
		return ""
	}
	return b.slave.Name()
}
