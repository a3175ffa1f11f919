// Package communicator is the top-level facade described in spec
// §4.1/§4.10: it owns both BLE roles' Connections, the advertise/scan
// lifecycle, and a single global outbound queue that carries text and
// binary messages together in enqueue order (there are no separate
// per-kind queues), and recovers from host radio power-cycling.
package communicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btcomm/internal/chanstate"
	"github.com/srg/btcomm/internal/connection"
	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/groutine"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/pkg/config"
)

// Status mirrors the small return-code surface of spec §6's external
// interface; Go call sites additionally get a real error from Destroy
// and from the constructor, but the steady-state operations below
// return Status so app-facing code can switch on it the way the
// original platform API does.
type Status int

const (
	StatusSuccess Status = iota
	StatusConnectionRejected
	StatusError
	StatusAlreadyStarted
	StatusAlreadyStopped
	StatusDestroying
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusConnectionRejected:
		return "CONNECTION_REJECTED"
	case StatusError:
		return "ERROR"
	case StatusAlreadyStarted:
		return "ALREADY_STARTED"
	case StatusAlreadyStopped:
		return "ALREADY_STOPPED"
	case StatusDestroying:
		return "DESTROYING"
	default:
		return "UNKNOWN"
	}
}

type outboundKind int

const (
	outboundMessage outboundKind = iota
	outboundData
)

type outboundEnvelope struct {
	kind outboundKind
	msg  message.Message
}

// Communicator is the single entry point an application embeds.
type Communicator struct {
	log *logrus.Logger
	cfg *config.Config

	centralHost    gatt.CentralHost
	peripheralHost gatt.PeripheralHost

	central    *connection.Connection
	peripheral *connection.Connection

	mu          sync.Mutex
	advertising bool
	scanning    bool
	destroying  bool

	self peer.Peer

	outboundCh chan outboundEnvelope

	ctx    context.Context
	cancel context.CancelFunc

	onPeerConnected     func(peer.Peer)
	onPeerDisconnected  func(peer.Peer)
	onConnectionRequest func(peer.Peer)
	onMessage           func(message.Message)
	onData              func(message.Message)
}

// New wires a Communicator around the given host adapters and local
// identity. centralHost/peripheralHost are almost always the same
// physical radio exposed through package gatt/blehost; tests supply
// package testutils's in-memory pair instead.
func New(logger *logrus.Logger, cfg *config.Config, centralHost gatt.CentralHost, peripheralHost gatt.PeripheralHost, self peer.Peer) *Communicator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Communicator{
		log:            logger,
		cfg:            cfg,
		centralHost:    centralHost,
		peripheralHost: peripheralHost,
		self:           self,
		outboundCh:     make(chan outboundEnvelope, cfg.OutboundQueueCapacity),
		ctx:            ctx,
		cancel:         cancel,
	}

	cb := chanstate.Callbacks{
		OnConnectionRequest:   c.handleConnectionRequest,
		OnConnectionSuccess:   c.handleConnectionSuccess,
		OnConnectionFailed:    c.handleConnectionFailed,
		OnConnectionLost:      c.handleConnectionLost,
		OnConnectionResumed:   c.handleConnectionResumed,
		OnMessageReceived:     c.handleMessageReceived,
		OnDataReceived:        c.handleDataReceived,
		OnDisconnected:        c.handleDisconnected,
		OnDisconnectionFailed: c.handleDisconnectionFailed,
	}
	tuning := chanstate.Tuning{
		HandshakeTimeout:     cfg.HandshakeTimeout,
		AckTimeout:           cfg.AckTimeout,
		DisconnectAckTimeout: cfg.DisconnectAckTimeout,
		ReconnectionTimeout:  cfg.ReconnectionTimeout,
		TargetMTU:            cfg.TargetMTU,
		MaxPendingMessages:   cfg.MaxPendingMessages,
	}
	c.central = connection.New(chanstate.Central, logger, cb, tuning)
	c.peripheral = connection.New(chanstate.Peripheral, logger, cb, tuning)

	groutine.Go(ctx, "communicator-outbound", c.runOutboundWorker)
	return c
}

// OnPeerConnected/OnPeerDisconnected/OnMessage/OnData install the
// application-facing event sinks. Any may be left nil.
func (c *Communicator) OnPeerConnected(fn func(peer.Peer))    { c.onPeerConnected = fn }
func (c *Communicator) OnPeerDisconnected(fn func(peer.Peer)) { c.onPeerDisconnected = fn }
func (c *Communicator) OnMessage(fn func(message.Message))    { c.onMessage = fn }
func (c *Communicator) OnData(fn func(message.Message))       { c.onData = fn }

// OnConnectionRequest installs the handler invoked for every inbound
// PERIPHERAL-role handshake (spec §4.4's accept/reject step). The
// handshake is left pending until the app calls AcceptConnection or
// RejectConnection for the same peer; fn is expected to do so, not
// block waiting on its own input.
func (c *Communicator) OnConnectionRequest(fn func(peer.Peer)) { c.onConnectionRequest = fn }

func (c *Communicator) handleConnectionRequest(p peer.Peer) {
	c.log.WithField("peer", p.UniqueName).Debug("inbound connection request")
	if c.onConnectionRequest != nil {
		c.onConnectionRequest(p)
	}
}

// AcceptConnection finishes a pending inbound handshake from p,
// notifying the remote central side that the connection was accepted.
func (c *Communicator) AcceptConnection(ctx context.Context, p peer.Peer) error {
	ch, ok := c.peripheral.ChannelFor(p)
	if !ok {
		return fmt.Errorf("communicator: no pending connection request from %s", p.UniqueName)
	}
	return ch.Accept(ctx)
}

// RejectConnection finishes a pending inbound handshake from p by
// notifying the remote central side of the rejection and tearing the
// channel back down.
func (c *Communicator) RejectConnection(ctx context.Context, p peer.Peer) error {
	ch, ok := c.peripheral.ChannelFor(p)
	if !ok {
		return fmt.Errorf("communicator: no pending connection request from %s", p.UniqueName)
	}
	return ch.Reject(ctx)
}

func (c *Communicator) handleConnectionSuccess(p peer.Peer, role chanstate.Role) {
	c.log.WithFields(logrus.Fields{"peer": p.UniqueName, "role": role.String()}).Info("peer connected")
	if c.onPeerConnected != nil {
		c.onPeerConnected(p)
	}
}

func (c *Communicator) handleConnectionResumed(p peer.Peer) {
	c.log.WithField("peer", p.UniqueName).Info("peer connection resumed")
	if c.onPeerConnected != nil {
		c.onPeerConnected(p)
	}
}

func (c *Communicator) handleConnectionFailed(p peer.Peer, err error) {
	c.log.WithFields(logrus.Fields{"peer": p.UniqueName}).WithError(err).Warn("connection attempt failed")
}

func (c *Communicator) handleConnectionLost(p peer.Peer) {
	c.log.WithField("peer", p.UniqueName).Warn("connection lost, reconnecting")
}

func (c *Communicator) handleDisconnected(p peer.Peer) {
	c.log.WithField("peer", p.UniqueName).Info("peer disconnected")
	if c.onPeerDisconnected != nil {
		c.onPeerDisconnected(p)
	}
}

func (c *Communicator) handleDisconnectionFailed(p peer.Peer, err error) {
	c.log.WithField("peer", p.UniqueName).WithError(err).Warn("disconnection failed to confirm")
	c.handleDisconnected(p)
}

func (c *Communicator) handleMessageReceived(m message.Message, role chanstate.Role) {
	if c.onMessage != nil {
		c.onMessage(m)
	}
}

func (c *Communicator) handleDataReceived(m message.Message, role chanstate.Role) {
	if c.onData != nil {
		c.onData(m)
	}
}

// StartAdvertising begins the PERIPHERAL role (spec §4.1).
func (c *Communicator) StartAdvertising(ctx context.Context) Status {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return StatusDestroying
	}
	if c.advertising {
		c.mu.Unlock()
		return StatusAlreadyStarted
	}
	c.advertising = true
	c.mu.Unlock()

	c.peripheralHost.OnLink(func(link gatt.PeripheralLink) {
		c.peripheral.AcceptPeripheralLink(link)
	})

	groutine.Go(ctx, "communicator-advertise", func(ctx context.Context) {
		if err := c.peripheralHost.StartAdvertise(ctx, c.self.UniqueName); err != nil {
			c.log.WithError(err).Warn("advertising stopped")
		}
		c.mu.Lock()
		c.advertising = false
		c.mu.Unlock()
	})
	return StatusSuccess
}

func (c *Communicator) StopAdvertising() Status {
	c.mu.Lock()
	if !c.advertising {
		c.mu.Unlock()
		return StatusAlreadyStopped
	}
	c.mu.Unlock()
	if err := c.peripheralHost.StopAdvertise(); err != nil {
		c.log.WithError(err).Warn("failed to stop advertising")
		return StatusError
	}
	return StatusSuccess
}

// StartScanning begins the CENTRAL role: every newly-discovered peer
// not already known is dialed and taken through the handshake
// automatically, since app-facing scan-result filtering is out of
// this package's scope (spec §1 Non-goals).
func (c *Communicator) StartScanning(ctx context.Context) Status {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return StatusDestroying
	}
	if c.scanning {
		c.mu.Unlock()
		return StatusAlreadyStarted
	}
	c.scanning = true
	c.mu.Unlock()

	groutine.Go(ctx, "communicator-scan", func(ctx context.Context) {
		if err := c.centralHost.StartScan(ctx, c.onAdvertisement); err != nil {
			c.log.WithError(err).Warn("scanning stopped")
		}
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
	})
	return StatusSuccess
}

func (c *Communicator) onAdvertisement(adv gatt.Advertisement) {
	p := peer.Peer{UniqueName: adv.LocalName, Handle: adv.Handle}
	if ch, ok := c.central.ReconnectingChannelByName(p.UniqueName); ok {
		c.resumeCentralChannel(ch, p)
		return
	}
	c.dialCentral(p)
}

// resumeCentralChannel re-dials a peer whose CENTRAL-role channel is
// RECONNECTING and has just been re-discovered by a scan result (spec
// §4.8): a fresh physical link replaces the lost one and the channel
// skips straight back to CONNECTED without repeating the handshake's
// application-level accept/reject step. The dial itself is queued on
// Connection's pending_connections FIFO (spec §4.9) alongside fresh
// connect attempts, so only one GATT connect is ever outstanding.
func (c *Communicator) resumeCentralChannel(ch *chanstate.Channel, p peer.Peer) {
	c.central.EnqueueResume(c.ctx, ch, p,
		func(ctx context.Context) (gatt.CentralLink, error) { return c.centralHost.Connect(ctx, p.Handle) },
		func(link gatt.CentralLink, err error) {
			if err != nil {
				c.log.WithError(err).WithField("peer", p.UniqueName).Warn("failed to redial reconnecting peer")
				return
			}
			if err := ch.ResumeWithLink(link, nil); err != nil {
				c.log.WithError(err).WithField("peer", p.UniqueName).Warn("failed to resume reconnecting channel")
			}
		})
}

// dialCentral queues a fresh outbound connect attempt on Connection's
// pending_connections FIFO (spec §4.9) and returns once it's queued,
// not once it completes; the dial and subsequent handshake run
// asynchronously and report through the usual OnConnectionSuccess/
// OnConnectionFailed callbacks.
func (c *Communicator) dialCentral(p peer.Peer) Status {
	if _, ok := c.central.ChannelFor(p); ok {
		return StatusAlreadyStarted
	}
	c.central.EnqueueConnect(c.ctx, p,
		func(ctx context.Context) (gatt.CentralLink, error) { return c.centralHost.Connect(ctx, p.Handle) },
		func(link gatt.CentralLink, err error) {
			if err != nil {
				c.log.WithError(err).WithField("address", p.Handle.Address).Warn("failed to dial peer")
				return
			}
			c.central.AcceptCentralLink(link, p)
		})
	return StatusSuccess
}

// Connect explicitly dials a peer already known from a prior scan
// result (spec §4.10's connect(peer) operation). Ordinary discovery
// during StartScanning dials automatically; this is for app-driven
// policies that want to filter discovered peers before connecting.
func (c *Communicator) Connect(p peer.Peer) Status {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return StatusDestroying
	}
	c.mu.Unlock()
	return c.dialCentral(p)
}

func (c *Communicator) StopScanning() Status {
	c.mu.Lock()
	if !c.scanning {
		c.mu.Unlock()
		return StatusAlreadyStopped
	}
	c.mu.Unlock()
	if err := c.centralHost.StopScan(); err != nil {
		c.log.WithError(err).Warn("failed to stop scanning")
		return StatusError
	}
	return StatusSuccess
}

// SendMessage enqueues m for reliable text delivery to every matching
// connected peer across both roles.
func (c *Communicator) SendMessage(m message.Message) Status {
	return c.enqueue(outboundEnvelope{kind: outboundMessage, msg: m})
}

// SendData enqueues m for reliable binary delivery.
func (c *Communicator) SendData(m message.Message) Status {
	return c.enqueue(outboundEnvelope{kind: outboundData, msg: m})
}

func (c *Communicator) enqueue(env outboundEnvelope) Status {
	c.mu.Lock()
	destroying := c.destroying
	c.mu.Unlock()
	if destroying {
		return StatusDestroying
	}
	select {
	case c.outboundCh <- env:
		return StatusSuccess
	default:
		c.log.Warn("outbound queue full, dropping send request")
		return StatusError
	}
}

func (c *Communicator) runOutboundWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.outboundCh:
			c.dispatch(env)
		}
	}
}

func (c *Communicator) dispatch(env outboundEnvelope) {
	var err1, err2 error
	switch env.kind {
	case outboundMessage:
		err1 = c.central.SendMessage(env.msg)
		err2 = c.peripheral.SendMessage(env.msg)
	case outboundData:
		err1 = c.central.SendData(env.msg)
		err2 = c.peripheral.SendData(env.msg)
	}
	if err1 != nil {
		c.log.WithError(err1).Warn("central fan-out failed")
	}
	if err2 != nil {
		c.log.WithError(err2).Warn("peripheral fan-out failed")
	}
}

// Disconnect tears down the link to p, on whichever role currently
// holds it (spec §4.9's per-peer disconnect operation).
func (c *Communicator) Disconnect(ctx context.Context, p peer.Peer) error {
	if err := c.central.Disconnect(ctx, p); err != nil {
		return err
	}
	return c.peripheral.Disconnect(ctx, p)
}

// DisconnectFromAll tears down every live link across both roles
// without destroying the Communicator itself; advertising/scanning
// and further sends remain usable afterward.
func (c *Communicator) DisconnectFromAll(ctx context.Context) {
	c.central.DisconnectAll(ctx)
	c.peripheral.DisconnectAll(ctx)
}

// ConnectedPeers returns every connected peer across both roles.
func (c *Communicator) ConnectedPeers() []peer.Peer {
	return append(c.central.ConnectedPeers(), c.peripheral.ConnectedPeers()...)
}

// ReconnectingPeers returns every peer currently reconnecting.
func (c *Communicator) ReconnectingPeers() []peer.Peer {
	return append(c.central.ReconnectingPeers(), c.peripheral.ReconnectingPeers()...)
}

// UpdateName announces a local display-name change on every connected
// channel across both roles (spec §4.9).
func (c *Communicator) UpdateName(ctx context.Context, uniqueName string) {
	c.self.UniqueName = uniqueName
	c.central.UpdateName(ctx, uniqueName)
	c.peripheral.UpdateName(ctx, uniqueName)
}

// OnRadioStateChanged implements gatt.RadioObserver: it resumes
// whichever of advertise/scan were active before the host radio
// power-cycled (spec §4.10).
func (c *Communicator) OnRadioStateChanged(on bool) {
	if !on {
		c.log.Warn("host radio powered off")
		return
	}
	c.log.Info("host radio powered back on")

	c.mu.Lock()
	wasAdvertising := c.advertising
	wasScanning := c.scanning
	c.advertising = false
	c.scanning = false
	c.mu.Unlock()

	if wasAdvertising {
		if status := c.StartAdvertising(c.ctx); status != StatusSuccess {
			c.log.WithField("status", status).Warn("failed to resume advertising after radio restart")
		}
	}
	if wasScanning {
		if status := c.StartScanning(c.ctx); status != StatusSuccess {
			c.log.WithField("status", status).Warn("failed to resume scanning after radio restart")
		}
	}
}

// Destroy tears everything down: both connections' channels are
// disconnected, the outbound worker stops, and further operations
// return StatusDestroying.
func (c *Communicator) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroying {
		c.mu.Unlock()
		return fmt.Errorf("communicator: already destroying")
	}
	c.destroying = true
	c.mu.Unlock()

	c.central.DisconnectAll(ctx)
	c.peripheral.DisconnectAll(ctx)
	_ = c.peripheralHost.StopAdvertise()
	_ = c.centralHost.StopScan()
	c.cancel()
	return nil
}
