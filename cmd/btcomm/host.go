package main

import (
	"crypto/rand"
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
	"github.com/srg/btcomm/internal/gatt/blehost"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/pkg/config"
)

// deviceIDAlphabet is the charset used for the random per-run device-id
// suffix. Persisting this suffix across runs is an application policy
// the core leaves out of scope (spec §1); the CLI just mints a fresh
// one every launch.
const deviceIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomDeviceIDSuffix() string {
	b := make([]byte, peer.DeviceIDSuffixLen)
	if _, err := rand.Read(b); err != nil {
		return "xx"
	}
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = deviceIDAlphabet[int(v)%len(deviceIDAlphabet)]
	}
	return string(out)
}

// loadConfig resolves the shared --config flag into a *config.Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildCommunicator wires the real go-ble/ble-backed hosts (package
// gatt/blehost) into a fresh Communicator identified by the --name flag
// plus a random device-id suffix.
func buildCommunicator(cmd *cobra.Command, logger *logrus.Logger, cfg *config.Config) (*communicator.Communicator, peer.Peer, error) {
	userName, _ := cmd.Flags().GetString("name")

	central, err := blehost.NewCentralHost(logger)
	if err != nil {
		return nil, peer.Peer{}, fmt.Errorf("creating central BLE host: %w", err)
	}
	peripheral, err := blehost.NewPeripheralHost(logger)
	if err != nil {
		return nil, peer.Peer{}, fmt.Errorf("creating peripheral BLE host: %w", err)
	}

	self := peer.New(userName, randomDeviceIDSuffix(), peer.Handle{})
	comm := communicator.New(logger, cfg, central, peripheral, self)
	return comm, self, nil
}

// installStatusPrinters wires the common colorized event callbacks
// every subcommand wants: connect/disconnect/message notices on stdout.
func installStatusPrinters(comm *communicator.Communicator) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	comm.OnPeerConnected(func(p peer.Peer) {
		_, _ = green.Printf("connected: %s\n", p.UniqueName)
	})
	comm.OnPeerDisconnected(func(p peer.Peer) {
		_, _ = red.Printf("disconnected: %s\n", p.UniqueName)
	})
	comm.OnConnectionRequest(func(p peer.Peer) {
		_, _ = yellow.Printf("connection request from: %s\n", p.UniqueName)
	})
	comm.OnMessage(func(m message.Message) {
		sender := "?"
		if m.Sender != nil {
			sender = m.Sender.UniqueName
		}
		_, _ = cyan.Printf("%s: %c%s\n", sender, m.Header, m.Payload)
	})
}
