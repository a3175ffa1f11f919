package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/internal/ptybridge"
)

var (
	bridgeTo     string
	bridgeWarmup time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge a connected peer's binary stream to a local PTY",
	Long: `Creates a pseudoterminal (PTY) and bridges it bidirectionally to
the binary (data) stream of the peer named --to: bytes written into
the PTY's slave device are sent as data frames to the peer, and data
frames received from the peer are written back out through the PTY.

Useful for piping serial-oriented tools (screen, minicom, a terminal
emulator) through a btcomm link the same way the underlying protocol
bridges two BLE devices.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeTo, "to", "", "Unique name of the peer to bridge to (required)")
	bridgeCmd.Flags().DurationVar(&bridgeWarmup, "warmup", 15*time.Second, "How long to scan/wait for the target peer before giving up")
}

func runBridge(cmd *cobra.Command, _ []string) error {
	if bridgeTo == "" {
		return cmdErrorf("bridge requires --to <peer-name>")
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comm, _, err := buildCommunicator(cmd, logger, cfg)
	if err != nil {
		return err
	}
	installStatusPrinters(comm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if status := comm.StartScanning(ctx); status != communicator.StatusSuccess {
		return cmdErrorf("failed to start scanning: %s", status)
	}
	if status := comm.StartAdvertising(ctx); status != communicator.StatusSuccess {
		logger.WithField("status", status).Warn("failed to start advertising, continuing central-only")
	}

	if err := waitForPeer(ctx, comm, bridgeTo, bridgeWarmup); err != nil {
		return err
	}

	receiver := peer.Peer{UniqueName: bridgeTo}
	br := ptybridge.New(logger, func(data []byte) error {
		m, err := message.New("d", data, &receiver)
		if err != nil {
			return err
		}
		status := comm.SendData(m)
		if status != communicator.StatusSuccess {
			return cmdErrorf("bridge send failed: %s", status)
		}
		return nil
	})

	comm.OnData(func(m message.Message) {
		if m.Sender == nil || m.Sender.UniqueName != bridgeTo {
			return
		}
		br.Deliver(m.Payload)
	})

	name, err := br.Start(ctx)
	if err != nil {
		return err
	}
	logger.WithField("pty", name).Info("bridge ready, connect your serial client to this device")

	<-ctx.Done()
	_ = br.Stop()
	return comm.Destroy(context.Background())
}
