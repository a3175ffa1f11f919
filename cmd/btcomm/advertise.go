package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
	"github.com/srg/btcomm/internal/peer"
)

var advertiseAutoAccept bool

var advertiseCmd = &cobra.Command{
	Use:   "advertise",
	Short: "Advertise this device and accept inbound peer connections",
	Long: `Starts the PERIPHERAL role: advertises --name on the btcomm GATT
service and waits for CENTRAL-role peers to connect. Runs until
interrupted (Ctrl+C).`,
	RunE: runAdvertise,
}

func init() {
	advertiseCmd.Flags().BoolVar(&advertiseAutoAccept, "auto-accept", true, "Automatically accept every inbound connection request")
}

func runAdvertise(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comm, self, err := buildCommunicator(cmd, logger, cfg)
	if err != nil {
		return err
	}
	installStatusPrinters(comm)

	if advertiseAutoAccept {
		comm.OnConnectionRequest(func(p peer.Peer) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.HandshakeTimeout)
			defer cancel()
			if err := comm.AcceptConnection(ctx, p); err != nil {
				logger.WithError(err).WithField("peer", p.UniqueName).Warn("failed to accept connection")
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if status := comm.StartAdvertising(ctx); status != communicator.StatusSuccess {
		return cmdErrorf("failed to start advertising: %s", status)
	}
	logger.WithField("name", self.UniqueName).Info("advertising started")

	<-ctx.Done()
	logger.Info("shutting down")
	return comm.Destroy(context.Background())
}
