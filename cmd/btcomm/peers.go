package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
)

var peersDuration time.Duration

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List currently connected and reconnecting peers",
	Long: `Starts both roles (advertise + scan) for --duration, then prints the
Connection's connected-peer and reconnecting-peer snapshots
(Communicator.ConnectedPeers / ReconnectingPeers).`,
	RunE: runPeers,
}

func init() {
	peersCmd.Flags().DurationVarP(&peersDuration, "duration", "d", 10*time.Second, "How long to advertise/scan before reporting (0 for indefinite)")
}

func runPeers(cmd *cobra.Command, _ []string) error {
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

	var ctx context.Context
	var cancel context.CancelFunc
	if peersDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), peersDuration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
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

	<-ctx.Done()

	fmt.Println("connected:")
	printPeerTable(comm.ConnectedPeers())
	fmt.Println("reconnecting:")
	printPeerTable(comm.ReconnectingPeers())

	return comm.Destroy(context.Background())
}
