package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
	"github.com/srg/btcomm/internal/peer"
)

var scanDuration time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for advertising peers and connect to them",
	Long: `Starts the CENTRAL role: scans for devices advertising the btcomm
GATT service and automatically dials and hands shakes with each one
found. Prints every connected peer at the end of the scan window (0
duration scans until interrupted).`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
}

func runScan(cmd *cobra.Command, _ []string) error {
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
	if scanDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), scanDuration)
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

	<-ctx.Done()
	printPeerTable(comm.ConnectedPeers())
	return comm.Destroy(context.Background())
}

func printPeerTable(peers []peer.Peer) {
	sort.Slice(peers, func(i, j int) bool { return peers[i].UniqueName < peers[j].UniqueName })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tADDRESS\tCONNECTED")
	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%v\n", p.UniqueName, p.Handle.Address, p.Connected)
	}
}
