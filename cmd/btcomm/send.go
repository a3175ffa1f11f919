package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/btcomm/internal/communicator"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
)

var (
	sendTo      string
	sendHeader  string
	sendBinary  bool
	sendWait    time.Duration
	sendWarmup  time.Duration
	sendFromStd bool
)

var sendCmd = &cobra.Command{
	Use:   "send <payload>",
	Short: "Send one message or data frame to a peer or broadcast",
	Long: `Starts both roles, scans for peers, and sends a single message
(or --binary data frame) either to the peer named by --to or, if --to
is empty, as a broadcast to every connected peer. Exits once the send
has been enqueued and a short drain window has elapsed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Unique name of the receiving peer (empty = broadcast)")
	sendCmd.Flags().StringVar(&sendHeader, "header", "m", "Single-character message header")
	sendCmd.Flags().BoolVar(&sendBinary, "binary", false, "Send on the binary (data) stream instead of text")
	sendCmd.Flags().DurationVar(&sendWarmup, "warmup", 5*time.Second, "How long to scan/wait for the target peer before giving up")
	sendCmd.Flags().DurationVar(&sendWait, "drain", 2*time.Second, "How long to wait after enqueuing before exiting")
	sendCmd.Flags().BoolVar(&sendFromStd, "stdin", false, "Read the payload from stdin instead of the positional argument")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var payload []byte
	switch {
	case sendFromStd:
		data, err := readAllStdin()
		if err != nil {
			return err
		}
		payload = data
	case len(args) == 1:
		payload = []byte(args[0])
	default:
		return cmdErrorf("send requires a payload argument or --stdin")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	comm, _, err := buildCommunicator(cmd, logger, cfg)
	if err != nil {
		return err
	}
	installStatusPrinters(comm)

	ctx, cancel := context.WithTimeout(context.Background(), sendWarmup+sendWait+time.Second)
	defer cancel()

	if status := comm.StartScanning(ctx); status != communicator.StatusSuccess {
		return cmdErrorf("failed to start scanning: %s", status)
	}
	if status := comm.StartAdvertising(ctx); status != communicator.StatusSuccess {
		logger.WithField("status", status).Warn("failed to start advertising, continuing central-only")
	}

	if sendTo != "" {
		if err := waitForPeer(ctx, comm, sendTo, sendWarmup); err != nil {
			return err
		}
	} else {
		time.Sleep(min(sendWarmup, 2*time.Second))
	}

	var receiver *peer.Peer
	if sendTo != "" {
		receiver = &peer.Peer{UniqueName: sendTo}
	}
	m, err := message.New(sendHeader, payload, receiver)
	if err != nil {
		return err
	}

	var status communicator.Status
	if sendBinary {
		status = comm.SendData(m)
	} else {
		status = comm.SendMessage(m)
	}
	if status != communicator.StatusSuccess {
		return cmdErrorf("send failed: %s", status)
	}

	time.Sleep(sendWait)
	return comm.Destroy(context.Background())
}

func waitForPeer(ctx context.Context, comm *communicator.Communicator, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, p := range comm.ConnectedPeers() {
			if p.UniqueName == name {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return cmdErrorf("timed out waiting for peer %q to connect", name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readAllStdin() ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
