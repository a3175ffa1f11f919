package chanstate

import (
	"time"

	"github.com/srg/btcomm/internal/wire"
)

// Tuning carries every Config-overridable wire-protocol knob a Channel
// consumes (spec §6's timer/size constants, exposed as overridable
// fields on pkg/config.Config). It is threaded in at construction time
// rather than read from pkg/config directly so this package stays
// independent of the CLI-facing config format.
type Tuning struct {
	HandshakeTimeout     time.Duration
	AckTimeout           time.Duration
	DisconnectAckTimeout time.Duration
	ReconnectionTimeout  time.Duration
	TargetMTU            int
	// MaxPendingMessages bounds the recently_delivered_ids ring per
	// stream (spec §4.6); the ring itself holds twice this many slots.
	MaxPendingMessages int
}

// DefaultTuning reproduces spec §6's constants verbatim, so a caller
// that doesn't care about pkg/config overrides gets the exact
// behavior this package had before Tuning existed.
func DefaultTuning() Tuning {
	return Tuning{
		HandshakeTimeout:     wire.HandshakeTimeoutSeconds * time.Second,
		AckTimeout:           wire.AckTimeoutSeconds * time.Second,
		DisconnectAckTimeout: wire.DisconnectAckTimeoutSecond * time.Second,
		ReconnectionTimeout:  wire.ReconnectionTimeoutSeconds * time.Second,
		TargetMTU:            wire.TargetMTU,
		MaxPendingMessages:   32,
	}
}

func (t Tuning) recentlyDeliveredCapacity() int {
	if t.MaxPendingMessages <= 0 {
		return 1
	}
	return t.MaxPendingMessages * 2
}
