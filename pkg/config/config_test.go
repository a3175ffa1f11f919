package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecConstants(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, 1*time.Second, cfg.AckTimeout)
	require.Equal(t, 5*time.Second, cfg.DisconnectAckTimeout)
	require.Equal(t, 30*time.Second, cfg.ReconnectionTimeout)
	require.Equal(t, 247, cfg.TargetMTU)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "btcomm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ack_timeout: 2s\ntarget_mtu: 185\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.AckTimeout)
	require.Equal(t, 185, cfg.TargetMTU)
	require.Equal(t, 10*time.Second, cfg.HandshakeTimeout) // untouched, still defaulted
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ack_timeout: [this is not a duration"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
