package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofmark/proofmark/internal/artifacts"
	"github.com/proofmark/proofmark/internal/config"
	"github.com/proofmark/proofmark/internal/ipc"
	"github.com/proofmark/proofmark/pkg/fingerprint"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Circuit.TargetDir = filepath.Join(dir, "target")
	cfg.Circuit.ProofPath = filepath.Join(dir, "proofs", "circuit.proof")
	cfg.Circuit.PublicParamsPath = filepath.Join(dir, "Verifier.toml")
	cfg.Agent.SocketPath = filepath.Join(dir, "run", "agent.sock")
	cfg.Agent.DebounceMillis = 20
	require.NoError(t, os.MkdirAll(cfg.Circuit.TargetDir, 0755))
	return &cfg
}

func waitForSocket(t *testing.T, sockPath string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(sockPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "socket %s did not appear", sockPath)
}

func TestNewDaemon_RequiresSocket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.SocketPath = ""
	_, err := NewDaemon(cfg, nil)
	assert.Error(t, err)
}

func TestDaemon_ServesFingerprintAndArtifacts(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Circuit.TargetDir, "circuit.vk"), []byte("vk-1"), 0644))

	store := artifacts.NewStore(cfg.Circuit.ProofPath, cfg.Circuit.PublicParamsPath)
	require.NoError(t, store.SaveProof([]byte{0xab}))

	d, err := NewDaemon(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()
	waitForSocket(t, cfg.Agent.SocketPath)

	client, err := ipc.NewClient(cfg.Agent.SocketPath)
	require.NoError(t, err)
	defer client.Close()

	want, err := fingerprint.Compute(cfg.Circuit.TargetDir)
	require.NoError(t, err)
	got, err := client.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	proof, err := client.Artifact(context.Background(), artifacts.NameProof)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab}, proof)

	// A rebuild changes the served fingerprint.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Circuit.TargetDir, "circuit.vk"), []byte("vk-2"), 0644))
	want2, err := fingerprint.Compute(cfg.Circuit.TargetDir)
	require.NoError(t, err)
	require.NotEqual(t, want, want2)
	require.Eventually(t, func() bool {
		got, err := client.Fingerprint(context.Background())
		return err == nil && got == want2
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, statErr := os.Stat(cfg.Agent.SocketPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDaemon_MissingTargetDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Circuit.TargetDir = filepath.Join(t.TempDir(), "absent")

	d, err := NewDaemon(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, d.Run(context.Background()))
}

func TestBuildConfig_FlagOverrides(t *testing.T) {
	t.Setenv(config.EnvRPCURL, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[circuit]\ntarget_dir = \"/from/file\"\n[agent]\nsocket_path = \"/from/file.sock\"\n"), 0644))

	cfg, err := buildConfig(path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.Circuit.TargetDir)
	assert.Equal(t, "/from/file.sock", cfg.Agent.SocketPath)

	cfg, err = buildConfig(path, "/from/flag", "/flag.sock")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Circuit.TargetDir)
	assert.Equal(t, "/flag.sock", cfg.Agent.SocketPath)
}
