package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofmark/proofmark/internal/artifacts"
	"github.com/proofmark/proofmark/internal/config"
	"github.com/proofmark/proofmark/internal/verifier"
	"github.com/proofmark/proofmark/internal/wallet"
	"github.com/proofmark/proofmark/pkg/fingerprint"
	"github.com/proofmark/proofmark/pkg/payload"
)

type fakeChain struct {
	records    []payload.Record
	recordsErr error

	attested []byte
	signer   common.Address
	uid      common.Hash

	registered string
}

func (f *fakeChain) Records(context.Context) ([]payload.Record, error) {
	return f.records, f.recordsErr
}

func (f *fakeChain) Attest(_ context.Context, auth *bind.TransactOpts, data []byte) (common.Hash, error) {
	f.attested = data
	f.signer = auth.From
	return f.uid, nil
}

func (f *fakeChain) RegisterSchema(_ context.Context, auth *bind.TransactOpts, schema string, _ common.Address, _ bool) (common.Hash, error) {
	f.registered = schema
	f.signer = auth.From
	return f.uid, nil
}

type fakeAgent struct {
	fp        fingerprint.Fingerprint
	err       error
	artifacts map[string][]byte
	closed    bool
}

func (f *fakeAgent) Fingerprint(context.Context) (fingerprint.Fingerprint, error) {
	return f.fp, f.err
}

func (f *fakeAgent) Artifact(_ context.Context, name string) ([]byte, error) {
	data, ok := f.artifacts[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

type testEnv struct {
	cli    *CLI
	cfg    *config.Config
	out    *bytes.Buffer
	logs   *bytes.Buffer
	chain  *fakeChain
	agent  *fakeAgent
	target string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.EnvMnemonic, "")
	t.Setenv(config.EnvMnemonicLegacy, "")

	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "circuit.json"), []byte(`{"abi":[]}`), 0644))

	cfg := config.Default()
	cfg.Circuit.TargetDir = target
	cfg.Circuit.ProofPath = filepath.Join(dir, "proofs", "circuit.proof")
	cfg.Circuit.PublicParamsPath = filepath.Join(dir, "Verifier.toml")
	cfg.Wallet.KeystorePath = filepath.Join(dir, "mnemonic.key")

	env := &testEnv{
		cfg:    &cfg,
		out:    &bytes.Buffer{},
		logs:   &bytes.Buffer{},
		chain:  &fakeChain{uid: common.HexToHash("0xabc")},
		agent:  &fakeAgent{artifacts: map[string][]byte{}},
		target: target,
	}
	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.cli = NewCLI(env.cfg, env.out, logger)
	env.cli.dialChain = func(context.Context) (chain, func(), error) {
		return env.chain, func() {}, nil
	}
	env.cli.dialAgent = func() (agent, error) { return env.agent, nil }
	return env
}

func (e *testEnv) local(t *testing.T) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Compute(e.target)
	require.NoError(t, err)
	return fp
}

func (e *testEnv) store() *artifacts.Store {
	return artifacts.NewStore(e.cfg.Circuit.ProofPath, e.cfg.Circuit.PublicParamsPath)
}

func TestFingerprint_PrintsEncodings(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cli.Fingerprint())

	fp := env.local(t)
	out := env.out.String()
	assert.Contains(t, out, fp.String())
	assert.Contains(t, out, fp.Base58())
	assert.Contains(t, out, "CID:")
}

func TestFingerprint_MissingDir(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Circuit.TargetDir = filepath.Join(t.TempDir(), "absent")
	assert.Error(t, env.cli.Fingerprint())
}

func TestVerify_LastMatchWins(t *testing.T) {
	env := newTestEnv(t)
	local := env.local(t)
	var other fingerprint.Fingerprint
	other[0] = 0x99

	env.chain.records = []payload.Record{
		{ID: "0x01", Payload: payload.Encode(local, []byte("pp-1"), []byte{0x01})},
		{ID: "0x02", Payload: payload.Encode(other, []byte("pp-x"), []byte{0x02})},
		{ID: "0x03", Payload: []byte("short")},
		{ID: "0x04", Payload: payload.Encode(local, []byte("pp-4"), []byte{0x04, 0x05})},
		{ID: "0x05", Payload: append(local.Bytes(), []byte("no separator")...)},
	}

	summary, err := env.cli.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, verifier.Summary{Matched: 2, Mismatched: 1, Malformed: 2, LastMatch: "0x04"}, summary)

	pp, err := env.store().LoadPublicParams()
	require.NoError(t, err)
	assert.Equal(t, []byte("pp-4"), pp)
	proof, err := env.store().LoadProof()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x05}, proof)

	assert.Contains(t, env.out.String(), "Artifacts written from 0x04")
	logs := env.logs.String()
	assert.Contains(t, logs, "run_id=")
	assert.Contains(t, logs, "circuit identity mismatch")
	assert.Contains(t, logs, "malformed payload")
}

func TestVerify_NoMatchLeavesArtifacts(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store().SavePublicParams([]byte("existing")))

	var other fingerprint.Fingerprint
	other[31] = 0x01
	env.chain.records = []payload.Record{
		{ID: "0x01", Payload: payload.Encode(other, []byte("pp"), []byte{0x01})},
	}

	summary, err := env.cli.Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.LastMatch)
	assert.Contains(t, env.out.String(), "artifacts unchanged")

	pp, err := env.store().LoadPublicParams()
	require.NoError(t, err)
	assert.Equal(t, []byte("existing"), pp)
}

func TestVerify_RecordsErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.chain.recordsErr = errors.New("rpc down")

	_, err := env.cli.Verify(context.Background())
	assert.ErrorIs(t, err, env.chain.recordsErr)
}

func TestVerify_PersistErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	// A directory where the public params file should go makes the write fail.
	require.NoError(t, os.MkdirAll(env.cfg.Circuit.PublicParamsPath, 0755))
	env.chain.records = []payload.Record{
		{ID: "0x01", Payload: payload.Encode(env.local(t), []byte("pp"), []byte{0x01})},
	}

	_, err := env.cli.Verify(context.Background())
	assert.ErrorIs(t, err, verifier.ErrPersist)
}

func TestAttest_EncodesPayload(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store().SavePublicParams([]byte("public")))
	require.NoError(t, env.store().SaveProof([]byte{0xca, 0xfe}))

	uid, err := env.cli.Attest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.chain.uid, uid)

	decoded, err := payload.Decode(env.chain.attested)
	require.NoError(t, err)
	assert.Equal(t, env.local(t), decoded.Fingerprint)
	assert.Equal(t, []byte("public"), decoded.PublicParams)
	assert.Equal(t, []byte{0xca, 0xfe}, decoded.Proof)

	// Without any mnemonic configured the development account signs.
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", env.chain.signer.Hex())
	assert.NotContains(t, env.out.String(), "Warning")
}

func TestAttest_WarnsOnAmbiguousPublicParams(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store().SavePublicParams([]byte{0x01, 0x40, 0x40, 0x40, 0x02}))
	require.NoError(t, env.store().SaveProof([]byte{0x01}))

	_, err := env.cli.Attest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, env.out.String(), "Warning")
	assert.Contains(t, env.logs.String(), "public params will not round-trip")
}

func TestAttest_MissingArtifacts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.cli.Attest(context.Background())
	assert.Error(t, err)
	assert.Nil(t, env.chain.attested)
}

func TestAttest_UsesEnvMnemonic(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store().SavePublicParams([]byte("p")))
	require.NoError(t, env.store().SaveProof([]byte{0x01}))
	env.cfg.Wallet.DerivationPath = "m/44'/60'/0'/0/1"
	t.Setenv(config.EnvMnemonic, config.DefaultMnemonic)

	_, err := env.cli.Attest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", env.chain.signer.Hex())
}

func TestRegisterSchema(t *testing.T) {
	env := newTestEnv(t)
	env.chain.uid = common.HexToHash("0x" + config.DefaultSchemaUID)

	uid, err := env.cli.RegisterSchema(context.Background(), config.DefaultSchema, common.Address{}, true)
	require.NoError(t, err)
	assert.Equal(t, env.chain.uid, uid)
	assert.Equal(t, config.DefaultSchema, env.chain.registered)
	assert.NotContains(t, env.out.String(), "Set chain.schema_uid")
}

func TestSetupProveCheck(t *testing.T) {
	env := newTestEnv(t)
	before := env.local(t)

	require.NoError(t, env.cli.Setup())
	after := env.local(t)
	assert.NotEqual(t, before, after, "setup adds artifacts to the target dir")

	require.NoError(t, env.cli.Prove("hunter2"))
	env.out.Reset()
	require.NoError(t, env.cli.Check())
	assert.Contains(t, env.out.String(), "Proof: valid")

	// Corrupting the stored proof makes check fail.
	require.NoError(t, env.store().SaveProof([]byte{0x00, 0x01}))
	assert.Error(t, env.cli.Check())
}

func TestProve_EmptySecret(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.cli.Prove(""), ErrEmptySecret)
}

func TestStatus_AgentRunning(t *testing.T) {
	env := newTestEnv(t)
	env.agent.fp = env.local(t)
	env.agent.artifacts[artifacts.NameProof] = []byte{0x01, 0x02}

	require.NoError(t, env.cli.Status(context.Background()))
	out := env.out.String()
	assert.Contains(t, out, "Status: running")
	assert.Contains(t, out, "proof: 2 bytes")
	assert.Contains(t, out, "public_params: none")
	assert.NotContains(t, out, "differs")
	assert.True(t, env.agent.closed)
}

func TestStatus_AgentDiffers(t *testing.T) {
	env := newTestEnv(t)
	env.agent.fp[0] = 0x42

	require.NoError(t, env.cli.Status(context.Background()))
	assert.Contains(t, env.out.String(), "differs from local directory")
}

func TestStatus_AgentDown(t *testing.T) {
	env := newTestEnv(t)
	env.agent.err = errors.New("connection refused")

	require.NoError(t, env.cli.Status(context.Background()))
	assert.Contains(t, env.out.String(), "Status: not running")
}

func TestKeystore_SaveThenSign(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cli.KeystoreSave(config.DefaultMnemonic, "pw"))
	assert.Contains(t, env.out.String(), "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	t.Setenv(config.EnvKeystorePassphrase, "pw")
	key, err := env.cli.signingKey()
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", wallet.Address(key).Hex())

	t.Setenv(config.EnvKeystorePassphrase, "wrong")
	_, err = env.cli.signingKey()
	assert.Error(t, err)
}

func TestRootCmd_Fingerprint(t *testing.T) {
	t.Setenv(config.EnvRPCURL, "")
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "x"), []byte("x"), 0644))

	var out, logs bytes.Buffer
	cmd := newRootCmd(&out, &logs)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "absent.toml"), "--target-dir", target, "fingerprint"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	fp, err := fingerprint.Compute(target)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out.String(), fp.String()))
	// sha256("x"), the fingerprint of a single one-byte file.
	assert.Equal(t, "2d711642b726b04401627ca9fbac32f5c8530fb1903cc4db02258717921a4881", fp.String())
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	var out, logs bytes.Buffer
	cmd := newRootCmd(&out, &logs)
	cmd.SetArgs([]string{"frobnicate"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
