package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/proofmark/proofmark/internal/artifacts"
	"github.com/proofmark/proofmark/internal/config"
	"github.com/proofmark/proofmark/internal/eas"
	"github.com/proofmark/proofmark/internal/ipc"
	"github.com/proofmark/proofmark/internal/verifier"
	"github.com/proofmark/proofmark/internal/wallet"
	"github.com/proofmark/proofmark/pkg/fingerprint"
	"github.com/proofmark/proofmark/pkg/payload"
	"github.com/proofmark/proofmark/pkg/zkproof"
)

// ErrEmptySecret is returned when prove is called without a secret.
var ErrEmptySecret = errors.New("secret cannot be empty")

// chain is the subset of the EAS client the commands use.
type chain interface {
	Records(ctx context.Context) ([]payload.Record, error)
	Attest(ctx context.Context, auth *bind.TransactOpts, data []byte) (common.Hash, error)
	RegisterSchema(ctx context.Context, auth *bind.TransactOpts, schema string, resolver common.Address, revocable bool) (common.Hash, error)
}

// agent is the subset of the IPC client the commands use.
type agent interface {
	Fingerprint(ctx context.Context) (fingerprint.Fingerprint, error)
	Artifact(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// CLI runs proofmark commands against one configuration.
type CLI struct {
	cfg    *config.Config
	output io.Writer
	logger *slog.Logger

	dialChain func(ctx context.Context) (chain, func(), error)
	dialAgent func() (agent, error)
}

// NewCLI creates a CLI that talks to the node and agent named in cfg.
func NewCLI(cfg *config.Config, output io.Writer, logger *slog.Logger) *CLI {
	c := &CLI{cfg: cfg, output: output, logger: logger}
	c.dialChain = func(ctx context.Context) (chain, func(), error) {
		client, ec, err := eas.Dial(ctx, cfg.Chain, c.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, ec.Close, nil
	}
	c.dialAgent = func() (agent, error) {
		return ipc.NewClient(cfg.Agent.SocketPath)
	}
	return c
}

func (c *CLI) store() *artifacts.Store {
	return artifacts.NewStore(c.cfg.Circuit.ProofPath, c.cfg.Circuit.PublicParamsPath)
}

func (c *CLI) localFingerprint() (fingerprint.Fingerprint, error) {
	fp, err := fingerprint.Compute(c.cfg.Circuit.TargetDir)
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("fingerprint %s: %w", c.cfg.Circuit.TargetDir, err)
	}
	return fp, nil
}

// Fingerprint prints the fingerprint of the circuit target directory.
func (c *CLI) Fingerprint() error {
	fp, err := c.localFingerprint()
	if err != nil {
		return err
	}
	id, err := fp.CID()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Directory:   %s\n", c.cfg.Circuit.TargetDir)
	fmt.Fprintf(c.output, "Fingerprint: %s\n", fp.String())
	fmt.Fprintf(c.output, "Base58:      %s\n", fp.Base58())
	fmt.Fprintf(c.output, "CID:         %s\n", id.String())
	return nil
}

// Verify scans the attestation records, persists the artifacts of the
// last record matching the local circuit and prints a summary. Skipped
// records are not errors.
func (c *CLI) Verify(ctx context.Context) (verifier.Summary, error) {
	logger := c.logger.With("run_id", uuid.NewString())

	local, err := c.localFingerprint()
	if err != nil {
		return verifier.Summary{}, err
	}
	logger.Info("verify started", "fingerprint", local.String(), "dir", c.cfg.Circuit.TargetDir)

	ch, closeChain, err := c.dialChain(ctx)
	if err != nil {
		return verifier.Summary{}, err
	}
	defer closeChain()

	records, err := ch.Records(ctx)
	if err != nil {
		return verifier.Summary{}, fmt.Errorf("read records: %w", err)
	}

	summary, err := verifier.New(local, c.store(), logger).Run(records)
	if err != nil {
		return summary, err
	}
	logger.Info("verify finished",
		"records", summary.Total(),
		"matched", summary.Matched,
		"mismatched", summary.Mismatched,
		"malformed", summary.Malformed,
	)

	fmt.Fprintf(c.output, "Records:     %d\n", summary.Total())
	fmt.Fprintf(c.output, "Matched:     %d\n", summary.Matched)
	fmt.Fprintf(c.output, "Mismatched:  %d\n", summary.Mismatched)
	fmt.Fprintf(c.output, "Malformed:   %d\n", summary.Malformed)
	if summary.LastMatch == "" {
		fmt.Fprintln(c.output, "No record matches the local circuit; artifacts unchanged.")
	} else {
		fmt.Fprintf(c.output, "Artifacts written from %s\n", summary.LastMatch)
		fmt.Fprintf(c.output, "  proof:         %s\n", c.cfg.Circuit.ProofPath)
		fmt.Fprintf(c.output, "  public params: %s\n", c.cfg.Circuit.PublicParamsPath)
	}
	return summary, nil
}

// Attest publishes the local fingerprint with the stored proof material.
func (c *CLI) Attest(ctx context.Context) (common.Hash, error) {
	local, err := c.localFingerprint()
	if err != nil {
		return common.Hash{}, err
	}

	store := c.store()
	publicParams, err := store.LoadPublicParams()
	if err != nil {
		return common.Hash{}, err
	}
	proof, err := store.LoadProof()
	if err != nil {
		return common.Hash{}, err
	}

	if err := payload.CheckPublicParams(publicParams); err != nil {
		c.logger.Warn("public params will not round-trip", "error", err)
		fmt.Fprintf(c.output, "Warning: %v; verifiers will split the payload early.\n", err)
	}

	data := payload.Encode(local, publicParams, proof)

	auth, err := c.transactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	ch, closeChain, err := c.dialChain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer closeChain()

	uid, err := ch.Attest(ctx, auth, data)
	if err != nil {
		return common.Hash{}, err
	}

	fmt.Fprintf(c.output, "Attestation: %s\n", uid.Hex())
	fmt.Fprintf(c.output, "Fingerprint: %s\n", local.String())
	fmt.Fprintf(c.output, "Payload:     %d bytes\n", len(data))
	return uid, nil
}

// RegisterSchema registers schema and prints its uid.
func (c *CLI) RegisterSchema(ctx context.Context, schema string, resolver common.Address, revocable bool) (common.Hash, error) {
	auth, err := c.transactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	ch, closeChain, err := c.dialChain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer closeChain()

	uid, err := ch.RegisterSchema(ctx, auth, schema, resolver, revocable)
	if err != nil {
		return common.Hash{}, err
	}

	fmt.Fprintf(c.output, "Schema:     %s\n", schema)
	fmt.Fprintf(c.output, "Schema UID: %s\n", uid.Hex())
	if uid.Hex()[2:] != strings.TrimPrefix(strings.ToLower(c.cfg.Chain.SchemaUID), "0x") {
		fmt.Fprintln(c.output, "Set chain.schema_uid to this value to attest under it.")
	}
	return uid, nil
}

// Setup compiles the reference circuit and writes its artifacts into the
// target directory.
func (c *CLI) Setup() error {
	compiled, err := zkproof.CompileCircuit()
	if err != nil {
		return err
	}
	if err := compiled.WriteArtifacts(c.cfg.Circuit.TargetDir); err != nil {
		return err
	}

	fp, err := c.localFingerprint()
	if err != nil {
		return err
	}
	c.logger.Info("circuit artifacts written",
		"dir", c.cfg.Circuit.TargetDir,
		"constraints", compiled.ConstraintSystem.GetNbConstraints(),
		"fingerprint", fp.String(),
	)
	fmt.Fprintf(c.output, "Artifacts written to %s\n", c.cfg.Circuit.TargetDir)
	fmt.Fprintf(c.output, "Fingerprint: %s\n", fp.String())
	return nil
}

// Prove proves knowledge of secret with the circuit in the target
// directory and stores the proof material.
func (c *CLI) Prove(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	compiled, err := zkproof.LoadArtifacts(c.cfg.Circuit.TargetDir)
	if err != nil {
		return err
	}

	res, err := zkproof.NewProver(compiled).Prove([]byte(secret))
	if err != nil {
		return err
	}

	store := c.store()
	if err := store.SavePublicParams(res.PublicParams); err != nil {
		return err
	}
	if err := store.SaveProof(res.Proof); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Digest:        0x%s\n", res.Digest.Text(16))
	fmt.Fprintf(c.output, "Proof:         %s (%d bytes)\n", store.ProofPath, len(res.Proof))
	fmt.Fprintf(c.output, "Public params: %s (%d bytes)\n", store.PublicParamsPath, len(res.PublicParams))
	return nil
}

// Check verifies the stored proof material against the verifying key in
// the target directory.
func (c *CLI) Check() error {
	store := c.store()
	publicParams, err := store.LoadPublicParams()
	if err != nil {
		return err
	}
	proof, err := store.LoadProof()
	if err != nil {
		return err
	}

	vk, err := zkproof.LoadVerifyingKey(c.cfg.Circuit.TargetDir)
	if err != nil {
		return err
	}
	if err := zkproof.NewVerifierFromKey(vk).Verify(publicParams, proof); err != nil {
		return err
	}

	digest, err := zkproof.PublicDigest(publicParams)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.output, "Proof: valid")
	fmt.Fprintf(c.output, "Digest: 0x%s\n", digest.Text(16))
	return nil
}

// Status reports what the agent sees next to the local state.
func (c *CLI) Status(ctx context.Context) error {
	fmt.Fprintln(c.output, "=== Proofmark Status ===")
	fmt.Fprintln(c.output)

	local, localErr := c.localFingerprint()
	fmt.Fprintf(c.output, "Target dir:  %s\n", c.cfg.Circuit.TargetDir)
	if localErr != nil {
		fmt.Fprintf(c.output, "  Local:     unavailable (%v)\n", localErr)
	} else {
		fmt.Fprintf(c.output, "  Local:     %s\n", local.String())
	}
	fmt.Fprintln(c.output)

	fmt.Fprintln(c.output, "Agent:")
	client, err := c.dialAgent()
	if err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}
	defer client.Close()

	fp, err := client.Fingerprint(ctx)
	if err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}
	fmt.Fprintf(c.output, "  Status: running\n")
	fmt.Fprintf(c.output, "  Fingerprint: %s\n", fp.String())
	if localErr == nil && !fp.Equal(local) {
		fmt.Fprintln(c.output, "  Warning: agent fingerprint differs from local directory")
	}

	for _, name := range []string{artifacts.NamePublicParams, artifacts.NameProof} {
		data, err := client.Artifact(ctx, name)
		if err != nil {
			fmt.Fprintf(c.output, "  %s: none\n", name)
			continue
		}
		fmt.Fprintf(c.output, "  %s: %d bytes\n", name, len(data))
	}
	return nil
}

// KeystoreSave encrypts mnemonic into the configured keystore.
func (c *CLI) KeystoreSave(mnemonic, passphrase string) error {
	if err := wallet.SaveMnemonic(c.cfg.Wallet.KeystorePath, mnemonic, passphrase); err != nil {
		return err
	}
	key, err := c.keyFromMnemonic(mnemonic)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Keystore: %s\n", c.cfg.Wallet.KeystorePath)
	fmt.Fprintf(c.output, "Address:  %s\n", wallet.Address(key).Hex())
	return nil
}

// Address prints the signing address.
func (c *CLI) Address() error {
	key, err := c.signingKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Address: %s\n", wallet.Address(key).Hex())
	return nil
}

// signingKey resolves the mnemonic from the environment, then the
// keystore, then the development mnemonic.
func (c *CLI) signingKey() (*ecdsa.PrivateKey, error) {
	if m := config.Mnemonic(); m != "" {
		return c.keyFromMnemonic(m)
	}

	if pass, ok := os.LookupEnv(config.EnvKeystorePassphrase); ok {
		m, err := wallet.LoadMnemonic(c.cfg.Wallet.KeystorePath, pass)
		if err != nil {
			return nil, err
		}
		return c.keyFromMnemonic(m)
	}

	c.logger.Warn("no mnemonic configured, using the development mnemonic")
	return c.keyFromMnemonic(config.DefaultMnemonic)
}

func (c *CLI) keyFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	path, err := wallet.ParseDerivationPath(c.cfg.Wallet.DerivationPath)
	if err != nil {
		return nil, err
	}
	return wallet.KeyFromMnemonic(mnemonic, "", path)
}

func (c *CLI) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	key, err := c.signingKey()
	if err != nil {
		return nil, err
	}
	return eas.NewTransactor(ctx, key, c.cfg.Chain.ChainID)
}
