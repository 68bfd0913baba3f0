// Package eas reads and writes payload records through the Ethereum
// Attestation Service contracts.
package eas

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/proofmark/proofmark/pkg/payload"
)

var (
	// ErrAttestationNotFound is returned when getAttestation yields an empty record.
	ErrAttestationNotFound = errors.New("eas: attestation not found")

	// ErrNoAttestedEvent is returned when a mined attest transaction carries
	// no Attested event from the EAS contract.
	ErrNoAttestedEvent = errors.New("eas: receipt has no Attested event")

	// ErrTransactionFailed is returned when a transaction is mined with a
	// failed status.
	ErrTransactionFailed = errors.New("eas: transaction reverted")
)

// Backend is the node access the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Options configures a Client.
type Options struct {
	EAS            common.Address
	SchemaRegistry common.Address
	// Schema filters records and is attached to new attestations. The zero
	// hash disables filtering.
	Schema    common.Hash
	FromBlock uint64
	Logger    *slog.Logger
}

// Client talks to one EAS deployment.
type Client struct {
	backend  Backend
	opts     Options
	eas      *bind.BoundContract
	registry *bind.BoundContract
	logger   *slog.Logger
}

// NewClient creates a Client over backend.
func NewClient(backend Backend, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:  backend,
		opts:     opts,
		eas:      bind.NewBoundContract(opts.EAS, easABI, backend, backend, backend),
		registry: bind.NewBoundContract(opts.SchemaRegistry, schemaRegistryABI, backend, backend, backend),
		logger:   logger,
	}
}

// NewTransactor returns signing options for key on chainID.
func NewTransactor(ctx context.Context, key *ecdsa.PrivateKey, chainID int64) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("eas: create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// Records returns every attestation payload under the configured schema in
// log order. Any RPC failure aborts the whole read.
//
// When a schema is set, attestations under other schemas are dropped by the
// log query itself, so they never reach the verifier and are not counted as
// mismatches. Leave the schema zero to read every Attested log.
func (c *Client) Records(ctx context.Context) ([]payload.Record, error) {
	uids, err := c.attestedUIDs(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]payload.Record, 0, len(uids))
	for _, uid := range uids {
		att, err := c.Attestation(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("eas: fetch %s: %w", uid.Hex(), err)
		}
		records = append(records, payload.Record{ID: uid.Hex(), Payload: att.Data})
	}

	c.logger.Debug("fetched attestations", "count", len(records), "from_block", c.opts.FromBlock)
	return records, nil
}

func (c *Client) attestedUIDs(ctx context.Context) ([]common.Hash, error) {
	topics := [][]common.Hash{{AttestedTopic()}, nil, nil}
	if c.opts.Schema != (common.Hash{}) {
		topics = append(topics, []common.Hash{c.opts.Schema})
	}

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.opts.FromBlock),
		Addresses: []common.Address{c.opts.EAS},
		Topics:    topics,
	})
	if err != nil {
		return nil, fmt.Errorf("eas: filter Attested logs: %w", err)
	}

	slices.SortStableFunc(logs, func(a, b types.Log) int {
		if a.BlockNumber != b.BlockNumber {
			return compareUint64(a.BlockNumber, b.BlockNumber)
		}
		return compareUint64(uint64(a.Index), uint64(b.Index))
	})

	uids := make([]common.Hash, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		uid, err := attestedUID(l)
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// attestedUID extracts the attestation uid from an Attested log.
func attestedUID(l types.Log) (common.Hash, error) {
	if len(l.Topics) == 0 || l.Topics[0] != AttestedTopic() {
		return common.Hash{}, fmt.Errorf("eas: log %s/%d is not an Attested event", l.TxHash.Hex(), l.Index)
	}
	values, err := easABI.Unpack("Attested", l.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eas: decode Attested log: %w", err)
	}
	uid, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("eas: unexpected uid type %T", values[0])
	}
	return common.Hash(uid), nil
}

// Attestation calls getAttestation(uid).
func (c *Client) Attestation(ctx context.Context, uid common.Hash) (*Attestation, error) {
	var out []interface{}
	err := c.eas.Call(&bind.CallOpts{Context: ctx}, &out, "getAttestation", uid)
	if err != nil {
		return nil, err
	}
	att := *abi.ConvertType(out[0], new(Attestation)).(*Attestation)
	if att.Uid == [32]byte{} {
		return nil, ErrAttestationNotFound
	}
	return &att, nil
}

// Attest submits data as a non-revocable attestation with no recipient and
// no expiry, waits for it to be mined and returns its uid.
func (c *Client) Attest(ctx context.Context, auth *bind.TransactOpts, data []byte) (common.Hash, error) {
	req := AttestationRequest{
		Schema: c.opts.Schema,
		Data: AttestationRequestData{
			Data:  data,
			Value: big.NewInt(0),
		},
	}

	tx, err := c.eas.Transact(withContext(ctx, auth), "attest", req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eas: send attest: %w", err)
	}
	c.logger.Info("attest transaction sent", "tx", tx.Hash().Hex())

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	return c.uidFromReceipt(receipt)
}

func (c *Client) uidFromReceipt(receipt *types.Receipt) (common.Hash, error) {
	for _, l := range receipt.Logs {
		if l.Address != c.opts.EAS || len(l.Topics) == 0 || l.Topics[0] != AttestedTopic() {
			continue
		}
		return attestedUID(*l)
	}
	return common.Hash{}, ErrNoAttestedEvent
}

// RegisterSchema registers schema with the SchemaRegistry and returns its uid.
func (c *Client) RegisterSchema(ctx context.Context, auth *bind.TransactOpts, schema string, resolver common.Address, revocable bool) (common.Hash, error) {
	tx, err := c.registry.Transact(withContext(ctx, auth), "register", schema, resolver, revocable)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eas: send register: %w", err)
	}
	c.logger.Info("register transaction sent", "tx", tx.Hash().Hex())

	if _, err := c.waitMined(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return SchemaUID(schema, resolver, revocable), nil
}

func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("eas: wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

// SchemaUID computes the registry uid of schema:
// keccak256(abi.encodePacked(schema, resolver, revocable)).
func SchemaUID(schema string, resolver common.Address, revocable bool) common.Hash {
	flag := []byte{0}
	if revocable {
		flag[0] = 1
	}
	return crypto.Keccak256Hash([]byte(schema), resolver.Bytes(), flag)
}

func withContext(ctx context.Context, auth *bind.TransactOpts) *bind.TransactOpts {
	opts := *auth
	opts.Context = ctx
	return &opts
}
