// Package wallet derives the attestation signing key from a BIP-39 mnemonic
// and keeps the mnemonic encrypted at rest.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

const hardenedOffset uint32 = hdkeychain.HardenedKeyStart

var (
	// ErrInvalidMnemonic is returned when the mnemonic fails BIP-39 validation.
	ErrInvalidMnemonic = errors.New("wallet: invalid mnemonic")

	// ErrInvalidDerivationPath is returned for malformed BIP-32 paths.
	ErrInvalidDerivationPath = errors.New("wallet: invalid derivation path")
)

// DefaultDerivationPath is the first Ethereum account, m/44'/60'/0'/0/0.
var DefaultDerivationPath = []uint32{
	44 + hardenedOffset,
	60 + hardenedOffset,
	0 + hardenedOffset,
	0,
	0,
}

// ParseDerivationPath parses a path such as m/44'/60'/0'/0/0. Components
// marked with ' or h are hardened.
func ParseDerivationPath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m/")
	path = strings.TrimPrefix(path, "M/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidDerivationPath)
	}

	parts := strings.Split(path, "/")
	indexes := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		part = strings.TrimRight(part, "'h")

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q: %v", ErrInvalidDerivationPath, part, err)
		}
		if uint32(n) >= hardenedOffset {
			return nil, fmt.Errorf("%w: component %d out of range", ErrInvalidDerivationPath, n)
		}

		index := uint32(n)
		if hardened {
			index += hardenedOffset
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// KeyFromMnemonic derives the secp256k1 key at path from mnemonic and an
// optional BIP-39 passphrase.
func KeyFromMnemonic(mnemonic, passphrase string, path []uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)

	// Mainnet params only select the extended key version bytes; the
	// derived key is network independent.
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	// Round-trip through go-ethereum so the key carries its curve.
	return ethcrypto.ToECDSA(priv.Serialize())
}

// Address returns the Ethereum address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}

// NewMnemonic generates a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}
