package zkproof

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

var (
	// ErrEmptySecret is returned when the secret has no bytes.
	ErrEmptySecret = errors.New("zkproof: empty secret")
)

// SecretElement maps secret bytes to a BN254 scalar, reducing modulo the
// field order. The same mapping is used for the in-circuit assignment.
func SecretElement(secret []byte) (fr.Element, error) {
	var elem fr.Element
	if len(secret) == 0 {
		return elem, ErrEmptySecret
	}
	elem.SetBigInt(new(big.Int).SetBytes(secret))
	return elem, nil
}

// ComputeDigest computes the MiMC digest of secret outside the circuit.
func ComputeDigest(secret []byte) (*big.Int, error) {
	elem, err := SecretElement(secret)
	if err != nil {
		return nil, err
	}

	h := mimc.NewMiMC()
	b := elem.Bytes()
	if _, err := h.Write(b[:]); err != nil {
		return nil, err
	}

	var result fr.Element
	result.SetBytes(h.Sum(nil))
	return result.BigInt(new(big.Int)), nil
}
