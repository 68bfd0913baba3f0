package zkproof

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
)

var (
	// ErrInvalidPublicParams is returned when public params do not decode to
	// a public witness of this circuit.
	ErrInvalidPublicParams = errors.New("zkproof: invalid public params")

	// ErrInvalidProof is returned when proof bytes cannot be decoded.
	ErrInvalidProof = errors.New("zkproof: invalid proof encoding")

	// ErrProofRejected is returned when a well-formed proof fails verification.
	ErrProofRejected = errors.New("zkproof: proof rejected")
)

// Verifier checks proofs against a verifying key.
type Verifier struct {
	vk plonk.VerifyingKey
}

// NewVerifier creates a Verifier from a compiled circuit.
func NewVerifier(compiled *CompiledCircuit) *Verifier {
	return &Verifier{vk: compiled.VerifyingKey}
}

// NewVerifierFromKey creates a Verifier from a verifying key alone.
func NewVerifierFromKey(vk plonk.VerifyingKey) *Verifier {
	return &Verifier{vk: vk}
}

// Verify checks proof against publicParams as produced by Prover.Prove.
func (v *Verifier) Verify(publicParams, proofBytes []byte) error {
	public, err := decodePublicWitness(publicParams)
	if err != nil {
		return err
	}

	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	if err := plonk.Verify(proof, v.vk, public); err != nil {
		return fmt.Errorf("%w: %v", ErrProofRejected, err)
	}
	return nil
}

// PublicDigest extracts the digest from serialized public params.
func PublicDigest(publicParams []byte) (*big.Int, error) {
	public, err := decodePublicWitness(publicParams)
	if err != nil {
		return nil, err
	}
	vec, ok := public.Vector().(fr.Vector)
	if !ok || len(vec) != 1 {
		return nil, fmt.Errorf("%w: expected one public input", ErrInvalidPublicParams)
	}
	return vec[0].BigInt(new(big.Int)), nil
}

func decodePublicWitness(publicParams []byte) (witness.Witness, error) {
	public, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("allocate witness: %w", err)
	}
	if err := public.UnmarshalBinary(publicParams); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicParams, err)
	}
	return public, nil
}
