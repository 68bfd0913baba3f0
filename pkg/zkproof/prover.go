package zkproof

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
)

// Prover generates proofs of knowledge of a MiMC preimage.
type Prover struct {
	compiled *CompiledCircuit
}

// ProofResult holds the serialized material of one proof.
type ProofResult struct {
	// PublicParams is the binary public witness (the digest).
	PublicParams []byte

	// Proof is the serialized PlonK proof.
	Proof []byte

	// Digest is MiMC(secret), the single public input.
	Digest *big.Int
}

// NewProver creates a new Prover with the given compiled circuit.
func NewProver(compiled *CompiledCircuit) *Prover {
	return &Prover{compiled: compiled}
}

// Prove creates a proof that the caller knows secret. The secret never
// leaves this function; only its digest appears in PublicParams.
func (p *Prover) Prove(secret []byte) (*ProofResult, error) {
	elem, err := SecretElement(secret)
	if err != nil {
		return nil, err
	}
	digest, err := ComputeDigest(secret)
	if err != nil {
		return nil, fmt.Errorf("compute digest: %w", err)
	}

	assignment := PreimageCircuit{
		Secret: elem.BigInt(new(big.Int)),
		Digest: digest,
	}
	full, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}

	proof, err := plonk.Prove(p.compiled.ConstraintSystem, p.compiled.ProvingKey, full)
	if err != nil {
		return nil, fmt.Errorf("generate proof: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}

	public, err := full.Public()
	if err != nil {
		return nil, fmt.Errorf("extract public witness: %w", err)
	}
	publicParams, err := public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize public witness: %w", err)
	}

	return &ProofResult{
		PublicParams: publicParams,
		Proof:        proofBuf.Bytes(),
		Digest:       digest,
	}, nil
}
