// Package zkproof is the reference proving backend. It proves knowledge of
// a secret whose MiMC digest is public:
//
// "I know S such that MiMC(S) = D"
//
// The compiled constraint system and keys are the circuit build artifacts
// that get fingerprinted, and the serialized public witness and proof are
// the material carried in attestation payloads.
package zkproof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// PreimageCircuit proves knowledge of a MiMC preimage.
type PreimageCircuit struct {
	// Private witness
	Secret frontend.Variable `gnark:",secret"`

	// Public input
	Digest frontend.Variable `gnark:",public"`
}

// Define implements frontend.Circuit. It enforces MiMC(Secret) == Digest.
func (c *PreimageCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Secret)
	api.AssertIsEqual(h.Sum(), c.Digest)
	return nil
}
