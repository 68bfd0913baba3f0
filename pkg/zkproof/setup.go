package zkproof

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"
)

// Artifact file names written by WriteArtifacts.
const (
	ConstraintSystemFile = "circuit.ccs"
	ProvingKeyFile       = "circuit.pk"
	VerifyingKeyFile     = "circuit.vk"
)

var (
	// compiledCircuit is a cached instance of the compiled circuit.
	compiledCircuit *CompiledCircuit
	// compileMu protects concurrent access to compiledCircuit.
	compileMu sync.Mutex
)

// CompiledCircuit contains the compiled constraint system and the keys
// needed to generate and verify proofs.
type CompiledCircuit struct {
	// ConstraintSystem is the compiled circuit in sparse constraint form.
	ConstraintSystem constraint.ConstraintSystem

	// ProvingKey is used to generate proofs.
	ProvingKey plonk.ProvingKey

	// VerifyingKey is used to verify proofs.
	VerifyingKey plonk.VerifyingKey
}

// CompileCircuit compiles the PreimageCircuit and generates proving and
// verifying keys with PlonK over BN254.
//
// The SRS comes from unsafekzg and is only suitable for development. Each
// call draws a fresh SRS, so keys (and therefore the artifact fingerprint)
// differ between runs.
func CompileCircuit() (*CompiledCircuit, error) {
	var circuit PreimageCircuit

	cs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}

	srs, srsLagrange, err := unsafekzg.NewSRS(cs)
	if err != nil {
		return nil, fmt.Errorf("generate SRS: %w", err)
	}

	pk, vk, err := plonk.Setup(cs, srs, srsLagrange)
	if err != nil {
		return nil, fmt.Errorf("setup keys: %w", err)
	}

	return &CompiledCircuit{
		ConstraintSystem: cs,
		ProvingKey:       pk,
		VerifyingKey:     vk,
	}, nil
}

// GetCompiledCircuit returns a cached compiled circuit, compiling it on first call.
// This is thread-safe and returns the same instance for all callers.
func GetCompiledCircuit() (*CompiledCircuit, error) {
	compileMu.Lock()
	defer compileMu.Unlock()

	if compiledCircuit != nil {
		return compiledCircuit, nil
	}

	compiled, err := CompileCircuit()
	if err != nil {
		return nil, err
	}

	compiledCircuit = compiled
	return compiledCircuit, nil
}

// ResetCompiledCircuit clears the cached compiled circuit.
// This is mainly useful for testing.
func ResetCompiledCircuit() {
	compileMu.Lock()
	defer compileMu.Unlock()
	compiledCircuit = nil
}

// WriteArtifacts serializes the constraint system and keys into dir.
func (c *CompiledCircuit) WriteArtifacts(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	files := []struct {
		name string
		obj  io.WriterTo
	}{
		{ConstraintSystemFile, c.ConstraintSystem},
		{ProvingKeyFile, c.ProvingKey},
		{VerifyingKeyFile, c.VerifyingKey},
	}
	for _, f := range files {
		if err := writeArtifact(filepath.Join(dir, f.name), f.obj); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifact(path string, obj io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := obj.WriteTo(w); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}

// LoadArtifacts reads a compiled circuit previously written by WriteArtifacts.
func LoadArtifacts(dir string) (*CompiledCircuit, error) {
	cs := plonk.NewCS(ecc.BN254)
	pk := plonk.NewProvingKey(ecc.BN254)
	vk := plonk.NewVerifyingKey(ecc.BN254)

	files := []struct {
		name string
		obj  io.ReaderFrom
	}{
		{ConstraintSystemFile, cs},
		{ProvingKeyFile, pk},
		{VerifyingKeyFile, vk},
	}
	for _, f := range files {
		if err := readArtifact(filepath.Join(dir, f.name), f.obj); err != nil {
			return nil, err
		}
	}

	return &CompiledCircuit{
		ConstraintSystem: cs,
		ProvingKey:       pk,
		VerifyingKey:     vk,
	}, nil
}

// LoadVerifyingKey reads only the verifying key from dir.
func LoadVerifyingKey(dir string) (plonk.VerifyingKey, error) {
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if err := readArtifact(filepath.Join(dir, VerifyingKeyFile), vk); err != nil {
		return nil, err
	}
	return vk, nil
}

func readArtifact(path string, obj io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := obj.ReadFrom(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}
