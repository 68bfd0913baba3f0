// Package artifacts persists recovered proof material on disk.
//
// The proof is stored as hexadecimal text and the public parameters as raw
// bytes, matching the files the external prover and verifier exchange.
package artifacts

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact names used by the IPC service and logs.
const (
	NameProof        = "proof"
	NamePublicParams = "public_params"
)

var (
	// ErrInvalidProofEncoding is returned when the stored proof is not valid hex.
	ErrInvalidProofEncoding = errors.New("artifacts: invalid proof encoding")

	// ErrUnknownArtifact is returned by Load for names other than NameProof
	// and NamePublicParams.
	ErrUnknownArtifact = errors.New("artifacts: unknown artifact")
)

// Store reads and writes the proof and public parameter files.
type Store struct {
	ProofPath        string
	PublicParamsPath string
}

// NewStore creates a Store for the given file paths.
func NewStore(proofPath, publicParamsPath string) *Store {
	return &Store{ProofPath: proofPath, PublicParamsPath: publicParamsPath}
}

// SaveProof writes proof as lowercase hex text, replacing any previous proof.
func (s *Store) SaveProof(proof []byte) error {
	if err := writeAtomic(s.ProofPath, []byte(hex.EncodeToString(proof))); err != nil {
		return fmt.Errorf("save proof: %w", err)
	}
	return nil
}

// LoadProof reads and hex-decodes the proof. Surrounding whitespace is
// ignored so files edited by hand still load.
func (s *Store) LoadProof() ([]byte, error) {
	text, err := os.ReadFile(s.ProofPath)
	if err != nil {
		return nil, fmt.Errorf("load proof: %w", err)
	}
	proof, err := hex.DecodeString(string(bytes.TrimSpace(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProofEncoding, s.ProofPath, err)
	}
	return proof, nil
}

// SavePublicParams writes the public parameters verbatim.
func (s *Store) SavePublicParams(publicParams []byte) error {
	if err := writeAtomic(s.PublicParamsPath, publicParams); err != nil {
		return fmt.Errorf("save public params: %w", err)
	}
	return nil
}

// LoadPublicParams reads the public parameters verbatim.
func (s *Store) LoadPublicParams() ([]byte, error) {
	data, err := os.ReadFile(s.PublicParamsPath)
	if err != nil {
		return nil, fmt.Errorf("load public params: %w", err)
	}
	return data, nil
}

// Load returns the decoded artifact with the given name.
func (s *Store) Load(name string) ([]byte, error) {
	switch name {
	case NameProof:
		return s.LoadProof()
	case NamePublicParams:
		return s.LoadPublicParams()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArtifact, name)
	}
}

// writeAtomic writes data to a temp file next to path, syncs it and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
