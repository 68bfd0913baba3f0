// Package payload packs a circuit fingerprint, public parameters and a proof
// into the single byte string attached to an attestation, and unpacks it.
//
// Layout:
//
//	fingerprint[32] || publicParams[var] || 0x40 0x40 0x40 || proof[var]
//
// The separator is a plain byte pattern. Decoding takes its first occurrence
// at or after offset 32 as the boundary, so public parameters that contain
// the pattern cannot be recovered intact. Use CheckPublicParams before
// encoding to detect that case.
package payload

import (
	"bytes"
	"fmt"

	"github.com/proofmark/proofmark/pkg/fingerprint"
)

// separator delimits the public parameters from the proof.
var separator = [3]byte{0x40, 0x40, 0x40}

// Separator returns a copy of the delimiter between the public parameters
// and the proof.
func Separator() []byte {
	return append([]byte(nil), separator[:]...)
}

// HeaderSize is the length of the fingerprint prefix.
const HeaderSize = fingerprint.Size

// Error is a categorized codec failure.
type Error string

const (
	// ErrTooShort indicates a payload shorter than the fingerprint header.
	ErrTooShort Error = "payload_too_short"

	// ErrSeparatorNotFound indicates no separator after the header.
	ErrSeparatorNotFound Error = "separator_not_found"

	// ErrAmbiguousPublicParams indicates public parameters containing the
	// separator; such a payload decodes with a shifted boundary.
	ErrAmbiguousPublicParams Error = "public_params_contain_separator"
)

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

// Payload is the decoded form of an attestation's data.
type Payload struct {
	Fingerprint  fingerprint.Fingerprint
	PublicParams []byte
	Proof        []byte
}

// Record is an attestation retrieved from an external source. ID is opaque
// to this package.
type Record struct {
	ID      string
	Payload []byte
}

// Encode concatenates fp, publicParams, the separator and proof. Empty
// segments are allowed.
func Encode(fp fingerprint.Fingerprint, publicParams, proof []byte) []byte {
	out := make([]byte, 0, EncodedLen(len(publicParams), len(proof)))
	out = append(out, fp[:]...)
	out = append(out, publicParams...)
	out = append(out, separator[:]...)
	out = append(out, proof...)
	return out
}

// EncodedLen returns the payload length for segments of the given sizes.
func EncodedLen(publicParamsLen, proofLen int) int {
	return HeaderSize + publicParamsLen + len(separator) + proofLen
}

// Decode splits data into its fingerprint, public parameters and proof.
// The returned slices alias data.
func Decode(data []byte) (*Payload, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrTooShort, len(data), HeaderSize)
	}

	j := bytes.Index(data[HeaderSize:], separator[:])
	if j < 0 {
		return nil, ErrSeparatorNotFound
	}
	k := HeaderSize + j

	p := &Payload{
		PublicParams: data[HeaderSize:k],
		Proof:        data[k+len(separator):],
	}
	copy(p.Fingerprint[:], data[:HeaderSize])
	return p, nil
}

// Encode packs p.
func (p *Payload) Encode() []byte {
	return Encode(p.Fingerprint, p.PublicParams, p.Proof)
}

// CheckPublicParams reports ErrAmbiguousPublicParams when publicParams would
// not round-trip through Decode: it contains the separator, or it ends with
// 0x40 bytes that merge with the separator into an earlier match.
func CheckPublicParams(publicParams []byte) error {
	tail := len(publicParams) - (len(separator) - 1)
	if tail < 0 {
		tail = 0
	}
	window := append(append([]byte(nil), publicParams[tail:]...), separator[:]...)
	if i := bytes.Index(publicParams, separator[:]); i >= 0 {
		return fmt.Errorf("%w: at offset %d", ErrAmbiguousPublicParams, i)
	}
	if i := bytes.Index(window, separator[:]); i != len(publicParams)-tail {
		return fmt.Errorf("%w: at offset %d", ErrAmbiguousPublicParams, tail+i)
	}
	return nil
}
