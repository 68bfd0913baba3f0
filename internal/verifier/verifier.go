// Package verifier scans retrieved attestation records for the local circuit
// and persists the proof material of matching ones.
//
// A scan is a fold: every record is first classified as Matched, Mismatched
// or Malformed, then the outcomes are applied in order. Matched outcomes
// overwrite the persisted artifacts, so the last match wins.
package verifier

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/proofmark/proofmark/pkg/fingerprint"
	"github.com/proofmark/proofmark/pkg/payload"
)

// ErrPersist wraps failures reported by the Sink. It aborts the scan.
var ErrPersist = errors.New("verifier: persist artifacts")

// Kind is the classification of one record.
type Kind int

const (
	// Matched records carry the local fingerprint.
	Matched Kind = iota
	// Mismatched records belong to another circuit.
	Mismatched
	// Malformed records could not be decoded.
	Malformed
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is the classification of a single record.
type Outcome struct {
	RecordID string
	Kind     Kind

	// Fingerprint is the decoded identity; zero for Malformed.
	Fingerprint fingerprint.Fingerprint

	// PublicParams and Proof are set for Matched only.
	PublicParams []byte
	Proof        []byte

	// Err is the decode failure for Malformed.
	Err error
}

// Sink persists recovered artifacts.
type Sink interface {
	SavePublicParams(publicParams []byte) error
	SaveProof(proof []byte) error
}

// Summary counts the outcomes applied by a scan.
type Summary struct {
	Matched    int
	Mismatched int
	Malformed  int

	// LastMatch is the ID of the record whose artifacts are persisted, or
	// empty when nothing matched.
	LastMatch string
}

// Total returns the number of records processed.
func (s Summary) Total() int {
	return s.Matched + s.Mismatched + s.Malformed
}

// Classify decodes rec and compares its fingerprint to local.
func Classify(local fingerprint.Fingerprint, rec payload.Record) Outcome {
	p, err := payload.Decode(rec.Payload)
	if err != nil {
		return Outcome{RecordID: rec.ID, Kind: Malformed, Err: err}
	}
	if !p.Fingerprint.Equal(local) {
		return Outcome{RecordID: rec.ID, Kind: Mismatched, Fingerprint: p.Fingerprint}
	}
	return Outcome{
		RecordID:     rec.ID,
		Kind:         Matched,
		Fingerprint:  p.Fingerprint,
		PublicParams: p.PublicParams,
		Proof:        p.Proof,
	}
}

// Match classifies records in the order supplied.
func Match(local fingerprint.Fingerprint, records []payload.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, Classify(local, rec))
	}
	return outcomes
}

// Verifier applies scan outcomes to a Sink.
type Verifier struct {
	local  fingerprint.Fingerprint
	sink   Sink
	logger *slog.Logger
}

// New creates a Verifier for the local fingerprint. A nil logger uses
// slog.Default().
func New(local fingerprint.Fingerprint, sink Sink, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{local: local, sink: sink, logger: logger}
}

// Run classifies records and applies the outcomes.
func (v *Verifier) Run(records []payload.Record) (Summary, error) {
	return v.Apply(Match(v.local, records))
}

// Apply reports every outcome and persists matched artifacts in order.
// Mismatched and malformed records are skipped. A Sink failure stops the
// scan and is returned wrapped in ErrPersist along with the partial summary.
func (v *Verifier) Apply(outcomes []Outcome) (Summary, error) {
	var s Summary
	for _, o := range outcomes {
		switch o.Kind {
		case Malformed:
			s.Malformed++
			v.logger.Warn("malformed payload",
				"record", o.RecordID,
				"reason", o.Err.Error(),
			)
		case Mismatched:
			s.Mismatched++
			v.logger.Info("circuit identity mismatch",
				"record", o.RecordID,
				"fingerprint", o.Fingerprint.String(),
			)
		case Matched:
			if err := v.persist(o); err != nil {
				return s, err
			}
			s.Matched++
			s.LastMatch = o.RecordID
			v.logger.Info("circuit identity matched",
				"record", o.RecordID,
				"publicParamsBytes", len(o.PublicParams),
				"proofBytes", len(o.Proof),
			)
		}
	}
	return s, nil
}

func (v *Verifier) persist(o Outcome) error {
	if err := v.sink.SavePublicParams(o.PublicParams); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrPersist, o.RecordID, err)
	}
	if err := v.sink.SaveProof(o.Proof); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrPersist, o.RecordID, err)
	}
	return nil
}
