// Package fingerprint computes the circuit identity: a SHA-256 digest over
// every regular file below a circuit's build directory, including files
// reached through a symlink.
//
// Files are fed into one running digest in byte-wise order of their
// slash-separated path relative to the root, so the value does not depend on
// how the underlying filesystem enumerates directory entries.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// Size is the length of a fingerprint in bytes.
const Size = sha256.Size

// chunkSize is the read buffer used while streaming files into the digest.
const chunkSize = 1024

// ErrInvalidLength is returned when raw bytes are not exactly Size long.
var ErrInvalidLength = errors.New("fingerprint: invalid length")

// Fingerprint identifies a circuit's build artifact set.
type Fingerprint [Size]byte

// Compute walks root on the local filesystem and returns its fingerprint.
func Compute(root string) (Fingerprint, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat circuit root: %w", err)
	}
	if !info.IsDir() {
		return Fingerprint{}, fmt.Errorf("circuit root is not a directory: %s", root)
	}
	return ComputeFS(os.DirFS(root), ".")
}

// ComputeFS fingerprints the tree at dir inside fsys. Any traversal or read
// failure aborts the computation.
func ComputeFS(fsys fs.FS, dir string) (Fingerprint, error) {
	files, err := ListFiles(fsys, dir)
	if err != nil {
		return Fingerprint{}, err
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)
	for _, name := range files {
		if err := hashFile(h, fsys, name, buf); err != nil {
			return Fingerprint{}, err
		}
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

// ListFiles returns the regular files below dir in the order they are hashed.
// A symlink to a regular file is listed under its own path; symlinked
// directories are not descended into, and dangling links and other special
// files are skipped.
func ListFiles(fsys fs.FS, dir string) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		switch {
		case d.Type().IsRegular():
			files = append(files, path)
		case d.Type()&fs.ModeSymlink != 0:
			info, err := fs.Stat(fsys, path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if info.Mode().IsRegular() {
				files = append(files, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// fs.WalkDir sorts per directory, which orders "a/b" after "a.txt".
	// The digest is defined over the full path order instead.
	sort.Strings(files)
	return files, nil
}

func hashFile(h hash.Hash, fsys fs.FS, name string, buf []byte) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// onlyReader hides WriterTo so io.CopyBuffer streams through buf.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

// FromBytes copies b into a Fingerprint.
func FromBytes(b []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(b) != Size {
		return fp, fmt.Errorf("%w: got %d bytes, expected %d", ErrInvalidLength, len(b), Size)
	}
	copy(fp[:], b)
	return fp, nil
}

// ParseHex decodes a hex fingerprint, with or without a 0x prefix.
func ParseHex(s string) (Fingerprint, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	return FromBytes(b)
}

// Bytes returns a copy of the raw digest.
func (f Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, f[:])
	return out
}

// Equal reports whether f and other are byte-for-byte identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return bytes.Equal(f[:], other[:])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Base58 returns the base58 (bitcoin alphabet) encoding.
func (f Fingerprint) Base58() string {
	return base58.Encode(f[:])
}

// CID wraps the digest as a CIDv1 with the raw codec and a sha2-256
// multihash, so the identity can be looked up in content-addressed stores.
func (f Fingerprint) CID() (cid.Cid, error) {
	mh, err := multihash.Encode(f[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef, fmt.Errorf("encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
