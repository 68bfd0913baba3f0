package payload

import (
	"bytes"
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofmark/proofmark/pkg/fingerprint"
)

func testFingerprint(seed string) fingerprint.Fingerprint {
	return fingerprint.Fingerprint(sha256.Sum256([]byte(seed)))
}

func TestEncode_Layout(t *testing.T) {
	fp := testFingerprint("x")
	publicParams := []byte{0x01, 0x02}
	proof := []byte{0xAA, 0xBB, 0xCC}

	got := Encode(fp, publicParams, proof)

	want := append(fp.Bytes(), 0x01, 0x02, 0x40, 0x40, 0x40, 0xAA, 0xBB, 0xCC)
	assert.Equal(t, want, got)
	assert.Len(t, got, 32+2+3+3)
	assert.Equal(t, EncodedLen(2, 3), len(got))
}

func TestSeparator_ReturnsCopy(t *testing.T) {
	sep := Separator()
	assert.Equal(t, []byte{0x40, 0x40, 0x40}, sep)

	sep[0] = 0x00
	assert.Equal(t, []byte{0x40, 0x40, 0x40}, Separator())

	fp := testFingerprint("x")
	got := Encode(fp, nil, nil)
	assert.Equal(t, []byte{0x40, 0x40, 0x40}, got[HeaderSize:])

	p, err := Decode(got)
	require.NoError(t, err)
	assert.Empty(t, p.PublicParams)
	assert.Empty(t, p.Proof)
}

func TestDecode_Example(t *testing.T) {
	fp := testFingerprint("x")
	data := append(fp.Bytes(), 0x01, 0x02, 0x40, 0x40, 0x40, 0xAA, 0xBB, 0xCC)

	p, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, fp, p.Fingerprint)
	assert.Equal(t, []byte{0x01, 0x02}, p.PublicParams)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, p.Proof)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		publicParams []byte
		proof        []byte
	}{
		{"both empty", nil, nil},
		{"empty public params", nil, []byte{0x09}},
		{"empty proof", []byte{0x01}, nil},
		{"proof contains separator", []byte{0x01}, []byte{0x40, 0x40, 0x40, 0x40}},
		{"public params with lone 0x40", []byte{0x40, 0x00, 0x40, 0x40, 0x00}, []byte{0x01}},
		{"text public params", []byte("x = \"0x01\"\ny = \"0x02\"\n"), []byte("deadbeef")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := testFingerprint(tt.name)
			require.NoError(t, CheckPublicParams(tt.publicParams))

			p, err := Decode(Encode(fp, tt.publicParams, tt.proof))
			require.NoError(t, err)

			assert.Equal(t, fp, p.Fingerprint)
			assert.True(t, bytes.Equal(tt.publicParams, p.PublicParams), "public params mismatch")
			assert.True(t, bytes.Equal(tt.proof, p.Proof), "proof mismatch")
		})
	}
}

func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		var fp fingerprint.Fingerprint
		rng.Read(fp[:])
		publicParams := randomBytes(rng, rng.Intn(200))
		proof := randomBytes(rng, rng.Intn(200))
		if CheckPublicParams(publicParams) != nil {
			continue
		}

		p, err := Decode(Encode(fp, publicParams, proof))
		require.NoError(t, err)
		assert.Equal(t, fp, p.Fingerprint)
		assert.True(t, bytes.Equal(publicParams, p.PublicParams))
		assert.True(t, bytes.Equal(proof, p.Proof))
	}
}

// randomBytes draws from a small alphabet so 0x40 shows up often.
func randomBytes(rng *rand.Rand, n int) []byte {
	alphabet := []byte{0x00, 0x01, 0x40, 0xFF}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

func TestDecode_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, 31} {
		_, err := Decode(make([]byte, n))
		assert.ErrorIs(t, err, ErrTooShort, "length %d", n)
	}
}

func TestDecode_SeparatorNotFound(t *testing.T) {
	fp := testFingerprint("f")
	for _, publicParams := range [][]byte{nil, {0x01}, {0x40, 0x40}, bytes.Repeat([]byte{0x01, 0x40}, 10)} {
		_, err := Decode(append(fp.Bytes(), publicParams...))
		assert.ErrorIs(t, err, ErrSeparatorNotFound)
	}
}

func TestDecode_SeparatorInsideFingerprintIgnored(t *testing.T) {
	var fp fingerprint.Fingerprint
	for i := range fp {
		fp[i] = 0x40
	}

	p, err := Decode(Encode(fp, []byte{0x01}, []byte{0x02}))
	require.NoError(t, err)
	assert.Equal(t, fp, p.Fingerprint)
	assert.Equal(t, []byte{0x01}, p.PublicParams)
	assert.Equal(t, []byte{0x02}, p.Proof)
}

func TestDecode_FirstSeparatorWins(t *testing.T) {
	fp := testFingerprint("f")
	publicParams := []byte{0x01, 0x40, 0x40, 0x40, 0x02}

	p, err := Decode(Encode(fp, publicParams, []byte{0x03}))
	require.NoError(t, err)

	// Known limitation: the boundary lands inside the public parameters.
	assert.Equal(t, []byte{0x01}, p.PublicParams)
	assert.Equal(t, []byte{0x02, 0x40, 0x40, 0x40, 0x03}, p.Proof)
}

func TestCheckPublicParams(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		ambiguous bool
	}{
		{"empty", nil, false},
		{"plain", []byte{0x01, 0x02}, false},
		{"contains separator", []byte{0x00, 0x40, 0x40, 0x40}, true},
		{"trailing 0x40", []byte{0x01, 0x40}, true},
		{"trailing 0x40 0x40", []byte{0x01, 0x40, 0x40}, true},
		{"single 0x40", []byte{0x40}, true},
		{"inner 0x40 pair", []byte{0x40, 0x40, 0x01}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPublicParams(tt.in)
			if tt.ambiguous {
				assert.ErrorIs(t, err, ErrAmbiguousPublicParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPayload_Encode(t *testing.T) {
	p := &Payload{
		Fingerprint:  testFingerprint("p"),
		PublicParams: []byte("pub"),
		Proof:        []byte("proof"),
	}

	decoded, err := Decode(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
