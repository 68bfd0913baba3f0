package zkproof

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDigest_Deterministic(t *testing.T) {
	a, err := ComputeDigest([]byte("secret"))
	require.NoError(t, err)
	b, err := ComputeDigest([]byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Cmp(b))

	c, err := ComputeDigest([]byte("Secret"))
	require.NoError(t, err)
	assert.NotEqual(t, 0, a.Cmp(c), "different secrets should give different digests")
}

func TestComputeDigest_InField(t *testing.T) {
	d, err := ComputeDigest([]byte{0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, -1, d.Cmp(ecc.BN254.ScalarField()))
	assert.Equal(t, 1, d.Sign())
}

func TestComputeDigest_EmptySecret(t *testing.T) {
	_, err := ComputeDigest(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestSecretElement_ReducesModOrder(t *testing.T) {
	order := ecc.BN254.ScalarField()
	over := new(big.Int).Add(order, big.NewInt(5))

	elem, err := SecretElement(over.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(5), elem.BigInt(new(big.Int)).Int64())
}
