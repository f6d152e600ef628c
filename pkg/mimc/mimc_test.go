package mimc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/veilpay/pkg/apperror"
)

func TestHashDeterministic(t *testing.T) {
	a := big.NewInt(42)
	b := big.NewInt(1337)

	h1, err := Hash(a, b)
	require.NoError(t, err)
	h2, err := Hash(a, b)
	require.NoError(t, err)
	require.Equal(t, 0, h1.Cmp(h2))
}

func TestHashArityMatters(t *testing.T) {
	a := big.NewInt(7)

	h2, err := Hash(a, a)
	require.NoError(t, err)
	h3, err := Hash(a, a, a)
	require.NoError(t, err)
	require.NotEqual(t, 0, h2.Cmp(h3))
}

func TestHashOrderMatters(t *testing.T) {
	a := big.NewInt(1)
	b := big.NewInt(2)

	hab, err := Hash(a, b)
	require.NoError(t, err)
	hba, err := Hash(b, a)
	require.NoError(t, err)
	require.NotEqual(t, 0, hab.Cmp(hba))
}

func TestHashOutputInField(t *testing.T) {
	h, err := Hash(big.NewInt(99), big.NewInt(100), big.NewInt(101))
	require.NoError(t, err)
	require.True(t, h.Sign() >= 0)
	require.True(t, h.Cmp(Modulus()) < 0)
}

func TestHashRejectsOutOfField(t *testing.T) {
	_, err := Hash(Modulus())
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	_, err = Hash(big.NewInt(-1))
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	_, err = Hash(nil)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))
}

func TestHashUint64MatchesHash(t *testing.T) {
	mk := big.NewInt(555)

	got, err := HashUint64(mk, 3, 50_000_000)
	require.NoError(t, err)
	want, err := Hash(mk, big.NewInt(3), big.NewInt(50_000_000))
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(want))
}
