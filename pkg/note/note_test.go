package note

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/mimc"
)

func randSecret(t *testing.T) *big.Int {
	t.Helper()
	buf := make([]byte, 31)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return new(big.Int).SetBytes(buf)
}

func TestCommitmentDeterministic(t *testing.T) {
	secret := randSecret(t)

	c1, err := Commitment(100_000_000, secret)
	require.NoError(t, err)
	c2, err := Commitment(100_000_000, secret)
	require.NoError(t, err)
	require.Equal(t, c1, c2)
}

func TestCommitmentHiding(t *testing.T) {
	// Different amounts with independent secrets must be indistinguishable
	// in format: fixed width, and no big-endian encoding of the amount
	// surviving as a substring of the output.
	amounts := []uint64{10_000_000, 100_000_000_000}
	for _, amt := range amounts {
		c, err := Commitment(amt, randSecret(t))
		require.NoError(t, err)
		require.Len(t, c[:], Width)

		var amtBE [8]byte
		binary.BigEndian.PutUint64(amtBE[:], amt)
		require.False(t, bytes.Contains(c[:], amtBE[:]), "amount leaked into commitment")
	}
}

func TestNullifierBinding(t *testing.T) {
	secret := randSecret(t)

	cA, err := Commitment(10_000_000, secret)
	require.NoError(t, err)
	cB, err := Commitment(50_000_000, secret)
	require.NoError(t, err)
	require.NotEqual(t, cA, cB)

	nA, err := Nullifier(secret, cA)
	require.NoError(t, err)
	nB, err := Nullifier(secret, cB)
	require.NoError(t, err)
	require.NotEqual(t, nA, nB, "same secret must yield distinct nullifiers per commitment")
}

func TestNullifierMatchesHashLayout(t *testing.T) {
	secret := big.NewInt(424242)
	c, err := Commitment(500_000_000, secret)
	require.NoError(t, err)

	n, err := Nullifier(secret, c)
	require.NoError(t, err)

	want, err := mimc.Hash(secret, new(big.Int).SetBytes(c[:]))
	require.NoError(t, err)
	require.Equal(t, 0, want.Cmp(new(big.Int).SetBytes(n[:])))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(255),
		big.NewInt(256),
		new(big.Int).SetUint64(1<<63 + 12345),
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	for _, v := range values {
		enc, err := EncodeBigEndian(v, 32)
		require.NoError(t, err)
		require.Len(t, enc, 32)
		require.Equal(t, 0, v.Cmp(DecodeBigEndian(enc)))
	}
}

func TestEncodeRejectsOverflowAndNegative(t *testing.T) {
	_, err := EncodeBigEndian(big.NewInt(256), 1)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	_, err = EncodeBigEndian(big.NewInt(-5), 32)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	// Boundary: exactly fits.
	enc, err := EncodeBigEndian(big.NewInt(255), 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff}, enc)
}
