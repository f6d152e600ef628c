// Package note holds the commitment/nullifier algebra. A commitment binds a
// hidden (amount, secret) pair to a 32-byte value that is safe to publish;
// the matching nullifier is revealed exactly once, at spend time, and is
// bound to the specific commitment so it cannot be replayed against another.
package note

import (
	"math/big"

	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/mimc"
)

// Width of on-ledger commitment and nullifier values.
const Width = 32

// Commitment computes H(amount, secret) as a fixed-width big-endian value.
func Commitment(amount uint64, secret *big.Int) ([Width]byte, error) {
	var out [Width]byte
	h, err := mimc.Hash(new(big.Int).SetUint64(amount), secret)
	if err != nil {
		return out, err
	}
	h.FillBytes(out[:])
	return out, nil
}

// Nullifier computes H(secret, commitment). Binding the commitment into the
// preimage prevents cross-commitment nullifier reuse with the same secret.
func Nullifier(secret *big.Int, commitment [Width]byte) ([Width]byte, error) {
	var out [Width]byte
	h, err := mimc.Hash(secret, new(big.Int).SetBytes(commitment[:]))
	if err != nil {
		return out, err
	}
	h.FillBytes(out[:])
	return out, nil
}

// EncodeBigEndian writes v into exactly width bytes, big-endian.
// Fails with InvalidInput when v is negative or does not fit.
func EncodeBigEndian(v *big.Int, width int) ([]byte, error) {
	if v == nil || v.Sign() < 0 {
		return nil, apperror.InvalidInput("encode: value must be non-negative")
	}
	if (v.BitLen()+7)/8 > width {
		return nil, apperror.InvalidInput("encode: value does not fit width")
	}
	out := make([]byte, width)
	v.FillBytes(out)
	return out, nil
}

// DecodeBigEndian is the exact inverse of EncodeBigEndian.
func DecodeBigEndian(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
