// Package mimc adapts the native BN254 MiMC permutation into the
// variable-arity field hash used for every commitment, nullifier, and key
// derivation in the protocol. The same sponge is available in-circuit via
// gnark's std/hash/mimc, so native and proven derivations agree bit for bit.
package mimc

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/yourorg/veilpay/pkg/apperror"
)

// Modulus returns the BN254 scalar field modulus. Every hash input must be
// a canonical field element below this bound.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Hash absorbs each input as one 32-byte big-endian field element and
// returns the digest as an integer in [0, Modulus).
// Fails with InvalidInput if any input is negative or not reduced.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	mod := fr.Modulus()
	h := mimcNative.NewMiMC()
	var block [fr.Bytes]byte
	for _, in := range inputs {
		if in == nil || in.Sign() < 0 || in.Cmp(mod) >= 0 {
			return nil, apperror.InvalidInput("hash input outside the scalar field")
		}
		in.FillBytes(block[:])
		if _, err := h.Write(block[:]); err != nil {
			return nil, apperror.InvalidInput(err.Error())
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// HashUint64 is Hash over small integers, used for (slotIndex, amount)
// style derivations.
func HashUint64(first *big.Int, rest ...uint64) (*big.Int, error) {
	inputs := make([]*big.Int, 0, len(rest)+1)
	inputs = append(inputs, first)
	for _, v := range rest {
		inputs = append(inputs, new(big.Int).SetUint64(v))
	}
	return Hash(inputs...)
}
