package ledger

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Account addresses are derived, never chosen: keccak256 over a domain
// prefix and the fixed-width payload. Everyone who knows a commitment or
// nullifier can derive the same address, which is what makes existence
// checks a one-lookup operation.

const (
	commitmentPrefix = "veil:commitment:"
	nullifierPrefix  = "veil:nullifier:"
	requestPrefix    = "veil:request:"
)

func derive(prefix string, payload []byte) Address {
	buf := make([]byte, 0, len(prefix)+len(payload))
	buf = append(buf, prefix...)
	buf = append(buf, payload...)
	return Address(crypto.Keccak256Hash(buf))
}

// CommitmentAddress returns keccak256("veil:commitment:" ‖ commitment).
func CommitmentAddress(commitment [32]byte) Address {
	return derive(commitmentPrefix, commitment[:])
}

// NullifierAddress returns keccak256("veil:nullifier:" ‖ nullifier).
func NullifierAddress(nullifier [32]byte) Address {
	return derive(nullifierPrefix, nullifier[:])
}

// RequestAddress returns keccak256("veil:request:" ‖ requestID).
func RequestAddress(id [16]byte) Address {
	return derive(requestPrefix, id[:])
}
