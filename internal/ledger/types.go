// Package ledger models the on-chain shield program the core talks to: the
// bit-exact account layouts, the transaction/instruction shapes, the client
// interface consumed by the scanner and transaction builder, and two
// implementations (JSON-RPC and in-memory).
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Address is a derived ledger account address (see address.go).
type Address [32]byte

func (a Address) Hex() string { return hexutil.Encode(a[:]) }

// TxSignature identifies a submitted transaction.
type TxSignature [32]byte

func (s TxSignature) Hex() string { return hexutil.Encode(s[:]) }

// Account is raw on-ledger state: an address and its data blob.
type Account struct {
	Address Address
	Data    []byte
}

// InstructionKind tags the shield program instruction encoded in an
// Instruction value.
type InstructionKind uint8

const (
	// InstrCreateCommitment deposits Amount into the pool under Commitment.
	InstrCreateCommitment InstructionKind = iota + 1
	// InstrSpendCommitment reveals Nullifier, pays Recipient
	// WithdrawAmount, and optionally creates ChangeCommitment atomically.
	InstrSpendCommitment
	// InstrCreateRequest opens a payment request account.
	InstrCreateRequest
	// InstrPayRequest marks a pending request paid; it rides in the same
	// transaction as the spend that pays the payee.
	InstrPayRequest
	// InstrCancelRequest cancels a pending request.
	InstrCancelRequest
)

// Instruction is one shield program instruction. Fields are used according
// to Kind; unused fields stay zero.
type Instruction struct {
	Kind InstructionKind

	// CreateCommitment
	Commitment [32]byte
	Amount     uint64
	Proof      []byte
	Public     []byte // JSON public signals, verified by the program

	// SpendCommitment
	Nullifier        [32]byte
	Recipient        Address
	WithdrawAmount   uint64
	ChangeCommitment *[32]byte

	// Requests
	RequestID    [16]byte
	Payee        Address
	ExpiresAt    int64
	MetadataHash [32]byte
}

// Transaction is an atomic batch of instructions: either every instruction
// applies or none do.
type Transaction struct {
	Blockhash    [32]byte
	Instructions []Instruction
	Signature    []byte // wallet signature over Encode()
}

// Encode produces the deterministic byte string the wallet signs.
func (tx *Transaction) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(tx.Blockhash[:])
	var scratch [8]byte
	for _, in := range tx.Instructions {
		buf.WriteByte(byte(in.Kind))
		buf.Write(in.Commitment[:])
		binary.BigEndian.PutUint64(scratch[:], in.Amount)
		buf.Write(scratch[:])
		buf.Write(in.Nullifier[:])
		buf.Write(in.Recipient[:])
		binary.BigEndian.PutUint64(scratch[:], in.WithdrawAmount)
		buf.Write(scratch[:])
		if in.ChangeCommitment != nil {
			buf.WriteByte(1)
			buf.Write(in.ChangeCommitment[:])
		} else {
			buf.WriteByte(0)
		}
		buf.Write(in.RequestID[:])
		buf.Write(in.Payee[:])
		binary.BigEndian.PutUint64(scratch[:], uint64(in.ExpiresAt))
		buf.Write(scratch[:])
		buf.Write(in.MetadataHash[:])
		buf.Write(in.Proof)
		buf.Write(in.Public)
	}
	return buf.Bytes()
}

// SimulationResult reports a dry run. Logs carry per-instruction program
// output whether or not the run succeeded.
type SimulationResult struct {
	Ok   bool
	Err  string
	Logs []string
}

// Client is the ledger RPC surface the core consumes.
type Client interface {
	// Account returns the account at addr, or nil if it does not exist.
	Account(ctx context.Context, addr Address) (*Account, error)

	// AccountsBySize enumerates program accounts whose data is exactly
	// size bytes. Callers filter by discriminator.
	AccountsBySize(ctx context.Context, size int) ([]Account, error)

	RecentBlockhash(ctx context.Context) ([32]byte, error)

	// Simulate dry-runs tx. A failed simulation is returned in the result,
	// not as an error; errors are transport-level only.
	Simulate(ctx context.Context, tx *Transaction) (*SimulationResult, error)

	Submit(ctx context.Context, tx *Transaction) (TxSignature, error)

	Confirm(ctx context.Context, sig TxSignature) error
}
