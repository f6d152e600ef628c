package prover

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yourorg/veilpay/circuits"
	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/note"
)

// Proof is a generated proof plus its published public signals. Bytes is
// the serialized Groth16 proof; Public is the JSON public-input record a
// verifier rebuilds the public witness from.
type Proof struct {
	Kind   circuits.Kind
	Bytes  []byte
	Public []byte
}

// DepositInputs feed the deposit circuit.
type DepositInputs struct {
	Commitment [32]byte
	Amount     uint64
	Secret     *big.Int
}

// DepositPublic is the published signal set for a deposit proof.
type DepositPublic struct {
	Amount     uint64        `json:"amount"`
	Commitment hexutil.Bytes `json:"commitment"`
}

// WithdrawInputs feed the withdraw circuit. CommitmentAmount and Secret
// stay private.
type WithdrawInputs struct {
	Commitment       [32]byte
	Nullifier        [32]byte
	WithdrawAmount   uint64
	CommitmentAmount uint64
	Secret           *big.Int
}

type WithdrawPublic struct {
	Commitment     hexutil.Bytes `json:"commitment"`
	Nullifier      hexutil.Bytes `json:"nullifier"`
	WithdrawAmount uint64        `json:"withdrawAmount"`
}

// WithdrawChangeInputs feed the withdraw-with-change circuit.
type WithdrawChangeInputs struct {
	OldCommitment  [32]byte
	OldNullifier   [32]byte
	NewCommitment  [32]byte
	WithdrawAmount uint64
	OldAmount      uint64
	OldSecret      *big.Int
	NewAmount      uint64
	NewSecret      *big.Int
}

type WithdrawChangePublic struct {
	OldCommitment  hexutil.Bytes `json:"oldCommitment"`
	OldNullifier   hexutil.Bytes `json:"oldNullifier"`
	NewCommitment  hexutil.Bytes `json:"newCommitment"`
	WithdrawAmount uint64        `json:"withdrawAmount"`
}

// Local pre-checks. A violated assertion would only fail later, inside
// constraint solving, with an opaque error; failing here keeps the "no
// silent invalid proof" contract cheap to diagnose. Callers must treat
// these as non-retryable unless inputs change.

func checkAmount(amount uint64) error {
	if amount == 0 || amount > circuits.MaxAmount {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("amount out of circuit range"))
	}
	return nil
}

func (in DepositInputs) validate() error {
	if err := checkAmount(in.Amount); err != nil {
		return err
	}
	c, err := note.Commitment(in.Amount, in.Secret)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if c != in.Commitment {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("commitment does not match H(amount, secret)"))
	}
	return nil
}

func (in WithdrawInputs) validate() error {
	if err := checkAmount(in.WithdrawAmount); err != nil {
		return err
	}
	if in.WithdrawAmount > in.CommitmentAmount {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("withdraw amount exceeds commitment amount"))
	}
	c, err := note.Commitment(in.CommitmentAmount, in.Secret)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if c != in.Commitment {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("commitment does not match H(amount, secret)"))
	}
	n, err := note.Nullifier(in.Secret, in.Commitment)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if n != in.Nullifier {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("nullifier does not match H(secret, commitment)"))
	}
	return nil
}

func (in WithdrawChangeInputs) validate() error {
	if err := checkAmount(in.WithdrawAmount); err != nil {
		return err
	}
	// Conservation of value is the invariant that keeps the pool solvent.
	if in.OldAmount != in.WithdrawAmount+in.NewAmount {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("oldAmount != withdrawAmount + newAmount"))
	}
	oldC, err := note.Commitment(in.OldAmount, in.OldSecret)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if oldC != in.OldCommitment {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("old commitment does not match derivation"))
	}
	n, err := note.Nullifier(in.OldSecret, in.OldCommitment)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if n != in.OldNullifier {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("old nullifier does not match derivation"))
	}
	newC, err := note.Commitment(in.NewAmount, in.NewSecret)
	if err != nil {
		return apperror.ProofGenerationFailed(err)
	}
	if newC != in.NewCommitment {
		return apperror.ProofGenerationFailed(apperror.InvalidInput("new commitment does not match derivation"))
	}
	return nil
}
