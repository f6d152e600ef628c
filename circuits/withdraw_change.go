package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// WithdrawWithChangeCircuit spends one commitment and mints a change
// commitment for the remainder inside the same proof. Conservation of value
// (old = withdrawn + change) is the core invariant: a proof that spends more
// than it recreates would destroy pool funds.
type WithdrawWithChangeCircuit struct {
	OldCommitment  frontend.Variable `gnark:",public"`
	OldNullifier   frontend.Variable `gnark:",public"`
	NewCommitment  frontend.Variable `gnark:",public"`
	WithdrawAmount frontend.Variable `gnark:",public"`

	OldAmount frontend.Variable
	OldSecret frontend.Variable
	NewAmount frontend.Variable
	NewSecret frontend.Variable
}

func (c *WithdrawWithChangeCircuit) Define(api frontend.API) error {
	assertValidAmount(api, c.WithdrawAmount)
	assertValidAmount(api, c.OldAmount)
	assertValidAmount(api, c.NewAmount)

	// Conservation: oldAmount = withdrawAmount + newAmount.
	api.AssertIsEqual(c.OldAmount, api.Add(c.WithdrawAmount, c.NewAmount))

	api.AssertIsEqual(c.OldCommitment, hashPair(api, c.OldAmount, c.OldSecret))
	api.AssertIsEqual(c.OldNullifier, hashPair(api, c.OldSecret, c.OldCommitment))
	api.AssertIsEqual(c.NewCommitment, hashPair(api, c.NewAmount, c.NewSecret))
	return nil
}
