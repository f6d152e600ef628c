package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// WithdrawCircuit spends a commitment in full view of the ledger without
// revealing which deposit created it. The committed amount stays private;
// the circuit only asserts the withdrawal fits inside it and that the
// revealed nullifier is the one bound to this commitment.
type WithdrawCircuit struct {
	Commitment     frontend.Variable `gnark:",public"`
	Nullifier      frontend.Variable `gnark:",public"`
	WithdrawAmount frontend.Variable `gnark:",public"`

	CommitmentAmount frontend.Variable
	Secret           frontend.Variable
}

func (c *WithdrawCircuit) Define(api frontend.API) error {
	assertValidAmount(api, c.WithdrawAmount)
	assertValidAmount(api, c.CommitmentAmount)
	api.AssertIsLessOrEqual(c.WithdrawAmount, c.CommitmentAmount)

	api.AssertIsEqual(c.Commitment, hashPair(api, c.CommitmentAmount, c.Secret))
	api.AssertIsEqual(c.Nullifier, hashPair(api, c.Secret, c.Commitment))
	return nil
}
