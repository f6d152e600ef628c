package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// DepositCircuit proves knowledge of the secret behind a published
// commitment. The amount is public for deposits: the ledger sees the funds
// move into the pool; only the secret stays hidden.
type DepositCircuit struct {
	Amount     frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`

	Secret frontend.Variable
}

func (c *DepositCircuit) Define(api frontend.API) error {
	assertValidAmount(api, c.Amount)
	api.AssertIsEqual(c.Commitment, hashPair(api, c.Amount, c.Secret))
	return nil
}
