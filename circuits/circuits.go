// Package circuits defines the three Groth16 circuits of the shield
// program: deposit, withdraw, and withdraw-with-change. All of them hash
// with in-circuit MiMC, which agrees with the native adapter in pkg/mimc.
package circuits

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

func Curve() ecc.ID { return ecc.BN254 }

// MaxAmount bounds every amount a circuit accepts, in base units
// (1e9 base units per display unit; largest vocabulary entry is 100).
const MaxAmount = uint64(100_000_000_000)

// Kind names a circuit identity; each kind carries its own parameter set.
type Kind string

const (
	KindDeposit            Kind = "deposit"
	KindWithdraw           Kind = "withdraw"
	KindWithdrawWithChange Kind = "withdraw-with-change"
)

// Blueprint returns an empty assignment of the circuit for kind, suitable
// for frontend.Compile.
func Blueprint(kind Kind) frontend.Circuit {
	switch kind {
	case KindDeposit:
		return &DepositCircuit{}
	case KindWithdraw:
		return &WithdrawCircuit{}
	case KindWithdrawWithChange:
		return &WithdrawWithChangeCircuit{}
	}
	return nil
}

func hashPair(api frontend.API, a, b frontend.Variable) frontend.Variable {
	h, _ := mimc.NewMiMC(api)
	h.Write(a)
	h.Write(b)
	return h.Sum()
}

func assertValidAmount(api frontend.API, amount frontend.Variable) {
	api.AssertIsDifferent(amount, 0)
	api.AssertIsLessOrEqual(amount, MaxAmount)
}
