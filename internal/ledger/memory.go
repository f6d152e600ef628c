package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrStaleBlockhash is a submission failure the caller may retry with a
// fresh blockhash.
var ErrStaleBlockhash = errors.New("ledger: stale blockhash")

// Memory implements the full shield program semantics in process. It backs
// the scenario tests and the CLI's --ledger mem mode: commitment
// uniqueness, nullifier double-spend rejection, atomic multi-instruction
// transactions, payment request transitions, and simulation with program
// logs.
//
// Time is a logical clock that ticks once per committed transaction, which
// keeps creation-time ordering deterministic in tests.
type Memory struct {
	mu        sync.Mutex
	accounts  map[Address][]byte
	submitted map[TxSignature]struct{}
	clock     int64
	mint      [32]byte

	// VerifyProof, when set, is called for every proof-carrying
	// instruction. Nil accepts all proofs (program treated as opaque).
	VerifyProof func(in Instruction) error
}

func NewMemory(mint [32]byte) *Memory {
	return &Memory{
		accounts:  make(map[Address][]byte),
		submitted: make(map[TxSignature]struct{}),
		clock:     1,
		mint:      mint,
	}
}

// Now exposes the logical clock so tests can pick expiry times.
func (m *Memory) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

func (m *Memory) Account(_ context.Context, addr Address) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return &Account{Address: addr, Data: out}, nil
}

func (m *Memory) AccountsBySize(_ context.Context, size int) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Account
	for addr, data := range m.accounts {
		if len(data) != size {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, Account{Address: addr, Data: cp})
	}
	return out, nil
}

func (m *Memory) RecentBlockhash(_ context.Context) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockhashLocked(), nil
}

func (m *Memory) blockhashLocked() [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(m.clock))
	return [32]byte(crypto.Keccak256Hash(append([]byte("veil:blockhash:"), buf[:]...)))
}

func (m *Memory) Simulate(_ context.Context, tx *Transaction) (*SimulationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, res := m.execute(tx)
	return res, nil
}

func (m *Memory) Submit(_ context.Context, tx *Transaction) (TxSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Blockhash != m.blockhashLocked() {
		return TxSignature{}, ErrStaleBlockhash
	}
	staged, res := m.execute(tx)
	if !res.Ok {
		return TxSignature{}, fmt.Errorf("program rejected transaction: %s", res.Err)
	}
	m.accounts = staged
	m.clock++

	sig := TxSignature(crypto.Keccak256Hash(tx.Encode()))
	m.submitted[sig] = struct{}{}
	return sig, nil
}

func (m *Memory) Confirm(_ context.Context, sig TxSignature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submitted[sig]; !ok {
		return errors.New("ledger: unknown transaction signature")
	}
	return nil
}

// execute runs tx against a staged copy of the account set. The copy is
// only installed by Submit, so a failing instruction can never leave a
// half-applied transaction behind.
func (m *Memory) execute(tx *Transaction) (map[Address][]byte, *SimulationResult) {
	staged := make(map[Address][]byte, len(m.accounts)+len(tx.Instructions))
	for k, v := range m.accounts {
		staged[k] = v
	}

	res := &SimulationResult{Ok: true}
	fail := func(i int, format string, args ...any) {
		res.Ok = false
		res.Err = fmt.Sprintf("instruction %d: %s", i, fmt.Sprintf(format, args...))
		res.Logs = append(res.Logs, "error: "+res.Err)
	}

	for i, in := range tx.Instructions {
		switch in.Kind {
		case InstrCreateCommitment:
			if err := m.checkProof(in); err != nil {
				fail(i, "proof verification failed: %v", err)
				return nil, res
			}
			addr := CommitmentAddress(in.Commitment)
			if _, exists := staged[addr]; exists {
				fail(i, "commitment account %s already exists", addr.Hex())
				return nil, res
			}
			acct := CommitmentAccount{
				Commitment: in.Commitment,
				Mint:       m.mint,
				CreatedAt:  m.clock,
			}
			staged[addr] = acct.MarshalBinary()
			res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: created commitment %s", i, addr.Hex()))

		case InstrSpendCommitment:
			if err := m.checkProof(in); err != nil {
				fail(i, "proof verification failed: %v", err)
				return nil, res
			}
			cmtAddr := CommitmentAddress(in.Commitment)
			data, exists := staged[cmtAddr]
			if !exists {
				fail(i, "commitment account %s does not exist", cmtAddr.Hex())
				return nil, res
			}
			acct, err := DecodeCommitmentAccount(data)
			if err != nil {
				fail(i, "corrupt commitment account: %v", err)
				return nil, res
			}
			nulAddr := NullifierAddress(in.Nullifier)
			if _, spent := staged[nulAddr]; spent {
				fail(i, "nullifier %s already revealed", nulAddr.Hex())
				return nil, res
			}
			staged[nulAddr] = NullifierAccountData()
			acct.Spent = true
			staged[cmtAddr] = acct.MarshalBinary()
			res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: paid %d to %s", i, in.WithdrawAmount, in.Recipient.Hex()))

			if in.ChangeCommitment != nil {
				chAddr := CommitmentAddress(*in.ChangeCommitment)
				if _, exists := staged[chAddr]; exists {
					fail(i, "change commitment account %s already exists", chAddr.Hex())
					return nil, res
				}
				change := CommitmentAccount{
					Commitment: *in.ChangeCommitment,
					Mint:       m.mint,
					CreatedAt:  m.clock,
				}
				staged[chAddr] = change.MarshalBinary()
				res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: created change commitment %s", i, chAddr.Hex()))
			}

		case InstrCreateRequest:
			addr := RequestAddress(in.RequestID)
			if _, exists := staged[addr]; exists {
				fail(i, "request %s already exists", addr.Hex())
				return nil, res
			}
			req := RequestAccount{
				ID:           in.RequestID,
				Payee:        in.Payee,
				Amount:       in.Amount,
				CreatedAt:    m.clock,
				ExpiresAt:    in.ExpiresAt,
				Status:       RequestPending,
				MetadataHash: in.MetadataHash,
			}
			staged[addr] = req.MarshalBinary()
			res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: created request %s", i, addr.Hex()))

		case InstrPayRequest:
			addr := RequestAddress(in.RequestID)
			data, exists := staged[addr]
			if !exists {
				fail(i, "request %s does not exist", addr.Hex())
				return nil, res
			}
			req, err := DecodeRequestAccount(data)
			if err != nil {
				fail(i, "corrupt request account: %v", err)
				return nil, res
			}
			if req.Status != RequestPending {
				fail(i, "request is %s, not pending", req.Status)
				return nil, res
			}
			if req.ExpiresAt > 0 && m.clock > req.ExpiresAt {
				fail(i, "request expired")
				return nil, res
			}
			if !txPaysPayee(tx, req.Payee, req.Amount) {
				fail(i, "no spend in this transaction pays the payee the requested amount")
				return nil, res
			}
			req.Status = RequestPaid
			req.PaidAt = m.clock
			staged[addr] = req.MarshalBinary()
			res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: request %s paid", i, addr.Hex()))

		case InstrCancelRequest:
			addr := RequestAddress(in.RequestID)
			data, exists := staged[addr]
			if !exists {
				fail(i, "request %s does not exist", addr.Hex())
				return nil, res
			}
			req, err := DecodeRequestAccount(data)
			if err != nil {
				fail(i, "corrupt request account: %v", err)
				return nil, res
			}
			if req.Status != RequestPending {
				fail(i, "request is %s, not pending", req.Status)
				return nil, res
			}
			req.Status = RequestCancelled
			staged[addr] = req.MarshalBinary()
			res.Logs = append(res.Logs, fmt.Sprintf("instruction %d: request %s cancelled", i, addr.Hex()))

		default:
			fail(i, "unknown instruction kind %d", in.Kind)
			return nil, res
		}
	}
	return staged, res
}

func (m *Memory) checkProof(in Instruction) error {
	if m.VerifyProof == nil {
		return nil
	}
	return m.VerifyProof(in)
}

// txPaysPayee enforces request-pay atomicity: the paying spend must ride in
// the same transaction as the pay-request instruction.
func txPaysPayee(tx *Transaction, payee Address, amount uint64) bool {
	for _, in := range tx.Instructions {
		if in.Kind == InstrSpendCommitment && in.Recipient == payee && in.WithdrawAmount == amount {
			return true
		}
	}
	return false
}
