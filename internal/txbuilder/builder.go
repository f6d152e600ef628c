// Package txbuilder assembles, proves, and executes the three shield
// operations against the ledger: deposit, withdraw, and withdraw with
// change, plus the payment-request flow built on top of them. Every flow
// follows the same contract: validate at the API boundary, prove, simulate,
// submit (one retry on a retryable failure), confirm.
package txbuilder

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/veilpay/internal/keys"
	"github.com/yourorg/veilpay/internal/ledger"
	"github.com/yourorg/veilpay/internal/prover"
	"github.com/yourorg/veilpay/internal/scanner"
	"github.com/yourorg/veilpay/internal/wallet"
	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/note"
)

// DefaultMaxSlotAttempts bounds deposit slot-collision retries. Collisions
// require another wallet owning the same (masterKey, slot, amount) secret,
// so exhausting this is effectively unreachable.
const DefaultMaxSlotAttempts = 16

// Prover is the proof surface the builder needs. *prover.Orchestrator
// satisfies it; tests substitute a fake to keep flows fast.
type Prover interface {
	GenerateDepositProof(prover.DepositInputs) (*prover.Proof, error)
	GenerateWithdrawProof(prover.WithdrawInputs) (*prover.Proof, error)
	GenerateWithdrawWithChangeProof(prover.WithdrawChangeInputs) (*prover.Proof, error)
}

// Receipt reports one executed operation.
type Receipt struct {
	Signature        ledger.TxSignature
	Commitment       [32]byte
	SlotIndex        uint32
	Nullifier        [32]byte
	ChangeCommitment *[32]byte
	ChangeAmount     uint64
}

type slotKey struct {
	amount uint64
	slot   uint32
}

// Builder executes operations for one wallet session.
type Builder struct {
	cli    ledger.Client
	eng    *keys.Engine
	signer wallet.Signer
	prover Prover
	scan   *scanner.Scanner
	vocab  []uint64
	log    zerolog.Logger

	MaxSlotAttempts int

	// Deposit slot selection is the one serialized step: concurrent
	// deposits in a session must not race onto the same slot index.
	slotMu   sync.Mutex
	reserved map[slotKey]struct{}
}

func New(cli ledger.Client, eng *keys.Engine, signer wallet.Signer, p Prover, scan *scanner.Scanner, vocab []uint64, log zerolog.Logger) *Builder {
	return &Builder{
		cli:             cli,
		eng:             eng,
		signer:          signer,
		prover:          p,
		scan:            scan,
		vocab:           vocab,
		log:             log.With().Str("component", "txbuilder").Logger(),
		MaxSlotAttempts: DefaultMaxSlotAttempts,
		reserved:        make(map[slotKey]struct{}),
	}
}

// validateAmount enforces the vocabulary before any network interaction.
func (b *Builder) validateAmount(amount uint64) error {
	for _, v := range b.vocab {
		if v == amount {
			return nil
		}
	}
	return apperror.InvalidAmount(amount)
}

// Deposit shields amount under the next free commitment slot.
func (b *Builder) Deposit(ctx context.Context, amount uint64) (*Receipt, error) {
	if err := b.validateAmount(amount); err != nil {
		return nil, err
	}
	master, err := b.eng.MasterKey(ctx)
	if err != nil {
		return nil, err
	}

	slot, secret, commitment, err := b.chooseSlot(ctx, master, amount)
	if err != nil {
		return nil, err
	}
	defer b.release(amount, slot)

	proof, err := b.prover.GenerateDepositProof(prover.DepositInputs{
		Commitment: commitment,
		Amount:     amount,
		Secret:     secret,
	})
	if err != nil {
		return nil, err
	}

	sig, err := b.execute(ctx, ledger.Instruction{
		Kind:       ledger.InstrCreateCommitment,
		Commitment: commitment,
		Amount:     amount,
		Proof:      proof.Bytes,
		Public:     proof.Public,
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().Uint64("amount", amount).Uint32("slot", slot).Str("tx", sig.Hex()).Msg("deposit confirmed")
	return &Receipt{Signature: sig, Commitment: commitment, SlotIndex: slot}, nil
}

// chooseSlot walks slot indices upward until the derived commitment has no
// account on ledger and no in-session reservation. Bounded attempts; the
// reservation is dropped when the operation finishes either way.
func (b *Builder) chooseSlot(ctx context.Context, master *big.Int, amount uint64) (uint32, *big.Int, [32]byte, error) {
	b.slotMu.Lock()
	defer b.slotMu.Unlock()

	for slot := uint32(0); slot < uint32(b.MaxSlotAttempts); slot++ {
		if _, taken := b.reserved[slotKey{amount, slot}]; taken {
			continue
		}
		secret, err := keys.SlotSecret(master, slot, amount)
		if err != nil {
			return 0, nil, [32]byte{}, err
		}
		commitment, err := note.Commitment(amount, secret)
		if err != nil {
			return 0, nil, [32]byte{}, err
		}
		acct, err := b.cli.Account(ctx, ledger.CommitmentAddress(commitment))
		if err != nil {
			return 0, nil, [32]byte{}, apperror.LedgerSubmissionFailed(err, true)
		}
		if acct != nil {
			// Slot occupied on ledger; advance and recompute.
			continue
		}
		b.reserved[slotKey{amount, slot}] = struct{}{}
		return slot, secret, commitment, nil
	}
	return 0, nil, [32]byte{}, apperror.SlotExhausted(amount, b.MaxSlotAttempts)
}

func (b *Builder) release(amount uint64, slot uint32) {
	b.slotMu.Lock()
	delete(b.reserved, slotKey{amount, slot})
	b.slotMu.Unlock()
}

// Withdraw pays amount to recipient from the first unspent commitment that
// covers it. An exact match spends the commitment in full; a larger one
// mints a change commitment in the same atomic ledger transaction.
func (b *Builder) Withdraw(ctx context.Context, amount uint64, recipient ledger.Address) (*Receipt, error) {
	if err := b.validateAmount(amount); err != nil {
		return nil, err
	}

	view, err := b.scan.Scan(ctx, b.eng)
	if err != nil {
		return nil, err
	}
	rec, err := selectCommitment(view, amount)
	if err != nil {
		return nil, err
	}

	nullifier, err := note.Nullifier(rec.Secret, rec.Commitment)
	if err != nil {
		return nil, err
	}

	instr := ledger.Instruction{
		Kind:           ledger.InstrSpendCommitment,
		Commitment:     rec.Commitment,
		Nullifier:      nullifier,
		Recipient:      recipient,
		WithdrawAmount: amount,
	}
	receipt := &Receipt{Commitment: rec.Commitment, Nullifier: nullifier}

	if rec.Amount == amount {
		proof, err := b.prover.GenerateWithdrawProof(prover.WithdrawInputs{
			Commitment:       rec.Commitment,
			Nullifier:        nullifier,
			WithdrawAmount:   amount,
			CommitmentAmount: rec.Amount,
			Secret:           rec.Secret,
		})
		if err != nil {
			return nil, err
		}
		instr.Proof, instr.Public = proof.Bytes, proof.Public
	} else {
		changeAmount := rec.Amount - amount
		changeSecret, err := b.eng.EphemeralSecret(changeAmount)
		if err != nil {
			return nil, err
		}
		changeCommitment, err := note.Commitment(changeAmount, changeSecret)
		if err != nil {
			return nil, err
		}
		proof, err := b.prover.GenerateWithdrawWithChangeProof(prover.WithdrawChangeInputs{
			OldCommitment:  rec.Commitment,
			OldNullifier:   nullifier,
			NewCommitment:  changeCommitment,
			WithdrawAmount: amount,
			OldAmount:      rec.Amount,
			OldSecret:      rec.Secret,
			NewAmount:      changeAmount,
			NewSecret:      changeSecret,
		})
		if err != nil {
			return nil, err
		}
		instr.Proof, instr.Public = proof.Bytes, proof.Public
		instr.ChangeCommitment = &changeCommitment
		receipt.ChangeCommitment = &changeCommitment
		receipt.ChangeAmount = changeAmount
	}

	sig, err := b.execute(ctx, instr)
	if err != nil {
		return nil, err
	}
	receipt.Signature = sig
	b.log.Info().Uint64("amount", amount).Str("tx", sig.Hex()).Bool("change", receipt.ChangeCommitment != nil).Msg("withdraw confirmed")
	return receipt, nil
}

// selectCommitment applies the spend policy: first unspent record in scan
// order whose amount covers the request. No multi-commitment aggregation.
func selectCommitment(view *scanner.BalanceView, amount uint64) (*scanner.CommitmentRecord, error) {
	for i := range view.Records {
		r := &view.Records[i]
		if r.Spent {
			break
		}
		if r.Amount >= amount {
			return r, nil
		}
	}
	return nil, apperror.InsufficientBalance(amount)
}

// CreateRequest opens a payment request and returns its id.
func (b *Builder) CreateRequest(ctx context.Context, amount uint64, expiresAt int64, metadataHash [32]byte, payee ledger.Address) ([16]byte, error) {
	if err := b.validateAmount(amount); err != nil {
		return [16]byte{}, err
	}
	id := [16]byte(uuid.New())

	_, err := b.execute(ctx, ledger.Instruction{
		Kind:         ledger.InstrCreateRequest,
		RequestID:    id,
		Payee:        payee,
		Amount:       amount,
		ExpiresAt:    expiresAt,
		MetadataHash: metadataHash,
	})
	if err != nil {
		return [16]byte{}, err
	}
	b.log.Info().Str("request", ledger.RequestAddress(id).Hex()).Uint64("amount", amount).Msg("payment request created")
	return id, nil
}

// PayRequest settles a pending request with an atomic deposit-then-withdraw
// through the pool, so the payer's source account never appears next to the
// payee in the transaction graph.
func (b *Builder) PayRequest(ctx context.Context, id [16]byte) (*Receipt, error) {
	acct, err := b.cli.Account(ctx, ledger.RequestAddress(id))
	if err != nil {
		return nil, apperror.LedgerSubmissionFailed(err, true)
	}
	if acct == nil {
		return nil, apperror.InvalidInput("payment request does not exist")
	}
	req, err := ledger.DecodeRequestAccount(acct.Data)
	if err != nil {
		return nil, apperror.InvalidInput("account is not a payment request")
	}
	if req.Status != ledger.RequestPending {
		return nil, apperror.InvalidInput("payment request is " + req.Status.String())
	}
	if err := b.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	// The pass-through commitment exists only inside this transaction, so
	// its secret is ephemeral by construction.
	secret, err := b.eng.EphemeralSecret(req.Amount)
	if err != nil {
		return nil, err
	}
	commitment, err := note.Commitment(req.Amount, secret)
	if err != nil {
		return nil, err
	}
	nullifier, err := note.Nullifier(secret, commitment)
	if err != nil {
		return nil, err
	}

	depositProof, err := b.prover.GenerateDepositProof(prover.DepositInputs{
		Commitment: commitment,
		Amount:     req.Amount,
		Secret:     secret,
	})
	if err != nil {
		return nil, err
	}
	withdrawProof, err := b.prover.GenerateWithdrawProof(prover.WithdrawInputs{
		Commitment:       commitment,
		Nullifier:        nullifier,
		WithdrawAmount:   req.Amount,
		CommitmentAmount: req.Amount,
		Secret:           secret,
	})
	if err != nil {
		return nil, err
	}

	sig, err := b.execute(ctx,
		ledger.Instruction{
			Kind:       ledger.InstrCreateCommitment,
			Commitment: commitment,
			Amount:     req.Amount,
			Proof:      depositProof.Bytes,
			Public:     depositProof.Public,
		},
		ledger.Instruction{
			Kind:           ledger.InstrSpendCommitment,
			Commitment:     commitment,
			Nullifier:      nullifier,
			Recipient:      req.Payee,
			WithdrawAmount: req.Amount,
			Proof:          withdrawProof.Bytes,
			Public:         withdrawProof.Public,
		},
		ledger.Instruction{Kind: ledger.InstrPayRequest, RequestID: id},
	)
	if err != nil {
		return nil, err
	}
	b.log.Info().Str("request", ledger.RequestAddress(id).Hex()).Str("tx", sig.Hex()).Msg("payment request paid")
	return &Receipt{Signature: sig, Commitment: commitment, Nullifier: nullifier}, nil
}

// CancelRequest cancels a pending request.
func (b *Builder) CancelRequest(ctx context.Context, id [16]byte) error {
	_, err := b.execute(ctx, ledger.Instruction{Kind: ledger.InstrCancelRequest, RequestID: id})
	return err
}

// execute runs the shared tail of every flow: sign, simulate, submit with
// one retry on a retryable failure, confirm. Submission without a
// successful dry run is a defect, so simulation failure stops the flow and
// surfaces the program log untouched.
func (b *Builder) execute(ctx context.Context, instrs ...ledger.Instruction) (ledger.TxSignature, error) {
	tx, err := b.buildSigned(ctx, instrs)
	if err != nil {
		return ledger.TxSignature{}, err
	}

	sim, err := b.cli.Simulate(ctx, tx)
	if err != nil {
		return ledger.TxSignature{}, apperror.LedgerSubmissionFailed(err, true)
	}
	if !sim.Ok {
		b.log.Warn().Strs("logs", sim.Logs).Str("err", sim.Err).Msg("simulation failed")
		return ledger.TxSignature{}, apperror.LedgerSimulationFailed(sim.Logs, errors.New(sim.Err))
	}

	sig, err := b.cli.Submit(ctx, tx)
	if err != nil {
		subErr := classifySubmit(err)
		if !apperror.IsRetryable(subErr) {
			return ledger.TxSignature{}, subErr
		}
		// One retry with a fresh blockhash; derivation state is unchanged.
		tx, err = b.buildSigned(ctx, instrs)
		if err != nil {
			return ledger.TxSignature{}, err
		}
		sig, err = b.cli.Submit(ctx, tx)
		if err != nil {
			return ledger.TxSignature{}, classifySubmit(err)
		}
	}

	if err := b.cli.Confirm(ctx, sig); err != nil {
		return ledger.TxSignature{}, apperror.LedgerSubmissionFailed(err, true)
	}
	return sig, nil
}

func (b *Builder) buildSigned(ctx context.Context, instrs []ledger.Instruction) (*ledger.Transaction, error) {
	blockhash, err := b.cli.RecentBlockhash(ctx)
	if err != nil {
		return nil, apperror.LedgerSubmissionFailed(err, true)
	}
	tx := &ledger.Transaction{Blockhash: blockhash, Instructions: instrs}
	sig, err := b.signer.SignTransaction(ctx, tx.Encode())
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return nil, apperror.UserRejected()
		}
		return nil, apperror.LedgerSubmissionFailed(err, true)
	}
	tx.Signature = sig
	return tx, nil
}

func classifySubmit(err error) error {
	if errors.Is(err, ledger.ErrStaleBlockhash) {
		return apperror.LedgerSubmissionFailed(err, true)
	}
	// Program-level rejection is final for these inputs.
	if strings.Contains(err.Error(), "program rejected") {
		return apperror.LedgerSubmissionFailed(err, false)
	}
	return apperror.LedgerSubmissionFailed(err, true)
}
