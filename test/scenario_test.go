// Package test runs whole-system scenarios on the in-memory ledger: every
// flow goes through the real derivation engine, scanner, and transaction
// builder, with only the prover faked (real proving is exercised in the
// prover package behind -short).
package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/veilpay/internal/keys"
	"github.com/yourorg/veilpay/internal/ledger"
	"github.com/yourorg/veilpay/internal/prover"
	"github.com/yourorg/veilpay/internal/scanner"
	"github.com/yourorg/veilpay/internal/txbuilder"
	"github.com/yourorg/veilpay/internal/wallet"
	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/logger"
)

var vocab = []uint64{10_000_000, 100_000_000, 500_000_000, 1_000_000_000}

type fakeProver struct{}

func (fakeProver) GenerateDepositProof(prover.DepositInputs) (*prover.Proof, error) {
	return &prover.Proof{Bytes: []byte("proof"), Public: []byte("{}")}, nil
}

func (fakeProver) GenerateWithdrawProof(prover.WithdrawInputs) (*prover.Proof, error) {
	return &prover.Proof{Bytes: []byte("proof"), Public: []byte("{}")}, nil
}

func (fakeProver) GenerateWithdrawWithChangeProof(prover.WithdrawChangeInputs) (*prover.Proof, error) {
	return &prover.Proof{Bytes: []byte("proof"), Public: []byte("{}")}, nil
}

type stubSigner struct {
	sig       []byte
	rejectMsg bool
	prompts   int
}

func (s *stubSigner) SignMessage(context.Context, []byte) ([]byte, error) {
	s.prompts++
	if s.rejectMsg {
		return nil, wallet.ErrRejected
	}
	return s.sig, nil
}

func (s *stubSigner) SignTransaction(context.Context, []byte) ([]byte, error) {
	return s.sig, nil
}

type session struct {
	eng   *keys.Engine
	scan  *scanner.Scanner
	build *txbuilder.Builder
}

func newSession(t *testing.T, m *ledger.Memory, seed byte) *session {
	t.Helper()
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = seed + byte(i)
	}
	return newSessionWithSigner(m, &stubSigner{sig: sig})
}

func newSessionWithSigner(m *ledger.Memory, signer wallet.Signer) *session {
	log := logger.New("error", false)
	eng := keys.NewEngine(signer, "")
	scan := scanner.New(m, vocab, 8, log)
	return &session{
		eng:   eng,
		scan:  scan,
		build: txbuilder.New(m, eng, signer, fakeProver{}, scan, vocab, log),
	}
}

func (s *session) balance(t *testing.T) uint64 {
	t.Helper()
	view, err := s.scan.Scan(context.Background(), s.eng)
	require.NoError(t, err)
	return view.Total
}

func TestDepositThenBalance(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	_, err := alice.build.Deposit(context.Background(), 500_000_000)
	require.NoError(t, err)
	_, err = alice.build.Deposit(context.Background(), 100_000_000)
	require.NoError(t, err)

	require.Equal(t, uint64(600_000_000), alice.balance(t))

	// Another wallet sees nothing of it.
	bob := newSession(t, m, 77)
	require.Zero(t, bob.balance(t))
}

func TestExactWithdrawDrainsCommitment(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	_, err := alice.build.Deposit(context.Background(), 100_000_000)
	require.NoError(t, err)

	rcpt, err := alice.build.Withdraw(context.Background(), 100_000_000, ledger.Address{0xbb})
	require.NoError(t, err)
	require.Nil(t, rcpt.ChangeCommitment)
	require.Zero(t, alice.balance(t))

	// The nullifier is public after the spend.
	nul, err := m.Account(context.Background(), ledger.NullifierAddress(rcpt.Nullifier))
	require.NoError(t, err)
	require.NotNil(t, nul)
}

func TestWithdrawWithChangeKeepsRemainderSpendable(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	_, err := alice.build.Deposit(context.Background(), 1_000_000_000)
	require.NoError(t, err)

	rcpt, err := alice.build.Withdraw(context.Background(), 100_000_000, ledger.Address{0xbb})
	require.NoError(t, err)
	require.NotNil(t, rcpt.ChangeCommitment)
	require.Equal(t, uint64(900_000_000), rcpt.ChangeAmount)
	require.Equal(t, uint64(900_000_000), alice.balance(t))

	// The change is out of vocabulary for scanning by derivation, but the
	// session remembers its secret, so it can be spent again.
	rcpt2, err := alice.build.Withdraw(context.Background(), 500_000_000, ledger.Address{0xcc})
	require.NoError(t, err)
	require.Equal(t, rcpt.ChangeCommitment, &rcpt2.Commitment)
	require.Equal(t, uint64(400_000_000), alice.balance(t))
}

func TestSlotCollisionAdvancesDeterministically(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	var slots []uint32
	for i := 0; i < 3; i++ {
		rcpt, err := alice.build.Deposit(context.Background(), 100_000_000)
		require.NoError(t, err)
		slots = append(slots, rcpt.SlotIndex)
	}
	require.Equal(t, []uint32{0, 1, 2}, slots)

	// A second session over the same wallet re-derives the same secrets and
	// finds all three.
	again := newSession(t, m, 1)
	require.Equal(t, uint64(300_000_000), again.balance(t))
}

func TestRejectedSignatureLatchesSession(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	signer := &stubSigner{rejectMsg: true}
	s := newSessionWithSigner(m, signer)

	_, err := s.build.Deposit(context.Background(), 100_000_000)
	require.Equal(t, apperror.CodeSignatureRejected, apperror.CodeOf(err))

	// Retrying must not prompt the wallet again.
	_, err = s.scan.Scan(context.Background(), s.eng)
	require.Equal(t, apperror.CodeSignatureRejected, apperror.CodeOf(err))
	require.Equal(t, 1, signer.prompts)

	// Reset clears the latch and allows a fresh prompt.
	signer.rejectMsg = false
	signer.sig = make([]byte, 65)
	s.eng.Reset()
	_, err = s.scan.Scan(context.Background(), s.eng)
	require.NoError(t, err)
	require.Equal(t, 2, signer.prompts)
}

func TestScanIdempotentAcrossSessions(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	_, err := alice.build.Deposit(context.Background(), 500_000_000)
	require.NoError(t, err)
	_, err = alice.build.Deposit(context.Background(), 100_000_000)
	require.NoError(t, err)
	_, err = alice.build.Withdraw(context.Background(), 100_000_000, ledger.Address{0xbb})
	require.NoError(t, err)

	v1, err := alice.scan.Scan(context.Background(), alice.eng)
	require.NoError(t, err)
	v2, err := alice.scan.Scan(context.Background(), alice.eng)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	// A fresh session reconstructs the same derived records (not the
	// ephemeral ones, of which this run produced none).
	again := newSession(t, m, 1)
	v3, err := again.scan.Scan(context.Background(), again.eng)
	require.NoError(t, err)
	require.Equal(t, v1.Total, v3.Total)
	require.Len(t, v3.Records, len(v1.Records))
}

func TestPaymentRequestFlow(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	merchant := newSession(t, m, 40)
	customer := newSession(t, m, 1)

	payee := ledger.Address{0xfe}
	id, err := merchant.build.CreateRequest(context.Background(), 100_000_000, 0, [32]byte{}, payee)
	require.NoError(t, err)

	_, err = customer.build.PayRequest(context.Background(), id)
	require.NoError(t, err)

	acct, err := m.Account(context.Background(), ledger.RequestAddress(id))
	require.NoError(t, err)
	req, err := ledger.DecodeRequestAccount(acct.Data)
	require.NoError(t, err)
	require.Equal(t, ledger.RequestPaid, req.Status)

	// Double settlement is rejected without touching the ledger.
	_, err = customer.build.PayRequest(context.Background(), id)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))
}

func TestDoubleSpendRejectedByProgram(t *testing.T) {
	m := ledger.NewMemory([32]byte{'m'})
	alice := newSession(t, m, 1)

	_, err := alice.build.Deposit(context.Background(), 100_000_000)
	require.NoError(t, err)
	rcpt, err := alice.build.Withdraw(context.Background(), 100_000_000, ledger.Address{0xbb})
	require.NoError(t, err)

	// Replay the spend by hand: same nullifier, fresh blockhash.
	bh, err := m.RecentBlockhash(context.Background())
	require.NoError(t, err)
	_, err = m.Submit(context.Background(), &ledger.Transaction{
		Blockhash: bh,
		Instructions: []ledger.Instruction{{
			Kind:           ledger.InstrSpendCommitment,
			Commitment:     rcpt.Commitment,
			Nullifier:      rcpt.Nullifier,
			Recipient:      ledger.Address{0xee},
			WithdrawAmount: 100_000_000,
		}},
	})
	require.ErrorContains(t, err, "already revealed")
}
