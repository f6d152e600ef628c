// Package scanner reconstructs a wallet's shielded balance from public
// ledger state alone. Nothing maps users to commitments anywhere off-chain,
// so ownership is established by brute force: re-derive every candidate
// secret over the (amount vocabulary × slot index) space and test membership
// against the on-ledger commitment set. The small amount vocabulary is what
// keeps the scan bounded, and it is also what gives every transfer its
// anonymity set.
package scanner

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/rs/zerolog"

	"github.com/yourorg/veilpay/internal/keys"
	"github.com/yourorg/veilpay/internal/ledger"
	"github.com/yourorg/veilpay/pkg/note"
)

// CommitmentRecord is one owned commitment, reconstructed transiently
// during a scan. Secret is owner-only state and never leaves the process.
type CommitmentRecord struct {
	Commitment [32]byte
	Address    ledger.Address
	Amount     uint64
	SlotIndex  uint32
	Ephemeral  bool // change output; secret is session-remembered, not derived
	Spent      bool
	CreatedAt  int64
	Secret     *big.Int
}

// BalanceView is the result of one scan: records in canonical order plus
// the unspent total. Recomputed from scratch on every scan.
type BalanceView struct {
	Records []CommitmentRecord
	Total   uint64
}

// Unspent returns the unspent prefix of the record list.
func (v *BalanceView) Unspent() []CommitmentRecord {
	for i, r := range v.Records {
		if r.Spent {
			return v.Records[:i]
		}
	}
	return v.Records
}

type Scanner struct {
	cli     ledger.Client
	vocab   []uint64
	maxSlot uint32
	log     zerolog.Logger

	// OnRecord, when set, streams each owned record as it is classified,
	// before sorting. UI responsiveness only; the returned view is complete
	// regardless.
	OnRecord func(CommitmentRecord)
}

func New(cli ledger.Client, vocab []uint64, maxSlot uint32, log zerolog.Logger) *Scanner {
	return &Scanner{
		cli:     cli,
		vocab:   vocab,
		maxSlot: maxSlot,
		log:     log.With().Str("component", "scanner").Logger(),
	}
}

type candidate struct {
	amount uint64
	slot   uint32
	eph    bool
	secret *big.Int
}

// Scan enumerates commitment accounts and rebuilds the balance view for the
// engine's master key. An empty ledger yields a zero balance, not an error.
// Cancel via ctx to abort a long scan.
func (s *Scanner) Scan(ctx context.Context, eng *keys.Engine) (*BalanceView, error) {
	master, err := eng.MasterKey(ctx)
	if err != nil {
		return nil, err
	}

	accounts, err := s.cli.AccountsBySize(ctx, ledger.CommitmentAccountSize)
	if err != nil {
		return nil, err
	}

	// Candidate table over the bounded search space. One hash pair per
	// (amount, slot); ledger elements then match with a map lookup, so the
	// whole scan costs O(|vocab|·maxSlot + |accounts|) hash evaluations.
	candidates := make(map[[32]byte]candidate, len(s.vocab)*int(s.maxSlot))
	for _, amount := range s.vocab {
		for slot := uint32(0); slot < s.maxSlot; slot++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			secret, err := keys.SlotSecret(master, slot, amount)
			if err != nil {
				return nil, err
			}
			c, err := note.Commitment(amount, secret)
			if err != nil {
				return nil, err
			}
			candidates[c] = candidate{amount: amount, slot: slot, secret: secret}
		}
	}
	// Session-remembered change secrets are part of the candidate set; they
	// are random, so only the session that created them can find them.
	for _, eph := range eng.Ephemerals() {
		c, err := note.Commitment(eph.Amount, eph.Secret)
		if err != nil {
			return nil, err
		}
		candidates[c] = candidate{amount: eph.Amount, eph: true, secret: eph.Secret}
	}

	view := &BalanceView{}
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, err := ledger.DecodeCommitmentAccount(acct.Data)
		if err != nil {
			// Size matched but the discriminator did not: someone else's
			// account type, not ours. Expected, skip.
			continue
		}
		cand, owned := candidates[dec.Commitment]
		if !owned {
			// Out-of-vocabulary amount or another wallet's commitment.
			continue
		}

		rec := CommitmentRecord{
			Commitment: dec.Commitment,
			Address:    acct.Address,
			Amount:     cand.amount,
			SlotIndex:  cand.slot,
			Ephemeral:  cand.eph,
			CreatedAt:  dec.CreatedAt,
			Secret:     cand.secret,
		}

		// Spent-state comes from nullifier account existence, which every
		// observer can compute once the nullifier is revealed.
		nul, err := note.Nullifier(cand.secret, dec.Commitment)
		if err != nil {
			return nil, err
		}
		nulAcct, err := s.cli.Account(ctx, ledger.NullifierAddress(nul))
		if err != nil {
			return nil, err
		}
		rec.Spent = nulAcct != nil

		if s.OnRecord != nil {
			s.OnRecord(rec)
		}
		view.Records = append(view.Records, rec)
	}

	sortRecords(view.Records)
	for _, r := range view.Records {
		if !r.Spent {
			view.Total += r.Amount
		}
	}
	s.log.Debug().
		Int("owned", len(view.Records)).
		Uint64("total", view.Total).
		Msg("scan complete")
	return view, nil
}

// sortRecords: unspent before spent; within each group newest first; ties
// broken by address so repeated scans of one snapshot agree byte for byte.
func sortRecords(recs []CommitmentRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Spent != b.Spent {
			return !a.Spent
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return bytes.Compare(a.Address[:], b.Address[:]) < 0
	})
}
