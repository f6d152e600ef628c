// Package keys implements the session-scoped secret derivation engine.
//
// One Engine exists per connected wallet. It requests at most one signature
// per session, derives the master key from that signature, and derives every
// slot secret deterministically from (masterKey, slotIndex, amount). Nothing
// here touches durable storage; the whole key tree is re-derivable from a
// fresh signature.
package keys

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"

	"github.com/yourorg/veilpay/internal/wallet"
	"github.com/yourorg/veilpay/pkg/apperror"
	"github.com/yourorg/veilpay/pkg/mimc"
)

// MasterKeyBytes is the signature prefix length interpreted as the master
// key. 31 bytes keeps the value strictly below the BN254 scalar modulus.
const MasterKeyBytes = 31

// DefaultSigningMessage is the fixed message the wallet signs once per
// session. Changing it rotates every derived key, so it is versioned.
const DefaultSigningMessage = "veilpay shielded account v1"

// Ephemeral is a change-output secret that is not derivable from the master
// key. It lives only in session memory; the scanner folds these into its
// candidate set so change commitments stay findable until logout.
type Ephemeral struct {
	Secret *big.Int
	Amount uint64
}

// Engine owns the per-session signature cache and rejection latch.
// Never share one Engine across wallets.
type Engine struct {
	signer  wallet.Signer
	message []byte

	mu         sync.Mutex
	signature  []byte
	rejected   bool
	master     *big.Int
	ephemerals []Ephemeral
}

func NewEngine(signer wallet.Signer, message string) *Engine {
	if message == "" {
		message = DefaultSigningMessage
	}
	return &Engine{signer: signer, message: []byte(message)}
}

// Signature returns the session signature, prompting the wallet at most
// once. After a rejection every call fails fast with SignatureRejected until
// Reset; this is what keeps retry loops from storming the user with prompts.
func (e *Engine) Signature(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rejected {
		return nil, apperror.SignatureRejected()
	}
	if e.signature != nil {
		return e.signature, nil
	}

	sig, err := e.signer.SignMessage(ctx, e.message)
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			e.rejected = true
			return nil, apperror.SignatureRejected()
		}
		return nil, apperror.SignatureRequestFailed(err)
	}
	if len(sig) < MasterKeyBytes {
		return nil, apperror.SignatureRequestFailed(errors.New("signature shorter than master key prefix"))
	}
	e.signature = sig
	return sig, nil
}

// MasterKey derives (and caches) the session master key.
func (e *Engine) MasterKey(ctx context.Context) (*big.Int, error) {
	sig, err := e.Signature(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.master == nil {
		mk, err := DeriveMasterKey(sig)
		if err != nil {
			return nil, err
		}
		e.master = mk
	}
	return new(big.Int).Set(e.master), nil
}

// DeriveMasterKey interprets a fixed-size prefix of the signature as a
// big-endian unsigned integer. Pure and deterministic.
func DeriveMasterKey(signature []byte) (*big.Int, error) {
	if len(signature) < MasterKeyBytes {
		return nil, apperror.InvalidInput("signature shorter than master key prefix")
	}
	return new(big.Int).SetBytes(signature[:MasterKeyBytes]), nil
}

// SlotSecret derives H(masterKey, slotIndex, amount). Idempotent.
func SlotSecret(master *big.Int, slotIndex uint32, amount uint64) (*big.Int, error) {
	return mimc.HashUint64(master, uint64(slotIndex), amount)
}

// EphemeralSecret draws a fresh random secret for a change output and
// remembers it for the rest of the session. Change outputs cannot use the
// derived path because their slot index is unknown at spend time.
// TODO: derive change secrets as H(masterKey, parentNullifier) so a lost
// session can still recover them; see the recoverability note in DESIGN.md.
func (e *Engine) EphemeralSecret(amount uint64) (*big.Int, error) {
	buf := make([]byte, MasterKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	secret := new(big.Int).SetBytes(buf)

	e.mu.Lock()
	e.ephemerals = append(e.ephemerals, Ephemeral{Secret: secret, Amount: amount})
	e.mu.Unlock()
	return new(big.Int).Set(secret), nil
}

// Ephemerals returns a copy of the session's remembered change secrets.
func (e *Engine) Ephemerals() []Ephemeral {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Ephemeral, len(e.ephemerals))
	copy(out, e.ephemerals)
	return out
}

// Rejected reports whether the session is latched on a user rejection.
func (e *Engine) Rejected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rejected
}

// Reset clears the whole session: signature, rejection latch, master key,
// and remembered ephemerals. Equivalent to a page reload or wallet switch.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signature = nil
	e.rejected = false
	e.master = nil
	e.ephemerals = nil
}
