// Package prover orchestrates Groth16 proof generation and verification for
// the three shield circuits. Parameter sets are heavy (compile + trusted
// setup), so they are initialized lazily, at most once per circuit kind,
// behind a single-flight guard, and cached on disk across runs.
package prover

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/veilpay/circuits"
	"github.com/yourorg/veilpay/pkg/apperror"
)

type paramSet struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Orchestrator holds per-kind circuit parameter sets.
type Orchestrator struct {
	dir string
	log zerolog.Logger

	flight singleflight.Group
	mu     sync.RWMutex
	sets   map[circuits.Kind]*paramSet
}

func New(artifactDir string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		dir:  artifactDir,
		log:  log.With().Str("component", "prover").Logger(),
		sets: make(map[circuits.Kind]*paramSet),
	}
}

// Ready initializes the parameter set for kind if needed. Concurrent
// callers racing to first use share one in-flight initialization.
func (o *Orchestrator) Ready(kind circuits.Kind) error {
	_, err, _ := o.flight.Do(string(kind), func() (any, error) {
		o.mu.RLock()
		_, done := o.sets[kind]
		o.mu.RUnlock()
		if done {
			return nil, nil
		}
		set, err := o.initParamSet(kind)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.sets[kind] = set
		o.mu.Unlock()
		return nil, nil
	})
	return err
}

func (o *Orchestrator) initParamSet(kind circuits.Kind) (*paramSet, error) {
	blueprint := circuits.Blueprint(kind)
	if blueprint == nil {
		return nil, fmt.Errorf("unknown circuit kind %q", kind)
	}

	ccs, err := frontend.Compile(circuits.Curve().ScalarField(), r1cs.NewBuilder, blueprint)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", kind, err)
	}

	pkPath := filepath.Join(o.dir, string(kind)+"_pk.bin")
	vkPath := filepath.Join(o.dir, string(kind)+"_vk.bin")

	pk := groth16.NewProvingKey(circuits.Curve())
	vk := groth16.NewVerifyingKey(circuits.Curve())

	if pkBytes, err := os.ReadFile(pkPath); err == nil {
		if _, err := pk.ReadFrom(bytes.NewReader(pkBytes)); err != nil {
			return nil, fmt.Errorf("load proving key %s: %w", pkPath, err)
		}
		vkBytes, err := os.ReadFile(vkPath)
		if err != nil {
			return nil, fmt.Errorf("load verifying key %s: %w", vkPath, err)
		}
		if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
			return nil, fmt.Errorf("load verifying key %s: %w", vkPath, err)
		}
		o.log.Debug().Str("kind", string(kind)).Msg("loaded cached circuit keys")
		return &paramSet{ccs: ccs, pk: pk, vk: vk}, nil
	}

	o.log.Info().Str("kind", string(kind)).Msg("running trusted setup")
	pk, vk, err = groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", kind, err)
	}

	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := pk.WriteTo(&buf); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pkPath, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	buf.Reset()
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	if err := os.WriteFile(vkPath, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return &paramSet{ccs: ccs, pk: pk, vk: vk}, nil
}

func (o *Orchestrator) params(kind circuits.Kind) (*paramSet, error) {
	if err := o.Ready(kind); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sets[kind], nil
}

func (o *Orchestrator) prove(kind circuits.Kind, assignment frontend.Circuit, public any) (*Proof, error) {
	set, err := o.params(kind)
	if err != nil {
		return nil, apperror.ProofGenerationFailed(err)
	}

	w, err := frontend.NewWitness(assignment, circuits.Curve().ScalarField())
	if err != nil {
		return nil, apperror.ProofGenerationFailed(err)
	}
	proof, err := groth16.Prove(set.ccs, set.pk, w)
	if err != nil {
		return nil, apperror.ProofGenerationFailed(err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, apperror.ProofGenerationFailed(err)
	}
	pub, err := json.Marshal(public)
	if err != nil {
		return nil, apperror.ProofGenerationFailed(err)
	}
	o.log.Debug().Str("kind", string(kind)).Int("proofBytes", buf.Len()).Msg("proof generated")
	return &Proof{Kind: kind, Bytes: buf.Bytes(), Public: pub}, nil
}

// GenerateDepositProof proves commitment = H(amount, secret) with the
// amount public. Inputs are pre-checked; violations fail without proving.
func (o *Orchestrator) GenerateDepositProof(in DepositInputs) (*Proof, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	assignment := &circuits.DepositCircuit{
		Amount:     in.Amount,
		Commitment: new(big.Int).SetBytes(in.Commitment[:]),
		Secret:     in.Secret,
	}
	return o.prove(circuits.KindDeposit, assignment, DepositPublic{
		Amount:     in.Amount,
		Commitment: in.Commitment[:],
	})
}

// GenerateWithdrawProof proves a full spend of a commitment.
func (o *Orchestrator) GenerateWithdrawProof(in WithdrawInputs) (*Proof, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	assignment := &circuits.WithdrawCircuit{
		Commitment:       new(big.Int).SetBytes(in.Commitment[:]),
		Nullifier:        new(big.Int).SetBytes(in.Nullifier[:]),
		WithdrawAmount:   in.WithdrawAmount,
		CommitmentAmount: in.CommitmentAmount,
		Secret:           in.Secret,
	}
	return o.prove(circuits.KindWithdraw, assignment, WithdrawPublic{
		Commitment:     in.Commitment[:],
		Nullifier:      in.Nullifier[:],
		WithdrawAmount: in.WithdrawAmount,
	})
}

// GenerateWithdrawWithChangeProof proves a partial spend that mints a
// change commitment for the remainder.
func (o *Orchestrator) GenerateWithdrawWithChangeProof(in WithdrawChangeInputs) (*Proof, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	assignment := &circuits.WithdrawWithChangeCircuit{
		OldCommitment:  new(big.Int).SetBytes(in.OldCommitment[:]),
		OldNullifier:   new(big.Int).SetBytes(in.OldNullifier[:]),
		NewCommitment:  new(big.Int).SetBytes(in.NewCommitment[:]),
		WithdrawAmount: in.WithdrawAmount,
		OldAmount:      in.OldAmount,
		OldSecret:      in.OldSecret,
		NewAmount:      in.NewAmount,
		NewSecret:      in.NewSecret,
	}
	return o.prove(circuits.KindWithdrawWithChange, assignment, WithdrawChangePublic{
		OldCommitment:  in.OldCommitment[:],
		OldNullifier:   in.OldNullifier[:],
		NewCommitment:  in.NewCommitment[:],
		WithdrawAmount: in.WithdrawAmount,
	})
}

// Verify checks a proof against its published public signals. Local sanity
// checking only; on-ledger verification remains authoritative.
func (o *Orchestrator) Verify(p *Proof) error {
	set, err := o.params(p.Kind)
	if err != nil {
		return err
	}

	assignment, err := publicAssignment(p.Kind, p.Public)
	if err != nil {
		return err
	}
	w, err := frontend.NewWitness(assignment, circuits.Curve().ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}

	proof := groth16.NewProof(circuits.Curve())
	if _, err := proof.ReadFrom(bytes.NewReader(p.Bytes)); err != nil {
		return fmt.Errorf("unmarshal proof: %w", err)
	}
	return groth16.Verify(proof, set.vk, w)
}

func publicAssignment(kind circuits.Kind, publicJSON []byte) (frontend.Circuit, error) {
	switch kind {
	case circuits.KindDeposit:
		var pub DepositPublic
		if err := json.Unmarshal(publicJSON, &pub); err != nil {
			return nil, err
		}
		return &circuits.DepositCircuit{
			Amount:     pub.Amount,
			Commitment: new(big.Int).SetBytes(pub.Commitment),
		}, nil
	case circuits.KindWithdraw:
		var pub WithdrawPublic
		if err := json.Unmarshal(publicJSON, &pub); err != nil {
			return nil, err
		}
		return &circuits.WithdrawCircuit{
			Commitment:     new(big.Int).SetBytes(pub.Commitment),
			Nullifier:      new(big.Int).SetBytes(pub.Nullifier),
			WithdrawAmount: pub.WithdrawAmount,
		}, nil
	case circuits.KindWithdrawWithChange:
		var pub WithdrawChangePublic
		if err := json.Unmarshal(publicJSON, &pub); err != nil {
			return nil, err
		}
		return &circuits.WithdrawWithChangeCircuit{
			OldCommitment:  new(big.Int).SetBytes(pub.OldCommitment),
			OldNullifier:   new(big.Int).SetBytes(pub.OldNullifier),
			NewCommitment:  new(big.Int).SetBytes(pub.NewCommitment),
			WithdrawAmount: pub.WithdrawAmount,
		}, nil
	}
	return nil, fmt.Errorf("unknown circuit kind %q", kind)
}
