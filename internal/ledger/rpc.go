package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCClient speaks the shield node's veil_* JSON-RPC namespace.
type RPCClient struct {
	c *rpc.Client
}

func DialRPC(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCClient{c: c}, nil
}

func NewRPCClient(c *rpc.Client) *RPCClient { return &RPCClient{c: c} }

func (r *RPCClient) Close() { r.c.Close() }

type rpcAccount struct {
	Address string        `json:"address"`
	Data    hexutil.Bytes `json:"data"`
	Exists  bool          `json:"exists"`
}

type rpcInstruction struct {
	Kind             uint8          `json:"kind"`
	Commitment       hexutil.Bytes  `json:"commitment,omitempty"`
	Amount           hexutil.Uint64 `json:"amount,omitempty"`
	Proof            hexutil.Bytes  `json:"proof,omitempty"`
	Public           hexutil.Bytes  `json:"public,omitempty"`
	Nullifier        hexutil.Bytes  `json:"nullifier,omitempty"`
	Recipient        hexutil.Bytes  `json:"recipient,omitempty"`
	WithdrawAmount   hexutil.Uint64 `json:"withdrawAmount,omitempty"`
	ChangeCommitment hexutil.Bytes  `json:"changeCommitment,omitempty"`
	RequestID        hexutil.Bytes  `json:"requestId,omitempty"`
	Payee            hexutil.Bytes  `json:"payee,omitempty"`
	ExpiresAt        int64          `json:"expiresAt,omitempty"`
	MetadataHash     hexutil.Bytes  `json:"metadataHash,omitempty"`
}

type rpcTransaction struct {
	Blockhash    hexutil.Bytes    `json:"blockhash"`
	Instructions []rpcInstruction `json:"instructions"`
	Signature    hexutil.Bytes    `json:"signature"`
}

type rpcSimulation struct {
	Ok   bool     `json:"ok"`
	Err  string   `json:"error,omitempty"`
	Logs []string `json:"logs"`
}

func wireTx(tx *Transaction) rpcTransaction {
	out := rpcTransaction{
		Blockhash: tx.Blockhash[:],
		Signature: tx.Signature,
	}
	for _, in := range tx.Instructions {
		w := rpcInstruction{
			Kind:           uint8(in.Kind),
			Commitment:     in.Commitment[:],
			Amount:         hexutil.Uint64(in.Amount),
			Proof:          in.Proof,
			Public:         in.Public,
			Nullifier:      in.Nullifier[:],
			Recipient:      in.Recipient[:],
			WithdrawAmount: hexutil.Uint64(in.WithdrawAmount),
			RequestID:      in.RequestID[:],
			Payee:          in.Payee[:],
			ExpiresAt:      in.ExpiresAt,
			MetadataHash:   in.MetadataHash[:],
		}
		if in.ChangeCommitment != nil {
			w.ChangeCommitment = in.ChangeCommitment[:]
		}
		out.Instructions = append(out.Instructions, w)
	}
	return out
}

func (r *RPCClient) Account(ctx context.Context, addr Address) (*Account, error) {
	var resp rpcAccount
	if err := r.c.CallContext(ctx, &resp, "veil_getAccount", addr.Hex()); err != nil {
		return nil, err
	}
	if !resp.Exists {
		return nil, nil
	}
	return &Account{Address: addr, Data: resp.Data}, nil
}

func (r *RPCClient) AccountsBySize(ctx context.Context, size int) ([]Account, error) {
	var resp []rpcAccount
	if err := r.c.CallContext(ctx, &resp, "veil_getAccountsBySize", size); err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(resp))
	for _, a := range resp {
		addrBytes, err := hexutil.Decode(a.Address)
		if err != nil || len(addrBytes) != 32 {
			return nil, errors.New("ledger: malformed account address in response")
		}
		out = append(out, Account{Address: Address(addrBytes), Data: a.Data})
	}
	return out, nil
}

func (r *RPCClient) RecentBlockhash(ctx context.Context) ([32]byte, error) {
	var resp hexutil.Bytes
	if err := r.c.CallContext(ctx, &resp, "veil_recentBlockhash"); err != nil {
		return [32]byte{}, err
	}
	if len(resp) != 32 {
		return [32]byte{}, errors.New("ledger: malformed blockhash")
	}
	return [32]byte(resp), nil
}

func (r *RPCClient) Simulate(ctx context.Context, tx *Transaction) (*SimulationResult, error) {
	var resp rpcSimulation
	if err := r.c.CallContext(ctx, &resp, "veil_simulateTransaction", wireTx(tx)); err != nil {
		return nil, err
	}
	return &SimulationResult{Ok: resp.Ok, Err: resp.Err, Logs: resp.Logs}, nil
}

func (r *RPCClient) Submit(ctx context.Context, tx *Transaction) (TxSignature, error) {
	var resp hexutil.Bytes
	if err := r.c.CallContext(ctx, &resp, "veil_sendTransaction", wireTx(tx)); err != nil {
		// Blockhash staleness comes back as a tagged RPC error so the
		// builder can refresh and retry exactly once.
		if strings.Contains(err.Error(), "stale blockhash") {
			return TxSignature{}, ErrStaleBlockhash
		}
		return TxSignature{}, err
	}
	if len(resp) != 32 {
		return TxSignature{}, errors.New("ledger: malformed transaction signature")
	}
	return TxSignature(resp), nil
}

func (r *RPCClient) Confirm(ctx context.Context, sig TxSignature) error {
	var confirmed bool
	if err := r.c.CallContext(ctx, &confirmed, "veil_confirmTransaction", sig.Hex()); err != nil {
		return err
	}
	if !confirmed {
		return errors.New("ledger: transaction not confirmed")
	}
	return nil
}
