package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

// serveRPC answers JSON-RPC with canned results per method.
func serveRPC(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		body, err := json.Marshal(result)
		require.NoError(t, err)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, body)
	}))
}

func dialTest(t *testing.T, srv *httptest.Server) *RPCClient {
	t.Helper()
	cli, err := DialRPC(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(cli.Close)
	return cli
}

func TestRPCAccountPresentAndAbsent(t *testing.T) {
	acct := CommitmentAccount{Commitment: [32]byte{1}, CreatedAt: 5}
	srv := serveRPC(t, map[string]any{
		"veil_getAccount": rpcAccount{Exists: true, Data: acct.MarshalBinary()},
	})
	defer srv.Close()
	cli := dialTest(t, srv)

	got, err := cli.Account(context.Background(), Address{0xaa})
	require.NoError(t, err)
	require.NotNil(t, got)
	dec, err := DecodeCommitmentAccount(got.Data)
	require.NoError(t, err)
	require.Equal(t, acct, dec)

	srv2 := serveRPC(t, map[string]any{"veil_getAccount": rpcAccount{Exists: false}})
	defer srv2.Close()
	cli2 := dialTest(t, srv2)

	got, err = cli2.Account(context.Background(), Address{0xab})
	require.NoError(t, err)
	require.Nil(t, got, "absent account decodes to nil, not an error")
}

func TestRPCAccountsBySize(t *testing.T) {
	addr := Address{0x01, 0x02}
	srv := serveRPC(t, map[string]any{
		"veil_getAccountsBySize": []rpcAccount{
			{Address: addr.Hex(), Data: make([]byte, CommitmentAccountSize)},
		},
	})
	defer srv.Close()
	cli := dialTest(t, srv)

	accts, err := cli.AccountsBySize(context.Background(), CommitmentAccountSize)
	require.NoError(t, err)
	require.Len(t, accts, 1)
	require.Equal(t, addr, accts[0].Address)
}

func TestRPCRecentBlockhash(t *testing.T) {
	var bh [32]byte
	bh[0] = 0xbb
	srv := serveRPC(t, map[string]any{"veil_recentBlockhash": hexutil.Bytes(bh[:])})
	defer srv.Close()
	cli := dialTest(t, srv)

	got, err := cli.RecentBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, bh, got)
}

func TestRPCSimulateAndSubmit(t *testing.T) {
	var sig [32]byte
	sig[0] = 0x51
	srv := serveRPC(t, map[string]any{
		"veil_simulateTransaction": rpcSimulation{Ok: false, Err: "nullifier already revealed", Logs: []string{"l1"}},
		"veil_sendTransaction":     hexutil.Bytes(sig[:]),
		"veil_confirmTransaction":  true,
	})
	defer srv.Close()
	cli := dialTest(t, srv)

	tx := &Transaction{Instructions: []Instruction{{Kind: InstrCreateCommitment}}}
	res, err := cli.Simulate(context.Background(), tx)
	require.NoError(t, err)
	require.False(t, res.Ok)
	require.Equal(t, []string{"l1"}, res.Logs)

	got, err := cli.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, TxSignature(sig), got)

	require.NoError(t, cli.Confirm(context.Background(), got))
}
