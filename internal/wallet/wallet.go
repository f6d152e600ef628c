// Package wallet defines the adapter boundary to the user's wallet. The
// protocol core only ever asks for message and transaction signatures; key
// custody stays on the other side of this interface.
package wallet

import (
	"context"
	"errors"
)

// ErrRejected is returned by a Signer when the user explicitly declines a
// signing prompt. Callers must distinguish it from transport failures: a
// rejection suppresses further prompts, a transport failure may retry.
var ErrRejected = errors.New("wallet: user rejected signing request")

// Signer is the wallet adapter consumed by the protocol core.
type Signer interface {
	// SignMessage prompts for a signature over msg. Blocks until the user
	// approves, the user rejects (ErrRejected), or ctx is done.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)

	// SignTransaction signs a serialized ledger transaction.
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}
