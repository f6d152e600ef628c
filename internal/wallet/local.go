package wallet

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

// Local signs with an in-process secp256k1 key. Used by the CLI and by
// tests; a browser-extension adapter satisfies the same interface in
// production deployments.
type Local struct {
	key *ecdsa.PrivateKey
}

func NewLocal(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return &Local{key: key}, nil
}

func NewLocalFromKey(key *ecdsa.PrivateKey) *Local {
	return &Local{key: key}
}

func (l *Local) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(msg), l.key)
}

func (l *Local) SignTransaction(_ context.Context, tx []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(tx), l.key)
}
