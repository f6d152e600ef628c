package ledger

import (
	"encoding/binary"
	"errors"
)

// Bit-exact account layouts. The offsets are part of the program ABI; the
// scanner and every observer parse the same bytes.

const (
	DiscriminatorLen = 8

	// disc[8] commitment[32] mint[32] createdAt[8] isSpent[1]
	CommitmentAccountSize = DiscriminatorLen + 32 + 32 + 8 + 1

	commitmentOff = DiscriminatorLen
	mintOff       = commitmentOff + 32
	createdAtOff  = mintOff + 32
	spentOff      = createdAtOff + 8

	// Existence alone signals spent state; only the discriminator is stored.
	NullifierAccountSize = DiscriminatorLen

	// disc[8] id[16] payee[32] amount[8] createdAt[8] expiresAt[8] paidAt[8] status[1] metadataHash[32]
	RequestAccountSize = DiscriminatorLen + 16 + 32 + 8 + 8 + 8 + 8 + 1 + 32

	reqIDOff       = DiscriminatorLen
	reqPayeeOff    = reqIDOff + 16
	reqAmountOff   = reqPayeeOff + 32
	reqCreatedOff  = reqAmountOff + 8
	reqExpiresOff  = reqCreatedOff + 8
	reqPaidOff     = reqExpiresOff + 8
	reqStatusOff   = reqPaidOff + 8
	reqMetadataOff = reqStatusOff + 1
)

var (
	CommitmentDiscriminator = [8]byte{'v', 'e', 'i', 'l', 'c', 'm', 't', 1}
	NullifierDiscriminator  = [8]byte{'v', 'e', 'i', 'l', 'n', 'u', 'l', 1}
	RequestDiscriminator    = [8]byte{'v', 'e', 'i', 'l', 'r', 'e', 'q', 1}
)

var ErrBadLayout = errors.New("ledger: account data does not match layout")

// CommitmentAccount is the decoded form of a commitment account.
type CommitmentAccount struct {
	Commitment [32]byte
	Mint       [32]byte
	CreatedAt  int64
	Spent      bool
}

func (c CommitmentAccount) MarshalBinary() []byte {
	out := make([]byte, CommitmentAccountSize)
	copy(out, CommitmentDiscriminator[:])
	copy(out[commitmentOff:], c.Commitment[:])
	copy(out[mintOff:], c.Mint[:])
	binary.BigEndian.PutUint64(out[createdAtOff:], uint64(c.CreatedAt))
	if c.Spent {
		out[spentOff] = 1
	}
	return out
}

func DecodeCommitmentAccount(data []byte) (CommitmentAccount, error) {
	var c CommitmentAccount
	if len(data) != CommitmentAccountSize || [8]byte(data[:DiscriminatorLen]) != CommitmentDiscriminator {
		return c, ErrBadLayout
	}
	copy(c.Commitment[:], data[commitmentOff:])
	copy(c.Mint[:], data[mintOff:])
	c.CreatedAt = int64(binary.BigEndian.Uint64(data[createdAtOff:]))
	c.Spent = data[spentOff] == 1
	return c, nil
}

// NullifierAccountData is the payload of a nullifier account: discriminator
// only, existence is the signal.
func NullifierAccountData() []byte {
	out := make([]byte, NullifierAccountSize)
	copy(out, NullifierDiscriminator[:])
	return out
}

// RequestStatus is a payment request lifecycle state.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestPaid
	RequestExpired
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestPaid:
		return "paid"
	case RequestExpired:
		return "expired"
	case RequestCancelled:
		return "cancelled"
	}
	return "unknown"
}

// RequestAccount is the decoded form of a payment request account.
// Paid and Expired are final states.
type RequestAccount struct {
	ID           [16]byte
	Payee        Address
	Amount       uint64
	CreatedAt    int64
	ExpiresAt    int64
	PaidAt       int64
	Status       RequestStatus
	MetadataHash [32]byte
}

func (r RequestAccount) MarshalBinary() []byte {
	out := make([]byte, RequestAccountSize)
	copy(out, RequestDiscriminator[:])
	copy(out[reqIDOff:], r.ID[:])
	copy(out[reqPayeeOff:], r.Payee[:])
	binary.BigEndian.PutUint64(out[reqAmountOff:], r.Amount)
	binary.BigEndian.PutUint64(out[reqCreatedOff:], uint64(r.CreatedAt))
	binary.BigEndian.PutUint64(out[reqExpiresOff:], uint64(r.ExpiresAt))
	binary.BigEndian.PutUint64(out[reqPaidOff:], uint64(r.PaidAt))
	out[reqStatusOff] = byte(r.Status)
	copy(out[reqMetadataOff:], r.MetadataHash[:])
	return out
}

func DecodeRequestAccount(data []byte) (RequestAccount, error) {
	var r RequestAccount
	if len(data) != RequestAccountSize || [8]byte(data[:DiscriminatorLen]) != RequestDiscriminator {
		return r, ErrBadLayout
	}
	copy(r.ID[:], data[reqIDOff:])
	copy(r.Payee[:], data[reqPayeeOff:])
	r.Amount = binary.BigEndian.Uint64(data[reqAmountOff:])
	r.CreatedAt = int64(binary.BigEndian.Uint64(data[reqCreatedOff:]))
	r.ExpiresAt = int64(binary.BigEndian.Uint64(data[reqExpiresOff:]))
	r.PaidAt = int64(binary.BigEndian.Uint64(data[reqPaidOff:]))
	r.Status = RequestStatus(data[reqStatusOff])
	copy(r.MetadataHash[:], data[reqMetadataOff:])
	return r, nil
}
