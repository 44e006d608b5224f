package runtime

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana/binary"
	"github.com/code-payments/code-vault/pkg/solana/system"
)

const (
	accountHeaderSize = (8 + // lamports
		1 + // executable
		32) // owner
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAccount  = errors.New("invalid account encoding")
)

// Account is the state stored at an address. An account with zero lamports
// does not exist.
type Account struct {
	Lamports   uint64
	Owner      ed25519.PublicKey
	Data       []byte
	Executable bool
}

// newEmptyAccount is the implicit state of an address nothing has funded.
func newEmptyAccount() *Account {
	return &Account{
		Owner: system.ProgramKey,
	}
}

func (a *Account) Clone() *Account {
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      make(ed25519.PublicKey, len(a.Owner)),
		Executable: a.Executable,
	}
	copy(clone.Owner, a.Owner)
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// Equal reports whether both accounts hold identical state.
func (a *Account) Equal(other *Account) bool {
	return a.Lamports == other.Lamports &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Owner, other.Owner) &&
		bytes.Equal(a.Data, other.Data)
}

// Exists reports whether the account is funded.
func (a *Account) Exists() bool {
	return a.Lamports > 0
}

func (a *Account) Marshal() []byte {
	data := make([]byte, accountHeaderSize+len(a.Data))

	var offset int
	binary.PutUint64(data, a.Lamports, &offset)
	binary.PutBool(data, a.Executable, &offset)
	binary.PutKey32(data, a.Owner, &offset)
	binary.PutBytes(data, a.Data, &offset)

	return data
}

func (a *Account) Unmarshal(data []byte) error {
	if len(data) < accountHeaderSize {
		return ErrInvalidAccount
	}

	var offset int
	binary.GetUint64(data, &a.Lamports, &offset)
	binary.GetBool(data, &a.Executable, &offset)
	binary.GetKey32(data, &a.Owner, &offset)

	a.Data = nil
	if len(data) > offset {
		a.Data = make([]byte, len(data)-offset)
		copy(a.Data, data[offset:])
	}

	return nil
}

func (a *Account) String() string {
	return fmt.Sprintf(
		"Account{lamports=%d,owner=%s,data_len=%d,executable=%t}",
		a.Lamports,
		base58.Encode(a.Owner),
		len(a.Data),
		a.Executable,
	)
}

// AccountUpdate is the committed state of an address after a transaction.
// Updates to accounts without lamports delete them.
type AccountUpdate struct {
	Address ed25519.PublicKey
	Account *Account
}

// IsDeletion reports whether the update removes the account.
func (u *AccountUpdate) IsDeletion() bool {
	return u.Account == nil || !u.Account.Exists()
}
