package runtime

import (
	"context"
	"crypto/ed25519"
)

// Store persists accounts for a Bank.
type Store interface {
	// Get returns the account at address.
	//
	// ErrAccountNotFound is returned if the account does not exist.
	Get(ctx context.Context, address ed25519.PublicKey) (*Account, error)

	// Commit applies every update in a single atomic step. Either all updates
	// become visible or none do.
	Commit(ctx context.Context, updates []*AccountUpdate) error
}
