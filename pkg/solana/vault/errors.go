package vault

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana"
)

// VaultError is a custom program error code returned by the vault program.
type VaultError uint32

const (
	// Supplied account does not match its derived address
	ErrDerivationMismatch VaultError = iota + 0x1770

	// Vault state account is missing or not owned by the program
	ErrNotInitialized

	// Vault state or vault account already exists
	ErrAlreadyInitialized

	// Balance cannot cover the requested amount
	ErrInsufficientFunds

	// Owner did not sign
	ErrUnauthorizedSigner

	// Amount must be greater than zero
	ErrInvalidAmount

	// Account must be writable
	ErrAccountNotWritable

	// Lamport arithmetic overflowed
	ErrArithmeticOverflow
)

var errorNames = map[VaultError]string{
	ErrDerivationMismatch: "DerivationMismatch",
	ErrNotInitialized:     "NotInitialized",
	ErrAlreadyInitialized: "AlreadyInitialized",
	ErrInsufficientFunds:  "InsufficientFunds",
	ErrUnauthorizedSigner: "UnauthorizedSigner",
	ErrInvalidAmount:      "InvalidAmount",
	ErrAccountNotWritable: "AccountNotWritable",
	ErrArithmeticOverflow: "ArithmeticOverflow",
}

func (e VaultError) Error() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return solana.CustomError(e).Error()
}

// Custom returns the error as the custom program error a transaction fails
// with.
func (e VaultError) Custom() solana.CustomError {
	return solana.CustomError(e)
}

// GetError extracts the vault error a failed transaction returned, if any.
func GetError(err error) (VaultError, bool) {
	var ce solana.CustomError
	if !errors.As(err, &ce) {
		return 0, false
	}

	e := VaultError(ce)
	if _, ok := errorNames[e]; !ok {
		return 0, false
	}
	return e, true
}
