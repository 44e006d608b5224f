package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vault/pkg/solana"
)

var (
	StatePrefix = []byte("state")
	VaultPrefix = []byte("vault")
)

type GetStateAddressArgs struct {
	Owner ed25519.PublicKey
}

// GetStateAddress derives the VaultState address of an owner using the
// canonical bump.
func GetStateAddress(args *GetStateAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		StatePrefix,
		args.Owner,
	)
}

type GetVaultAddressArgs struct {
	State ed25519.PublicKey
}

// GetVaultAddress derives the vault address that belongs to a VaultState
// account using the canonical bump.
func GetVaultAddress(args *GetVaultAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		PROGRAM_ID,
		VaultPrefix,
		args.State,
	)
}

// CreateStateAddress recomputes the VaultState address from a known bump.
func CreateStateAddress(owner ed25519.PublicKey, bump uint8) (ed25519.PublicKey, error) {
	return solana.CreateProgramAddress(PROGRAM_ID, StatePrefix, owner, []byte{bump})
}

// CreateVaultAddress recomputes the vault address from a known bump.
func CreateVaultAddress(state ed25519.PublicKey, bump uint8) (ed25519.PublicKey, error) {
	return solana.CreateProgramAddress(PROGRAM_ID, VaultPrefix, state, []byte{bump})
}

// StateSignerSeeds returns the seeds that sign for a VaultState account in a
// cross program invocation.
func StateSignerSeeds(owner ed25519.PublicKey, bump uint8) [][]byte {
	return [][]byte{StatePrefix, owner, {bump}}
}

// VaultSignerSeeds returns the seeds that sign for a vault account in a cross
// program invocation.
func VaultSignerSeeds(state ed25519.PublicKey, bump uint8) [][]byte {
	return [][]byte{VaultPrefix, state, {bump}}
}
