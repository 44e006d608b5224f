package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vault/pkg/solana"
)

var initializeInstructionDiscriminator = []byte{
	175, 175, 109, 31, 13, 152, 155, 237,
}

const (
	InitializeInstructionArgsSize = 0
)

type InitializeInstructionArgs struct {
}

type InitializeInstructionAccounts struct {
	User  ed25519.PublicKey
	State ed25519.PublicKey
	Vault ed25519.PublicKey
}

func NewInitializeInstruction(
	accounts *InitializeInstructionAccounts,
	args *InitializeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(initializeInstructionDiscriminator)+
			InitializeInstructionArgsSize)

	putDiscriminator(data, initializeInstructionDiscriminator, &offset)

	return solana.NewInstruction(
		PROGRAM_ID,
		data,
		vaultAccountMetas(accounts.User, accounts.State, accounts.Vault)...,
	)
}

func InitializeInstructionArgsFromBinary(data []byte) (*InitializeInstructionArgs, error) {
	if len(data) != discriminatorSize+InitializeInstructionArgsSize {
		return nil, ErrInvalidInstructionData
	}

	if typ, err := GetInstructionType(data); err != nil || typ != InstructionTypeInitialize {
		return nil, ErrInvalidInstructionData
	}

	return &InitializeInstructionArgs{}, nil
}

// vaultAccountMetas is the account list shared by every vault instruction.
func vaultAccountMetas(user, state, vault ed25519.PublicKey) []solana.AccountMeta {
	return []solana.AccountMeta{
		solana.NewAccountMeta(user, true),
		solana.NewAccountMeta(state, false),
		solana.NewAccountMeta(vault, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
	}
}
